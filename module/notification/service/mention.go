package service

import (
	"context"
	"strings"
	"unicode"

	"PPChat/tools/errs"
)

// parseMentions 抽出内容里的 @name，按小写去重
func parseMentions(content string) map[string]struct{} {
	out := map[string]struct{}{}
	rs := []rune(content)
	for i := 0; i < len(rs); i++ {
		if rs[i] != '@' {
			continue
		}
		// 邮箱里的 @ 不算
		if i > 0 && isNameRune(rs[i-1]) {
			continue
		}
		j := i + 1
		for j < len(rs) && isNameRune(rs[j]) {
			j++
		}
		// 句尾的点不算名字
		if name := strings.TrimRight(string(rs[i+1:j]), "."); name != "" {
			out[strings.ToLower(name)] = struct{}{}
		}
		i = j - 1
	}
	return out
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// mentioned 返回 recipients 里被 @ 到的用户 id
func (s *Service) mentioned(ctx context.Context, content string, recipients []string) (map[string]struct{}, error) {
	names := parseMentions(content)
	hit := map[string]struct{}{}
	if len(names) == 0 || len(recipients) == 0 {
		return hit, nil
	}
	users, err := s.repo.FindUsersByIDs(ctx, recipients)
	if err != nil {
		return nil, errs.WrapMsg(err, "find mentioned users")
	}
	for _, u := range users {
		if _, ok := names[strings.ToLower(u.Username)]; ok {
			hit[u.ID] = struct{}{}
		}
	}
	return hit, nil
}

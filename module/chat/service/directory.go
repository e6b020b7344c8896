package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
	usermodel "PPChat/module/user/model"
	"PPChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repository 会话目录依赖的存储能力
type Repository interface {
	FindUserByID(ctx context.Context, id string) (*usermodel.User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]usermodel.Summary, error)

	ConversationIDsForUser(ctx context.Context, userID string) ([]string, error)
	FindConversation(ctx context.Context, id string) (*chatmodel.Conversation, error)
	FindConversations(ctx context.Context, ids []string) ([]chatmodel.Conversation, error)
	FindPrivateByPair(ctx context.Context, pairKey string) (*chatmodel.Conversation, error)
	CreateConversation(ctx context.Context, conv *chatmodel.Conversation, members []chatmodel.Member, group *chatmodel.Group) error
	ListMembers(ctx context.Context, conversationID string) ([]chatmodel.Member, error)
	FindMember(ctx context.Context, conversationID, userID string) (*chatmodel.Member, error)
	AddMember(ctx context.Context, mem *chatmodel.Member) error
	RemoveMember(ctx context.Context, conversationID, userID string) (bool, error)
	CountMembers(ctx context.Context, conversationIDs []string) (map[string]int64, error)
	FindGroup(ctx context.Context, conversationID string) (*chatmodel.Group, error)
}

type Directory struct {
	repo Repository
	now  func() time.Time
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo, now: time.Now}
}

func newID() string { return primitive.NewObjectID().Hex() }

type Resolved struct {
	Conversation *chatmodel.Conversation `json:"conversation"`
	Members      []chatmodel.Member      `json:"members"`
	Existed      bool                    `json:"-"`
}

// ResolvePrivate 找到或创建 A、B 之间唯一的单聊。调用方必须是其中一方。
func (d *Directory) ResolvePrivate(ctx context.Context, callerID, userA, userB string) (*Resolved, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, errs.Validation("userA and userB are required")
	}
	if userA == userB {
		return nil, errs.Validation("userA and userB must be different")
	}
	if callerID != userA && callerID != userB {
		return nil, errs.Forbidden("Not a participant")
	}

	existing, err := d.findPrivate(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return d.resolved(ctx, existing, true)
	}

	a, err := d.loadUser(ctx, userA)
	if err != nil {
		return nil, err
	}
	b, err := d.loadUser(ctx, userB)
	if err != nil {
		return nil, err
	}
	now := d.now().UTC()
	conv := &chatmodel.Conversation{
		ID:        newID(),
		Type:      chatmodel.ConversationPrivate,
		Name:      chatmodel.PrivateName(a.Username, b.Username),
		PairKey:   chatmodel.PairKey(a.ID, b.ID),
		CreatedBy: callerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	members := []chatmodel.Member{
		{ID: newID(), ConversationID: conv.ID, UserID: a.ID, Role: chatmodel.RoleMember, JoinedAt: now},
		{ID: newID(), ConversationID: conv.ID, UserID: b.ID, Role: chatmodel.RoleMember, JoinedAt: now},
	}
	if err := d.repo.CreateConversation(ctx, conv, members, nil); err != nil {
		if !database.IsDuplicate(err) {
			return nil, errs.WrapMsg(err, "create private conversation")
		}
		// 并发创建：pair_key 唯一索引挡住了第二个，返回先建好的那个
		won, ferr := d.repo.FindPrivateByPair(ctx, conv.PairKey)
		if ferr != nil {
			return nil, errs.WrapMsg(ferr, "load private conversation", "pair", conv.PairKey)
		}
		return d.resolved(ctx, won, true)
	}
	return &Resolved{Conversation: conv, Members: members}, nil
}

// findPrivate 两人会话ID求交集，取第一个单聊
func (d *Directory) findPrivate(ctx context.Context, userA, userB string) (*chatmodel.Conversation, error) {
	idsA, err := d.repo.ConversationIDsForUser(ctx, userA)
	if err != nil {
		return nil, errs.WrapMsg(err, "conversations of user", "user", userA)
	}
	idsB, err := d.repo.ConversationIDsForUser(ctx, userB)
	if err != nil {
		return nil, errs.WrapMsg(err, "conversations of user", "user", userB)
	}
	inB := make(map[string]struct{}, len(idsB))
	for _, id := range idsB {
		inB[id] = struct{}{}
	}
	common := make([]string, 0)
	for _, id := range idsA {
		if _, ok := inB[id]; ok {
			common = append(common, id)
		}
	}
	if len(common) == 0 {
		return nil, nil
	}
	convs, err := d.repo.FindConversations(ctx, common)
	if err != nil {
		return nil, errs.WrapMsg(err, "load conversations")
	}
	byID := make(map[string]*chatmodel.Conversation, len(convs))
	for i := range convs {
		byID[convs[i].ID] = &convs[i]
	}
	for _, id := range common {
		if c, ok := byID[id]; ok && c.Type == chatmodel.ConversationPrivate {
			return c, nil
		}
	}
	return nil, nil
}

func (d *Directory) resolved(ctx context.Context, conv *chatmodel.Conversation, existed bool) (*Resolved, error) {
	members, err := d.repo.ListMembers(ctx, conv.ID)
	if err != nil {
		return nil, errs.WrapMsg(err, "list members", "conversation", conv.ID)
	}
	return &Resolved{Conversation: conv, Members: members, Existed: existed}, nil
}

func (d *Directory) loadUser(ctx context.Context, id string) (*usermodel.User, error) {
	u, err := d.repo.FindUserByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errs.NotFound("User not found")
		}
		return nil, errs.WrapMsg(err, "find user", "id", id)
	}
	return u, nil
}

type CreateGroupReq struct {
	Name      string   `json:"name"`
	CreatedBy string   `json:"createdBy"`
	Members   []string `json:"members"`
}

// CreateGroup 创建者为 admin，其余为 member；成员去重
func (d *Directory) CreateGroup(ctx context.Context, callerID string, req CreateGroupReq) (*Resolved, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.CreatedBy == "" {
		return nil, errs.Validation("name and createdBy are required")
	}
	if req.CreatedBy != callerID {
		return nil, errs.Forbidden("createdBy must be the caller")
	}

	seen := map[string]struct{}{req.CreatedBy: {}}
	ids := []string{req.CreatedBy}
	for _, id := range req.Members {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	found, err := d.repo.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, errs.WrapMsg(err, "load members")
	}
	if len(found) != len(ids) {
		return nil, errs.NotFound("User not found")
	}

	now := d.now().UTC()
	conv := &chatmodel.Conversation{
		ID:        newID(),
		Type:      chatmodel.ConversationGroup,
		Name:      name,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	members := make([]chatmodel.Member, 0, len(ids))
	for _, id := range ids {
		role := chatmodel.RoleMember
		if id == req.CreatedBy {
			role = chatmodel.RoleAdmin
		}
		members = append(members, chatmodel.Member{
			ID: newID(), ConversationID: conv.ID, UserID: id, Role: role, JoinedAt: now,
		})
	}
	group := &chatmodel.Group{
		ConversationID: conv.ID,
		Admins:         []string{req.CreatedBy},
		Members:        ids,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.repo.CreateConversation(ctx, conv, members, group); err != nil {
		return nil, errs.WrapMsg(err, "create group")
	}
	return &Resolved{Conversation: conv, Members: members}, nil
}

// requireGroupAdmin 会话必须是群，调用方必须持有 admin 角色的成员记录
// Group.Admins 只是冗余展示字段，不参与鉴权
func (d *Directory) requireGroupAdmin(ctx context.Context, conversationID, callerID string) error {
	conv, err := d.repo.FindConversation(ctx, conversationID)
	if err != nil {
		if database.IsNotFound(err) {
			return errs.NotFound("Group not found")
		}
		return errs.WrapMsg(err, "find conversation", "id", conversationID)
	}
	if conv.Type != chatmodel.ConversationGroup {
		return errs.NotFound("Group not found")
	}
	mem, err := d.repo.FindMember(ctx, conversationID, callerID)
	if err != nil {
		if database.IsNotFound(err) {
			return errs.Forbidden("Not authorized")
		}
		return errs.WrapMsg(err, "find member", "conversation", conversationID)
	}
	if !mem.IsAdmin() {
		return errs.Forbidden("Not authorized")
	}
	return nil
}

func (d *Directory) AddMember(ctx context.Context, conversationID, callerID, userID string) (*chatmodel.Member, error) {
	if err := d.requireGroupAdmin(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.Validation("userId required")
	}
	if _, err := d.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	mem := &chatmodel.Member{
		ID:             newID(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           chatmodel.RoleMember,
		JoinedAt:       d.now().UTC(),
	}
	if err := d.repo.AddMember(ctx, mem); err != nil {
		if database.IsDuplicate(err) {
			return nil, errs.Conflict("User already a member")
		}
		return nil, errs.WrapMsg(err, "add member", "conversation", conversationID)
	}
	return mem, nil
}

// RemoveMember 幂等：不在群里也返回成功
func (d *Directory) RemoveMember(ctx context.Context, conversationID, callerID, userID string) error {
	if err := d.requireGroupAdmin(ctx, conversationID, callerID); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errs.Validation("userId required")
	}
	_, err := d.repo.RemoveMember(ctx, conversationID, userID)
	return errs.WrapMsg(err, "remove member", "conversation", conversationID)
}

// ListForUser 用户所在的全部会话，附成员数，按最后活跃时间倒序
func (d *Directory) ListForUser(ctx context.Context, userID string) ([]chatmodel.ConversationView, error) {
	ids, err := d.repo.ConversationIDsForUser(ctx, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "conversations of user", "user", userID)
	}
	out := make([]chatmodel.ConversationView, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	convs, err := d.repo.FindConversations(ctx, ids)
	if err != nil {
		return nil, errs.WrapMsg(err, "load conversations")
	}
	counts, err := d.repo.CountMembers(ctx, ids)
	if err != nil {
		return nil, errs.WrapMsg(err, "count members")
	}
	for _, c := range convs {
		out = append(out, chatmodel.ConversationView{Conversation: c, MemberCount: counts[c.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out, nil
}

type GroupDetails struct {
	chatmodel.Group
	Name        string              `json:"name"`
	AdminUsers  []usermodel.Summary `json:"adminUsers"`
	MemberUsers []usermodel.Summary `json:"memberUsers"`
}

func (d *Directory) GroupDetails(ctx context.Context, callerID, conversationID string) (*GroupDetails, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errs.Validation("conversationId is required")
	}
	g, err := d.repo.FindGroup(ctx, conversationID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errs.NotFound("Group not found")
		}
		return nil, errs.WrapMsg(err, "find group", "conversation", conversationID)
	}
	if err := d.RequireMember(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	conv, err := d.repo.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, errs.WrapMsg(err, "find conversation", "id", conversationID)
	}
	admins, err := d.repo.FindUsersByIDs(ctx, g.Admins)
	if err != nil {
		return nil, errs.WrapMsg(err, "load admins")
	}
	members, err := d.repo.FindUsersByIDs(ctx, g.Members)
	if err != nil {
		return nil, errs.WrapMsg(err, "load members")
	}
	return &GroupDetails{Group: *g, Name: conv.Name, AdminUsers: admins, MemberUsers: members}, nil
}

func (d *Directory) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	if conversationID == "" || userID == "" {
		return false, nil
	}
	_, err := d.repo.FindMember(ctx, conversationID, userID)
	if err != nil {
		if database.IsNotFound(err) {
			return false, nil
		}
		return false, errs.WrapMsg(err, "find member", "conversation", conversationID)
	}
	return true, nil
}

// RequireMember 非成员返回 AuthorizationError
func (d *Directory) RequireMember(ctx context.Context, conversationID, userID string) error {
	ok, err := d.IsMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Forbidden("Access denied to conversation")
	}
	return nil
}

package security

import (
	"net/http"
	"net/url"
	"strings"

	"PPChat/tools/errs"
	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
)

// context key，后续模块统一用 Identity(c) 读取
const PPCtxIdentityKey = "pp.identity"

type Options struct {
	JWT jwtlib.Options

	// 依次尝试的 cookie 名，默认 authorization / token
	CookieNames               []string
	EnableAuthorizationBearer bool // 默认 true
	// 非空时也从 query 读取（WebSocket 握手浏览器带不了 header）
	QueryParam string
}

func DefaultOptions(jwt jwtlib.Options, cookieName string) *Options {
	names := []string{"authorization", "token"}
	if cookieName != "" && cookieName != names[0] {
		names = append([]string{cookieName}, names...)
	}
	return &Options{
		JWT:                       jwt,
		CookieNames:               names,
		EnableAuthorizationBearer: true,
	}
}

// TokenFromRequest 按 query -> Authorization -> cookie 的顺序取 token
func TokenFromRequest(r *http.Request, opts *Options) string {
	if opts.QueryParam != "" {
		if t := strings.TrimSpace(r.URL.Query().Get(opts.QueryParam)); t != "" {
			return jwtlib.StripBearer(t)
		}
	}
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
			return jwtlib.StripBearer(authz)
		}
	}
	for _, name := range opts.CookieNames {
		if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
			// gin.SetCookie 写入时做了 QueryEscape，"Bearer x" 变成 "Bearer+x"
			v, uerr := url.QueryUnescape(ck.Value)
			if uerr != nil {
				v = ck.Value
			}
			return jwtlib.StripBearer(v)
		}
	}
	return ""
}

// Authenticate 校验请求携带的 token，失败统一返回 AuthenticationError
func Authenticate(r *http.Request, opts *Options) (jwtlib.Identity, error) {
	token := TokenFromRequest(r, opts)
	if token == "" {
		return jwtlib.Identity{}, errs.Unauthenticated("Not authenticated")
	}
	claims, err := jwtlib.Verify(opts.JWT, token)
	if err != nil {
		return jwtlib.Identity{}, errs.NewCodeError(errs.AuthenticationError, "Invalid token").WrapMsg(err.Error())
	}
	return claims.Identity(), nil
}

func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := Authenticate(c.Request, opts)
		if err != nil {
			ce, _ := errs.As(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": ce.Code, "message": ce.Msg})
			return
		}
		c.Set(PPCtxIdentityKey, id)
		c.Next()
	}
}

func Identity(c *gin.Context) (jwtlib.Identity, bool) {
	v, ok := c.Get(PPCtxIdentityKey)
	if !ok {
		return jwtlib.Identity{}, false
	}
	id, ok := v.(jwtlib.Identity)
	return id, ok
}

// UserID 未登录时返回空串
func UserID(c *gin.Context) string {
	id, _ := Identity(c)
	return id.ID
}

package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
)

func newEngine(opts *Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(opts), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	jwt := jwtlib.DefaultOptions([]byte("test-secret"))
	opts := DefaultOptions(jwt, "authorization")
	token, _, err := jwtlib.Generate(jwt, jwtlib.Identity{ID: "u1", Email: "a@x.io", Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	r := newEngine(opts)

	cases := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"none", func(req *http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(req *http.Request) {
			for _, ck := range loginCookies(t, "authorization", "Bearer "+token) {
				req.AddCookie(ck)
			}
		}, http.StatusOK},
		{"token cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "token", Value: token}) }, http.StatusOK},
		{"garbage", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		tc.setup(req)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Errorf("%s: status %d want %d", tc.name, w.Code, tc.status)
		}
		if tc.status == http.StatusOK && w.Body.String() != "u1" {
			t.Errorf("%s: body %q", tc.name, w.Body.String())
		}
	}
}

// loginCookies 走一遍 gin.SetCookie，拿到浏览器真正会回传的 cookie
func loginCookies(t *testing.T, name, value string) []*http.Cookie {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", func(c *gin.Context) {
		c.SetCookie(name, value, 3600, "/", "", false, true)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	cks := w.Result().Cookies()
	if len(cks) != 1 || cks[0].Name != name {
		t.Fatalf("set-cookie %v", w.Header().Values("Set-Cookie"))
	}
	return cks
}

func TestCookieSetByGin(t *testing.T) {
	opts := DefaultOptions(jwtlib.DefaultOptions([]byte("s")), "authorization")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range loginCookies(t, "authorization", "Bearer abc.def-ghi") {
		req.AddCookie(ck)
	}
	if got := TokenFromRequest(req, opts); got != "abc.def-ghi" {
		t.Fatalf("got %q", got)
	}
}

func TestTokenFromQuery(t *testing.T) {
	opts := DefaultOptions(jwtlib.DefaultOptions([]byte("s")), "")
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	if got := TokenFromRequest(req, opts); got != "" {
		t.Fatalf("query disabled, got %q", got)
	}
	opts.QueryParam = "token"
	if got := TokenFromRequest(req, opts); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

package message

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PPChat/data/database/memdb"
	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	chatmodel "PPChat/module/chat/model"
	"PPChat/module/message/service"
	usermodel "PPChat/module/user/model"
	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	r   *gin.Engine
	svc *service.Service
	jwt jwtlib.Options
}

// alice、bob 在 c1 里，carol 不在
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := memdb.New()
	for _, n := range []string{"alice", "bob", "carol"} {
		if err := db.CreateUser(ctx, &usermodel.User{ID: n, Username: n, Email: n + "@example.com"}); err != nil {
			t.Fatal(err)
		}
	}
	conv := &chatmodel.Conversation{ID: "c1", Type: chatmodel.ConversationPrivate, Name: "alice<->bob", PairKey: "alice:bob", CreatedAt: time.Now().UTC()}
	members := []chatmodel.Member{
		{ID: "m1", ConversationID: "c1", UserID: "alice", Role: chatmodel.RoleMember},
		{ID: "m2", ConversationID: "c1", UserID: "bob", Role: chatmodel.RoleMember},
	}
	if err := db.CreateConversation(ctx, conv, members, nil); err != nil {
		t.Fatal(err)
	}
	jwt := jwtlib.DefaultOptions([]byte("test-secret"))
	svc := service.New(db)
	r := gin.New()
	routes := mid.NewRoutes(r, midsec.Middleware(midsec.DefaultOptions(jwt, "authorization")))
	NewHandler(svc).Register(routes)
	return &testEnv{r: r, svc: svc, jwt: jwt}
}

func (e *testEnv) do(t *testing.T, user, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		token, _, err := jwtlib.Generate(e.jwt, jwtlib.Identity{ID: user, Username: user, Email: user + "@example.com"})
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestHistoryShape(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three"} {
		if _, err := e.svc.Send(ctx, service.SendReq{ConversationID: "c1", SenderID: "alice", Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	w := e.do(t, "bob", http.MethodGet, "/api/messages/c1?page=2&limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("history %d %s", w.Code, w.Body)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"page", "limit", "total", "messages"} {
		if _, ok := raw[k]; !ok {
			t.Fatalf("missing top-level %q in %s", k, w.Body)
		}
	}
	if _, ok := raw["pagination"]; ok {
		t.Fatalf("nested pagination in %s", w.Body)
	}
	var body struct {
		Page     int   `json:"page"`
		Limit    int   `json:"limit"`
		Total    int64 `json:"total"`
		Messages []struct {
			ID      string `json:"_id"`
			Content string `json:"content"`
			Sender  struct {
				Username string `json:"username"`
			} `json:"sender"`
		} `json:"messages"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Page != 2 || body.Limit != 2 || body.Total != 3 || len(body.Messages) != 1 {
		t.Fatalf("body %+v", body)
	}
	if body.Messages[0].Content != "three" || body.Messages[0].Sender.Username != "alice" {
		t.Fatalf("message %+v", body.Messages[0])
	}

	if w := e.do(t, "carol", http.MethodGet, "/api/messages/c1"); w.Code != http.StatusForbidden {
		t.Fatalf("outsider %d", w.Code)
	}
	if w := e.do(t, "alice", http.MethodGet, "/api/messages/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("missing conversation %d", w.Code)
	}
	if w := e.do(t, "", http.MethodGet, "/api/messages/c1"); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous %d", w.Code)
	}
}

func TestReadAndReceipts(t *testing.T) {
	e := newEnv(t)
	msg, err := e.svc.Send(context.Background(), service.SendReq{ConversationID: "c1", SenderID: "alice", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	base := "/api/messages/c1/" + msg.ID

	type readResp struct {
		Created bool `json:"created"`
		Receipt struct {
			UserID string    `json:"userId"`
			ReadAt time.Time `json:"readAt"`
		} `json:"receipt"`
	}
	w := e.do(t, "bob", http.MethodPost, base+"/read")
	if w.Code != http.StatusOK {
		t.Fatalf("read %d %s", w.Code, w.Body)
	}
	var first readResp
	_ = json.Unmarshal(w.Body.Bytes(), &first)
	if !first.Created || first.Receipt.UserID != "bob" {
		t.Fatalf("first %+v", first)
	}
	w = e.do(t, "bob", http.MethodPost, base+"/read")
	var again readResp
	_ = json.Unmarshal(w.Body.Bytes(), &again)
	if again.Created || !again.Receipt.ReadAt.Equal(first.Receipt.ReadAt) {
		t.Fatalf("again %+v", again)
	}

	if w := e.do(t, "bob", http.MethodPost, "/api/messages/c1/nope/read"); w.Code != http.StatusNotFound {
		t.Fatalf("missing message %d", w.Code)
	}
	if w := e.do(t, "carol", http.MethodPost, base+"/read"); w.Code != http.StatusForbidden {
		t.Fatalf("outsider read %d", w.Code)
	}

	w = e.do(t, "alice", http.MethodGet, base+"/receipts")
	if w.Code != http.StatusOK {
		t.Fatalf("receipts %d", w.Code)
	}
	var rs struct {
		Receipts []struct {
			UserID string `json:"userId"`
		} `json:"receipts"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &rs)
	if len(rs.Receipts) != 1 || rs.Receipts[0].UserID != "bob" {
		t.Fatalf("receipts %+v", rs)
	}
}

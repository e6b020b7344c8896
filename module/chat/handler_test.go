package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPChat/data/database/memdb"
	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	"PPChat/module/chat/service"
	usermodel "PPChat/module/user/model"
	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	r   *gin.Engine
	jwt jwtlib.Options
}

// alice、bob、carol、dave 四个用户，id 与用户名相同
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := memdb.New()
	for _, n := range []string{"alice", "bob", "carol", "dave"} {
		if err := db.CreateUser(context.Background(), &usermodel.User{ID: n, Username: n, Email: n + "@example.com"}); err != nil {
			t.Fatal(err)
		}
	}
	jwt := jwtlib.DefaultOptions([]byte("test-secret"))
	r := gin.New()
	routes := mid.NewRoutes(r, midsec.Middleware(midsec.DefaultOptions(jwt, "authorization")))
	NewHandler(service.NewDirectory(db)).Register(routes)
	return &testEnv{r: r, jwt: jwt}
}

func (e *testEnv) do(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
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

type convResp struct {
	Conversation struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"conversation"`
	Members []struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	} `json:"members"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	return v
}

func TestPrivateCreatedThenFound(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "alice", http.MethodPost, "/conversations/private", gin.H{"userA": "alice", "userB": "bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %d %s", w.Code, w.Body)
	}
	first := decode[convResp](t, w)
	if first.Conversation.Name != "alice<->bob" || first.Conversation.Type != "private" {
		t.Fatalf("conversation %+v", first.Conversation)
	}

	w = e.do(t, "bob", http.MethodPost, "/conversations/private", gin.H{"userA": "bob", "userB": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("existing %d %s", w.Code, w.Body)
	}
	if again := decode[convResp](t, w); again.Conversation.ID != first.Conversation.ID {
		t.Fatalf("ids %s %s", first.Conversation.ID, again.Conversation.ID)
	}

	cases := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{"no token", "", gin.H{"userA": "alice", "userB": "bob"}, http.StatusUnauthorized},
		{"bad body", "alice", "not an object", http.StatusBadRequest},
		{"same user", "alice", gin.H{"userA": "alice", "userB": "alice"}, http.StatusBadRequest},
		{"outsider", "carol", gin.H{"userA": "alice", "userB": "bob"}, http.StatusForbidden},
		{"unknown user", "alice", gin.H{"userA": "alice", "userB": "ghost"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		if w := e.do(t, tc.user, http.MethodPost, "/conversations/private", tc.body); w.Code != tc.status {
			t.Errorf("%s: %d want %d %s", tc.name, w.Code, tc.status, w.Body)
		}
	}
}

func TestGroupMembersRoutes(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "alice", http.MethodPost, "/conversations/group", gin.H{"name": "Study", "createdBy": "alice", "members": []string{"bob", "carol"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("group %d %s", w.Code, w.Body)
	}
	g := decode[convResp](t, w)
	if len(g.Members) != 3 {
		t.Fatalf("members %+v", g.Members)
	}
	gid := g.Conversation.ID

	add := "/conversations/members/add/" + gid
	if w := e.do(t, "bob", http.MethodPost, add, gin.H{"userId": "dave"}); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin add %d", w.Code)
	}
	if w := e.do(t, "alice", http.MethodPost, add, gin.H{"userId": "dave"}); w.Code != http.StatusCreated {
		t.Fatalf("add %d %s", w.Code, w.Body)
	}
	if w := e.do(t, "alice", http.MethodPost, add, gin.H{"userId": "dave"}); w.Code != http.StatusConflict {
		t.Fatalf("second add %d", w.Code)
	}
	if w := e.do(t, "alice", http.MethodPost, "/conversations/members/add/missing", gin.H{"userId": "dave"}); w.Code != http.StatusNotFound {
		t.Fatalf("missing group %d", w.Code)
	}

	w = e.do(t, "dave", http.MethodGet, "/conversations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list %d", w.Code)
	}
	list := decode[struct {
		Conversations []struct {
			ID          string `json:"_id"`
			MemberCount int64  `json:"memberCount"`
		} `json:"conversations"`
	}](t, w)
	if len(list.Conversations) != 1 || list.Conversations[0].ID != gid || list.Conversations[0].MemberCount != 4 {
		t.Fatalf("list %+v", list)
	}

	del := "/conversations/members/delete/" + gid
	for i := 0; i < 2; i++ {
		if w := e.do(t, "alice", http.MethodPost, del, gin.H{"userId": "dave"}); w.Code != http.StatusOK {
			t.Fatalf("remove %d: %d", i, w.Code)
		}
	}
	if w := e.do(t, "dave", http.MethodPost, "/groups/details", gin.H{"conversationId": gid}); w.Code != http.StatusForbidden {
		t.Fatalf("removed member details %d", w.Code)
	}
	if w := e.do(t, "carol", http.MethodPost, "/groups/details", gin.H{"conversationId": gid}); w.Code != http.StatusOK {
		t.Fatalf("details %d %s", w.Code, w.Body)
	}
}

package notification

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
	msgmodel "PPChat/module/message/model"
	"PPChat/module/notification/service"
	usermodel "PPChat/module/user/model"
	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	r   *gin.Engine
	svc *service.Service
	jwt jwtlib.Options
}

// 群 g1：alice、bob、carol
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := memdb.New()
	var members []chatmodel.Member
	for _, n := range []string{"alice", "bob", "carol"} {
		if err := db.CreateUser(ctx, &usermodel.User{ID: n, Username: n, Email: n + "@example.com"}); err != nil {
			t.Fatal(err)
		}
		members = append(members, chatmodel.Member{ID: "m-" + n, ConversationID: "g1", UserID: n, Role: chatmodel.RoleMember})
	}
	conv := &chatmodel.Conversation{ID: "g1", Type: chatmodel.ConversationGroup, Name: "Study", CreatedAt: time.Now().UTC()}
	if err := db.CreateConversation(ctx, conv, members, &chatmodel.Group{ConversationID: "g1"}); err != nil {
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
	token, _, err := jwtlib.Generate(e.jwt, jwtlib.Identity{ID: user, Username: user, Email: user + "@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

type listResp struct {
	Success bool `json:"success"`
	Data    struct {
		Notifications []struct {
			ID     string `json:"_id"`
			Type   string `json:"type"`
			IsRead bool   `json:"isRead"`
			Sender struct {
				Username string `json:"username"`
			} `json:"sender"`
			Conversation struct {
				Name        string `json:"name"`
				MemberCount int64  `json:"memberCount"`
			} `json:"conversation"`
		} `json:"notifications"`
		Total       int64 `json:"total"`
		UnreadCount int64 `json:"unreadCount"`
		HasMore     bool  `json:"hasMore"`
		CurrentPage int   `json:"currentPage"`
	} `json:"data"`
}

func (e *testEnv) list(t *testing.T, user, query string) listResp {
	t.Helper()
	w := e.do(t, user, http.MethodGet, "/api/notifications/user/"+user+query)
	if w.Code != http.StatusOK {
		t.Fatalf("list %d %s", w.Code, w.Body)
	}
	var out listResp
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func (e *testEnv) fanOut(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		ev := msgmodel.Created{MessageID: id, ConversationID: "g1", SenderID: "alice", Content: "hi " + id, CreatedAt: time.Now().UTC()}
		if _, err := e.svc.FanOut(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListAndOwnership(t *testing.T) {
	e := newEnv(t)
	e.fanOut(t, "m1", "m2", "m3")

	page := e.list(t, "bob", "?limit=2")
	if !page.Success || page.Data.Total != 3 || page.Data.UnreadCount != 3 || !page.Data.HasMore || len(page.Data.Notifications) != 2 {
		t.Fatalf("bob page %+v", page.Data)
	}
	first := page.Data.Notifications[0]
	if first.Type != "message" || first.Sender.Username != "alice" || first.Conversation.Name != "Study" || first.Conversation.MemberCount != 3 {
		t.Fatalf("view %+v", first)
	}

	// 路径里的 userId 必须是调用方
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/notifications/user/bob"},
		{http.MethodPut, "/api/notifications/user/bob/conversation/g1/read"},
		{http.MethodPut, "/api/notifications/user/bob/notification/" + first.ID + "/read"},
		{http.MethodDelete, "/api/notifications/user/bob/delete-all-read"},
	} {
		if w := e.do(t, "carol", tc.method, tc.path); w.Code != http.StatusForbidden {
			t.Errorf("%s %s as carol: %d", tc.method, tc.path, w.Code)
		}
	}
	if w := e.do(t, "bob", http.MethodGet, "/api/notifications/user/bob?type=bogus"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad type %d", w.Code)
	}
}

func TestMarkReadAndDelete(t *testing.T) {
	e := newEnv(t)
	e.fanOut(t, "m1", "m2")
	bob := e.list(t, "bob", "")
	carol := e.list(t, "carol", "")

	one := "/api/notifications/user/bob/notification/" + bob.Data.Notifications[0].ID + "/read"
	if w := e.do(t, "bob", http.MethodPut, one); w.Code != http.StatusOK {
		t.Fatalf("mark read %d %s", w.Code, w.Body)
	}
	if w := e.do(t, "bob", http.MethodPut, "/api/notifications/user/bob/notification/missing/read"); w.Code != http.StatusNotFound {
		t.Fatalf("missing %d", w.Code)
	}
	// 别人的通知存在，但不归 bob
	other := "/api/notifications/user/bob/notification/" + carol.Data.Notifications[0].ID + "/read"
	if w := e.do(t, "bob", http.MethodPut, other); w.Code != http.StatusForbidden {
		t.Fatalf("other recipient %d", w.Code)
	}
	if got := e.list(t, "carol", "?unreadOnly=true"); got.Data.Total != 2 {
		t.Fatalf("carol touched: %+v", got.Data)
	}

	w := e.do(t, "bob", http.MethodPut, "/api/notifications/user/bob/conversation/g1/read")
	if w.Code != http.StatusOK {
		t.Fatalf("conversation read %d", w.Code)
	}
	var upd struct {
		Data struct {
			MatchedCount  int64 `json:"matchedCount"`
			ModifiedCount int64 `json:"modifiedCount"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &upd)
	if upd.Data.ModifiedCount != 1 {
		t.Fatalf("conversation read %+v", upd.Data)
	}

	w = e.do(t, "bob", http.MethodDelete, "/api/notifications/user/bob/delete-all-read")
	var del struct {
		Data struct {
			DeletedCount int64 `json:"deletedCount"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &del)
	if w.Code != http.StatusOK || del.Data.DeletedCount != 2 {
		t.Fatalf("delete %d %s", w.Code, w.Body)
	}
	if got := e.list(t, "bob", ""); got.Data.Total != 0 {
		t.Fatalf("bob left %+v", got.Data)
	}
}

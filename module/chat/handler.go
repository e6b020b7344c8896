package chat

import (
	"net/http"

	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	"PPChat/module/chat/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	dir *service.Directory
}

func NewHandler(dir *service.Directory) *Handler {
	return &Handler{dir: dir}
}

func (h *Handler) Register(r *mid.Routes) {
	r.POST("/conversations/private", h.HandlerPrivate, mid.RouteOpt{IsAuth: true})
	r.POST("/conversations/group", h.HandlerGroup, mid.RouteOpt{IsAuth: true})
	r.POST("/conversations/members/add/:conversationId", h.HandlerAddMember, mid.RouteOpt{IsAuth: true})
	r.POST("/conversations/members/delete/:conversationId", h.HandlerRemoveMember, mid.RouteOpt{IsAuth: true})
	r.GET("/conversations", h.HandlerList, mid.RouteOpt{IsAuth: true})
	r.POST("/groups/details", h.HandlerGroupDetails, mid.RouteOpt{IsAuth: true})
}

func (h *Handler) HandlerPrivate(c *gin.Context) {
	var req struct {
		UserA string `json:"userA"`
		UserB string `json:"userB"`
	}
	if !mid.BindJSON(c, &req) {
		return
	}
	res, err := h.dir.ResolvePrivate(c.Request.Context(), midsec.UserID(c), req.UserA, req.UserB)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	status, msg := http.StatusCreated, "Private conversation created"
	if res.Existed {
		status, msg = http.StatusOK, "Private conversation already exists"
	}
	c.JSON(status, gin.H{"message": msg, "conversation": res.Conversation, "members": res.Members})
}

func (h *Handler) HandlerGroup(c *gin.Context) {
	var req service.CreateGroupReq
	if !mid.BindJSON(c, &req) {
		return
	}
	res, err := h.dir.CreateGroup(c.Request.Context(), midsec.UserID(c), req)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Group conversation created", "conversation": res.Conversation, "members": res.Members})
}

type memberReq struct {
	UserID string `json:"userId"`
}

func (h *Handler) HandlerAddMember(c *gin.Context) {
	var req memberReq
	if !mid.BindJSON(c, &req) {
		return
	}
	m, err := h.dir.AddMember(c.Request.Context(), c.Param("conversationId"), midsec.UserID(c), req.UserID)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Member added", "member": m})
}

func (h *Handler) HandlerRemoveMember(c *gin.Context) {
	var req memberReq
	if !mid.BindJSON(c, &req) {
		return
	}
	if err := h.dir.RemoveMember(c.Request.Context(), c.Param("conversationId"), midsec.UserID(c), req.UserID); err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

func (h *Handler) HandlerList(c *gin.Context) {
	convs, err := h.dir.ListForUser(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) HandlerGroupDetails(c *gin.Context) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if !mid.BindJSON(c, &req) {
		return
	}
	g, err := h.dir.GroupDetails(c.Request.Context(), midsec.UserID(c), req.ConversationID)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": g})
}

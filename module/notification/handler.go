package notification

import (
	"net/http"
	"strconv"

	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	notimodel "PPChat/module/notification/model"
	"PPChat/module/notification/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r *mid.Routes) {
	const base = "/api/notifications/user/:userId"
	r.GET(base, h.HandlerList, mid.RouteOpt{IsAuth: true})
	r.PUT(base+"/conversation/:conversationId/read", h.HandlerConversationRead, mid.RouteOpt{IsAuth: true})
	r.PUT(base+"/notification/:notificationId/read", h.HandlerRead, mid.RouteOpt{IsAuth: true})
	r.DELETE(base+"/delete-all-read", h.HandlerDeleteAllRead, mid.RouteOpt{IsAuth: true})
}

func (h *Handler) HandlerList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	skip, _ := strconv.Atoi(c.Query("skip"))
	unread, _ := strconv.ParseBool(c.Query("unreadOnly"))
	page, err := h.svc.List(c.Request.Context(), midsec.UserID(c), c.Param("userId"), service.ListQuery{
		Limit:      limit,
		Skip:       skip,
		UnreadOnly: unread,
		Type:       notimodel.Type(c.Query("type")),
	})
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": page})
}

func (h *Handler) HandlerConversationRead(c *gin.Context) {
	res, err := h.svc.MarkConversationRead(c.Request.Context(), midsec.UserID(c), c.Param("userId"), c.Param("conversationId"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notifications marked as read", "data": res})
}

func (h *Handler) HandlerRead(c *gin.Context) {
	n, err := h.svc.MarkRead(c.Request.Context(), midsec.UserID(c), c.Param("userId"), c.Param("notificationId"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification marked as read", "data": n})
}

func (h *Handler) HandlerDeleteAllRead(c *gin.Context) {
	n, err := h.svc.DeleteAllRead(c.Request.Context(), midsec.UserID(c), c.Param("userId"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Read notifications deleted", "data": gin.H{"deletedCount": n}})
}

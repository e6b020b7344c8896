package message

import (
	"net/http"
	"strconv"

	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	"PPChat/module/message/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r *mid.Routes) {
	r.GET("/api/messages/:conversationId", h.HandlerHistory, mid.RouteOpt{IsAuth: true})
	r.GET("/api/messages/:conversationId/:messageId/receipts", h.HandlerReceipts, mid.RouteOpt{IsAuth: true})
	r.POST("/api/messages/:conversationId/:messageId/read", h.HandlerRead, mid.RouteOpt{IsAuth: true})
}

// 非数字按 0 处理，由 service 回落到默认值
func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

func (h *Handler) HandlerHistory(c *gin.Context) {
	res, err := h.svc.History(c.Request.Context(), midsec.UserID(c), c.Param("conversationId"),
		queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) HandlerReceipts(c *gin.Context) {
	rs, err := h.svc.Receipts(c.Request.Context(), midsec.UserID(c), c.Param("conversationId"), c.Param("messageId"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": rs})
}

func (h *Handler) HandlerRead(c *gin.Context) {
	r, created, err := h.svc.Acknowledge(c.Request.Context(), midsec.UserID(c), c.Param("conversationId"), c.Param("messageId"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": r, "created": created})
}

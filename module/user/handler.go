package user

import (
	"net/http"
	"time"

	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	usermodel "PPChat/module/user/model"
	"PPChat/module/user/service"
	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
)

type CookieOptions struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

type Handler struct {
	svc    *service.Service
	cookie CookieOptions
}

func NewHandler(svc *service.Service, cookie CookieOptions) *Handler {
	if cookie.Name == "" {
		cookie.Name = "authorization"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = jwtlib.DefaultTTL
	}
	return &Handler{svc: svc, cookie: cookie}
}

func (h *Handler) Register(r *mid.Routes) {
	r.POST("/api/users/register", h.HandlerRegister, mid.RouteOpt{})
	r.POST("/api/users/login", h.HandlerLogin, mid.RouteOpt{})
	r.GET("/api/users/logout", h.HandlerLogout, mid.RouteOpt{})
	r.GET("/api/users/me", h.HandlerMe, mid.RouteOpt{IsAuth: true})
	r.GET("/api/users/search", h.HandlerSearch, mid.RouteOpt{IsAuth: true})
	r.GET("/api/users", h.HandlerList, mid.RouteOpt{IsAuth: true})
	r.GET("/api/users/:id", h.HandlerGet, mid.RouteOpt{IsAuth: true})
	r.GET("/api/users/:id/presence", h.HandlerPresence, mid.RouteOpt{IsAuth: true})
	r.POST("/api/users/reset-password", h.HandlerResetPassword, mid.RouteOpt{IsAuth: true})
	r.POST("/api/users/reset-password-otp", h.HandlerResetWithOTP, mid.RouteOpt{})
	r.POST("/api/users/verify-otp", h.HandlerVerifyOTP, mid.RouteOpt{})
	r.POST("/api/send-mail", h.HandlerSendMail, mid.RouteOpt{})
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *Handler) HandlerRegister(c *gin.Context) {
	var req service.RegisterReq
	if !mid.BindJSON(c, &req) {
		return
	}
	u, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "data": u})
}

func (h *Handler) HandlerLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !mid.BindJSON(c, &req) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	h.setCookie(c, "Bearer "+res.Token, int(h.cookie.MaxAge/time.Second))
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user": gin.H{
			"id":       res.User.ID,
			"username": res.User.Username,
			"email":    res.User.Email,
		},
	})
}

func (h *Handler) HandlerLogout(c *gin.Context) {
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func (h *Handler) HandlerMe(c *gin.Context) {
	p, err := h.svc.Me(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User data retrieved", "user": p})
}

func (h *Handler) HandlerGet(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *Handler) HandlerList(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": nonNil(users)})
}

func (h *Handler) HandlerSearch(c *gin.Context) {
	users, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": nonNil(users)})
}

func (h *Handler) HandlerPresence(c *gin.Context) {
	p, err := h.svc.Presence(c.Request.Context(), c.Param("id"))
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) HandlerResetPassword(c *gin.Context) {
	var req service.ResetPasswordReq
	if !mid.BindJSON(c, &req) {
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), midsec.UserID(c), req); err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset successfully"})
}

func (h *Handler) HandlerResetWithOTP(c *gin.Context) {
	var req service.ResetWithOTPReq
	if !mid.BindJSON(c, &req) {
		return
	}
	if err := h.svc.ResetPasswordWithOTP(c.Request.Context(), req); err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset successfully"})
}

func (h *Handler) HandlerVerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !mid.BindJSON(c, &req) {
		return
	}
	if err := h.svc.VerifyOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP verified successfully"})
}

func (h *Handler) HandlerSendMail(c *gin.Context) {
	var req service.SendOTPReq
	if !mid.BindJSON(c, &req) {
		return
	}
	res, err := h.svc.RequestOTP(c.Request.Context(), req)
	if err != nil {
		mid.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       string(req.Type) + " verification email sent successfully",
		"expiryMinutes": res.ExpiryMinutes,
	})
}

func nonNil(users []usermodel.Summary) []usermodel.Summary {
	if users == nil {
		return []usermodel.Summary{}
	}
	return users
}

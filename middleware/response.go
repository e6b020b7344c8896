package middleware

import (
	"net/http"

	"PPChat/logger"
	"PPChat/tools/errs"
	"PPChat/tools/specialerror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Fail 把错误翻译成 {code, message}；未分类错误记日志并返回 500
func Fail(c *gin.Context, err error) {
	ce := specialerror.ErrCode(err)
	if ce == nil {
		logger.Error("unhandled error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		ce = errs.NewCodeError(errs.ServerError, "Server error")
	} else if ce.Code >= errs.ServerError {
		logger.Error("server error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(ce.Code, gin.H{"code": ce.Code, "message": ce.Msg})
}

// BindJSON 解析失败直接写 400
func BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"code":    errs.ValidationError,
			"message": "Invalid request body",
		})
		return false
	}
	return true
}

package middleware

import (
	"net/http"
	"time"

	"PPChat/logger"
	"PPChat/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger 每个请求一行访问日志
func Logger() gin.HandlerFunc {
	log := logger.L().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// Recovery panic 转成 500，不让单个请求拖垮进程
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("http panic", zap.String("path", c.Request.URL.Path), zap.Error(errs.ErrPanic(r)))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    errs.ServerError,
					"message": "Server error",
				})
			}
		}()
		c.Next()
	}
}

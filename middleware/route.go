package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Routes 封装路由注册，IsAuth 的路由前面挂鉴权中间件
type Routes struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRoutes(r gin.IRoutes, auth gin.HandlerFunc) *Routes {
	return &Routes{r: r, auth: auth}
}

func (x *Routes) handle(method, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth && x.auth != nil {
		x.r.Handle(method, path, x.auth, handler)
		return
	}
	x.r.Handle(method, path, handler)
}

func (x *Routes) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.handle(http.MethodGet, path, handler, opt)
}

func (x *Routes) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.handle(http.MethodPost, path, handler, opt)
}

func (x *Routes) PUT(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.handle(http.MethodPut, path, handler, opt)
}

func (x *Routes) DELETE(path string, handler gin.HandlerFunc, opt RouteOpt) {
	x.handle(http.MethodDelete, path, handler, opt)
}

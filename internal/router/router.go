package router

import (
	"CommentThread/internal/router/handlers"
	"CommentThread/internal/router/middleware"
	"github.com/wb-go/wbf/ginext"
	"go.uber.org/zap"
)

type Router struct {
	rout    *ginext.Engine
	handler *handlers.CommentHandler
	log     *zap.Logger
}

func NewRouter(mode string, handler *handlers.CommentHandler, log *zap.Logger) *Router {
	router := Router{
		rout:    ginext.New(mode),
		handler: handler,
		log:     log.Named("router"),
	}
	router.setupRouter()
	return &router
}

func (r *Router) setupRouter() {
	r.rout.Use(middleware.LoggingMiddleware(r.log), middleware.ViewerMiddleware())

	r.rout.GET("/posts/:postId/comments", r.handler.ListComments)
	r.rout.POST("/posts/:postId/comments", r.handler.CreateComment)
	r.rout.GET("/posts/:postId/comments/search", r.handler.SearchComments)

	r.rout.PATCH("/comments/:id", r.handler.UpdateComment)
	r.rout.DELETE("/comments/:id", r.handler.DeleteComment)
	r.rout.POST("/comments/:id/like", r.handler.ToggleLike)
	r.rout.GET("/comments/:id/thread", r.handler.GetThread)
}

func (r *Router) GetEngine() *ginext.Engine {
	return r.rout
}

func (r *Router) Start(addr string) error {
	return r.rout.Run(addr)
}

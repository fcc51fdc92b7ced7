package main

import (
	"CommentThread/internal/config"
	"CommentThread/internal/repository"
	"CommentThread/internal/router"
	"CommentThread/internal/router/handlers"
	"CommentThread/internal/service"
	"CommentThread/pkg/logger"
	"errors"
	"go.uber.org/zap"
	"net/http"
)

func main() {
	cfg, err := config.Load("./config/config.yaml")
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	repo, err := repository.NewRepository(cfg.MasterDSN, cfg.SlaveDSNs, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	serviceComment := service.NewService(repo, service.Options{
		MaxDepth:  cfg.Comments.MaxDepth,
		MaxImages: cfg.Comments.MaxImages,
	}, log)
	handlersComment := handlers.NewCommentHandler(serviceComment)
	rout := router.NewRouter(cfg.GinMode, handlersComment, log)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: rout.GetEngine(),
	}
	log.Info("Starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to listen and serve", zap.Error(err))
	}
}

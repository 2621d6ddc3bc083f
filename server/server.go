// Package server 提供二排的 HTTP 接口。
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/rescore/config"
	"github.com/rushteam/rescore/pipeline"
)

// Server 持有处理请求所需的共享资源，本身无状态。
type Server struct {
	pipeline *pipeline.Pipeline
	registry *config.Registry
	log      *slog.Logger
}

func New(p *pipeline.Pipeline, registry *config.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{pipeline: p, registry: registry, log: log}
}

// Router 返回注册好路由的 gin.Engine。
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(s.log))

	v1 := router.Group("/v1")
	{
		v1.GET("/healthz", s.HealthHandler)
		v1.GET("/models", s.ListModelsHandler)
		v1.POST("/rescore", s.RescoreHandler)
	}
	return router
}

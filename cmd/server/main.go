package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/config"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"github.com/pacelog/internal/router"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	appLogger, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		appLogger.Fatal("failed to initialize database", "err", err)
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg, appLogger)
	appLogger.Info("server starting", "addr", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		appLogger.Fatal("failed to run server", "err", err)
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr      string
	Port            string
	DatabasePath    string
	SessionSecret   string
	GinMode         string
	LogMode         string
	DefaultTimezone string
	AllowOrigins    []string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "pacelog.db"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "pacelog-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	logMode := strings.TrimSpace(os.Getenv("LOG_MODE"))
	if logMode == "" {
		logMode = ginMode
	}

	defaultTimezone := strings.TrimSpace(os.Getenv("DEFAULT_TIMEZONE"))
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}

	return AppConfig{
		ListenAddr:      listenAddr,
		Port:            port,
		DatabasePath:    databasePath,
		SessionSecret:   sessionSecret,
		GinMode:         ginMode,
		LogMode:         logMode,
		DefaultTimezone: defaultTimezone,
		AllowOrigins:    splitOrigins(os.Getenv("CORS_ALLOW_ORIGINS")),
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

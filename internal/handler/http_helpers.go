package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/calendar"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"ok": false, "error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// resolveDate 解析可选日期，缺省时取用户时区下的今日。
func resolveDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return calendar.Today(requestLocation(c)), true
	}

	date, err := calendar.ParseDate(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日期")
		return time.Time{}, false
	}
	return date, true
}

func parsePositiveIntQuery(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("无效的参数 %s", key))
		return 0, false
	}
	return value, true
}

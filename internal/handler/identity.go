package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/calendar"
)

const (
	contextKeyUserID   = "__active_user_id"
	contextKeyLocation = "__active_location"

	sessionKeyUserID   = "user_id"
	sessionKeyTimezone = "timezone"

	headerUserID   = "X-User-ID"
	headerTimezone = "X-Timezone"
)

// ActiveUser 解析当前请求的用户身份与时区。
// 身份认证由外部系统负责，这里只从会话或服务间头部读取结果；
// 两者都没有时拒绝请求。
func ActiveUser(defaultTimezone string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, timezone := identityFromSession(c)
		if userID == 0 {
			userID, timezone = identityFromHeaders(c)
		}
		if userID == 0 {
			respondError(c, http.StatusUnauthorized, "缺少用户身份")
			c.Abort()
			return
		}

		c.Set(contextKeyUserID, userID)
		c.Set(contextKeyLocation, calendar.ResolveLocation(timezone, defaultTimezone))
		c.Next()
	}
}

func identityFromSession(c *gin.Context) (uint, string) {
	session := sessionOrNil(c)
	if session == nil {
		return 0, ""
	}

	rawID := session.Get(sessionKeyUserID)
	if rawID == nil {
		return 0, ""
	}

	timezone, _ := session.Get(sessionKeyTimezone).(string)
	switch id := rawID.(type) {
	case uint:
		return id, timezone
	case int:
		if id > 0 {
			return uint(id), timezone
		}
	case int64:
		if id > 0 {
			return uint(id), timezone
		}
	case string:
		if parsed, err := strconv.ParseUint(id, 10, 32); err == nil {
			return uint(parsed), timezone
		}
	}
	return 0, ""
}

// sessionOrNil 在未配置会话中间件时返回 nil，而不是让 sessions.Default 的
// panic 逃出请求链路。只守护这一次取会话的调用。
func sessionOrNil(c *gin.Context) (session sessions.Session) {
	defer func() {
		if recover() != nil {
			session = nil
		}
	}()
	return sessions.Default(c)
}

func identityFromHeaders(c *gin.Context) (uint, string) {
	raw := strings.TrimSpace(c.GetHeader(headerUserID))
	if raw == "" {
		return 0, ""
	}
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || parsed == 0 {
		return 0, ""
	}
	return uint(parsed), strings.TrimSpace(c.GetHeader(headerTimezone))
}

func requestUserID(c *gin.Context) uint {
	if value, exists := c.Get(contextKeyUserID); exists {
		if id, ok := value.(uint); ok {
			return id
		}
	}
	return 0
}

func requestLocation(c *gin.Context) *time.Location {
	if value, exists := c.Get(contextKeyLocation); exists {
		if loc, ok := value.(*time.Location); ok {
			return loc
		}
	}
	return time.UTC
}

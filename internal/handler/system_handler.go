package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/service"
)

// GetEngineSettings 返回引擎级设置。
func (a *API) GetEngineSettings(c *gin.Context) {
	settings, err := a.settings.GetSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取设置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"journal_title":       settings.JournalTitle,
		"journal_description": settings.JournalDescription,
		"default_timezone":    settings.DefaultTimezone,
	})
}

// UpdateEngineSettings 更新引擎级设置。
func (a *API) UpdateEngineSettings(c *gin.Context) {
	var payload struct {
		JournalTitle       string `json:"journal_title"`
		JournalDescription string `json:"journal_description"`
		DefaultTimezone    string `json:"default_timezone"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	if err := a.settings.UpdateSettings(service.EngineSettingsInput{
		JournalTitle:       payload.JournalTitle,
		JournalDescription: payload.JournalDescription,
		DefaultTimezone:    payload.DefaultTimezone,
	}); err != nil {
		respondError(c, http.StatusInternalServerError, "更新设置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

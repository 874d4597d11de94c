package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/calendar"
)

const defaultLookbackDays = 30

// HabitStats 返回某习惯在回看窗口内的坚持统计。
func (a *API) HabitStats(c *gin.Context) {
	habitTemplateID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯模板ID")
		return
	}

	lookback, ok := parsePositiveIntQuery(c, "lookback_days", defaultLookbackDays)
	if !ok {
		return
	}

	today := calendar.Today(requestLocation(c))
	snapshot, err := a.adherence.Stats(requestUserID(c), habitTemplateID, lookback, today)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算统计信息失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit_template_id": habitTemplateID,
		"lookback_days":     lookback,
		"adherence_rate":    snapshot.AdherenceRate,
		"current_streak":    snapshot.CurrentStreak,
		"presented_count":   snapshot.PresentedCount,
		"completed_count":   snapshot.CompletedCount,
	})
}

// HabitStreakDebug 返回逐日轨迹，让连胜规则可被审计。
func (a *API) HabitStreakDebug(c *gin.Context) {
	habitTemplateID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯模板ID")
		return
	}

	lookback, ok := parsePositiveIntQuery(c, "lookback_days", defaultLookbackDays)
	if !ok {
		return
	}

	today := calendar.Today(requestLocation(c))
	trace, err := a.adherence.DebugTrace(requestUserID(c), habitTemplateID, lookback, today)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取调试轨迹失败")
		return
	}

	entries := make([]gin.H, 0, len(trace))
	for _, entry := range trace {
		entries = append(entries, gin.H{
			"date":           entry.Date.Format(calendar.DateFormat),
			"presented":      entry.Presented,
			"completed":      entry.Completed,
			"event_response": entry.EventResponse,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"habit_template_id": habitTemplateID,
		"lookback_days":     lookback,
		"trace":             entries,
	})
}

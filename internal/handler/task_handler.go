package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/service"
)

// TodaysTasks 返回指定日期的统一任务流。
// 同一 (用户, 日期) 重复调用结果一致，也不会产生重复呈现记录。
func (a *API) TodaysTasks(c *gin.Context) {
	date, ok := resolveDate(c, c.Query("date"))
	if !ok {
		return
	}

	tasks, err := a.presentation.PresentTasksFor(requestUserID(c), date)
	if err != nil {
		a.log.Error("present tasks failed", "user_id", requestUserID(c), "err", err)
		respondError(c, http.StatusInternalServerError, "获取当日任务失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  date.Format(calendar.DateFormat),
		"tasks": serializeTasks(tasks),
	})
}

// RecordHabitResponse 记录习惯响应，支持补记历史日期。
func (a *API) RecordHabitResponse(c *gin.Context) {
	habitTemplateID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯模板ID")
		return
	}

	var payload struct {
		Date     string `json:"date"`
		Response string `json:"response"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}
	if payload.Response == "" {
		respondError(c, http.StatusBadRequest, "响应内容不能为空")
		return
	}

	date, ok := resolveDate(c, payload.Date)
	if !ok {
		return
	}

	_, backfilled, err := a.responses.Record(service.ResponseInput{
		UserID:        requestUserID(c),
		TaskType:      db.TaskTypeHabit,
		TaskRefID:     habitTemplateID,
		EffectiveDate: date,
		ResponseValue: payload.Response,
		RecordedAt:    time.Now(),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "记录习惯响应失败")
		return
	}

	// 完成型响应把当天对应的练习实例推进到 completed
	if service.IsCompletingResponse(payload.Response) {
		if err := a.enrollments.CompletePractice(requestUserID(c), habitTemplateID, date); err != nil {
			respondError(c, http.StatusInternalServerError, "记录习惯响应失败")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "backfilled": backfilled})
}

// RecordJournalResponse 记录每日日志动作，走同一事件账本。
func (a *API) RecordJournalResponse(c *gin.Context) {
	var payload struct {
		Date   string `json:"date"`
		Action string `json:"action"`
		Note   string `json:"note"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}
	if payload.Action == "" {
		respondError(c, http.StatusBadRequest, "日志动作不能为空")
		return
	}

	date, ok := resolveDate(c, payload.Date)
	if !ok {
		return
	}

	value := payload.Action
	if payload.Note != "" {
		value = payload.Action + ":" + payload.Note
	}

	_, backfilled, err := a.responses.Record(service.ResponseInput{
		UserID:        requestUserID(c),
		TaskType:      db.TaskTypeJournal,
		TaskRefID:     0,
		EffectiveDate: date,
		ResponseValue: value,
		RecordedAt:    time.Now(),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "记录日志动作失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "backfilled": backfilled})
}

func serializeTasks(tasks []service.Task) []gin.H {
	items := make([]gin.H, 0, len(tasks))
	for _, task := range tasks {
		item := gin.H{
			"task_id": task.TaskID,
			"kind":    string(task.Kind),
		}
		// 封闭联合体：按 Kind 分发，恰好一个变体非空
		switch task.Kind {
		case service.TaskKindHabit:
			item["habit"] = gin.H{
				"habit_template_id": task.Habit.HabitTemplateID,
				"title":             task.Habit.Title,
				"description":       task.Habit.Description,
				"status":            task.Habit.Status,
			}
		case service.TaskKindLesson:
			item["lesson"] = gin.H{
				"lesson_template_id": task.Lesson.LessonTemplateID,
				"slug":               task.Lesson.Slug,
				"title":              task.Lesson.Title,
				"summary":            task.Lesson.Summary,
				"status":             task.Lesson.Status,
			}
		case service.TaskKindJournal:
			item["journal"] = gin.H{
				"title":       task.Journal.Title,
				"description": task.Journal.Description,
				"status":      task.Journal.Status,
			}
		}
		items = append(items, item)
	}
	return items
}

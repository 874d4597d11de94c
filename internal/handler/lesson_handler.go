package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/service"
)

// LessonsForHabit 返回与某习惯相关的课程内容及完成状态。
func (a *API) LessonsForHabit(c *gin.Context) {
	habitTemplateID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯模板ID")
		return
	}

	date, ok := resolveDate(c, c.Query("date"))
	if !ok {
		return
	}

	items, err := a.lessons.LessonsForHabit(requestUserID(c), habitTemplateID, date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取课程列表失败")
		return
	}

	lessons := make([]gin.H, 0, len(items))
	for _, item := range items {
		lessons = append(lessons, gin.H{
			"lesson_template_id": item.LessonTemplateID,
			"slug":               item.Slug,
			"title":              item.Title,
			"summary":            item.Summary,
			"completed":          item.Completed,
			"effective_date":     item.EffectiveDate.Format(calendar.DateFormat),
		})
	}

	c.JSON(http.StatusOK, gin.H{"lessons": lessons})
}

// RecordLessonOpened 记录课程被打开。
func (a *API) RecordLessonOpened(c *gin.Context) {
	slug := c.Param("slug")

	var payload struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, ok := resolveDate(c, payload.Date)
	if !ok {
		return
	}

	attachment, err := a.lessons.MarkOpened(requestUserID(c), slug, date)
	if err != nil {
		handleLessonError(c, err)
		return
	}

	if _, _, err := a.recordLessonEvent(c, attachment, date, "opened"); err != nil {
		respondError(c, http.StatusInternalServerError, "记录课程事件失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MarkLessonCompleted 将课程标记为完成并追加完成事件。
func (a *API) MarkLessonCompleted(c *gin.Context) {
	slug := c.Param("slug")

	var payload struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	date, ok := resolveDate(c, payload.Date)
	if !ok {
		return
	}

	attachment, err := a.lessons.MarkCompleted(requestUserID(c), slug)
	if err != nil {
		handleLessonError(c, err)
		return
	}

	_, backfilled, err := a.recordLessonEvent(c, attachment, date, "completed")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "记录课程事件失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "backfilled": backfilled})
}

func (a *API) recordLessonEvent(c *gin.Context, attachment *db.LessonAttachment, date time.Time, value string) (*db.ResponseEvent, bool, error) {
	lesson, err := a.catalog.GetLessonBySlug(attachment.LessonTemplateSlug)
	if err != nil {
		return nil, false, err
	}

	return a.responses.Record(service.ResponseInput{
		UserID:        requestUserID(c),
		TaskType:      db.TaskTypeLesson,
		TaskRefID:     lesson.ID,
		EffectiveDate: date,
		ResponseValue: value,
		RecordedAt:    time.Now(),
	})
}

func handleLessonError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLessonTemplateNotFound):
		respondError(c, http.StatusNotFound, "课程不存在")
	case errors.Is(err, service.ErrEnrollmentNotFound):
		respondError(c, http.StatusNotFound, "报名不存在")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}

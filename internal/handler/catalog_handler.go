package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/service"
)

// CreateHabitTemplate 创建习惯模板。
func (a *API) CreateHabitTemplate(c *gin.Context) {
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		TypeTag     string `json:"type_tag"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	habit, err := a.catalog.CreateHabitTemplate(service.HabitTemplateInput{
		Name:        payload.Name,
		Description: payload.Description,
		TypeTag:     payload.TypeTag,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, "创建习惯模板失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "habit_template": serializeHabitTemplate(habit)})
}

// ListHabitTemplates 返回习惯模板列表。
func (a *API) ListHabitTemplates(c *gin.Context) {
	habits, err := a.catalog.ListHabitTemplates()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯模板失败")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for i := range habits {
		items = append(items, serializeHabitTemplate(&habits[i]))
	}
	c.JSON(http.StatusOK, gin.H{"habit_templates": items})
}

// CreateLessonTemplate 创建课程模板。
func (a *API) CreateLessonTemplate(c *gin.Context) {
	var payload struct {
		Slug    string `json:"slug"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	lesson, err := a.catalog.CreateLessonTemplate(service.LessonTemplateInput{
		Slug:    payload.Slug,
		Title:   payload.Title,
		Summary: payload.Summary,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, "创建课程模板失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "lesson_template": gin.H{
		"id":    lesson.ID,
		"slug":  lesson.Slug,
		"title": lesson.Title,
	}})
}

// CreateProgramTemplate 创建并发布计划模板。
func (a *API) CreateProgramTemplate(c *gin.Context) {
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Steps       []struct {
			SequenceOrder     int  `json:"sequence_order"`
			IntervalDaysAfter int  `json:"interval_days_after"`
			HabitTemplateID   uint `json:"habit_template_id"`
			DurationDays      int  `json:"duration_days"`
		} `json:"steps"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	steps := make([]service.ProgramStepInput, 0, len(payload.Steps))
	for _, step := range payload.Steps {
		steps = append(steps, service.ProgramStepInput{
			SequenceOrder:     step.SequenceOrder,
			IntervalDaysAfter: step.IntervalDaysAfter,
			HabitTemplateID:   step.HabitTemplateID,
			DurationDays:      step.DurationDays,
		})
	}

	program, err := a.catalog.CreateProgramTemplate(service.ProgramTemplateInput{
		Name:        payload.Name,
		Description: payload.Description,
		Steps:       steps,
	})
	if err != nil {
		handleCatalogError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "program": serializeProgram(program)})
}

// ListPrograms 返回已发布的计划模板。
func (a *API) ListPrograms(c *gin.Context) {
	programs, err := a.catalog.ListPrograms()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取计划模板失败")
		return
	}

	items := make([]gin.H, 0, len(programs))
	for i := range programs {
		items = append(items, serializeProgram(&programs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"programs": items})
}

// GetProgram 返回单个计划模板及其步骤。
func (a *API) GetProgram(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的计划模板ID")
		return
	}

	program, err := a.catalog.GetProgram(id)
	if err != nil {
		handleCatalogError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"program": serializeProgram(program)})
}

func serializeHabitTemplate(habit *db.HabitTemplate) gin.H {
	return gin.H{
		"id":          habit.ID,
		"name":        habit.Name,
		"description": habit.Description,
		"type_tag":    habit.TypeTag,
		"status":      habit.Status,
	}
}

func serializeProgram(program *db.ProgramTemplate) gin.H {
	steps := make([]gin.H, 0, len(program.Steps))
	for _, step := range program.Steps {
		steps = append(steps, gin.H{
			"id":                  step.ID,
			"sequence_order":      step.SequenceOrder,
			"interval_days_after": step.IntervalDaysAfter,
			"habit_template_id":   step.HabitTemplateID,
			"duration_days":       step.DurationDays,
		})
	}

	return gin.H{
		"id":          program.ID,
		"name":        program.Name,
		"description": program.Description,
		"status":      program.Status,
		"steps":       steps,
	}
}

func handleCatalogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProgramNotFound):
		respondError(c, http.StatusNotFound, "计划模板不存在")
	case errors.Is(err, service.ErrHabitTemplateNotFound):
		respondError(c, http.StatusBadRequest, "习惯模板不存在")
	case errors.Is(err, service.ErrInvalidStepSequence):
		respondError(c, http.StatusBadRequest, "步骤配置无效")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}

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

type enrollmentLessonPayload struct {
	LessonTemplateSlug string `json:"lesson_template_slug"`
	DayOffset          int    `json:"day_offset"`
	OnWorkoutDay       bool   `json:"on_workout_day"`
	SegmentIDs         []uint `json:"segment_ids"`
}

// EnrollUserInProgram 创建报名并展开全部练习排期。
func (a *API) EnrollUserInProgram(c *gin.Context) {
	var payload struct {
		ProgramID   uint                      `json:"program_id"`
		UserID      uint                      `json:"user_id"`
		RepeatCount int                       `json:"repeat_count"`
		StartDate   string                    `json:"start_date"`
		Timezone    string                    `json:"timezone"`
		Lessons     []enrollmentLessonPayload `json:"lessons"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	// 报名归属用户本人，服务间调用可代指定
	userID := payload.UserID
	if userID == 0 {
		userID = requestUserID(c)
	}

	var startDate time.Time
	if payload.StartDate != "" {
		parsed, err := calendar.ParseDate(payload.StartDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的开始日期")
			return
		}
		startDate = parsed
	}

	lessons := make([]service.EnrollmentLessonInput, 0, len(payload.Lessons))
	for _, lesson := range payload.Lessons {
		lessons = append(lessons, service.EnrollmentLessonInput{
			LessonTemplateSlug: lesson.LessonTemplateSlug,
			DayOffset:          lesson.DayOffset,
			OnWorkoutDay:       lesson.OnWorkoutDay,
			SegmentIDs:         lesson.SegmentIDs,
		})
	}

	enrollment, err := a.enrollments.Enroll(service.EnrollmentInput{
		ProgramTemplateID: payload.ProgramID,
		UserID:            userID,
		StartDate:         startDate,
		RepeatCount:       payload.RepeatCount,
		Timezone:          payload.Timezone,
		Lessons:           lessons,
	})
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "enrollment": serializeEnrollment(enrollment)})
}

// ListEnrollments 返回当前用户进行中的报名。
func (a *API) ListEnrollments(c *gin.Context) {
	enrollments, err := a.enrollments.ActiveForUser(requestUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取报名列表失败")
		return
	}

	items := make([]gin.H, 0, len(enrollments))
	for i := range enrollments {
		items = append(items, serializeEnrollment(&enrollments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": items})
}

// AttachLessonsToProgramEnrollment 向已有报名挂载一节课程。
func (a *API) AttachLessonsToProgramEnrollment(c *gin.Context) {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的报名ID")
		return
	}

	var payload enrollmentLessonPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	if _, err := a.lessons.Attach(service.LessonAttachmentInput{
		EnrollmentID:       enrollmentID,
		LessonTemplateSlug: payload.LessonTemplateSlug,
		DayOffset:          payload.DayOffset,
		OnWorkoutDay:       payload.OnWorkoutDay,
		SegmentIDs:         payload.SegmentIDs,
	}); err != nil {
		handleEnrollmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeferPractice 将最近的待执行练习向后改期。
func (a *API) DeferPractice(c *gin.Context) {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的报名ID")
		return
	}

	var payload struct {
		Mode   string `json:"mode"`
		Strict bool   `json:"strict"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	today := calendar.Today(requestLocation(c))
	if err := a.deferrals.Defer(enrollmentID, payload.Mode, payload.Strict, today); err != nil {
		handleEnrollmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CancelEnrollment 取消报名，历史记录保留。
func (a *API) CancelEnrollment(c *gin.Context) {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的报名ID")
		return
	}

	today := calendar.Today(requestLocation(c))
	if err := a.enrollments.Cancel(enrollmentID, today); err != nil {
		handleEnrollmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func serializeEnrollment(enrollment *db.Enrollment) gin.H {
	return gin.H{
		"id":           enrollment.ID,
		"public_id":    enrollment.PublicID,
		"program_id":   enrollment.ProgramTemplateID,
		"user_id":      enrollment.UserID,
		"start_date":   enrollment.StartDate.Format(calendar.DateFormat),
		"repeat_count": enrollment.RepeatCount,
		"status":       enrollment.Status,
		"timezone":     enrollment.Timezone,
	}
}

func handleEnrollmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProgramNotFound):
		respondError(c, http.StatusNotFound, "计划模板不存在")
	case errors.Is(err, service.ErrEnrollmentNotFound):
		respondError(c, http.StatusNotFound, "报名不存在")
	case errors.Is(err, service.ErrLessonTemplateNotFound):
		respondError(c, http.StatusNotFound, "课程不存在")
	case errors.Is(err, service.ErrHabitTemplateNotFound):
		respondError(c, http.StatusBadRequest, "习惯模板不存在")
	case errors.Is(err, service.ErrInvalidRepeatCount):
		respondError(c, http.StatusBadRequest, "重复次数必须大于等于 1")
	case errors.Is(err, service.ErrEmptyProgram):
		respondError(c, http.StatusBadRequest, "计划模板没有任何步骤")
	case errors.Is(err, service.ErrEnrollmentInactive):
		respondError(c, http.StatusConflict, "报名已结束")
	case errors.Is(err, service.ErrInvalidDeferMode):
		respondError(c, http.StatusBadRequest, "无效的延期模式")
	case errors.Is(err, service.ErrNoDeferrableInstance):
		respondError(c, http.StatusConflict, "没有可延期的练习")
	case errors.Is(err, service.ErrScheduleConflict):
		respondError(c, http.StatusConflict, "延期目标日期已有安排")
	case errors.Is(err, service.ErrExpansionIdempotency):
		respondError(c, http.StatusInternalServerError, "排期展开数据异常")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}

package service

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
)

var (
	lessonMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	lessonSanitizer = bluemonday.UGCPolicy()
)

// ErrEnrollmentNotFound 在指定报名不存在时返回
var ErrEnrollmentNotFound = errors.New("enrollment not found")

// LessonAttachmentInput 定义挂载课程时的输入对象
type LessonAttachmentInput struct {
	EnrollmentID       uint
	LessonTemplateSlug string
	DayOffset          int
	OnWorkoutDay       bool
	SegmentIDs         []uint
}

// LessonFeedItem 是课程查询返回的单条内容
type LessonFeedItem struct {
	LessonTemplateID uint
	Slug             string
	Title            string
	Summary          string
	Completed        bool
	EffectiveDate    time.Time
}

// LessonService 负责课程挂载的放置、解析与完成状态。
type LessonService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewLessonService 构造 LessonService
func NewLessonService(gdb *gorm.DB, log *logger.Logger) *LessonService {
	return &LessonService{db: gdb, log: log}
}

// Attach 挂载一节课程到报名上并立即解析生效日期。
func (s *LessonService) Attach(input LessonAttachmentInput) (*db.LessonAttachment, error) {
	return s.AttachTx(s.db, input)
}

// AttachTx 在调用方提供的事务内挂载课程，报名创建流程复用。
func (s *LessonService) AttachTx(tx *gorm.DB, input LessonAttachmentInput) (*db.LessonAttachment, error) {
	slug := strings.TrimSpace(strings.ToLower(input.LessonTemplateSlug))
	if slug == "" {
		return nil, fmt.Errorf("lesson template slug is required")
	}

	var enrollment db.Enrollment
	if err := tx.First(&enrollment, input.EnrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}

	var lessonCount int64
	if err := tx.Model(&db.LessonTemplate{}).Where("slug = ?", slug).Count(&lessonCount).Error; err != nil {
		return nil, fmt.Errorf("check lesson template: %w", err)
	}
	if lessonCount == 0 {
		return nil, fmt.Errorf("%w: slug %s", ErrLessonTemplateNotFound, slug)
	}

	attachment := db.LessonAttachment{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: slug,
		DayOffset:          input.DayOffset,
		OnWorkoutDay:       input.OnWorkoutDay,
		SegmentIDs:         joinSegmentIDs(input.SegmentIDs),
	}

	if err := s.resolveTx(tx, &attachment, &enrollment); err != nil {
		return nil, err
	}

	if err := tx.Create(&attachment).Error; err != nil {
		return nil, fmt.Errorf("create lesson attachment: %w", err)
	}
	return &attachment, nil
}

// ReresolveAttachmentsTx 在排期变动后重算报名上贴靠练习日的挂载。
// 延期或取消会移动、跳过练习日，on_workout_day 课程必须跟着重新贴靠。
func (s *LessonService) ReresolveAttachmentsTx(tx *gorm.DB, enrollmentID uint) error {
	var enrollment db.Enrollment
	if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEnrollmentNotFound
		}
		return fmt.Errorf("find enrollment: %w", err)
	}

	var attachments []db.LessonAttachment
	if err := tx.Where("enrollment_id = ? AND on_workout_day = ?", enrollmentID, true).
		Find(&attachments).Error; err != nil {
		return fmt.Errorf("list lesson attachments: %w", err)
	}

	for i := range attachments {
		if err := s.resolveTx(tx, &attachments[i], &enrollment); err != nil {
			return err
		}
		if err := tx.Save(&attachments[i]).Error; err != nil {
			return fmt.Errorf("save lesson attachment: %w", err)
		}
	}
	return nil
}

// resolveTx 计算挂载的生效日期。
// 固定偏移：habit_start + day_offset，day_offset 可为负（前置导学课）。
// on_workout_day：贴靠 scheduled_date >= habit_start + day_offset 的最早练习日；
// 搜索范围内没有练习日时标记为未解析并从呈现中排除，不让整个报名报错。
func (s *LessonService) resolveTx(tx *gorm.DB, attachment *db.LessonAttachment, enrollment *db.Enrollment) error {
	anchor := calendar.AddDays(calendar.Normalize(enrollment.StartDate), attachment.DayOffset)

	if !attachment.OnWorkoutDay {
		attachment.EffectiveDate = &anchor
		attachment.Resolved = true
		return nil
	}

	var instance db.PracticeInstance
	err := tx.Where("enrollment_id = ? AND scheduled_date >= ?", enrollment.ID, anchor).
		Where("status <> ?", db.InstanceStatusSkipped).
		Order("scheduled_date ASC").
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			attachment.EffectiveDate = nil
			attachment.Resolved = false
			s.log.Warn("lesson attachment unresolved",
				"enrollment_id", enrollment.ID,
				"lesson_slug", attachment.LessonTemplateSlug,
				"anchor_date", anchor.Format(calendar.DateFormat),
			)
			return nil
		}
		return fmt.Errorf("find practice instance: %w", err)
	}

	effective := calendar.Normalize(instance.ScheduledDate)
	attachment.EffectiveDate = &effective
	attachment.Resolved = true
	return nil
}

// LessonsForHabit 返回某习惯模板相关报名上、onDate 当天已生效的课程内容。
// 未解析的挂载直接省略；Summary 渲染为消毒后的 HTML。
func (s *LessonService) LessonsForHabit(userID, habitTemplateID uint, onDate time.Time) ([]LessonFeedItem, error) {
	var attachments []db.LessonAttachment
	if err := s.db.
		Joins("JOIN enrollments ON enrollments.id = lesson_attachments.enrollment_id").
		Joins("JOIN program_steps ON program_steps.program_template_id = enrollments.program_template_id").
		Where("enrollments.user_id = ? AND program_steps.habit_template_id = ?", userID, habitTemplateID).
		Where("lesson_attachments.resolved = ?", true).
		Where("lesson_attachments.effective_date <= ?", calendar.Normalize(onDate)).
		Distinct("lesson_attachments.*").
		Order("lesson_attachments.effective_date ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("list lesson attachments: %w", err)
	}

	items := make([]LessonFeedItem, 0, len(attachments))
	for _, attachment := range attachments {
		if attachment.EffectiveDate == nil {
			continue
		}

		var lesson db.LessonTemplate
		if err := s.db.Where("slug = ?", attachment.LessonTemplateSlug).First(&lesson).Error; err != nil {
			// 查询不整体失败，解析不到的条目直接省略
			continue
		}

		items = append(items, LessonFeedItem{
			LessonTemplateID: lesson.ID,
			Slug:             lesson.Slug,
			Title:            lesson.Title,
			Summary:          RenderLessonSummary(lesson.Summary),
			Completed:        attachment.Completed,
			EffectiveDate:    *attachment.EffectiveDate,
		})
	}
	return items, nil
}

// MarkOpened 记录课程首次打开时间，已打开过则保持原值。
func (s *LessonService) MarkOpened(userID uint, slug string, onDate time.Time) (*db.LessonAttachment, error) {
	attachment, err := s.findUserAttachment(userID, slug)
	if err != nil {
		return nil, err
	}

	if attachment.OpenedAt == nil {
		now := time.Now()
		attachment.OpenedAt = &now
		if err := s.db.Model(attachment).Update("opened_at", now).Error; err != nil {
			return nil, fmt.Errorf("mark lesson opened: %w", err)
		}
	}
	return attachment, nil
}

// MarkCompleted 将课程挂载标记为已完成，供任务流排除已完成课程。
func (s *LessonService) MarkCompleted(userID uint, slug string) (*db.LessonAttachment, error) {
	attachment, err := s.findUserAttachment(userID, slug)
	if err != nil {
		return nil, err
	}

	if !attachment.Completed {
		attachment.Completed = true
		if err := s.db.Model(attachment).Update("completed", true).Error; err != nil {
			return nil, fmt.Errorf("mark lesson completed: %w", err)
		}
	}
	return attachment, nil
}

func (s *LessonService) findUserAttachment(userID uint, slug string) (*db.LessonAttachment, error) {
	normalized := strings.TrimSpace(strings.ToLower(slug))

	var attachment db.LessonAttachment
	err := s.db.
		Select("lesson_attachments.*").
		Joins("JOIN enrollments ON enrollments.id = lesson_attachments.enrollment_id").
		Where("enrollments.user_id = ? AND lesson_attachments.lesson_template_slug = ?", userID, normalized).
		Order("lesson_attachments.created_at ASC").
		First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: slug %s", ErrLessonTemplateNotFound, normalized)
		}
		return nil, fmt.Errorf("find lesson attachment: %w", err)
	}
	return &attachment, nil
}

// RenderLessonSummary 将课程摘要 Markdown 渲染为消毒后的 HTML。
func RenderLessonSummary(markdown string) string {
	trimmed := strings.TrimSpace(markdown)
	if trimmed == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := lessonMarkdown.Convert([]byte(trimmed), &buf); err != nil {
		return lessonSanitizer.Sanitize(trimmed)
	}
	return strings.TrimSpace(lessonSanitizer.Sanitize(buf.String()))
}

func joinSegmentIDs(ids []uint) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, ",")
}

// SplitSegmentIDs 还原挂载上记录的片段 ID 列表。
func SplitSegmentIDs(raw string) []uint {
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parsed, err := strconv.ParseUint(trimmed, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(parsed))
	}
	return ids
}

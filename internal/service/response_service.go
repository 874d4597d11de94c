package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResponseInput 定义追加响应事件的输入对象。
// EffectiveDate 允许不同于当下日期，用于补记漏掉的某天。
type ResponseInput struct {
	UserID        uint
	TaskType      string
	TaskRefID     uint
	EffectiveDate time.Time
	ResponseValue string
	RecordedAt    time.Time
}

// ResponseService 维护只追加的响应事件账本。
// 事件永不改写，订正通过追加新事件、按 RecordedAt 取最新完成。
type ResponseService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewResponseService 构造 ResponseService
func NewResponseService(gdb *gorm.DB, log *logger.Logger) *ResponseService {
	return &ResponseService{db: gdb, log: log}
}

// Record 追加一条响应事件。
// 若该 (user, date, task) 从未被呈现，会补写一条呈现记录保持账本自洽，
// 补写属于正常路径，只记审计日志不报错。返回是否发生了补写。
func (s *ResponseService) Record(input ResponseInput) (*db.ResponseEvent, bool, error) {
	if input.UserID == 0 {
		return nil, false, fmt.Errorf("user id is required")
	}
	if err := validateTaskType(input.TaskType); err != nil {
		return nil, false, err
	}

	effectiveDate := calendar.Normalize(input.EffectiveDate)
	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	event := db.ResponseEvent{
		EventID:       uuid.New().String(),
		UserID:        input.UserID,
		TaskType:      input.TaskType,
		TaskRefID:     input.TaskRefID,
		EffectiveDate: effectiveDate,
		ResponseValue: strings.TrimSpace(input.ResponseValue),
		RecordedAt:    recordedAt,
	}

	backfilled := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		presented := db.PresentedTaskRecord{
			UserID:    input.UserID,
			Date:      effectiveDate,
			TaskType:  input.TaskType,
			TaskRefID: input.TaskRefID,
			Presented: true,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"}, {Name: "date"}, {Name: "task_type"}, {Name: "task_ref_id"},
			},
			DoNothing: true,
		}).Create(&presented)
		if result.Error != nil {
			return fmt.Errorf("ensure presented record: %w", result.Error)
		}
		backfilled = result.RowsAffected > 0

		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("append response event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if backfilled {
		s.log.Warn("response backfilled without prior presentation",
			"user_id", input.UserID,
			"task_type", input.TaskType,
			"task_ref_id", input.TaskRefID,
			"effective_date", effectiveDate.Format(calendar.DateFormat),
		)
	}
	return &event, backfilled, nil
}

// LatestFor 返回 (task, date) 的最新事件，没有事件时返回 nil。
func (s *ResponseService) LatestFor(userID uint, taskType string, taskRefID uint, date time.Time) (*db.ResponseEvent, error) {
	events, err := s.LatestPerDate(userID, taskType, taskRefID, date, date)
	if err != nil {
		return nil, err
	}
	key := calendar.Normalize(date).Format(calendar.DateFormat)
	if event, ok := events[key]; ok {
		return event, nil
	}
	return nil, nil
}

// LatestPerDate 返回日期区间内每个生效日期的最新事件，键为 YYYY-MM-DD。
func (s *ResponseService) LatestPerDate(userID uint, taskType string, taskRefID uint, start, end time.Time) (map[string]*db.ResponseEvent, error) {
	var events []db.ResponseEvent
	if err := s.db.
		Where("user_id = ? AND task_type = ? AND task_ref_id = ?", userID, taskType, taskRefID).
		Where("effective_date BETWEEN ? AND ?", calendar.Normalize(start), calendar.Normalize(end)).
		Order("recorded_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list response events: %w", err)
	}

	latest := make(map[string]*db.ResponseEvent, len(events))
	for i := range events {
		key := calendar.Normalize(events[i].EffectiveDate).Format(calendar.DateFormat)
		// 顺序扫描后写覆盖先写，留下的即 RecordedAt 最新者
		latest[key] = &events[i]
	}
	return latest, nil
}

// IsCompletingResponse 判断响应值是否算作完成。
func IsCompletingResponse(value string) bool {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "yes", "done", "completed", "true", "1":
		return true
	default:
		return false
	}
}

func validateTaskType(taskType string) error {
	switch taskType {
	case db.TaskTypeHabit, db.TaskTypeLesson, db.TaskTypeJournal:
		return nil
	default:
		return fmt.Errorf("unknown task type %q", taskType)
	}
}

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"gorm.io/gorm"
)

var (
	// ErrInvalidRepeatCount 当 repeat_count 小于 1 时返回
	ErrInvalidRepeatCount = errors.New("repeat count must be at least 1")
	// ErrExpansionIdempotency 表示展开幂等键冲突，说明模板或报名数据被破坏，
	// 按致命配置错误处理而不是静默去重。
	ErrExpansionIdempotency = errors.New("expansion idempotency violation")
	// ErrEmptyProgram 当模板没有任何步骤时返回
	ErrEmptyProgram = errors.New("program template has no steps")
)

// ScheduleDraft 是展开计算出的单条排期草稿。
type ScheduleDraft struct {
	ProgramStepID uint
	CycleIndex    int
	ScheduledDate time.Time
}

// ExpansionService 将计划模板按报名信息展开为具体练习排期。
// 展开是纯日期推演 + 幂等写入：重跑同一报名不会产生重复实例。
type ExpansionService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewExpansionService 构造 ExpansionService
func NewExpansionService(gdb *gorm.DB, log *logger.Logger) *ExpansionService {
	return &ExpansionService{db: gdb, log: log}
}

// ComputeSchedule 纯函数：按步骤顺序推进锚点日期，重复 repeatCount 个周期。
// 每个周期的首个锚点等于上一周期最后一个排期日期，周期之间首尾相接。
func ComputeSchedule(steps []db.ProgramStep, startDate time.Time, repeatCount int) []ScheduleDraft {
	drafts := make([]ScheduleDraft, 0, len(steps)*repeatCount)
	anchor := calendar.Normalize(startDate)

	for cycle := 0; cycle < repeatCount; cycle++ {
		for _, step := range steps {
			scheduled := calendar.AddDays(anchor, step.IntervalDaysAfter)
			drafts = append(drafts, ScheduleDraft{
				ProgramStepID: step.ID,
				CycleIndex:    cycle,
				ScheduledDate: scheduled,
			})
			anchor = scheduled
		}
	}

	return drafts
}

// ExpandEnrollment 在事务内物化报名的全部练习实例。
// 校验失败整体拒绝，不落任何部分排期；重跑时逐条比对幂等键：
// 日期一致则跳过，不一致则返回 ErrExpansionIdempotency 并回滚。
func (s *ExpansionService) ExpandEnrollment(enrollment *db.Enrollment) error {
	unlock := scheduleLocks.Acquire(enrollment.ID)
	defer unlock()

	return s.expandLocked(s.db, enrollment)
}

// ExpandEnrollmentTx 供已持有报名锁和事务的调用方（报名创建流程）复用。
func (s *ExpansionService) ExpandEnrollmentTx(tx *gorm.DB, enrollment *db.Enrollment) error {
	return s.expandLocked(tx, enrollment)
}

func (s *ExpansionService) expandLocked(gdb *gorm.DB, enrollment *db.Enrollment) error {
	if enrollment.RepeatCount < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRepeatCount, enrollment.RepeatCount)
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		var steps []db.ProgramStep
		if err := tx.Where("program_template_id = ?", enrollment.ProgramTemplateID).
			Order("sequence_order ASC").
			Find(&steps).Error; err != nil {
			return fmt.Errorf("load program steps: %w", err)
		}
		if len(steps) == 0 {
			return fmt.Errorf("%w: program %d", ErrEmptyProgram, enrollment.ProgramTemplateID)
		}

		for _, step := range steps {
			var count int64
			if err := tx.Model(&db.HabitTemplate{}).Where("id = ?", step.HabitTemplateID).Count(&count).Error; err != nil {
				return fmt.Errorf("check habit template: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("%w: id %d", ErrHabitTemplateNotFound, step.HabitTemplateID)
			}
		}

		drafts := ComputeSchedule(steps, enrollment.StartDate, enrollment.RepeatCount)

		created := 0
		for _, draft := range drafts {
			var existing db.PracticeInstance
			err := tx.Where(
				"enrollment_id = ? AND program_step_id = ? AND cycle_index = ?",
				enrollment.ID, draft.ProgramStepID, draft.CycleIndex,
			).First(&existing).Error

			switch {
			case err == nil:
				if !calendar.SameDate(existing.ScheduledDate, draft.ScheduledDate) {
					s.log.Error("expansion idempotency violation",
						"enrollment_id", enrollment.ID,
						"step_id", draft.ProgramStepID,
						"cycle_index", draft.CycleIndex,
						"existing_date", existing.ScheduledDate.Format(calendar.DateFormat),
						"computed_date", draft.ScheduledDate.Format(calendar.DateFormat),
					)
					return fmt.Errorf("%w: enrollment %d step %d cycle %d",
						ErrExpansionIdempotency, enrollment.ID, draft.ProgramStepID, draft.CycleIndex)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				instance := db.PracticeInstance{
					EnrollmentID:  enrollment.ID,
					ProgramStepID: draft.ProgramStepID,
					CycleIndex:    draft.CycleIndex,
					ScheduledDate: draft.ScheduledDate,
					Status:        db.InstanceStatusScheduled,
				}
				if err := tx.Create(&instance).Error; err != nil {
					return fmt.Errorf("create practice instance: %w", err)
				}
				created++
			default:
				return fmt.Errorf("lookup practice instance: %w", err)
			}
		}

		if created > 0 {
			s.log.Info("enrollment expanded",
				"enrollment_id", enrollment.ID,
				"instances_created", created,
				"cycles", enrollment.RepeatCount,
			)
		}
		return nil
	})
}

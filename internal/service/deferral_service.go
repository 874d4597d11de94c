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

const (
	// DeferModeSingle 只后移最近一个待执行实例，后续不动。
	DeferModeSingle = "single"
	// DeferModeCascade 后移最近实例并让后续实例整体平移相同天数。
	DeferModeCascade = "cascade"
)

var (
	// ErrInvalidDeferMode 当模式既非 single 也非 cascade 时返回
	ErrInvalidDeferMode = errors.New("invalid defer mode")
	// ErrNoDeferrableInstance 当报名没有可延期的待执行实例时返回
	ErrNoDeferrableInstance = errors.New("no deferrable practice instance")
	// ErrScheduleConflict 仅在 single 模式 + strict 且目标日期已被占用时返回
	ErrScheduleConflict = errors.New("deferral would collide with an existing instance")
)

// DeferralService 将单个待执行练习实例向后改期。
// 已完成或已有响应记录的实例不可变，永远不会成为延期目标。
type DeferralService struct {
	db      *gorm.DB
	lessons *LessonService
	log     *logger.Logger
}

// NewDeferralService 构造 DeferralService
func NewDeferralService(gdb *gorm.DB, lessons *LessonService, log *logger.Logger) *DeferralService {
	return &DeferralService{db: gdb, lessons: lessons, log: log}
}

// Defer 找到报名最近的 scheduled 实例并按模式后移。
// single 模式允许产生日期碰撞，呈现时按模板去重兜底；
// strict 为真时碰撞升级为 ErrScheduleConflict。
func (s *DeferralService) Defer(enrollmentID uint, mode string, strict bool, today time.Time) error {
	if mode != DeferModeSingle && mode != DeferModeCascade {
		return fmt.Errorf("%w: %q", ErrInvalidDeferMode, mode)
	}

	unlock := scheduleLocks.Acquire(enrollmentID)
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var enrollment db.Enrollment
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEnrollmentNotFound
			}
			return fmt.Errorf("find enrollment: %w", err)
		}
		if enrollment.Status != db.EnrollmentStatusActive {
			return ErrEnrollmentInactive
		}

		target, err := s.findTarget(tx, enrollment.ID, calendar.Normalize(today))
		if err != nil {
			return err
		}

		var step db.ProgramStep
		if err := tx.First(&step, target.ProgramStepID).Error; err != nil {
			return fmt.Errorf("find program step: %w", err)
		}

		// “一个重复间隔”取步骤自身的间隔，0 间隔步骤至少移动一天
		delta := step.IntervalDaysAfter
		if delta < 1 {
			delta = 1
		}

		newDate := calendar.AddDays(calendar.Normalize(target.ScheduledDate), delta)

		switch mode {
		case DeferModeSingle:
			if strict {
				var colliding int64
				if err := tx.Model(&db.PracticeInstance{}).
					Where("enrollment_id = ? AND id <> ? AND scheduled_date = ?", enrollment.ID, target.ID, newDate).
					Where("status <> ?", db.InstanceStatusSkipped).
					Count(&colliding).Error; err != nil {
					return fmt.Errorf("check collisions: %w", err)
				}
				if colliding > 0 {
					return fmt.Errorf("%w: %s", ErrScheduleConflict, newDate.Format(calendar.DateFormat))
				}
			}
			if err := tx.Model(target).Update("scheduled_date", newDate).Error; err != nil {
				return fmt.Errorf("defer instance: %w", err)
			}
		case DeferModeCascade:
			// 后续仍为 scheduled 的实例整体平移，保持相对间距
			var subsequent []db.PracticeInstance
			if err := tx.Where("enrollment_id = ? AND status = ? AND scheduled_date > ?",
				enrollment.ID, db.InstanceStatusScheduled, calendar.Normalize(target.ScheduledDate)).
				Order("scheduled_date ASC").
				Find(&subsequent).Error; err != nil {
				return fmt.Errorf("list subsequent instances: %w", err)
			}
			for i := range subsequent {
				shifted := calendar.AddDays(calendar.Normalize(subsequent[i].ScheduledDate), delta)
				if err := tx.Model(&subsequent[i]).Update("scheduled_date", shifted).Error; err != nil {
					return fmt.Errorf("shift subsequent instance: %w", err)
				}
			}
			if err := tx.Model(target).Update("scheduled_date", newDate).Error; err != nil {
				return fmt.Errorf("defer instance: %w", err)
			}
		}

		// 练习日移动后，贴靠练习日的课程需要重新贴靠
		if err := s.lessons.ReresolveAttachmentsTx(tx, enrollment.ID); err != nil {
			return err
		}

		s.log.Info("practice deferred",
			"enrollment_id", enrollment.ID,
			"instance_id", target.ID,
			"mode", mode,
			"delta_days", delta,
			"new_date", newDate.Format(calendar.DateFormat),
		)
		return nil
	})
}

// findTarget 返回最近的未来 scheduled 实例；没有未来实例时回退到
// 最早的 scheduled 实例（过期未呈现的也允许延期）。
func (s *DeferralService) findTarget(tx *gorm.DB, enrollmentID uint, today time.Time) (*db.PracticeInstance, error) {
	var target db.PracticeInstance
	err := tx.Where("enrollment_id = ? AND status = ? AND scheduled_date >= ?",
		enrollmentID, db.InstanceStatusScheduled, today).
		Order("scheduled_date ASC, id ASC").
		First(&target).Error
	if err == nil {
		return &target, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find deferrable instance: %w", err)
	}

	err = tx.Where("enrollment_id = ? AND status = ?", enrollmentID, db.InstanceStatusScheduled).
		Order("scheduled_date ASC, id ASC").
		First(&target).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoDeferrableInstance
		}
		return nil, fmt.Errorf("find deferrable instance: %w", err)
	}
	return &target, nil
}

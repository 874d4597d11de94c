package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"gorm.io/gorm"
)

// ErrEnrollmentInactive 当对非 active 报名执行变更时返回
var ErrEnrollmentInactive = errors.New("enrollment is not active")

// EnrollmentInput 定义创建报名时的输入对象
type EnrollmentInput struct {
	ProgramTemplateID uint
	UserID            uint
	StartDate         time.Time
	RepeatCount       int
	Timezone          string
	Lessons           []EnrollmentLessonInput
}

// EnrollmentLessonInput 是报名时一并挂载的课程
type EnrollmentLessonInput struct {
	LessonTemplateSlug string
	DayOffset          int
	OnWorkoutDay       bool
	SegmentIDs         []uint
}

// EnrollmentService 管理报名的创建、取消与自然完成。
// 创建报名即刻展开全部周期的练习排期，失败时整体回滚。
type EnrollmentService struct {
	db       *gorm.DB
	expander *ExpansionService
	lessons  *LessonService
	log      *logger.Logger
}

// NewEnrollmentService 构造 EnrollmentService
func NewEnrollmentService(gdb *gorm.DB, expander *ExpansionService, lessons *LessonService, log *logger.Logger) *EnrollmentService {
	return &EnrollmentService{db: gdb, expander: expander, lessons: lessons, log: log}
}

// Enroll 创建报名：校验模板、展开排期、挂载初始课程，全部在一个事务内。
func (s *EnrollmentService) Enroll(input EnrollmentInput) (*db.Enrollment, error) {
	if input.RepeatCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRepeatCount, input.RepeatCount)
	}
	if input.UserID == 0 {
		return nil, fmt.Errorf("user id is required")
	}

	var program db.ProgramTemplate
	if err := s.db.First(&program, input.ProgramTemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("find program template: %w", err)
	}
	if program.Status != db.ProgramStatusPublished {
		return nil, fmt.Errorf("%w: program %d is not published", ErrProgramNotFound, program.ID)
	}

	startDate := input.StartDate
	if startDate.IsZero() {
		loc := calendar.ResolveLocation(input.Timezone, "")
		startDate = calendar.Today(loc)
	}

	enrollment := db.Enrollment{
		PublicID:          uuid.New().String(),
		ProgramTemplateID: program.ID,
		UserID:            input.UserID,
		StartDate:         calendar.Normalize(startDate),
		RepeatCount:       input.RepeatCount,
		Status:            db.EnrollmentStatusActive,
		Timezone:          input.Timezone,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&enrollment).Error; err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}

		unlock := scheduleLocks.Acquire(enrollment.ID)
		defer unlock()

		if err := s.expander.ExpandEnrollmentTx(tx, &enrollment); err != nil {
			return err
		}

		for _, lesson := range input.Lessons {
			if _, err := s.lessons.AttachTx(tx, LessonAttachmentInput{
				EnrollmentID:       enrollment.ID,
				LessonTemplateSlug: lesson.LessonTemplateSlug,
				DayOffset:          lesson.DayOffset,
				OnWorkoutDay:       lesson.OnWorkoutDay,
				SegmentIDs:         lesson.SegmentIDs,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user enrolled in program",
		"enrollment_id", enrollment.ID,
		"public_id", enrollment.PublicID,
		"program_id", program.ID,
		"repeat_count", enrollment.RepeatCount,
	)
	return &enrollment, nil
}

// Get 根据 ID 获取报名
func (s *EnrollmentService) Get(id uint) (*db.Enrollment, error) {
	var enrollment db.Enrollment
	if err := s.db.First(&enrollment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &enrollment, nil
}

// Cancel 取消报名：未来的 scheduled 实例置为 skipped，历史记录保留。
func (s *EnrollmentService) Cancel(enrollmentID uint, today time.Time) error {
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

		if err := tx.Model(&db.PracticeInstance{}).
			Where("enrollment_id = ? AND status = ? AND scheduled_date >= ?",
				enrollment.ID, db.InstanceStatusScheduled, calendar.Normalize(today)).
			Update("status", db.InstanceStatusSkipped).Error; err != nil {
			return fmt.Errorf("skip future instances: %w", err)
		}

		// 贴靠练习日的课程不能再指向被跳过的实例
		if err := s.lessons.ReresolveAttachmentsTx(tx, enrollment.ID); err != nil {
			return err
		}

		if err := tx.Model(&enrollment).Update("status", db.EnrollmentStatusCancelled).Error; err != nil {
			return fmt.Errorf("cancel enrollment: %w", err)
		}

		s.log.Info("enrollment cancelled", "enrollment_id", enrollment.ID)
		return nil
	})
}

// CompletePractice 将某用户某习惯在指定日期的待执行实例标记为完成，
// 随后检查受影响报名是否已整体完成。由记录打卡响应的链路触发。
func (s *EnrollmentService) CompletePractice(userID, habitTemplateID uint, day time.Time) error {
	normalized := calendar.Normalize(day)

	var instances []db.PracticeInstance
	if err := s.db.
		Select("practice_instances.*").
		Joins("JOIN enrollments ON enrollments.id = practice_instances.enrollment_id").
		Joins("JOIN program_steps ON program_steps.id = practice_instances.program_step_id").
		Where("enrollments.user_id = ? AND enrollments.status = ?", userID, db.EnrollmentStatusActive).
		Where("program_steps.habit_template_id = ?", habitTemplateID).
		Where("practice_instances.scheduled_date = ?", normalized).
		Where("practice_instances.status IN ?", []string{db.InstanceStatusScheduled, db.InstanceStatusPresented}).
		Find(&instances).Error; err != nil {
		return fmt.Errorf("list due practice instances: %w", err)
	}

	enrollmentIDs := make(map[uint]struct{}, len(instances))
	for i := range instances {
		if err := s.db.Model(&instances[i]).
			Where("status IN ?", []string{db.InstanceStatusScheduled, db.InstanceStatusPresented}).
			Update("status", db.InstanceStatusCompleted).Error; err != nil {
			return fmt.Errorf("complete practice instance: %w", err)
		}
		enrollmentIDs[instances[i].EnrollmentID] = struct{}{}
	}

	for id := range enrollmentIDs {
		if _, err := s.CompleteIfFinished(id); err != nil {
			return err
		}
	}
	return nil
}

// CompleteIfFinished 巡检：所有实例都已终态时将报名标记为完成。
func (s *EnrollmentService) CompleteIfFinished(enrollmentID uint) (bool, error) {
	var enrollment db.Enrollment
	if err := s.db.First(&enrollment, enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrEnrollmentNotFound
		}
		return false, fmt.Errorf("find enrollment: %w", err)
	}
	if enrollment.Status != db.EnrollmentStatusActive {
		return false, nil
	}

	var pending int64
	if err := s.db.Model(&db.PracticeInstance{}).
		Where("enrollment_id = ? AND status IN ?", enrollment.ID,
			[]string{db.InstanceStatusScheduled, db.InstanceStatusPresented}).
		Count(&pending).Error; err != nil {
		return false, fmt.Errorf("count pending instances: %w", err)
	}
	if pending > 0 {
		return false, nil
	}

	if err := s.db.Model(&enrollment).Update("status", db.EnrollmentStatusCompleted).Error; err != nil {
		return false, fmt.Errorf("complete enrollment: %w", err)
	}

	s.log.Info("enrollment completed", "enrollment_id", enrollment.ID)
	return true, nil
}

// ActiveForUser 返回用户当前 active 的报名集合。
func (s *EnrollmentService) ActiveForUser(userID uint) ([]db.Enrollment, error) {
	var enrollments []db.Enrollment
	if err := s.db.Where("user_id = ? AND status = ?", userID, db.EnrollmentStatusActive).
		Order("created_at ASC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// EnrollmentStatusActive 表示计划进行中。
	EnrollmentStatusActive = "active"
	// EnrollmentStatusCancelled 表示计划被取消，历史记录保留。
	EnrollmentStatusCancelled = "cancelled"
	// EnrollmentStatusCompleted 表示计划自然完成。
	EnrollmentStatusCompleted = "completed"
)

const (
	// InstanceStatusScheduled 表示实例已排期、尚未呈现。
	InstanceStatusScheduled = "scheduled"
	// InstanceStatusPresented 表示实例已在任务流中呈现。
	InstanceStatusPresented = "presented"
	// InstanceStatusCompleted 表示用户已完成该实例。
	InstanceStatusCompleted = "completed"
	// InstanceStatusSkipped 表示实例被跳过（取消或显式跳过）。
	InstanceStatusSkipped = "skipped"
)

// Enrollment 表示用户对某个计划模板的一次报名。
// StartDate/所有日期均为用户时区下的民用日期，统一存为 UTC 午夜。
type Enrollment struct {
	gorm.Model
	PublicID          string `gorm:"size:36;uniqueIndex;not null"`
	ProgramTemplateID uint   `gorm:"index"`
	ProgramTemplate   ProgramTemplate
	UserID            uint      `gorm:"index"`
	StartDate         time.Time `gorm:"not null"`
	RepeatCount       int       `gorm:"default:1"`
	Status            string    `gorm:"size:20;default:active;index"`
	Timezone          string    `gorm:"size:64"`
}

// PracticeInstance 是展开后的具体练习排期。
// (enrollment_id, program_step_id, cycle_index) 唯一，作为展开幂等键。
// ScheduledDate 创建后不可变，仅延期操作可以改写。
type PracticeInstance struct {
	gorm.Model
	EnrollmentID  uint `gorm:"index;index:idx_practice_expansion,unique"`
	ProgramStepID uint `gorm:"index:idx_practice_expansion,unique"`
	ProgramStep   ProgramStep
	CycleIndex    int       `gorm:"index:idx_practice_expansion,unique"`
	ScheduledDate time.Time `gorm:"index;not null"`
	Status        string    `gorm:"size:20;default:scheduled;index"`
}

// LessonAttachment 将课程按天偏移挂载到报名上。
// OnWorkoutDay 为真时贴靠最近的练习日；无法贴靠时 Resolved 置否并从呈现中排除。
type LessonAttachment struct {
	gorm.Model
	EnrollmentID       uint   `gorm:"index"`
	LessonTemplateSlug string `gorm:"size:120;index"`
	DayOffset          int
	OnWorkoutDay       bool
	SegmentIDs         string `gorm:"size:500"`
	EffectiveDate      *time.Time
	Resolved           bool `gorm:"default:false"`
	Completed          bool `gorm:"default:false"`
	OpenedAt           *time.Time
}

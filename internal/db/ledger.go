package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// TaskTypeHabit 表示习惯练习任务。
	TaskTypeHabit = "habit"
	// TaskTypeLesson 表示课程任务。
	TaskTypeLesson = "lesson"
	// TaskTypeJournal 表示每日日志占位任务，TaskRefID 固定为 0。
	TaskTypeJournal = "journal"
)

// PresentedTaskRecord 记录某任务在某日被呈现给某用户。
// 自然键 (user_id, date, task_type, task_ref_id) 唯一，重复写入为 no-op，
// 由唯一索引 + OnConflict DoNothing 保证并发下的幂等。
type PresentedTaskRecord struct {
	gorm.Model
	UserID    uint      `gorm:"index;index:idx_presented_natural,unique"`
	Date      time.Time `gorm:"index:idx_presented_natural,unique"`
	TaskType  string    `gorm:"size:20;index:idx_presented_natural,unique"`
	TaskRefID uint      `gorm:"index:idx_presented_natural,unique"`
	Presented bool      `gorm:"default:true"`
}

// TableName 重写确保唯一索引作用到自然键四列。
func (PresentedTaskRecord) TableName() string {
	return "presented_task_records"
}

// ResponseEvent 是只追加的用户响应事件。
// 同一 (task_ref, effective_date) 允许多条事件，以 RecordedAt 最新者为准，
// 订正/补记都通过追加新事件完成，历史永不改写。
type ResponseEvent struct {
	gorm.Model
	EventID       string    `gorm:"size:36;uniqueIndex;not null"`
	UserID        uint      `gorm:"index"`
	TaskType      string    `gorm:"size:20;index:idx_response_lookup"`
	TaskRefID     uint      `gorm:"index:idx_response_lookup"`
	EffectiveDate time.Time `gorm:"index:idx_response_lookup"`
	ResponseValue string    `gorm:"size:500"`
	RecordedAt    time.Time `gorm:"index;not null"`
}

// TableName 统一事件表命名。
func (ResponseEvent) TableName() string {
	return "response_events"
}

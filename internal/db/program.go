package db

import "gorm.io/gorm"

const (
	// ProgramStatusDraft 表示模板仍可编辑。
	ProgramStatusDraft = "draft"
	// ProgramStatusPublished 表示模板已发布，步骤不再变更，可安全缓存。
	ProgramStatusPublished = "published"
)

// ProgramTemplate 定义一个可重复执行的计划模板。
// 发布后不可变，展开逻辑只读取已发布的模板。
type ProgramTemplate struct {
	gorm.Model
	Name        string `gorm:"size:200;not null"`
	Description string
	Status      string        `gorm:"size:20;default:draft"`
	Steps       []ProgramStep `gorm:"constraint:OnDelete:CASCADE"`
}

// ProgramStep 是模板内的单个练习步骤。
// SequenceOrder 在同一模板内唯一；IntervalDaysAfter 是相对上一步锚点日期的天数。
type ProgramStep struct {
	gorm.Model
	ProgramTemplateID uint `gorm:"index;index:idx_program_step_order,unique"`
	SequenceOrder     int  `gorm:"index:idx_program_step_order,unique"`
	IntervalDaysAfter int
	HabitTemplateID   uint          `gorm:"index"`
	HabitTemplate     HabitTemplate `gorm:"constraint:OnDelete:RESTRICT"`
	DurationDays      int           `gorm:"default:1"`
}

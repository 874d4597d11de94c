package db

import "gorm.io/gorm"

// HabitTemplate 定义习惯内容模板，对引擎只读。
// TypeTag 用于区分习惯类别，便于统计/筛选
// Status 预留 active/inactive 控制展示
type HabitTemplate struct {
	gorm.Model
	Name        string `gorm:"size:200;not null"`
	Description string
	TypeTag     string `gorm:"size:50"`
	Status      string `gorm:"size:20;default:active"`
}

// LessonTemplate 定义课程内容模板，Summary 为 Markdown 原文。
// Slug 作为外部引用键，挂载与完成操作都以 slug 定位。
type LessonTemplate struct {
	gorm.Model
	Slug    string `gorm:"size:120;uniqueIndex;not null"`
	Title   string `gorm:"size:200;not null"`
	Summary string `gorm:"type:text"`
	Status  string `gorm:"size:20;default:active"`
}

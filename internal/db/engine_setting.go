package db

import "gorm.io/gorm"

// EngineSetting 存储引擎级可配置键值对。
type EngineSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (EngineSetting) TableName() string {
	return "engine_settings"
}

const (
	// SettingKeyJournalTitle 表示每日日志任务的标题。
	SettingKeyJournalTitle = "journal_title"
	// SettingKeyJournalDescription 表示每日日志任务的描述。
	SettingKeyJournalDescription = "journal_description"
	// SettingKeyDefaultTimezone 表示未携带时区时使用的默认时区。
	SettingKeyDefaultTimezone = "default_timezone"
)

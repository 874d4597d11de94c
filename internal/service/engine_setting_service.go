package service

import (
	"fmt"
	"strings"

	"github.com/pacelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultJournalTitle       = "每日记录"
	defaultJournalDescription = "花一分钟写下今天的状态与感受"
)

// EngineSettings 描述引擎级可配置信息。
type EngineSettings struct {
	JournalTitle       string
	JournalDescription string
	DefaultTimezone    string
}

// EngineSettingsInput 用于更新引擎设置。
type EngineSettingsInput struct {
	JournalTitle       string
	JournalDescription string
	DefaultTimezone    string
}

// EngineSettingService 提供引擎设置的读取与更新能力。
type EngineSettingService struct {
	db *gorm.DB
}

// NewEngineSettingService 构造 EngineSettingService。
func NewEngineSettingService(gdb *gorm.DB) *EngineSettingService {
	return &EngineSettingService{db: gdb}
}

var engineSettingKeys = []string{
	db.SettingKeyJournalTitle,
	db.SettingKeyJournalDescription,
	db.SettingKeyDefaultTimezone,
}

// GetSettings 读取引擎设置，如未设置将返回默认值。
func (s *EngineSettingService) GetSettings() (EngineSettings, error) {
	settings := EngineSettings{
		JournalTitle:       defaultJournalTitle,
		JournalDescription: defaultJournalDescription,
		DefaultTimezone:    "UTC",
	}

	var rows []db.EngineSetting
	if err := s.db.Where("key IN ?", engineSettingKeys).Find(&rows).Error; err != nil {
		return settings, fmt.Errorf("load engine settings: %w", err)
	}

	for _, row := range rows {
		value := strings.TrimSpace(row.Value)
		if value == "" {
			continue
		}
		switch row.Key {
		case db.SettingKeyJournalTitle:
			settings.JournalTitle = value
		case db.SettingKeyJournalDescription:
			settings.JournalDescription = value
		case db.SettingKeyDefaultTimezone:
			settings.DefaultTimezone = value
		}
	}
	return settings, nil
}

// UpdateSettings 覆盖写入引擎设置，空字段表示恢复默认。
func (s *EngineSettingService) UpdateSettings(input EngineSettingsInput) error {
	pairs := map[string]string{
		db.SettingKeyJournalTitle:       strings.TrimSpace(input.JournalTitle),
		db.SettingKeyJournalDescription: strings.TrimSpace(input.JournalDescription),
		db.SettingKeyDefaultTimezone:    strings.TrimSpace(input.DefaultTimezone),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range pairs {
			record := db.EngineSetting{Key: key, Value: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&record).Error; err != nil {
				return fmt.Errorf("save engine setting %s: %w", key, err)
			}
		}
		return nil
	})
}

package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pacelog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrProgramNotFound 在指定计划模板不存在时返回
	ErrProgramNotFound = errors.New("program template not found")
	// ErrHabitTemplateNotFound 在指定习惯模板不存在时返回
	ErrHabitTemplateNotFound = errors.New("habit template not found")
	// ErrLessonTemplateNotFound 在指定课程模板不存在时返回
	ErrLessonTemplateNotFound = errors.New("lesson template not found")
	// ErrProgramImmutable 当尝试修改已发布模板时返回
	ErrProgramImmutable = errors.New("published program template is immutable")
	// ErrInvalidStepSequence 当步骤顺序重复或间隔为负时返回
	ErrInvalidStepSequence = errors.New("invalid program step sequence")
)

// CatalogService 维护计划/习惯/课程模板目录。
// 引擎本身不编辑内容，这里只提供排期所需的最小创建与读取能力。
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService 构造 CatalogService
func NewCatalogService(gdb *gorm.DB) *CatalogService {
	return &CatalogService{db: gdb}
}

// HabitTemplateInput 定义创建习惯模板的字段
type HabitTemplateInput struct {
	Name        string
	Description string
	TypeTag     string
}

// LessonTemplateInput 定义创建课程模板的字段
type LessonTemplateInput struct {
	Slug    string
	Title   string
	Summary string
}

// ProgramStepInput 定义模板内单个步骤
type ProgramStepInput struct {
	SequenceOrder     int
	IntervalDaysAfter int
	HabitTemplateID   uint
	DurationDays      int
}

// ProgramTemplateInput 定义创建计划模板的字段
type ProgramTemplateInput struct {
	Name        string
	Description string
	Steps       []ProgramStepInput
}

// CreateHabitTemplate 新建习惯模板
func (s *CatalogService) CreateHabitTemplate(input HabitTemplateInput) (*db.HabitTemplate, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("habit template name is required")
	}

	habit := db.HabitTemplate{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		TypeTag:     strings.TrimSpace(input.TypeTag),
		Status:      "active",
	}
	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit template: %w", err)
	}
	return &habit, nil
}

// GetHabitTemplate 根据 ID 获取习惯模板
func (s *CatalogService) GetHabitTemplate(id uint) (*db.HabitTemplate, error) {
	var habit db.HabitTemplate
	if err := s.db.First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitTemplateNotFound
		}
		return nil, fmt.Errorf("get habit template: %w", err)
	}
	return &habit, nil
}

// ListHabitTemplates 返回习惯模板集合
func (s *CatalogService) ListHabitTemplates() ([]db.HabitTemplate, error) {
	var habits []db.HabitTemplate
	if err := s.db.Order("created_at DESC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habit templates: %w", err)
	}
	return habits, nil
}

// CreateLessonTemplate 新建课程模板
func (s *CatalogService) CreateLessonTemplate(input LessonTemplateInput) (*db.LessonTemplate, error) {
	slug := strings.TrimSpace(strings.ToLower(input.Slug))
	title := strings.TrimSpace(input.Title)
	if slug == "" || title == "" {
		return nil, fmt.Errorf("lesson slug and title are required")
	}

	lesson := db.LessonTemplate{
		Slug:    slug,
		Title:   title,
		Summary: input.Summary,
		Status:  "active",
	}
	if err := s.db.Create(&lesson).Error; err != nil {
		return nil, fmt.Errorf("create lesson template: %w", err)
	}
	return &lesson, nil
}

// GetLessonBySlug 根据 slug 获取课程模板
func (s *CatalogService) GetLessonBySlug(slug string) (*db.LessonTemplate, error) {
	var lesson db.LessonTemplate
	if err := s.db.Where("slug = ?", strings.TrimSpace(strings.ToLower(slug))).First(&lesson).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLessonTemplateNotFound
		}
		return nil, fmt.Errorf("get lesson template: %w", err)
	}
	return &lesson, nil
}

// CreateProgramTemplate 新建计划模板并附带步骤，创建后立即发布。
func (s *CatalogService) CreateProgramTemplate(input ProgramTemplateInput) (*db.ProgramTemplate, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("program template name is required")
	}
	if len(input.Steps) == 0 {
		return nil, fmt.Errorf("%w: at least one step is required", ErrInvalidStepSequence)
	}

	seen := make(map[int]struct{}, len(input.Steps))
	for _, step := range input.Steps {
		if _, dup := seen[step.SequenceOrder]; dup {
			return nil, fmt.Errorf("%w: duplicate sequence order %d", ErrInvalidStepSequence, step.SequenceOrder)
		}
		seen[step.SequenceOrder] = struct{}{}
		if step.IntervalDaysAfter < 0 {
			return nil, fmt.Errorf("%w: negative interval on order %d", ErrInvalidStepSequence, step.SequenceOrder)
		}
	}

	program := db.ProgramTemplate{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Status:      db.ProgramStatusPublished,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, step := range input.Steps {
			var habit db.HabitTemplate
			if err := tx.First(&habit, step.HabitTemplateID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: id %d", ErrHabitTemplateNotFound, step.HabitTemplateID)
				}
				return fmt.Errorf("check habit template: %w", err)
			}
		}

		if err := tx.Create(&program).Error; err != nil {
			return fmt.Errorf("create program template: %w", err)
		}

		for _, step := range input.Steps {
			duration := step.DurationDays
			if duration <= 0 {
				duration = 1
			}
			record := db.ProgramStep{
				ProgramTemplateID: program.ID,
				SequenceOrder:     step.SequenceOrder,
				IntervalDaysAfter: step.IntervalDaysAfter,
				HabitTemplateID:   step.HabitTemplateID,
				DurationDays:      duration,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("create program step: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetProgram(program.ID)
}

// GetProgram 获取计划模板及其按顺序排列的步骤
func (s *CatalogService) GetProgram(id uint) (*db.ProgramTemplate, error) {
	var program db.ProgramTemplate
	if err := s.db.Preload("Steps", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence_order ASC")
	}).First(&program, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("get program template: %w", err)
	}
	return &program, nil
}

// ListPrograms 返回已发布的计划模板
func (s *CatalogService) ListPrograms() ([]db.ProgramTemplate, error) {
	var programs []db.ProgramTemplate
	if err := s.db.Where("status = ?", db.ProgramStatusPublished).
		Order("created_at DESC").
		Find(&programs).Error; err != nil {
		return nil, fmt.Errorf("list program templates: %w", err)
	}
	return programs, nil
}

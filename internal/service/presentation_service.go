package service

import (
	"fmt"
	"time"

	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskKind 标记任务联合体的具体变体。
type TaskKind string

const (
	// TaskKindHabit 表示习惯练习任务
	TaskKindHabit TaskKind = "habit"
	// TaskKindLesson 表示课程任务
	TaskKindLesson TaskKind = "lesson"
	// TaskKindJournal 表示每日日志任务
	TaskKindJournal TaskKind = "journal"
)

const (
	// TaskStatusPending 表示尚无响应事件
	TaskStatusPending = "pending"
	// TaskStatusCompleted 表示最新响应算作完成
	TaskStatusCompleted = "completed"
	// TaskStatusResponded 表示有响应但不算完成
	TaskStatusResponded = "responded"
)

// HabitTask 携带习惯任务专属字段。
type HabitTask struct {
	HabitTemplateID uint
	Title           string
	Description     string
	Status          string
}

// LessonTask 携带课程任务专属字段，Summary 为消毒后的 HTML。
type LessonTask struct {
	LessonTemplateID uint
	Slug             string
	Title            string
	Summary          string
	Status           string
}

// JournalTask 携带每日日志占位任务字段。
type JournalTask struct {
	Title       string
	Description string
	Status      string
}

// Task 是任务流的封闭联合体：按 Kind 分发，恰好一个变体非空。
type Task struct {
	TaskID  string
	Kind    TaskKind
	Habit   *HabitTask
	Lesson  *LessonTask
	Journal *JournalTask
}

// PresentationService 计算某 (用户, 日期) 的任务流并落呈现记录。
// 对同一天重复调用返回相同集合且不会产生重复呈现记录。
type PresentationService struct {
	db        *gorm.DB
	responses *ResponseService
	settings  *EngineSettingService
	log       *logger.Logger
}

// NewPresentationService 构造 PresentationService
func NewPresentationService(gdb *gorm.DB, responses *ResponseService, settings *EngineSettingService, log *logger.Logger) *PresentationService {
	return &PresentationService{db: gdb, responses: responses, settings: settings, log: log}
}

// instanceRow 是练习实例与其模板信息的联查结果
type instanceRow struct {
	InstanceID      uint
	EnrollmentID    uint
	HabitTemplateID uint
	HabitName       string
	HabitDesc       string
	Status          string
}

// PresentTasksFor 返回某用户某日应呈现的任务集合。
// 合并当日到期的练习实例（按习惯模板去重）、已解析未完成的课程挂载、
// 以及固定存在的每日日志占位任务；每个候选写一条 set-once 呈现记录。
func (s *PresentationService) PresentTasksFor(userID uint, date time.Time) ([]Task, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user id is required")
	}
	day := calendar.Normalize(date)
	dayKey := day.Format(calendar.DateFormat)

	tasks := make([]Task, 0, 4)

	habitTasks, err := s.habitTasksFor(userID, day, dayKey)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, habitTasks...)

	lessonTasks, err := s.lessonTasksFor(userID, day, dayKey)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, lessonTasks...)

	journalTask, err := s.journalTaskFor(userID, day, dayKey)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, journalTask)

	return tasks, nil
}

func (s *PresentationService) habitTasksFor(userID uint, day time.Time, dayKey string) ([]Task, error) {
	var rows []instanceRow
	if err := s.db.Model(&db.PracticeInstance{}).
		Select(`practice_instances.id AS instance_id,
			practice_instances.enrollment_id AS enrollment_id,
			program_steps.habit_template_id AS habit_template_id,
			habit_templates.name AS habit_name,
			habit_templates.description AS habit_desc,
			practice_instances.status AS status`).
		Joins("JOIN enrollments ON enrollments.id = practice_instances.enrollment_id").
		Joins("JOIN program_steps ON program_steps.id = practice_instances.program_step_id").
		Joins("JOIN habit_templates ON habit_templates.id = program_steps.habit_template_id").
		Where("enrollments.user_id = ? AND enrollments.status = ?", userID, db.EnrollmentStatusActive).
		Where("practice_instances.scheduled_date = ?", day).
		Where("practice_instances.status IN ?", []string{
			db.InstanceStatusScheduled, db.InstanceStatusPresented, db.InstanceStatusCompleted,
		}).
		Order("practice_instances.id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list due practice instances: %w", err)
	}

	// 单次延期允许排期日期碰撞，这里按习惯模板去重
	seen := make(map[uint]struct{}, len(rows))
	tasks := make([]Task, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.HabitTemplateID]; dup {
			continue
		}
		seen[row.HabitTemplateID] = struct{}{}

		if err := s.markPresented(userID, day, db.TaskTypeHabit, row.HabitTemplateID); err != nil {
			return nil, err
		}
		if row.Status == db.InstanceStatusScheduled {
			if err := s.db.Model(&db.PracticeInstance{}).
				Where("id = ? AND status = ?", row.InstanceID, db.InstanceStatusScheduled).
				Update("status", db.InstanceStatusPresented).Error; err != nil {
				return nil, fmt.Errorf("mark instance presented: %w", err)
			}
		}

		status, err := s.taskStatus(userID, db.TaskTypeHabit, row.HabitTemplateID, day)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, Task{
			TaskID: fmt.Sprintf("habit-%d-%s", row.HabitTemplateID, dayKey),
			Kind:   TaskKindHabit,
			Habit: &HabitTask{
				HabitTemplateID: row.HabitTemplateID,
				Title:           row.HabitName,
				Description:     row.HabitDesc,
				Status:          status,
			},
		})
	}
	return tasks, nil
}

func (s *PresentationService) lessonTasksFor(userID uint, day time.Time, dayKey string) ([]Task, error) {
	var attachments []db.LessonAttachment
	if err := s.db.
		Select("lesson_attachments.*").
		Joins("JOIN enrollments ON enrollments.id = lesson_attachments.enrollment_id").
		Where("enrollments.user_id = ? AND enrollments.status = ?", userID, db.EnrollmentStatusActive).
		Where("lesson_attachments.resolved = ? AND lesson_attachments.completed = ?", true, false).
		Where("lesson_attachments.effective_date = ?", day).
		Order("lesson_attachments.id ASC").
		Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("list due lesson attachments: %w", err)
	}

	seen := make(map[string]struct{}, len(attachments))
	tasks := make([]Task, 0, len(attachments))
	for _, attachment := range attachments {
		if _, dup := seen[attachment.LessonTemplateSlug]; dup {
			continue
		}
		seen[attachment.LessonTemplateSlug] = struct{}{}

		var lesson db.LessonTemplate
		if err := s.db.Where("slug = ?", attachment.LessonTemplateSlug).First(&lesson).Error; err != nil {
			// 模板缺失的条目省略，不让整个任务流失败
			s.log.Warn("lesson template missing for attachment",
				"attachment_id", attachment.ID,
				"lesson_slug", attachment.LessonTemplateSlug,
			)
			continue
		}

		if err := s.markPresented(userID, day, db.TaskTypeLesson, lesson.ID); err != nil {
			return nil, err
		}

		status, err := s.taskStatus(userID, db.TaskTypeLesson, lesson.ID, day)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, Task{
			TaskID: fmt.Sprintf("lesson-%d-%s", lesson.ID, dayKey),
			Kind:   TaskKindLesson,
			Lesson: &LessonTask{
				LessonTemplateID: lesson.ID,
				Slug:             lesson.Slug,
				Title:            lesson.Title,
				Summary:          RenderLessonSummary(lesson.Summary),
				Status:           status,
			},
		})
	}
	return tasks, nil
}

func (s *PresentationService) journalTaskFor(userID uint, day time.Time, dayKey string) (Task, error) {
	settings, err := s.settings.GetSettings()
	if err != nil {
		return Task{}, err
	}

	if err := s.markPresented(userID, day, db.TaskTypeJournal, 0); err != nil {
		return Task{}, err
	}

	status, err := s.taskStatus(userID, db.TaskTypeJournal, 0, day)
	if err != nil {
		return Task{}, err
	}

	return Task{
		TaskID: fmt.Sprintf("journal-%s", dayKey),
		Kind:   TaskKindJournal,
		Journal: &JournalTask{
			Title:       settings.JournalTitle,
			Description: settings.JournalDescription,
			Status:      status,
		},
	}, nil
}

// markPresented 写 set-once 呈现记录，自然键冲突时为 no-op。
func (s *PresentationService) markPresented(userID uint, day time.Time, taskType string, taskRefID uint) error {
	record := db.PresentedTaskRecord{
		UserID:    userID,
		Date:      day,
		TaskType:  taskType,
		TaskRefID: taskRefID,
		Presented: true,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "date"}, {Name: "task_type"}, {Name: "task_ref_id"},
		},
		DoNothing: true,
	}).Create(&record).Error; err != nil {
		return fmt.Errorf("record presentation: %w", err)
	}
	return nil
}

func (s *PresentationService) taskStatus(userID uint, taskType string, taskRefID uint, day time.Time) (string, error) {
	event, err := s.responses.LatestFor(userID, taskType, taskRefID, day)
	if err != nil {
		return "", err
	}
	if event == nil {
		return TaskStatusPending, nil
	}
	if IsCompletingResponse(event.ResponseValue) {
		return TaskStatusCompleted, nil
	}
	return TaskStatusResponded, nil
}

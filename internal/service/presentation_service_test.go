package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupPresentationTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func newPresentationService() *PresentationService {
	log := logger.NewNop()
	responses := NewResponseService(db.DB, log)
	settings := NewEngineSettingService(db.DB)
	return NewPresentationService(db.DB, responses, settings, log)
}

// buildPresentationFixture 创建一个当日到期的练习实例
func buildPresentationFixture(t *testing.T, userID uint, day time.Time) (*db.Enrollment, *db.HabitTemplate) {
	t.Helper()

	catalog := NewCatalogService(db.DB)
	habit, err := catalog.CreateHabitTemplate(HabitTemplateInput{Name: "写日记", TypeTag: "记录"})
	if err != nil {
		t.Fatalf("failed to create habit template: %v", err)
	}
	program, err := catalog.CreateProgramTemplate(ProgramTemplateInput{
		Name: "单步计划",
		Steps: []ProgramStepInput{
			{SequenceOrder: 1, IntervalDaysAfter: 0, HabitTemplateID: habit.ID},
		},
	})
	if err != nil {
		t.Fatalf("failed to create program template: %v", err)
	}

	enrollment := db.Enrollment{
		PublicID:          uuid.New().String(),
		ProgramTemplateID: program.ID,
		UserID:            userID,
		StartDate:         calendar.Normalize(day),
		RepeatCount:       1,
		Status:            db.EnrollmentStatusActive,
	}
	if err := db.DB.Create(&enrollment).Error; err != nil {
		t.Fatalf("failed to create enrollment: %v", err)
	}

	expander := NewExpansionService(db.DB, logger.NewNop())
	if err := expander.ExpandEnrollment(&enrollment); err != nil {
		t.Fatalf("failed to expand enrollment: %v", err)
	}
	return &enrollment, habit
}

func TestPresentTasksForIdempotent(t *testing.T) {
	cleanup := setupPresentationTestDB(t)
	defer cleanup()

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, habit := buildPresentationFixture(t, 1, day)

	svc := newPresentationService()

	first, err := svc.PresentTasksFor(1, day)
	if err != nil {
		t.Fatalf("first PresentTasksFor returned error: %v", err)
	}
	second, err := svc.PresentTasksFor(1, day)
	if err != nil {
		t.Fatalf("second PresentTasksFor returned error: %v", err)
	}

	// 习惯 + 日志占位，两次结果一致
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 tasks both calls, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TaskID != second[i].TaskID {
			t.Fatalf("task %d differs between calls: %s vs %s", i, first[i].TaskID, second[i].TaskID)
		}
	}

	// 重复调用不产生重复呈现记录
	var presentedCount int64
	db.DB.Model(&db.PresentedTaskRecord{}).Where("user_id = ?", 1).Count(&presentedCount)
	if presentedCount != 2 {
		t.Fatalf("expected 2 presented records, got %d", presentedCount)
	}

	if first[0].Kind != TaskKindHabit || first[0].Habit == nil {
		t.Fatalf("expected first task to be habit variant, got %+v", first[0])
	}
	if first[0].Habit.HabitTemplateID != habit.ID {
		t.Fatalf("expected habit template %d, got %d", habit.ID, first[0].Habit.HabitTemplateID)
	}
}

func TestPresentTasksJournalAlwaysPresent(t *testing.T) {
	cleanup := setupPresentationTestDB(t)
	defer cleanup()

	svc := newPresentationService()

	// 没有任何报名的用户也有日志占位任务
	tasks, err := svc.PresentTasksFor(9, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PresentTasksFor returned error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected exactly the journal task, got %d tasks", len(tasks))
	}
	task := tasks[0]
	if task.Kind != TaskKindJournal || task.Journal == nil {
		t.Fatalf("expected journal variant, got %+v", task)
	}
	if task.Journal.Status != TaskStatusPending {
		t.Fatalf("expected pending journal, got %s", task.Journal.Status)
	}
}

func TestPresentTasksStatusReflectsLatestResponse(t *testing.T) {
	cleanup := setupPresentationTestDB(t)
	defer cleanup()

	day := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	_, habit := buildPresentationFixture(t, 2, day)

	svc := newPresentationService()
	if _, err := svc.PresentTasksFor(2, day); err != nil {
		t.Fatalf("PresentTasksFor returned error: %v", err)
	}

	responses := NewResponseService(db.DB, logger.NewNop())
	if _, _, err := responses.Record(ResponseInput{
		UserID: 2, TaskType: db.TaskTypeHabit, TaskRefID: habit.ID,
		EffectiveDate: day, ResponseValue: "yes",
	}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	tasks, err := svc.PresentTasksFor(2, day)
	if err != nil {
		t.Fatalf("PresentTasksFor returned error: %v", err)
	}
	for _, task := range tasks {
		if task.Kind == TaskKindHabit && task.Habit.Status != TaskStatusCompleted {
			t.Fatalf("expected completed habit status, got %s", task.Habit.Status)
		}
	}
}

func TestPresentTasksDedupsCollidingInstances(t *testing.T) {
	cleanup := setupPresentationTestDB(t)
	defer cleanup()

	day := time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC)
	enrollment, habit := buildPresentationFixture(t, 3, day)

	// 模拟 single 延期造成的同日碰撞：同一习惯的另一个实例落在同一天
	var step db.ProgramStep
	if err := db.DB.Where("habit_template_id = ?", habit.ID).First(&step).Error; err != nil {
		t.Fatalf("failed to load step: %v", err)
	}
	collision := db.PracticeInstance{
		EnrollmentID:  enrollment.ID,
		ProgramStepID: step.ID,
		CycleIndex:    1,
		ScheduledDate: calendar.Normalize(day),
		Status:        db.InstanceStatusScheduled,
	}
	if err := db.DB.Create(&collision).Error; err != nil {
		t.Fatalf("failed to create colliding instance: %v", err)
	}

	svc := newPresentationService()
	tasks, err := svc.PresentTasksFor(3, day)
	if err != nil {
		t.Fatalf("PresentTasksFor returned error: %v", err)
	}

	habitCount := 0
	for _, task := range tasks {
		if task.Kind == TaskKindHabit {
			habitCount++
		}
	}
	if habitCount != 1 {
		t.Fatalf("expected colliding instances deduped to 1 habit task, got %d", habitCount)
	}
}

func TestPresentTasksIncludesDueLesson(t *testing.T) {
	cleanup := setupPresentationTestDB(t)
	defer cleanup()

	day := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	enrollment, _ := buildPresentationFixture(t, 4, day)

	catalog := NewCatalogService(db.DB)
	if _, err := catalog.CreateLessonTemplate(LessonTemplateInput{
		Slug:    "breathing-101",
		Title:   "呼吸入门",
		Summary: "**腹式呼吸** 三步法",
	}); err != nil {
		t.Fatalf("failed to create lesson template: %v", err)
	}

	lessons := NewLessonService(db.DB, logger.NewNop())
	if _, err := lessons.Attach(LessonAttachmentInput{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: "breathing-101",
		DayOffset:          0,
	}); err != nil {
		t.Fatalf("failed to attach lesson: %v", err)
	}

	svc := newPresentationService()
	tasks, err := svc.PresentTasksFor(4, day)
	if err != nil {
		t.Fatalf("PresentTasksFor returned error: %v", err)
	}

	var lessonTask *LessonTask
	for _, task := range tasks {
		if task.Kind == TaskKindLesson {
			lessonTask = task.Lesson
		}
	}
	if lessonTask == nil {
		t.Fatal("expected a lesson task in the feed")
	}
	if !strings.Contains(lessonTask.Summary, "<strong>") {
		t.Fatalf("expected rendered markdown summary, got %q", lessonTask.Summary)
	}

	// 完成后的课程不再进入任务流
	if _, err := lessons.MarkCompleted(4, "breathing-101"); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}
	tasks, err = svc.PresentTasksFor(4, day)
	if err != nil {
		t.Fatalf("PresentTasksFor returned error: %v", err)
	}
	for _, task := range tasks {
		if task.Kind == TaskKindLesson {
			t.Fatal("expected completed lesson excluded from feed")
		}
	}
}

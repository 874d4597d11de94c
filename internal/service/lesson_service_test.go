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

func setupLessonTestDB(t *testing.T) func() {
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

// buildLessonFixture 创建带 [0,7] 两步排期的报名和一节课程模板
func buildLessonFixture(t *testing.T, start time.Time) (*db.Enrollment, *db.HabitTemplate) {
	t.Helper()

	catalog := NewCatalogService(db.DB)
	habit, err := catalog.CreateHabitTemplate(HabitTemplateInput{Name: "拉伸", TypeTag: "健康"})
	if err != nil {
		t.Fatalf("failed to create habit template: %v", err)
	}
	program, err := catalog.CreateProgramTemplate(ProgramTemplateInput{
		Name: "拉伸计划",
		Steps: []ProgramStepInput{
			{SequenceOrder: 1, IntervalDaysAfter: 0, HabitTemplateID: habit.ID},
			{SequenceOrder: 2, IntervalDaysAfter: 7, HabitTemplateID: habit.ID},
		},
	})
	if err != nil {
		t.Fatalf("failed to create program template: %v", err)
	}

	enrollment := db.Enrollment{
		PublicID:          uuid.New().String(),
		ProgramTemplateID: program.ID,
		UserID:            1,
		StartDate:         calendar.Normalize(start),
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

	if _, err := catalog.CreateLessonTemplate(LessonTemplateInput{
		Slug:    "posture-primer",
		Title:   "体态入门",
		Summary: "保持 **中立位**，避免塌腰。",
	}); err != nil {
		t.Fatalf("failed to create lesson template: %v", err)
	}
	return &enrollment, habit
}

func TestAttachFixedOffset(t *testing.T) {
	cleanup := setupLessonTestDB(t)
	defer cleanup()

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	enrollment, _ := buildLessonFixture(t, start)

	svc := NewLessonService(db.DB, logger.NewNop())

	// 负偏移：开始前一天的导学课
	attachment, err := svc.Attach(LessonAttachmentInput{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: "posture-primer",
		DayOffset:          -1,
	})
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}

	if !attachment.Resolved || attachment.EffectiveDate == nil {
		t.Fatalf("expected resolved attachment, got %+v", attachment)
	}
	if got := attachment.EffectiveDate.Format(calendar.DateFormat); got != "2024-03-09" {
		t.Fatalf("expected effective date 2024-03-09, got %s", got)
	}
}

func TestAttachOnWorkoutDaySnapsForward(t *testing.T) {
	cleanup := setupLessonTestDB(t)
	defer cleanup()

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	enrollment, _ := buildLessonFixture(t, start)

	svc := NewLessonService(db.DB, logger.NewNop())

	// 偏移 +2 落在 3-12，贴靠到下一个练习日 3-17
	attachment, err := svc.Attach(LessonAttachmentInput{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: "posture-primer",
		DayOffset:          2,
		OnWorkoutDay:       true,
	})
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}

	if !attachment.Resolved || attachment.EffectiveDate == nil {
		t.Fatalf("expected resolved attachment, got %+v", attachment)
	}
	if got := attachment.EffectiveDate.Format(calendar.DateFormat); got != "2024-03-17" {
		t.Fatalf("expected snap to 2024-03-17, got %s", got)
	}
}

func TestAttachOnWorkoutDayUnresolved(t *testing.T) {
	cleanup := setupLessonTestDB(t)
	defer cleanup()

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	enrollment, habit := buildLessonFixture(t, start)

	svc := NewLessonService(db.DB, logger.NewNop())

	// 偏移超出所有练习日：静默标记未解析而不是报错
	attachment, err := svc.Attach(LessonAttachmentInput{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: "posture-primer",
		DayOffset:          30,
		OnWorkoutDay:       true,
	})
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	if attachment.Resolved || attachment.EffectiveDate != nil {
		t.Fatalf("expected unresolved attachment, got %+v", attachment)
	}

	// 未解析的挂载不出现在课程查询里
	items, err := svc.LessonsForHabit(1, habit.ID, calendar.AddDays(start, 60))
	if err != nil {
		t.Fatalf("LessonsForHabit returned error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected unresolved attachment omitted, got %d items", len(items))
	}
}

func TestLessonsForHabitRendersSummary(t *testing.T) {
	cleanup := setupLessonTestDB(t)
	defer cleanup()

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	enrollment, habit := buildLessonFixture(t, start)

	svc := NewLessonService(db.DB, logger.NewNop())
	if _, err := svc.Attach(LessonAttachmentInput{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: "posture-primer",
		DayOffset:          0,
		SegmentIDs:         []uint{3, 5},
	}); err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}

	items, err := svc.LessonsForHabit(1, habit.ID, start)
	if err != nil {
		t.Fatalf("LessonsForHabit returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 lesson, got %d", len(items))
	}
	if !strings.Contains(items[0].Summary, "<strong>") {
		t.Fatalf("expected markdown rendered to HTML, got %q", items[0].Summary)
	}
	if items[0].Completed {
		t.Fatal("expected lesson not completed yet")
	}

	if _, err := svc.MarkCompleted(1, "posture-primer"); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}
	items, err = svc.LessonsForHabit(1, habit.ID, start)
	if err != nil {
		t.Fatalf("LessonsForHabit returned error: %v", err)
	}
	if len(items) != 1 || !items[0].Completed {
		t.Fatalf("expected completed lesson in feed, got %+v", items)
	}
}

func TestLessonsForHabitScopedToDate(t *testing.T) {
	cleanup := setupLessonTestDB(t)
	defer cleanup()

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	enrollment, habit := buildLessonFixture(t, start)

	svc := NewLessonService(db.DB, logger.NewNop())
	if _, err := svc.Attach(LessonAttachmentInput{
		EnrollmentID:       enrollment.ID,
		LessonTemplateSlug: "posture-primer",
		DayOffset:          7,
	}); err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}

	// 生效日在查询日之后的课程不出现
	items, err := svc.LessonsForHabit(1, habit.ID, start)
	if err != nil {
		t.Fatalf("LessonsForHabit returned error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected future lesson excluded, got %d items", len(items))
	}

	items, err = svc.LessonsForHabit(1, habit.ID, calendar.AddDays(start, 7))
	if err != nil {
		t.Fatalf("LessonsForHabit returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected lesson visible on its effective date, got %d items", len(items))
	}
}

func TestRenderLessonSummarySanitizes(t *testing.T) {
	rendered := RenderLessonSummary("点击 <script>alert('x')</script> **这里**")
	if strings.Contains(rendered, "<script>") {
		t.Fatalf("expected script stripped, got %q", rendered)
	}
	if !strings.Contains(rendered, "<strong>") {
		t.Fatalf("expected markdown emphasis kept, got %q", rendered)
	}
}

func TestSplitSegmentIDs(t *testing.T) {
	ids := SplitSegmentIDs("3,5, 8,,x")
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 5 || ids[2] != 8 {
		t.Fatalf("unexpected segment ids: %v", ids)
	}
}

package service

import (
	"testing"
	"time"

	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupAdherenceTestDB(t *testing.T) func() {
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

func presentHabitOn(t *testing.T, userID, habitID uint, date time.Time) {
	t.Helper()
	record := db.PresentedTaskRecord{
		UserID:    userID,
		Date:      calendar.Normalize(date),
		TaskType:  db.TaskTypeHabit,
		TaskRefID: habitID,
		Presented: true,
	}
	if err := db.DB.Create(&record).Error; err != nil {
		t.Fatalf("failed to create presented record: %v", err)
	}
}

func respondHabitOn(t *testing.T, svc *ResponseService, userID, habitID uint, date time.Time, value string) {
	t.Helper()
	if _, _, err := svc.Record(ResponseInput{
		UserID:        userID,
		TaskType:      db.TaskTypeHabit,
		TaskRefID:     habitID,
		EffectiveDate: date,
		ResponseValue: value,
	}); err != nil {
		t.Fatalf("failed to record response: %v", err)
	}
}

func TestAdherenceFiveDayWindow(t *testing.T) {
	cleanup := setupAdherenceTestDB(t)
	defer cleanup()

	responses := NewResponseService(db.DB, logger.NewNop())
	svc := NewAdherenceService(db.DB, responses)

	const userID, habitID = 1, 10
	today := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)
	day1 := calendar.AddDays(today, -4)

	// 第 1、2、4、5 天呈现；第 3 天未呈现（对连胜透明）
	// 响应依次 yes/yes/-/no/yes
	presentHabitOn(t, userID, habitID, day1)
	respondHabitOn(t, responses, userID, habitID, day1, "yes")

	presentHabitOn(t, userID, habitID, calendar.AddDays(day1, 1))
	respondHabitOn(t, responses, userID, habitID, calendar.AddDays(day1, 1), "yes")

	presentHabitOn(t, userID, habitID, calendar.AddDays(day1, 3))
	respondHabitOn(t, responses, userID, habitID, calendar.AddDays(day1, 3), "no")

	presentHabitOn(t, userID, habitID, calendar.AddDays(day1, 4))
	respondHabitOn(t, responses, userID, habitID, calendar.AddDays(day1, 4), "yes")

	snapshot, err := svc.Stats(userID, habitID, 5, today)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}

	if snapshot.PresentedCount != 4 {
		t.Fatalf("expected presented count 4, got %d", snapshot.PresentedCount)
	}
	if snapshot.CompletedCount != 3 {
		t.Fatalf("expected completed count 3, got %d", snapshot.CompletedCount)
	}
	if snapshot.AdherenceRate != 0.75 {
		t.Fatalf("expected adherence rate 0.75, got %f", snapshot.AdherenceRate)
	}
	// 最近一天 yes 得 1，前一天 no 打断
	if snapshot.CurrentStreak != 1 {
		t.Fatalf("expected current streak 1, got %d", snapshot.CurrentStreak)
	}
}

func TestAdherenceGapDaysTransparent(t *testing.T) {
	cleanup := setupAdherenceTestDB(t)
	defer cleanup()

	responses := NewResponseService(db.DB, logger.NewNop())
	svc := NewAdherenceService(db.DB, responses)

	const userID, habitID = 2, 20
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	// 每隔一天呈现并完成：未呈现的日子不打断连胜
	for offset := 0; offset <= 6; offset += 2 {
		date := calendar.AddDays(today, -offset)
		presentHabitOn(t, userID, habitID, date)
		respondHabitOn(t, responses, userID, habitID, date, "done")
	}

	snapshot, err := svc.Stats(userID, habitID, 7, today)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if snapshot.CurrentStreak != 4 {
		t.Fatalf("expected streak 4 across gaps, got %d", snapshot.CurrentStreak)
	}
	if snapshot.AdherenceRate != 1.0 {
		t.Fatalf("expected adherence rate 1.0, got %f", snapshot.AdherenceRate)
	}
}

func TestAdherenceEmptyWindow(t *testing.T) {
	cleanup := setupAdherenceTestDB(t)
	defer cleanup()

	responses := NewResponseService(db.DB, logger.NewNop())
	svc := NewAdherenceService(db.DB, responses)

	snapshot, err := svc.Stats(3, 30, 14, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}

	// 分母为 0 时完成率定义为 0
	if snapshot.PresentedCount != 0 || snapshot.CompletedCount != 0 {
		t.Fatalf("expected empty counts, got presented=%d completed=%d", snapshot.PresentedCount, snapshot.CompletedCount)
	}
	if snapshot.AdherenceRate != 0 {
		t.Fatalf("expected adherence rate 0, got %f", snapshot.AdherenceRate)
	}
	if snapshot.CurrentStreak != 0 {
		t.Fatalf("expected streak 0, got %d", snapshot.CurrentStreak)
	}
}

func TestAdherenceDebugTrace(t *testing.T) {
	cleanup := setupAdherenceTestDB(t)
	defer cleanup()

	responses := NewResponseService(db.DB, logger.NewNop())
	svc := NewAdherenceService(db.DB, responses)

	const userID, habitID = 4, 40
	today := time.Date(2024, 8, 3, 0, 0, 0, 0, time.UTC)
	yesterday := calendar.AddDays(today, -1)

	presentHabitOn(t, userID, habitID, yesterday)
	respondHabitOn(t, responses, userID, habitID, yesterday, "skip")
	presentHabitOn(t, userID, habitID, today)
	respondHabitOn(t, responses, userID, habitID, today, "yes")

	trace, err := svc.DebugTrace(userID, habitID, 3, today)
	if err != nil {
		t.Fatalf("DebugTrace returned error: %v", err)
	}
	if len(trace) != 3 {
		t.Fatalf("expected 3 trace entries, got %d", len(trace))
	}

	if trace[0].Presented || trace[0].Completed || trace[0].EventResponse != "" {
		t.Fatalf("expected first day untouched, got %+v", trace[0])
	}
	if !trace[1].Presented || trace[1].Completed || trace[1].EventResponse != "skip" {
		t.Fatalf("expected second day presented-not-completed, got %+v", trace[1])
	}
	if !trace[2].Presented || !trace[2].Completed || trace[2].EventResponse != "yes" {
		t.Fatalf("expected third day completed, got %+v", trace[2])
	}
}

func TestAdherenceLastWriteWinsPerDay(t *testing.T) {
	cleanup := setupAdherenceTestDB(t)
	defer cleanup()

	responses := NewResponseService(db.DB, logger.NewNop())
	svc := NewAdherenceService(db.DB, responses)

	const userID, habitID = 5, 50
	today := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	presentHabitOn(t, userID, habitID, today)

	// 先记 no，再订正为 yes：最新事件生效
	base := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	if _, _, err := responses.Record(ResponseInput{
		UserID: userID, TaskType: db.TaskTypeHabit, TaskRefID: habitID,
		EffectiveDate: today, ResponseValue: "no", RecordedAt: base,
	}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if _, _, err := responses.Record(ResponseInput{
		UserID: userID, TaskType: db.TaskTypeHabit, TaskRefID: habitID,
		EffectiveDate: today, ResponseValue: "yes", RecordedAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	snapshot, err := svc.Stats(userID, habitID, 1, today)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if snapshot.CompletedCount != 1 || snapshot.CurrentStreak != 1 {
		t.Fatalf("expected corrected day to count as completed, got %+v", snapshot)
	}
}

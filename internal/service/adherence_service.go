package service

import (
	"fmt"
	"time"

	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/db"
	"gorm.io/gorm"
)

// StreakSnapshot 是从呈现/响应账本推导出的统计结果，永不落库。
type StreakSnapshot struct {
	CurrentStreak  int
	PresentedCount int
	CompletedCount int
	AdherenceRate  float64
}

// StreakTraceEntry 是逐日调试轨迹中的单条记录。
type StreakTraceEntry struct {
	Date          time.Time
	Presented     bool
	Completed     bool
	EventResponse string
}

// AdherenceService 对某习惯在回看窗口内的账本做只读折叠。
// 未呈现的日期对连胜透明；呈现未完成的日期打断连胜。
type AdherenceService struct {
	db        *gorm.DB
	responses *ResponseService
}

// NewAdherenceService 构造 AdherenceService
func NewAdherenceService(gdb *gorm.DB, responses *ResponseService) *AdherenceService {
	return &AdherenceService{db: gdb, responses: responses}
}

// Stats 计算窗口统计：连胜、呈现数、完成数与完成率。
func (s *AdherenceService) Stats(userID, habitTemplateID uint, lookbackDays int, today time.Time) (*StreakSnapshot, error) {
	trace, err := s.DebugTrace(userID, habitTemplateID, lookbackDays, today)
	if err != nil {
		return nil, err
	}

	snapshot := &StreakSnapshot{}
	for _, entry := range trace {
		if !entry.Presented {
			continue
		}
		snapshot.PresentedCount++
		if entry.Completed {
			snapshot.CompletedCount++
		}
	}

	if snapshot.PresentedCount > 0 {
		snapshot.AdherenceRate = float64(snapshot.CompletedCount) / float64(snapshot.PresentedCount)
	}

	// 从最近一天向前走：未呈现跳过，呈现未完成处停下
	for i := len(trace) - 1; i >= 0; i-- {
		entry := trace[i]
		if !entry.Presented {
			continue
		}
		if !entry.Completed {
			break
		}
		snapshot.CurrentStreak++
	}

	return snapshot, nil
}

// DebugTrace 返回窗口内逐日的呈现/完成标记与原始响应值，按日期升序。
// 该轨迹让连胜规则可审计、可测试。
func (s *AdherenceService) DebugTrace(userID, habitTemplateID uint, lookbackDays int, today time.Time) ([]StreakTraceEntry, error) {
	if lookbackDays < 1 {
		return nil, fmt.Errorf("lookback days must be at least 1")
	}

	end := calendar.Normalize(today)
	start := calendar.AddDays(end, -(lookbackDays - 1))

	var presented []db.PresentedTaskRecord
	if err := s.db.
		Where("user_id = ? AND task_type = ? AND task_ref_id = ?", userID, db.TaskTypeHabit, habitTemplateID).
		Where("date BETWEEN ? AND ?", start, end).
		Find(&presented).Error; err != nil {
		return nil, fmt.Errorf("list presented records: %w", err)
	}

	presentedDays := make(map[string]bool, len(presented))
	for _, record := range presented {
		presentedDays[calendar.Normalize(record.Date).Format(calendar.DateFormat)] = record.Presented
	}

	latestEvents, err := s.responses.LatestPerDate(userID, db.TaskTypeHabit, habitTemplateID, start, end)
	if err != nil {
		return nil, err
	}

	trace := make([]StreakTraceEntry, 0, lookbackDays)
	for day := start; !day.After(end); day = calendar.AddDays(day, 1) {
		key := day.Format(calendar.DateFormat)
		entry := StreakTraceEntry{Date: day, Presented: presentedDays[key]}
		if event, ok := latestEvents[key]; ok {
			entry.EventResponse = event.ResponseValue
			entry.Completed = entry.Presented && IsCompletingResponse(event.ResponseValue)
		}
		trace = append(trace, entry)
	}
	return trace, nil
}

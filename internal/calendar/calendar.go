package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat 是引擎内所有日历日期的统一格式。
const DateFormat = "2006-01-02"

// Civil 将任意时刻归一化为该时区下的民用日期，统一存储为 UTC 午夜。
// 所有日期运算都基于这种表示，避免夏令时导致的时长偏移。
func Civil(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize 去掉时间部分，保留原时区下的日期（午夜）。
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays 在民用日期上加减天数，始终用日历单位而非绝对时长。
func AddDays(date time.Time, days int) time.Time {
	return date.AddDate(0, 0, days)
}

// DaysBetween 返回 from 到 to 的日历天数差（to 在 from 之后为正）。
func DaysBetween(from, to time.Time) int {
	f := Normalize(from)
	t := Normalize(to)
	return int(t.Sub(f).Hours() / 24)
}

// Today 返回指定时区的今日民用日期。
func Today(loc *time.Location) time.Time {
	return Civil(time.Now(), loc)
}

// ParseDate 按 YYYY-MM-DD 解析日期并归一化为 UTC 午夜。
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}

	t, err := time.Parse(DateFormat, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", trimmed, err)
	}
	return Normalize(t), nil
}

// ResolveLocation 加载时区名，失败或为空时回退到 fallback。
func ResolveLocation(name, fallback string) *time.Location {
	for _, candidate := range []string{strings.TrimSpace(name), strings.TrimSpace(fallback)} {
		if candidate == "" {
			continue
		}
		if loc, err := time.LoadLocation(candidate); err == nil {
			return loc
		}
	}
	return time.UTC
}

// SameDate 判断两个时间是否落在同一民用日期上。
func SameDate(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scheduler runs the persisted background jobs on interval or
// cron triggers, with an overlap guard and atomic last/next-run
// bookkeeping.
package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
)

// CronExpression is a parsed 6-field cron expression:
// second minute hour day-of-month month day-of-week.
type CronExpression struct {
	Seconds     []int // 0-59
	Minutes     []int // 0-59
	Hours       []int // 0-23
	DaysOfMonth []int // 1-31
	Months      []int // 1-12
	DaysOfWeek  []int // 0-6 (0 = Sunday)
}

// ParseCron parses a 6-field cron expression.
//
// Supported syntax per field:
//   - * (any value)
//   - n (specific value)
//   - n-m (range)
//   - n,m,o (list)
//   - */s and n-m/s (steps)
//
// Examples:
//   - "0 0 9 * * 1" - Mondays at 09:00:00
//   - "*/30 * * * * *" - every 30 seconds
//   - "0 0 0 1 * *" - first day of every month at midnight
func ParseCron(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: expected 6 fields, got %d", errs.ErrInvalidCron, len(fields))
	}

	seconds, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("%w: second field: %v", errs.ErrInvalidCron, err)
	}
	minutes, err := parseField(fields[1], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("%w: minute field: %v", errs.ErrInvalidCron, err)
	}
	hours, err := parseField(fields[2], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("%w: hour field: %v", errs.ErrInvalidCron, err)
	}
	daysOfMonth, err := parseField(fields[3], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-month field: %v", errs.ErrInvalidCron, err)
	}
	months, err := parseField(fields[4], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("%w: month field: %v", errs.ErrInvalidCron, err)
	}
	daysOfWeek, err := parseField(fields[5], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-week field: %v", errs.ErrInvalidCron, err)
	}

	// Day 7 is an alias for Sunday.
	normalized := make([]int, 0, len(daysOfWeek))
	for _, d := range daysOfWeek {
		if d == 7 {
			d = 0
		}
		normalized = append(normalized, d)
	}
	daysOfWeek = uniqueInts(normalized)

	return &CronExpression{
		Seconds:     seconds,
		Minutes:     minutes,
		Hours:       hours,
		DaysOfMonth: daysOfMonth,
		Months:      months,
		DaysOfWeek:  daysOfWeek,
	}, nil
}

// NextRun calculates the first instant strictly after the given time that
// matches the expression. If loc is nil, UTC is used. The search walks
// minutes and picks the first matching second within a matching minute,
// bounded to four years.
func (c *CronExpression) NextRun(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc)
	minute := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)

	maxIterations := 365 * 24 * 60 * 4
	for i := 0; i < maxIterations; i++ {
		if c.minuteMatches(minute) {
			for _, sec := range c.Seconds {
				candidate := minute.Add(time.Duration(sec) * time.Second)
				if candidate.After(t) {
					return candidate
				}
			}
		}
		minute = minute.Add(time.Minute)
	}
	return time.Time{}
}

// minuteMatches checks every field except seconds against the minute
// boundary t.
func (c *CronExpression) minuteMatches(t time.Time) bool {
	if !containsInt(c.Minutes, t.Minute()) {
		return false
	}
	if !containsInt(c.Hours, t.Hour()) {
		return false
	}
	if !containsInt(c.Months, int(t.Month())) {
		return false
	}

	// Day-of-month and day-of-week OR together when both are restricted
	// (standard cron behavior).
	domMatch := containsInt(c.DaysOfMonth, t.Day())
	dowMatch := containsInt(c.DaysOfWeek, int(t.Weekday()))
	domWildcard := len(c.DaysOfMonth) == 31
	dowWildcard := len(c.DaysOfWeek) == 7

	switch {
	case domWildcard && dowWildcard:
		return true
	case domWildcard:
		return dowMatch
	case dowWildcard:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// parseField parses a single cron field into its sorted value set.
func parseField(field string, minVal, maxVal int) ([]int, error) {
	if field == "*" {
		return rangeInts(minVal, maxVal), nil
	}
	if strings.Contains(field, ",") {
		var result []int
		for _, part := range strings.Split(field, ",") {
			values, err := parseFieldPart(part, minVal, maxVal)
			if err != nil {
				return nil, err
			}
			result = append(result, values...)
		}
		return uniqueInts(result), nil
	}
	return parseFieldPart(field, minVal, maxVal)
}

func parseFieldPart(part string, minVal, maxVal int) ([]int, error) {
	if strings.Contains(part, "/") {
		pieces := strings.SplitN(part, "/", 2)
		step, err := strconv.Atoi(pieces[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", pieces[1])
		}

		var rangeStart, rangeEnd int
		switch {
		case pieces[0] == "*":
			rangeStart, rangeEnd = minVal, maxVal
		case strings.Contains(pieces[0], "-"):
			rangeParts := strings.SplitN(pieces[0], "-", 2)
			rangeStart, err = strconv.Atoi(rangeParts[0])
			if err != nil {
				return nil, fmt.Errorf("invalid range start: %s", rangeParts[0])
			}
			rangeEnd, err = strconv.Atoi(rangeParts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid range end: %s", rangeParts[1])
			}
		default:
			rangeStart, err = strconv.Atoi(pieces[0])
			if err != nil {
				return nil, fmt.Errorf("invalid value: %s", pieces[0])
			}
			rangeEnd = maxVal
		}

		var result []int
		for i := rangeStart; i <= rangeEnd; i += step {
			if i >= minVal && i <= maxVal {
				result = append(result, i)
			}
		}
		if len(result) == 0 {
			return nil, fmt.Errorf("step expression matches nothing: %s", part)
		}
		return result, nil
	}

	if strings.Contains(part, "-") {
		rangeParts := strings.SplitN(part, "-", 2)
		start, err := strconv.Atoi(rangeParts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(rangeParts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", rangeParts[1])
		}
		if start > end || start < minVal || end > maxVal {
			return nil, fmt.Errorf("range out of bounds: %s", part)
		}
		return rangeInts(start, end), nil
	}

	v, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %s", part)
	}
	if v < minVal || v > maxVal {
		return nil, fmt.Errorf("value out of bounds: %d", v)
	}
	return []int{v}, nil
}

func rangeInts(start, end int) []int {
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out
}

func containsInt(slice []int, val int) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

func uniqueInts(slice []int) []int {
	seen := make(map[int]struct{}, len(slice))
	out := make([]int, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

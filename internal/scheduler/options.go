package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidOption = errors.New("invalid scheduler option")

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return ClockTime{}, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidOption, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("%w: hour in %q", ErrInvalidOption, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("%w: minute in %q", ErrInvalidOption, s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Next returns the first moment at or after now that reads c on the clock.
func (c ClockTime) Next(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// ParseAccounts accepts "all" (nil result) or a comma separated list of numbers.
func ParseAccounts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: account %q is not a positive number", ErrInvalidOption, part)
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty account list", ErrInvalidOption)
	}
	return out, nil
}

func FormatAccounts(accounts []int) string {
	if len(accounts) == 0 {
		return "all"
	}
	parts := make([]string, len(accounts))
	for i, n := range accounts {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// ParseIntervalHours reads an interval given in hours, fractions allowed.
func ParseIntervalHours(hours float64) (time.Duration, error) {
	if hours <= 0 {
		return 0, fmt.Errorf("%w: interval must be positive", ErrInvalidOption)
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

package jwtx

import (
	"fmt"
	"strconv"
	"time"
)

// ParseExpiry parses "<integer><unit>" where unit is one of s, m, h or d.
// "15m", "1h" and "30d" are valid; "1.5h", "15", "m" and "-1h" are not.
func ParseExpiry(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: %q has no s/m/h/d unit", ErrInvalidExpiry, s)
	}

	digits := s[:len(s)-1]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
	}
	if n > int64(1<<62)/int64(unit) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidExpiry, s)
	}
	return time.Duration(n) * unit, nil
}

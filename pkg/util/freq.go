package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSuffixed parses a number with an optional k, M or G suffix
// (case-insensitive, decimal multipliers), e.g. "2.048M" or "100k".
func ParseSuffixed(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'g', 'G':
		mult = 1e9
	case 'm', 'M':
		mult = 1e6
	case 'k', 'K':
		mult = 1e3
	}
	if mult != 1.0 {
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v * mult, nil
}

func MHzToString(hz int) string {
	return fmt.Sprintf("%0.4f MHz", float64(hz)/1e6)
}

package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	patientCodePrefix = "P"
	FirstPatientCode  = "P001"
)

// ParsePatientCode returns the numeric part of a code such as "P042".
func ParsePatientCode(code string) (int, error) {
	if !strings.HasPrefix(code, patientCodePrefix) || len(code) == len(patientCodePrefix) {
		return 0, fmt.Errorf("malformed patient code %q", code)
	}
	digits := code[len(patientCodePrefix):]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed patient code %q", code)
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("malformed patient code %q: %w", code, err)
	}
	return n, nil
}

// FormatPatientCode renders n as P followed by at least three digits.
func FormatPatientCode(n int) string {
	return fmt.Sprintf("%s%03d", patientCodePrefix, n)
}

// NextPatientCode returns the code following last, the numerically highest
// existing code. An empty last yields P001. Codes past P999 widen.
func NextPatientCode(last string) (string, error) {
	if last == "" {
		return FirstPatientCode, nil
	}
	n, err := ParsePatientCode(last)
	if err != nil {
		return "", err
	}
	return FormatPatientCode(n + 1), nil
}

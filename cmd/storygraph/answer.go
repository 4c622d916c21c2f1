package main

import (
	"strconv"
	"strings"
	"time"
)

// parseAnswer types a command line answer the way the solver compares it:
// integers, floats, booleans, dates (YYYY-MM-DD or RFC 3339), comma
// separated lists, and otherwise plain text.
func parseAnswer(raw string) any {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		for n := range parts {
			parts[n] = strings.TrimSpace(parts[n])
		}
		return parts
	}
	return raw
}

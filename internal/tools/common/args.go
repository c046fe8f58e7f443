package common

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// DateLayout is the Fitbit calendar date format.
const DateLayout = "2006-01-02"

// Today is the date alias Fitbit resolves in the user's timezone.
const Today = "today"

// ParseDate validates a YYYY-MM-DD date. When allowToday is set the literal
// "today" is accepted and returned unchanged.
func ParseDate(name, value string, allowToday bool) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	if allowToday && value == Today {
		return value, nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return "", fmt.Errorf("%s must be a date in YYYY-MM-DD format, got %q", name, value)
	}
	return value, nil
}

// RequireDate reads and validates a required date argument.
func RequireDate(request mcp.CallToolRequest, name string, allowToday bool) (string, error) {
	return ParseDate(name, request.GetString(name, ""), allowToday)
}

// OptionalDate reads a date argument, falling back to def when it is absent.
func OptionalDate(request mcp.CallToolRequest, name, def string, allowToday bool) (string, error) {
	value := request.GetString(name, "")
	if value == "" {
		return def, nil
	}
	return ParseDate(name, value, allowToday)
}

// DateRange reads startDate and endDate, checks their order and, when
// maxDays is positive, that the inclusive span is at most maxDays long.
func DateRange(request mcp.CallToolRequest, maxDays int) (start, end string, err error) {
	if start, err = RequireDate(request, "startDate", false); err != nil {
		return "", "", err
	}
	if end, err = RequireDate(request, "endDate", false); err != nil {
		return "", "", err
	}

	s, _ := time.Parse(DateLayout, start)
	e, _ := time.Parse(DateLayout, end)
	if e.Before(s) {
		return "", "", fmt.Errorf("endDate %s is before startDate %s", end, start)
	}
	if days := int(e.Sub(s).Hours()/24) + 1; maxDays > 0 && days > maxDays {
		return "", "", fmt.Errorf("date range spans %d days, the maximum is %d", days, maxDays)
	}
	return start, end, nil
}

// OneOf reads a string argument that must be one of allowed. An empty value
// selects def.
func OneOf(request mcp.CallToolRequest, name, def string, allowed ...string) (string, error) {
	value := request.GetString(name, def)
	if value == "" {
		value = def
	}
	if !slices.Contains(allowed, value) {
		return "", fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
	}
	return value, nil
}

// IntInRange reads an integer argument bounded by [min, max].
func IntInRange(request mcp.CallToolRequest, name string, def, min, max int) (int, error) {
	value := request.GetInt(name, def)
	if value < min || value > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}
	return value, nil
}

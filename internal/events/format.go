package events

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	maxMessageLength  = 100
	truncateIndicator = "..."
)

// Format converts an event to a human-readable string for display.
// Returns empty string for nil or unknown event types.
func Format(event Event) string {
	if event == nil {
		return ""
	}

	switch e := event.(type) {
	case *SafetyStateChangedEvent:
		return fmt.Sprintf("state: %s -> %s (%s)", SafeString(e.From), SafeString(e.To), SafeString(e.Trigger))
	case *EmergencyStopEvent:
		if e.AlreadyActive {
			return fmt.Sprintf("[!] emergency stop (already active): %s", Truncate(e.Reason, maxMessageLength))
		}
		return fmt.Sprintf("[!] EMERGENCY STOP: %s", Truncate(e.Reason, maxMessageLength))
	case *EmergencyResetEvent:
		if !e.Accepted {
			return fmt.Sprintf("[x] reset refused after %d consecutive failures", e.ConsecutiveFailures)
		}
		return fmt.Sprintf("[+] emergency stop reset (failures: %d)", e.ConsecutiveFailures)
	case *PreflightCheckEvent:
		return formatPreflightCheck(e)
	case *PreflightCompleteEvent:
		if e.Passed {
			return "preflight passed"
		}
		return fmt.Sprintf("preflight FAILED (%d failed checks)", e.Failures)
	case *DispenseStartEvent:
		return fmt.Sprintf("dispense started: %s", ShortID(e.RunID.String()))
	case *TemperatureReadEvent:
		return fmt.Sprintf("temperature: %.1fC", e.Celsius)
	case *PumpStartEvent:
		return fmt.Sprintf("pump %s on for %s", SafeString(e.Ingredient), e.Duration)
	case *PumpEndEvent:
		if e.Error != "" {
			return fmt.Sprintf("[x] pump %s: %s", SafeString(e.Ingredient), Truncate(e.Error, maxMessageLength))
		}
		return fmt.Sprintf("pump %s off", SafeString(e.Ingredient))
	case *DispenseEndEvent:
		return formatDispenseEnd(e)
	case *ErrorEvent:
		severity := SafeString(e.Severity)
		if severity == "" {
			severity = SeverityError
		}
		return fmt.Sprintf("%s: %s", strings.ToUpper(severity), Truncate(e.Message, maxMessageLength))
	default:
		return ""
	}
}

// FormatWithTimestamp formats an event with a timestamp prefix.
// Used by the TUI event pane and the console.
func FormatWithTimestamp(event Event) string {
	if event == nil {
		return ""
	}
	ts := event.Timestamp().Format("15:04:05")
	detail := Format(event)
	if detail == "" {
		return fmt.Sprintf("[%s] %s", ts, event.Type())
	}
	return fmt.Sprintf("[%s] %s", ts, detail)
}

func formatPreflightCheck(e *PreflightCheckEvent) string {
	symbol := "+"
	if !e.Passed {
		symbol = SeveritySymbol(e.Severity)
	}
	return fmt.Sprintf("[%s] %s: %s", symbol, SafeString(e.Name), Truncate(e.Message, maxMessageLength))
}

func formatDispenseEnd(e *DispenseEndEvent) string {
	id := ShortID(e.RunID.String())
	if e.Success {
		return fmt.Sprintf("[+] dispense %s complete in %s", id, e.Elapsed.Round(time.Millisecond))
	}
	if e.Aborted != "" {
		return fmt.Sprintf("[x] dispense %s aborted at %s: %s", id, SafeString(e.Aborted), Truncate(e.Error, maxMessageLength))
	}
	return fmt.Sprintf("[x] dispense %s failed: %s", id, Truncate(e.Error, maxMessageLength))
}

// SeveritySymbol returns a marker for a failed check of the given severity.
func SeveritySymbol(severity string) string {
	switch severity {
	case "critical":
		return "x"
	case "warning":
		return "!"
	default:
		return "-"
	}
}

// ShortID returns the first block of a UUID string.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// Truncate shortens text to maxLen, adding indicator if truncated.
func Truncate(s string, maxLen int) string {
	s = SafeString(s)
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= len(truncateIndicator) {
		return truncateIndicator
	}
	return s[:maxLen-len(truncateIndicator)] + truncateIndicator
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// SafeString sanitizes a string for display by removing control characters
// and flattening newlines.
func SafeString(s string) string {
	s = StripANSI(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == ' ' || !unicode.IsControl(r) {
			sb.WriteRune(r)
		}
	}

	result := sb.String()
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}

	return strings.TrimSpace(result)
}

// Package humanize renders audio durations and blob sizes for logs and CLI output.
package humanize

import "fmt"

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
)

const (
	kibibyte = 1 << 10
	mebibyte = 1 << 20
	gibibyte = 1 << 30
)

// Seconds renders a duration given in seconds as "42.5s", "3m 7.0s" or "1h 15m".
func Seconds(seconds float64) string {
	switch {
	case seconds < secondsPerMinute:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < secondsPerHour:
		minutes := int(seconds / secondsPerMinute)

		return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes*secondsPerMinute))
	default:
		hours := int(seconds / secondsPerHour)
		minutes := int((seconds - float64(hours*secondsPerHour)) / secondsPerMinute)

		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

// Bytes renders a size with a binary unit, e.g. "512 B" or "1.5 MB".
func Bytes(size int) string {
	switch {
	case size >= gibibyte:
		return fmt.Sprintf("%.1f GB", float64(size)/gibibyte)
	case size >= mebibyte:
		return fmt.Sprintf("%.1f MB", float64(size)/mebibyte)
	case size >= kibibyte:
		return fmt.Sprintf("%.1f KB", float64(size)/kibibyte)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

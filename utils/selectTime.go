package utils

import "time"

// SelectTime turns a config interval (unit + value) into a duration.
func SelectTime(unit string, timeoutValue int) time.Duration {
	switch unit {
	case "seconds":
		return time.Duration(timeoutValue) * time.Second
	case "minutes":
		return time.Duration(timeoutValue) * time.Minute
	case "hours":
		return time.Duration(timeoutValue) * time.Hour
	case "days":
		return time.Duration(timeoutValue) * 24 * time.Hour
	default:
		return time.Duration(timeoutValue) * time.Second
	}
}

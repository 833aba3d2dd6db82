package models

import "fmt"

// FreeTimerState is the free case availability as reported by the server.
type FreeTimerState struct {
	Available        bool `json:"available"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

// FormatCountdown renders seconds as HH:MM:SS.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

package models

import "strconv"

// Status is the lifecycle state of a scrape job as reported in Progress.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"

	// StatusIdle is reported by the job-control layer for a tab that has no
	// progress yet. Scrape runs never emit it.
	StatusIdle Status = "idle"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// Progress is the snapshot persisted after every finished task.
type Progress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Game    string  `json:"game"`
	Status  Status  `json:"status"`
	Percent float64 `json:"percent"`
}

// NewProgress builds a Progress with Percent derived from current and total.
func NewProgress(current, total int, game string, status Status) Progress {
	return Progress{
		Current: current,
		Total:   total,
		Game:    game,
		Status:  status,
		Percent: Percent(current, total),
	}
}

// IdleProgress is returned for tabs that never ran.
func IdleProgress() Progress {
	return Progress{Status: StatusIdle}
}

// Percent is 100*current/total rounded to one decimal, or 0 when total is 0.
// Exact halves round to even, so 1/16 reports 6.2.
func Percent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	v := float64(100*current) / float64(total)
	// FormatFloat rounds the exact binary value half to even.
	p, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return p
}

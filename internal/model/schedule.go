package model

import "time"

// ScheduleType selects how a schedule's next window is derived.
type ScheduleType string

const (
	ScheduleCron  ScheduleType = "cron"
	ScheduleEvent ScheduleType = "event"
	ScheduleAdhoc ScheduleType = "adhoc"
)

// Valid reports whether t is a known schedule type.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleCron, ScheduleEvent, ScheduleAdhoc:
		return true
	}
	return false
}

// Priority is the advisory execution priority of a schedule.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ScheduleStatus is whether an external executor should honor the schedule.
type ScheduleStatus string

const (
	ScheduleActive ScheduleStatus = "active"
	SchedulePaused ScheduleStatus = "paused"
)

// Schedule is a persisted execution plan. NextRunAt is always set.
type Schedule struct {
	ID         string         `json:"id"`
	ProbeID    string         `json:"probeId"`
	Type       ScheduleType   `json:"type"`
	Expression string         `json:"expression"`
	Priority   Priority       `json:"priority"`
	Status     ScheduleStatus `json:"status"`
	Controls   []string       `json:"controls"`
	NextRunAt  time.Time      `json:"nextRunAt"`
	LastRunAt  *time.Time     `json:"lastRunAt"`
	CreatedBy  Actor          `json:"createdBy"`
	CreatedAt  time.Time      `json:"createdAt"`
}

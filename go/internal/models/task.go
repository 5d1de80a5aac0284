package models

import (
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskRunning    TaskStatus = "running"
	TaskPaused     TaskStatus = "paused"
	TaskFinished   TaskStatus = "finished"
)

// Task is a single unit of work inside a sector. It is owned exclusively by
// its SectorRecord.
//
// PauseDuration accumulates across pause/resume cycles and only grows.
// Duration is written exactly once, at the transition to Finished.
type Task struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        TaskStatus `json:"status"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	PauseDuration int64      `json:"pause_duration_ms"`
	PauseStart    *time.Time `json:"pause_start,omitempty"`
	Duration      *int64     `json:"duration_ms,omitempty"`
}

// SectorRecord holds the tasks for one of the day's three sectors.
// StartTime is set once, when the racer confirms readiness after the
// ignition sequence; the task list is frozen from that point on.
type SectorRecord struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	Tasks     []*Task    `json:"tasks"`
}

// Started reports whether the sector countdown has begun.
func (s *SectorRecord) Started() bool {
	return s.StartTime != nil
}

// TaskByID returns the task with the given id, or nil.
func (s *SectorRecord) TaskByID(id string) *Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AllFinished reports whether every task in the sector reached Finished.
// An empty sector is never considered finished.
func (s *SectorRecord) AllFinished() bool {
	if len(s.Tasks) == 0 {
		return false
	}
	for _, t := range s.Tasks {
		if t.Status != TaskFinished {
			return false
		}
	}
	return true
}

// DayRecord groups the sectors of a single work date. It is created lazily
// on first sector entry for that day.
type DayRecord struct {
	Sectors map[int]*SectorRecord `json:"sectors"`
}

// DateKey is the map key format for DayRecord dates (process-local clock,
// not timezone-normalized).
const DateKey = "2006-01-02"

// Sector limits.
const (
	MinSectorTasks = 4
	MaxSectorTasks = 15
	SectorCount    = 3
	SectorLength   = 45 * time.Minute
)

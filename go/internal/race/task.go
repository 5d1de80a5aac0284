package race

import (
	"errors"
	"time"

	"github.com/pitdev14/workgp/go/internal/models"
)

// FinishBonus is the fixed number of points awarded to the owning racer
// each time a task reaches Finished.
const FinishBonus = 10

var (
	ErrSectorNotStarted = errors.New("sector has not started yet")
	ErrSectorStarted    = errors.New("sector already started, task list is frozen")
	ErrTaskNotStarted   = errors.New("task has not been started")
	ErrTaskStarted      = errors.New("task already started")
	ErrTaskNotRunning   = errors.New("task is not running")
	ErrTaskNotPaused    = errors.New("task is not paused")
	ErrTaskFinished     = errors.New("task is already finished")
	ErrTooFewTasks      = errors.New("sector needs at least 4 tasks")
	ErrTooManyTasks     = errors.New("sector holds at most 15 tasks")
	ErrTaskNotFound     = errors.New("task not found")
)

// StartTask transitions NotStarted -> Running. The owning sector must have
// started its countdown.
func StartTask(sector *models.SectorRecord, task *models.Task, now time.Time) error {
	if !sector.Started() {
		return ErrSectorNotStarted
	}
	if task.Status == models.TaskFinished {
		return ErrTaskFinished
	}
	if task.Status != models.TaskNotStarted {
		return ErrTaskStarted
	}

	t := now
	task.StartTime = &t
	task.PauseDuration = 0
	task.Status = models.TaskRunning
	return nil
}

// PauseTask transitions Running -> Paused.
func PauseTask(task *models.Task, now time.Time) error {
	if task.Status != models.TaskRunning {
		return ErrTaskNotRunning
	}

	t := now
	task.PauseStart = &t
	task.Status = models.TaskPaused
	return nil
}

// ResumeTask transitions Paused -> Running, draining the open pause
// interval into PauseDuration.
func ResumeTask(task *models.Task, now time.Time) error {
	if task.Status != models.TaskPaused {
		return ErrTaskNotPaused
	}

	if task.PauseStart != nil {
		task.PauseDuration += now.Sub(*task.PauseStart).Milliseconds()
		task.PauseStart = nil
	}
	task.Status = models.TaskRunning
	return nil
}

// FinishTask transitions Running or Paused -> Finished. Duration is written
// exactly once here and never changes afterwards.
func FinishTask(task *models.Task, now time.Time) error {
	switch task.Status {
	case models.TaskFinished:
		return ErrTaskFinished
	case models.TaskNotStarted:
		return ErrTaskNotStarted
	}

	// Drain any open pause before computing the duration.
	if task.Status == models.TaskPaused && task.PauseStart != nil {
		task.PauseDuration += now.Sub(*task.PauseStart).Milliseconds()
		task.PauseStart = nil
	}

	end := now
	task.EndTime = &end
	d := end.Sub(*task.StartTime).Milliseconds() - task.PauseDuration
	if d < 0 {
		d = 0
	}
	task.Duration = &d
	task.Status = models.TaskFinished
	return nil
}

// ResetTask clears all timing fields and returns the task to NotStarted.
// Resetting a task that never started is rejected.
func ResetTask(task *models.Task) error {
	if task.Status == models.TaskNotStarted {
		return ErrTaskNotStarted
	}

	task.StartTime = nil
	task.EndTime = nil
	task.PauseDuration = 0
	task.PauseStart = nil
	task.Duration = nil
	task.Status = models.TaskNotStarted
	return nil
}

// Elapsed computes the on-demand display time for a task. It is recomputed
// on every tick and never cached.
func Elapsed(task *models.Task, now time.Time) time.Duration {
	switch task.Status {
	case models.TaskRunning:
		return now.Sub(*task.StartTime) - time.Duration(task.PauseDuration)*time.Millisecond
	case models.TaskPaused:
		return task.PauseStart.Sub(*task.StartTime) - time.Duration(task.PauseDuration)*time.Millisecond
	case models.TaskFinished:
		return time.Duration(*task.Duration) * time.Millisecond
	default:
		return 0
	}
}

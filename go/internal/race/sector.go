package race

import (
	"time"

	"github.com/google/uuid"

	"github.com/pitdev14/workgp/go/internal/models"
)

// AddTask appends a new task to a sector. The list is frozen once the
// sector starts and bounded to 15 tasks before that.
func AddTask(sector *models.SectorRecord, name string) (*models.Task, error) {
	if sector.Started() {
		return nil, ErrSectorStarted
	}
	if len(sector.Tasks) >= models.MaxSectorTasks {
		return nil, ErrTooManyTasks
	}

	task := &models.Task{
		ID:     uuid.New().String(),
		Name:   name,
		Status: models.TaskNotStarted,
	}
	sector.Tasks = append(sector.Tasks, task)
	return task, nil
}

// RemoveTask removes a task by id. Rejected once the sector starts or when
// the sector is already at the 4-task floor.
func RemoveTask(sector *models.SectorRecord, taskID string) error {
	if sector.Started() {
		return ErrSectorStarted
	}
	if len(sector.Tasks) <= models.MinSectorTasks {
		return ErrTooFewTasks
	}

	for i, t := range sector.Tasks {
		if t.ID == taskID {
			sector.Tasks = append(sector.Tasks[:i], sector.Tasks[i+1:]...)
			return nil
		}
	}
	return ErrTaskNotFound
}

// StartSector sets the sector start time. The task count must be inside the
// allowed bounds; the gate is confirmed readiness after ignition.
func StartSector(sector *models.SectorRecord, now time.Time) error {
	if sector.Started() {
		return ErrSectorStarted
	}
	if len(sector.Tasks) < models.MinSectorTasks {
		return ErrTooFewTasks
	}
	if len(sector.Tasks) > models.MaxSectorTasks {
		return ErrTooManyTasks
	}

	t := now
	sector.StartTime = &t
	return nil
}

// Remaining returns the time left on the sector countdown, floored at zero.
// A sector that never started has the full 45 minutes remaining.
func Remaining(sector *models.SectorRecord, now time.Time) time.Duration {
	if !sector.Started() {
		return models.SectorLength
	}
	left := models.SectorLength - now.Sub(*sector.StartTime)
	if left < 0 {
		return 0
	}
	return left
}

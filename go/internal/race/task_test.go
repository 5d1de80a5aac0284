package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitdev14/workgp/go/internal/models"
)

func startedSector(t *testing.T, base time.Time, taskCount int) *models.SectorRecord {
	t.Helper()
	sector := &models.SectorRecord{}
	for i := 0; i < taskCount; i++ {
		_, err := AddTask(sector, "task")
		require.NoError(t, err)
	}
	require.NoError(t, StartSector(sector, base))
	return sector
}

func TestFinishDurationExcludesPauses(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	require.NoError(t, StartTask(sector, task, base))

	// Two pause/resume cycles: 30s and 90s paused.
	require.NoError(t, PauseTask(task, base.Add(1*time.Minute)))
	require.NoError(t, ResumeTask(task, base.Add(90*time.Second)))
	require.NoError(t, PauseTask(task, base.Add(3*time.Minute)))
	require.NoError(t, ResumeTask(task, base.Add(270*time.Second)))

	require.NoError(t, FinishTask(task, base.Add(10*time.Minute)))

	require.NotNil(t, task.Duration)
	// 10m wall clock minus 2m total pause.
	assert.Equal(t, (8 * time.Minute).Milliseconds(), *task.Duration)
	assert.Equal(t, (2 * time.Minute).Milliseconds(), task.PauseDuration)
	assert.Equal(t, models.TaskFinished, task.Status)
}

func TestFinishWhilePausedDrainsOpenPause(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	require.NoError(t, StartTask(sector, task, base))
	require.NoError(t, PauseTask(task, base.Add(2*time.Minute)))
	require.NoError(t, FinishTask(task, base.Add(5*time.Minute)))

	// Paused from 2m to 5m: only the first two minutes count.
	assert.Equal(t, (2 * time.Minute).Milliseconds(), *task.Duration)
	assert.Nil(t, task.PauseStart)
}

func TestFinishDurationFlooredAtZero(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	require.NoError(t, StartTask(sector, task, base))
	// Clock skew: finish before start.
	require.NoError(t, FinishTask(task, base.Add(-time.Second)))
	assert.Equal(t, int64(0), *task.Duration)
}

func TestFinishedIsTerminal(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	require.NoError(t, StartTask(sector, task, base))
	require.NoError(t, FinishTask(task, base.Add(time.Minute)))
	got := *task.Duration

	assert.ErrorIs(t, FinishTask(task, base.Add(2*time.Minute)), ErrTaskFinished)
	assert.ErrorIs(t, PauseTask(task, base.Add(2*time.Minute)), ErrTaskNotRunning)
	assert.ErrorIs(t, StartTask(sector, task, base.Add(2*time.Minute)), ErrTaskFinished)
	assert.Equal(t, got, *task.Duration, "duration must never change once set")
}

func TestFinishNotStartedRejected(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)

	assert.ErrorIs(t, FinishTask(sector.Tasks[0], base), ErrTaskNotStarted)
}

func TestStartRequiresStartedSector(t *testing.T) {
	sector := &models.SectorRecord{}
	task, err := AddTask(sector, "warmup")
	require.NoError(t, err)

	assert.ErrorIs(t, StartTask(sector, task, time.Now()), ErrSectorNotStarted)
}

func TestResetClearsTimingFields(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	require.NoError(t, StartTask(sector, task, base))
	require.NoError(t, PauseTask(task, base.Add(time.Minute)))
	require.NoError(t, ResetTask(task))

	assert.Equal(t, models.TaskNotStarted, task.Status)
	assert.Nil(t, task.StartTime)
	assert.Nil(t, task.EndTime)
	assert.Nil(t, task.PauseStart)
	assert.Nil(t, task.Duration)
	assert.Equal(t, int64(0), task.PauseDuration)

	assert.ErrorIs(t, ResetTask(task), ErrTaskNotStarted)
}

func TestPauseDurationAccumulatesAcrossManyCycles(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	require.NoError(t, StartTask(sector, task, base))

	now := base
	var totalPaused time.Duration
	for i := 1; i <= 7; i++ {
		now = now.Add(10 * time.Second)
		require.NoError(t, PauseTask(task, now))
		pause := time.Duration(i) * time.Second
		now = now.Add(pause)
		require.NoError(t, ResumeTask(task, now))
		totalPaused += pause
	}

	assert.Equal(t, totalPaused.Milliseconds(), task.PauseDuration)
}

func TestElapsedPerStatus(t *testing.T) {
	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	sector := startedSector(t, base, 4)
	task := sector.Tasks[0]

	assert.Equal(t, time.Duration(0), Elapsed(task, base))

	require.NoError(t, StartTask(sector, task, base))
	assert.Equal(t, 30*time.Second, Elapsed(task, base.Add(30*time.Second)))

	require.NoError(t, PauseTask(task, base.Add(time.Minute)))
	// While paused the display freezes at the pause point.
	assert.Equal(t, time.Minute, Elapsed(task, base.Add(20*time.Minute)))

	require.NoError(t, ResumeTask(task, base.Add(2*time.Minute)))
	assert.Equal(t, 2*time.Minute, Elapsed(task, base.Add(3*time.Minute)))

	require.NoError(t, FinishTask(task, base.Add(5*time.Minute)))
	assert.Equal(t, 4*time.Minute, Elapsed(task, base.Add(99*time.Hour)))
}

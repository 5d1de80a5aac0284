package race

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PollInterval is the refresh rate of the sector countdown.
const PollInterval = time.Second

// Ignition sequence: five lights at one second each, then a short hold
// before the sector goes green.
const (
	IgnitionSteps     = 5
	IgnitionStepDelay = time.Second
	IgnitionHold      = 500 * time.Millisecond
)

// Countdown drives the once-per-second refresh of a started sector. It
// never mutates task state: it only republishes derived display values and
// self-cancels when the sector runs out or every task finishes early.
type Countdown struct {
	clock    clockwork.Clock
	deadline time.Time

	// onTick fires every poll with the remaining sector time, already
	// floored at zero.
	onTick func(remaining time.Duration)
	// onDone fires once when the poll stops. early is true when the poll
	// cancelled because every task finished before the countdown ran out.
	onDone func(early bool)
	// allFinished reports whether every task in the sector is Finished.
	allFinished func() bool
}

// NewCountdown creates a countdown poller for a sector that started at
// startedAt.
func NewCountdown(clock clockwork.Clock, startedAt time.Time, length time.Duration,
	onTick func(time.Duration), onDone func(bool), allFinished func() bool) *Countdown {
	return &Countdown{
		clock:       clock,
		deadline:    startedAt.Add(length),
		onTick:      onTick,
		onDone:      onDone,
		allFinished: allFinished,
	}
}

// Run polls until the countdown expires, every task finishes, or ctx is
// cancelled. Expiry pins the display at zero; it does not force-finish
// unfinished tasks.
func (c *Countdown) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("sector countdown cancelled")
			return
		case <-ticker.Chan():
			if c.allFinished() {
				log.Info().Msg("all tasks finished, stopping sector countdown early")
				c.onDone(true)
				return
			}

			remaining := c.deadline.Sub(c.clock.Now())
			if remaining <= 0 {
				c.onTick(0)
				log.Info().Msg("sector countdown reached zero")
				c.onDone(false)
				return
			}
			c.onTick(remaining)
		}
	}
}

// RunIgnition plays the fixed ignition sequence, invoking onStep for each
// light. It is purely a delay before the sector start time is set.
func RunIgnition(ctx context.Context, clock clockwork.Clock, onStep func(step int)) error {
	for step := 1; step <= IgnitionSteps; step++ {
		onStep(step)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(IgnitionStepDelay):
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(IgnitionHold):
	}
	return nil
}

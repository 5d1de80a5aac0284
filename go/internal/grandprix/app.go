// Package grandprix is the top-level controller: it owns the in-memory
// state mirror, serializes mutations, flushes the whole document through
// the store after every change, and fans domain events out on the bus.
// There are no ambient globals; everything the handlers need hangs off App.
package grandprix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/pitdev14/workgp/go/internal/bus"
	"github.com/pitdev14/workgp/go/internal/leaderboard"
	"github.com/pitdev14/workgp/go/internal/models"
	"github.com/pitdev14/workgp/go/internal/race"
	"github.com/pitdev14/workgp/go/internal/remote"
	"github.com/pitdev14/workgp/go/internal/store"
	"github.com/pitdev14/workgp/go/internal/users"
)

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrInvalidSector = errors.New("sector number must be 1..3")
	ErrNotFriends    = errors.New("can only invite friends to a race")
)

// App coordinates the store, the domain transitions, the bus and the
// optional remote backend behind one mutex.
type App struct {
	mu    sync.Mutex
	state *models.State

	store   store.Store
	bus     bus.Bus
	clock   clockwork.Clock
	remote  remote.Backend
	current string

	// Remote identity ids by username, populated by sign-up/sign-in.
	remoteIDs map[string]string

	// One active countdown poll per sector; starting or re-entering a
	// sector cancels the previous one.
	polls   map[int]context.CancelFunc
	pollsMu sync.Mutex
}

// NewApp loads the persisted state and session and returns a ready
// controller. Countdown polls for today's started, unexpired sectors are
// re-armed, since a restart drops their goroutines.
func NewApp(st store.Store, b bus.Bus, clock clockwork.Clock, backend remote.Backend) *App {
	a := &App{
		state:     st.Load(),
		store:     st,
		bus:       b,
		clock:     clock,
		remote:    backend,
		current:   st.CurrentUser(),
		remoteIDs: make(map[string]string),
		polls:     make(map[int]context.CancelFunc),
	}
	a.armActivePolls()
	return a
}

// armActivePolls starts a countdown poll for every sector of the logged-in
// user's current day that is started, unfinished and still inside its 45
// minutes.
func (a *App) armActivePolls() {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, err := a.currentUserLocked()
	if err != nil {
		return
	}
	day, exists := user.Records[a.todayKey()]
	if !exists {
		return
	}
	now := a.clock.Now()
	for sector, rec := range day.Sectors {
		if rec.Started() && !rec.AllFinished() && race.Remaining(rec, now) > 0 {
			a.startPoll(sector, rec, *rec.StartTime)
		}
	}
}

// persistLocked flushes the whole state document. Callers hold a.mu.
func (a *App) persistLocked() {
	if err := a.store.Save(a.state); err != nil {
		log.Error().Err(err).Msg("failed to persist state")
	}
}

func (a *App) publish(event bus.Event, err error) {
	if err != nil {
		log.Error().Err(err).Msg("failed to build event")
		return
	}
	if err := a.bus.Publish(context.Background(), event); err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to publish event")
	}
}

// todayKey returns the DayRecord key for the process-local date.
func (a *App) todayKey() string {
	return a.clock.Now().Format(models.DateKey)
}

// CurrentUser returns the logged-in username, or "".
func (a *App) CurrentUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Register creates an account and logs it in. When the remote backend is
// configured, sign-up gates the transition: a remote failure aborts it.
func (a *App) Register(ctx context.Context, username, password string) error {
	if a.remote.Enabled() {
		profile, err := a.remote.SignUp(ctx, username, "", password)
		if err != nil {
			return fmt.Errorf("sign up with backend: %w", err)
		}
		a.mu.Lock()
		a.remoteIDs[username] = profile.UserID
		a.mu.Unlock()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := users.Register(a.state, username, password); err != nil {
		return err
	}
	a.current = username
	a.persistLocked()
	if err := a.store.SetCurrentUser(username); err != nil {
		log.Error().Err(err).Msg("failed to persist session")
	}

	log.Info().Str("username", username).Msg("registered new racer")
	return nil
}

// Login verifies credentials. With a remote backend, sign-in and the
// profile fetch gate the transition and refresh the local point total.
func (a *App) Login(ctx context.Context, username, password string) error {
	a.mu.Lock()
	user, err := users.Authenticate(a.state, username, password)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	if a.remote.Enabled() {
		profile, err := a.remote.SignIn(ctx, username, password)
		if err != nil {
			return fmt.Errorf("sign in with backend: %w", err)
		}
		profile, err = a.remote.FetchProfile(ctx, profile.UserID)
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}
		a.mu.Lock()
		a.remoteIDs[username] = profile.UserID
		user.Points = profile.Points
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.current = username
	a.persistLocked()
	a.mu.Unlock()
	if err := a.store.SetCurrentUser(username); err != nil {
		log.Error().Err(err).Msg("failed to persist session")
	}

	log.Info().Str("username", username).Msg("racer logged in")
	return nil
}

// Logout clears the session. Sector polls keep running; the countdown is
// wall-clock-anchored either way.
func (a *App) Logout() {
	a.mu.Lock()
	a.current = ""
	a.mu.Unlock()
	if err := a.store.SetCurrentUser(""); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}
}

// currentUserLocked returns the logged-in user record. Callers hold a.mu.
func (a *App) currentUserLocked() (*models.User, error) {
	if a.current == "" {
		return nil, ErrNotLoggedIn
	}
	user, exists := a.state.Users[a.current]
	if !exists {
		return nil, ErrNotLoggedIn
	}
	return user, nil
}

// sectorLocked returns today's record for the sector, creating the day and
// sector lazily. Callers hold a.mu.
func (a *App) sectorLocked(sector int) (*models.SectorRecord, error) {
	if sector < 1 || sector > models.SectorCount {
		return nil, ErrInvalidSector
	}
	user, err := a.currentUserLocked()
	if err != nil {
		return nil, err
	}

	key := a.todayKey()
	day, exists := user.Records[key]
	if !exists {
		day = models.DayRecord{Sectors: make(map[int]*models.SectorRecord)}
		user.Records[key] = day
	}
	rec, exists := day.Sectors[sector]
	if !exists {
		rec = &models.SectorRecord{}
		day.Sectors[sector] = rec
	}
	return rec, nil
}

// EnterSector lazily creates today's sector record and, when the remote
// backend has a fresher snapshot for it, pulls that in. Best-effort: a
// remote failure is logged and local state stands. Entering a started,
// unexpired sector re-arms its countdown poll.
func (a *App) EnterSector(ctx context.Context, sector int) error {
	a.mu.Lock()
	rec, err := a.sectorLocked(sector)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	username := a.current
	key := a.todayKey()
	var startedAt time.Time
	active := false
	if rec.Started() {
		startedAt = *rec.StartTime
		active = !rec.AllFinished() && race.Remaining(rec, a.clock.Now()) > 0
	}
	a.mu.Unlock()

	if active {
		a.ensurePoll(sector, rec, startedAt)
	}

	if a.remote.Enabled() {
		if id, ok := a.remoteID(username); ok {
			pulled, err := a.remote.FetchTasks(ctx, id, key, sector)
			if err != nil {
				log.Error().Err(err).Int("sector", sector).Msg("failed to pull sector tasks, using local state")
			} else if pulled != nil {
				a.mu.Lock()
				if !rec.Started() {
					*rec = *pulled
					a.persistLocked()
				}
				a.mu.Unlock()
			}
		}
	}
	return nil
}

// AddTask adds a task to today's sector.
func (a *App) AddTask(sector int, name string) (*models.Task, error) {
	a.mu.Lock()
	rec, err := a.sectorLocked(sector)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	task, err := race.AddTask(rec, name)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	a.persistLocked()
	a.mu.Unlock()

	a.pushSector(sector)
	return task, nil
}

// RemoveTask removes a task from today's sector.
func (a *App) RemoveTask(sector int, taskID string) error {
	a.mu.Lock()
	rec, err := a.sectorLocked(sector)
	if err == nil {
		err = race.RemoveTask(rec, taskID)
	}
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.persistLocked()
	a.mu.Unlock()

	a.pushSector(sector)
	return nil
}

// ClearSector discards the task grid of a sector that has not started,
// locally and on the remote backend.
func (a *App) ClearSector(ctx context.Context, sector int) error {
	a.mu.Lock()
	rec, err := a.sectorLocked(sector)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if rec.Started() {
		a.mu.Unlock()
		return race.ErrSectorStarted
	}
	rec.Tasks = nil
	username := a.current
	key := a.todayKey()
	a.persistLocked()
	a.mu.Unlock()

	if a.remote.Enabled() {
		if id, ok := a.remoteID(username); ok {
			if err := a.remote.DeleteTasks(ctx, id, key, sector); err != nil {
				log.Error().Err(err).Int("sector", sector).Msg("failed to delete remote sector tasks")
			}
		}
	}
	return nil
}

// ReadySector plays the ignition sequence, sets the sector start time and
// arms the once-per-second countdown poll.
func (a *App) ReadySector(ctx context.Context, sector int) error {
	a.mu.Lock()
	rec, err := a.sectorLocked(sector)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if rec.Started() {
		a.mu.Unlock()
		return race.ErrSectorStarted
	}
	if len(rec.Tasks) < models.MinSectorTasks {
		a.mu.Unlock()
		return race.ErrTooFewTasks
	}
	a.mu.Unlock()

	// The ignition is purely a delay; no state changes until it completes.
	err = race.RunIgnition(ctx, a.clock, func(step int) {
		a.publish(bus.NewEvent(bus.EventTypeIgnitionStep, "", bus.IgnitionStepPayload{
			Sector: sector,
			Step:   step,
		}))
	})
	if err != nil {
		return fmt.Errorf("ignition interrupted: %w", err)
	}

	a.mu.Lock()
	now := a.clock.Now()
	if err := race.StartSector(rec, now); err != nil {
		a.mu.Unlock()
		return err
	}
	a.persistLocked()
	a.mu.Unlock()

	a.publish(bus.NewEvent(bus.EventTypeSectorStarted, "", bus.SectorStartedPayload{
		Sector:    sector,
		StartedAt: now,
	}))
	a.pushSector(sector)
	a.startPoll(sector, rec, now)
	return nil
}

// startPoll arms the countdown poller for a started sector, replacing any
// previous poll for the same sector.
func (a *App) startPoll(sector int, rec *models.SectorRecord, startedAt time.Time) {
	pollCtx, cancel := context.WithCancel(context.Background())

	a.pollsMu.Lock()
	if prev, exists := a.polls[sector]; exists {
		prev()
	}
	a.polls[sector] = cancel
	a.pollsMu.Unlock()

	cd := race.NewCountdown(a.clock, startedAt, models.SectorLength,
		func(remaining time.Duration) {
			a.publish(bus.NewEvent(bus.EventTypeTimerTick, "", bus.TimerTickPayload{
				Sector:           sector,
				TimeRemainingSec: int(remaining / time.Second),
				TickedAt:         a.clock.Now(),
			}))
		},
		func(early bool) {
			a.clearPoll(sector)
			a.publish(bus.NewEvent(bus.EventTypeSectorDone, "", bus.SectorDonePayload{
				Sector: sector,
				Early:  early,
			}))
		},
		func() bool {
			a.mu.Lock()
			defer a.mu.Unlock()
			return rec.AllFinished()
		},
	)
	go cd.Run(pollCtx)
}

// ensurePoll arms the countdown poll for a started sector only when none
// is running for it.
func (a *App) ensurePoll(sector int, rec *models.SectorRecord, startedAt time.Time) {
	a.pollsMu.Lock()
	_, exists := a.polls[sector]
	a.pollsMu.Unlock()
	if exists {
		return
	}
	a.startPoll(sector, rec, startedAt)
}

func (a *App) clearPoll(sector int) {
	a.pollsMu.Lock()
	defer a.pollsMu.Unlock()
	if cancel, exists := a.polls[sector]; exists {
		cancel()
		delete(a.polls, sector)
	}
}

// taskOp runs a transition against a task in today's sector, persists and
// pushes the snapshot.
func (a *App) taskOp(sector int, taskID string, op func(*models.SectorRecord, *models.Task) error) error {
	a.mu.Lock()
	rec, err := a.sectorLocked(sector)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	task := rec.TaskByID(taskID)
	if task == nil {
		a.mu.Unlock()
		return race.ErrTaskNotFound
	}
	if err := op(rec, task); err != nil {
		a.mu.Unlock()
		return err
	}
	a.persistLocked()
	a.mu.Unlock()

	a.pushSector(sector)
	return nil
}

// StartTask transitions a task to Running.
func (a *App) StartTask(sector int, taskID string) error {
	return a.taskOp(sector, taskID, func(rec *models.SectorRecord, t *models.Task) error {
		return race.StartTask(rec, t, a.clock.Now())
	})
}

// PauseTask transitions a task to Paused.
func (a *App) PauseTask(sector int, taskID string) error {
	return a.taskOp(sector, taskID, func(_ *models.SectorRecord, t *models.Task) error {
		return race.PauseTask(t, a.clock.Now())
	})
}

// ResumeTask transitions a task back to Running.
func (a *App) ResumeTask(sector int, taskID string) error {
	return a.taskOp(sector, taskID, func(_ *models.SectorRecord, t *models.Task) error {
		return race.ResumeTask(t, a.clock.Now())
	})
}

// FinishTask transitions a task to Finished and awards the point bonus.
func (a *App) FinishTask(sector int, taskID string) error {
	var username string
	var points int
	err := a.taskOp(sector, taskID, func(_ *models.SectorRecord, t *models.Task) error {
		if err := race.FinishTask(t, a.clock.Now()); err != nil {
			return err
		}
		user, err := a.currentUserLocked()
		if err != nil {
			return err
		}
		user.Points += race.FinishBonus
		username = user.Username
		points = user.Points
		return nil
	})
	if err != nil {
		return err
	}

	if a.remote.Enabled() {
		if id, ok := a.remoteID(username); ok {
			go func() {
				if err := a.remote.UpdatePoints(context.Background(), id, points); err != nil {
					log.Error().Err(err).Str("username", username).Msg("failed to push points")
				}
			}()
		}
	}
	return nil
}

// ResetTask returns a task to NotStarted.
func (a *App) ResetTask(sector int, taskID string) error {
	return a.taskOp(sector, taskID, func(_ *models.SectorRecord, t *models.Task) error {
		return race.ResetTask(t)
	})
}

// SendFriendRequest records a pending request and notifies the target if
// they are listening.
func (a *App) SendFriendRequest(to string) error {
	a.mu.Lock()
	from := a.current
	if from == "" {
		a.mu.Unlock()
		return ErrNotLoggedIn
	}
	if err := users.SendFriendRequest(a.state, from, to); err != nil {
		a.mu.Unlock()
		return err
	}
	a.persistLocked()
	a.mu.Unlock()

	a.publish(bus.NewEvent(bus.EventTypeFriendRequest, to, bus.FriendRequestPayload{From: from, To: to}))
	return nil
}

// AcceptFriendRequest adds the symmetric edge and notifies the requester.
func (a *App) AcceptFriendRequest(from string) error {
	a.mu.Lock()
	username := a.current
	if username == "" {
		a.mu.Unlock()
		return ErrNotLoggedIn
	}
	if err := users.AcceptFriendRequest(a.state, username, from); err != nil {
		a.mu.Unlock()
		return err
	}
	a.persistLocked()
	a.mu.Unlock()

	a.publish(bus.NewEvent(bus.EventTypeFriendAccepted, from, bus.FriendAcceptedPayload{From: from, To: username}))
	return nil
}

// InviteToRace sends a race invite to a friend. Invites are fire and
// forget: nothing is persisted and a closed target drops the message.
func (a *App) InviteToRace(to string) error {
	a.mu.Lock()
	user, err := a.currentUserLocked()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if _, exists := a.state.Users[to]; !exists {
		a.mu.Unlock()
		return users.ErrUnknownUser
	}
	if !user.HasFriend(to) {
		a.mu.Unlock()
		return ErrNotFriends
	}
	from := user.Username
	a.mu.Unlock()

	a.publish(bus.NewEvent(bus.EventTypeRaceInvite, to, bus.RaceInvitePayload{From: from, To: to}))
	return nil
}

// Leaderboard computes the current standings. With a remote backend the
// precomputed view is pulled first; on failure the local computation
// stands in.
func (a *App) Leaderboard(ctx context.Context, mode leaderboard.SortMode) []models.LeaderboardEntry {
	if a.remote.Enabled() && mode == leaderboard.SortByPoints {
		entries, err := a.remote.FetchLeaderboard(ctx)
		if err == nil {
			return entries
		}
		log.Error().Err(err).Msg("failed to pull leaderboard, computing locally")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return leaderboard.Compute(a.state, a.clock.Now(), mode)
}

// remoteID looks up the hosted identity for a username.
func (a *App) remoteID(username string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.remoteIDs[username]
	return id, ok
}

// pushSector fires the full sector snapshot at the remote backend without
// awaiting it.
func (a *App) pushSector(sector int) {
	if !a.remote.Enabled() {
		return
	}

	a.mu.Lock()
	username := a.current
	key := a.todayKey()
	var snapshot *models.SectorRecord
	if user, err := a.currentUserLocked(); err == nil {
		if day, exists := user.Records[key]; exists {
			if rec, exists := day.Sectors[sector]; exists {
				// Deep copy: the upsert marshals off the lock while
				// transitions keep mutating the live tasks.
				copied := *rec
				copied.Tasks = make([]*models.Task, len(rec.Tasks))
				for i, task := range rec.Tasks {
					t := *task
					copied.Tasks[i] = &t
				}
				snapshot = &copied
			}
		}
	}
	a.mu.Unlock()

	if snapshot == nil {
		return
	}
	id, ok := a.remoteID(username)
	if !ok {
		return
	}

	go func() {
		if err := a.remote.UpsertTasks(context.Background(), id, key, sector, snapshot); err != nil {
			log.Error().Err(err).Int("sector", sector).Msg("failed to push sector snapshot")
		}
	}()
}

// Close cancels every active poll.
func (a *App) Close() {
	a.pollsMu.Lock()
	defer a.pollsMu.Unlock()
	for sector, cancel := range a.polls {
		cancel()
		delete(a.polls, sector)
	}
}

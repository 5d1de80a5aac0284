// Package remote syncs local state to a hosted backend. The contract is
// strictly best-effort: full task snapshots are pushed on every
// state-changing transition, the task list and leaderboard are pulled when
// their screens render, and any failure is logged while the UI proceeds on
// local state alone. Only SignUp, SignIn and FetchProfile gate their
// callers.
package remote

import (
	"context"
	"errors"

	"github.com/pitdev14/workgp/go/internal/models"
)

// ErrDisabled is returned by the no-op backend.
var ErrDisabled = errors.New("remote backend is not configured")

// Profile is the hosted identity record.
type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Points   int    `json:"points"`
}

// Backend is the hosted-service collaborator.
type Backend interface {
	// Enabled reports whether calls will go anywhere.
	Enabled() bool

	// Identity. These three calls gate the UI transition that made them.
	SignUp(ctx context.Context, username, email, password string) (*Profile, error)
	SignIn(ctx context.Context, username, password string) (*Profile, error)
	FetchProfile(ctx context.Context, userID string) (*Profile, error)

	// Task rows, keyed by (user_id, work_date, sector).
	UpsertTasks(ctx context.Context, userID, workDate string, sector int, record *models.SectorRecord) error
	FetchTasks(ctx context.Context, userID, workDate string, sector int) (*models.SectorRecord, error)
	DeleteTasks(ctx context.Context, userID, workDate string, sector int) error

	// Points and the precomputed weekly leaderboard view.
	UpdatePoints(ctx context.Context, userID string, points int) error
	FetchLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)

	Close()
}

// Noop is the backend used when no DSN is configured. Enabled reports
// false; every call returns ErrDisabled.
type Noop struct{}

func (Noop) Enabled() bool { return false }

func (Noop) SignUp(context.Context, string, string, string) (*Profile, error) {
	return nil, ErrDisabled
}

func (Noop) SignIn(context.Context, string, string) (*Profile, error) {
	return nil, ErrDisabled
}

func (Noop) FetchProfile(context.Context, string) (*Profile, error) {
	return nil, ErrDisabled
}

func (Noop) UpsertTasks(context.Context, string, string, int, *models.SectorRecord) error {
	return ErrDisabled
}

func (Noop) FetchTasks(context.Context, string, string, int) (*models.SectorRecord, error) {
	return nil, ErrDisabled
}

func (Noop) DeleteTasks(context.Context, string, string, int) error {
	return ErrDisabled
}

func (Noop) UpdatePoints(context.Context, string, int) error {
	return ErrDisabled
}

func (Noop) FetchLeaderboard(context.Context) ([]models.LeaderboardEntry, error) {
	return nil, ErrDisabled
}

func (Noop) Close() {}

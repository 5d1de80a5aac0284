package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/pitdev14/workgp/go/internal/leaderboard"
	"github.com/pitdev14/workgp/go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id UUID PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'racer',
	points INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sector_tasks (
	user_id UUID NOT NULL REFERENCES profiles(user_id),
	work_date DATE NOT NULL,
	sector INT NOT NULL,
	tasks JSONB NOT NULL,
	finished_duration_ms BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, work_date, sector)
);

CREATE OR REPLACE VIEW weekly_leaderboard AS
SELECT p.username,
       p.points,
       COALESCE(SUM(s.finished_duration_ms), 0) AS total_duration_ms
FROM profiles p
LEFT JOIN sector_tasks s
  ON s.user_id = p.user_id
 AND s.work_date >= date_trunc('week', CURRENT_DATE)
 AND s.work_date <  date_trunc('week', CURRENT_DATE) + INTERVAL '6 days'
GROUP BY p.username, p.points
HAVING p.points > 0 OR COALESCE(SUM(s.finished_duration_ms), 0) > 0
ORDER BY p.points DESC, total_duration_ms ASC;
`

// PostgresBackend stores profiles, task snapshots and the weekly
// leaderboard view in Postgres.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects a pool and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	log.Info().Msg("connected to remote backend")
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) Enabled() bool { return true }

// SignUp creates a hosted identity. A missing email derives a pseudo-email
// from the username.
func (b *PostgresBackend) SignUp(ctx context.Context, username, email, password string) (*Profile, error) {
	if email == "" {
		email = fmt.Sprintf("%s@workgp.local", strings.ToLower(username))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile := &Profile{
		UserID:   uuid.New().String(),
		Username: username,
		Role:     "racer",
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, username, email, password_hash) VALUES ($1, $2, $3, $4)`,
		profile.UserID, username, email, string(hash),
	)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// SignIn verifies credentials against the hosted profile.
func (b *PostgresBackend) SignIn(ctx context.Context, username, password string) (*Profile, error) {
	var (
		profile Profile
		hash    string
	)
	err := b.pool.QueryRow(ctx,
		`SELECT user_id, username, role, points, password_hash FROM profiles WHERE username = $1`,
		username,
	).Scan(&profile.UserID, &profile.Username, &profile.Role, &profile.Points, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no profile for %s", username)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, errors.New("incorrect password")
	}
	return &profile, nil
}

// FetchProfile loads the profile record by identity id.
func (b *PostgresBackend) FetchProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	err := b.pool.QueryRow(ctx,
		`SELECT user_id, username, role, points FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.UserID, &profile.Username, &profile.Role, &profile.Points)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &profile, nil
}

// UpsertTasks pushes the full sector snapshot for (user, date, sector).
func (b *PostgresBackend) UpsertTasks(ctx context.Context, userID, workDate string, sector int, record *models.SectorRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal sector snapshot: %w", err)
	}

	var finished int64
	for _, t := range record.Tasks {
		if t.Status == models.TaskFinished && t.Duration != nil {
			finished += *t.Duration
		}
	}

	_, err = b.pool.Exec(ctx,
		`INSERT INTO sector_tasks (user_id, work_date, sector, tasks, finished_duration_ms)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, work_date, sector)
		 DO UPDATE SET tasks = EXCLUDED.tasks, finished_duration_ms = EXCLUDED.finished_duration_ms`,
		userID, workDate, sector, payload, finished,
	)
	if err != nil {
		return fmt.Errorf("upsert sector tasks: %w", err)
	}
	return nil
}

// FetchTasks pulls the sector snapshot, or nil when none was pushed.
func (b *PostgresBackend) FetchTasks(ctx context.Context, userID, workDate string, sector int) (*models.SectorRecord, error) {
	var payload []byte
	err := b.pool.QueryRow(ctx,
		`SELECT tasks FROM sector_tasks WHERE user_id = $1 AND work_date = $2 AND sector = $3`,
		userID, workDate, sector,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch sector tasks: %w", err)
	}

	var record models.SectorRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal sector snapshot: %w", err)
	}
	return &record, nil
}

// DeleteTasks removes the snapshot row for (user, date, sector).
func (b *PostgresBackend) DeleteTasks(ctx context.Context, userID, workDate string, sector int) error {
	if _, err := b.pool.Exec(ctx,
		`DELETE FROM sector_tasks WHERE user_id = $1 AND work_date = $2 AND sector = $3`,
		userID, workDate, sector,
	); err != nil {
		return fmt.Errorf("delete sector tasks: %w", err)
	}
	return nil
}

// UpdatePoints writes the racer's accumulated point total.
func (b *PostgresBackend) UpdatePoints(ctx context.Context, userID string, points int) error {
	if _, err := b.pool.Exec(ctx,
		`UPDATE profiles SET points = $2 WHERE user_id = $1`,
		userID, points,
	); err != nil {
		return fmt.Errorf("update points: %w", err)
	}
	return nil
}

// FetchLeaderboard reads the precomputed weekly view.
func (b *PostgresBackend) FetchLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT username, points, total_duration_ms FROM weekly_leaderboard`)
	if err != nil {
		return nil, fmt.Errorf("query weekly leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Points, &e.TotalDuration); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.Rank = len(entries) + 1
		e.Formatted = leaderboard.FormatDuration(e.TotalDuration)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard rows: %w", err)
	}
	return entries, nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

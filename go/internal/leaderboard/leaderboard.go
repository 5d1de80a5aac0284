// Package leaderboard computes the weekly standings. The board is a pure
// function over the full user mapping, recomputed from scratch on every
// render with no incremental maintenance or caching.
package leaderboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/pitdev14/workgp/go/internal/models"
)

// SortMode selects how standings are ordered and who is included.
type SortMode string

const (
	// SortByPoints ranks points descending with weekly duration ascending
	// as the tiebreaker; racers appear when they have points or weekly
	// time on the board.
	SortByPoints SortMode = "points"
	// SortByDuration ranks weekly duration ascending and only includes
	// racers with a non-zero weekly total.
	SortByDuration SortMode = "duration"
)

// WeekWindow returns the current scoring window: Monday 00:00:00 through
// Saturday 23:59:59.999 in now's location. A Sunday therefore falls outside
// the window of the week it ends.
func WeekWindow(now time.Time) (start, end time.Time) {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	y, m, d := now.AddDate(0, 0, -daysSinceMonday).Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end = start.AddDate(0, 0, 6).Add(-time.Millisecond)
	return start, end
}

// WeeklyDuration sums the durations of a user's finished tasks across all
// sectors of every day record dated inside the current week window.
func WeeklyDuration(user *models.User, now time.Time) int64 {
	start, end := WeekWindow(now)

	var total int64
	for dateKey, day := range user.Records {
		date, err := time.ParseInLocation(models.DateKey, dateKey, now.Location())
		if err != nil {
			continue
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		for _, sector := range day.Sectors {
			for _, task := range sector.Tasks {
				if task.Status == models.TaskFinished && task.Duration != nil {
					total += *task.Duration
				}
			}
		}
	}
	return total
}

// Compute builds the standings for every user in state.
func Compute(state *models.State, now time.Time, mode SortMode) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(state.Users))
	for _, user := range state.Users {
		total := WeeklyDuration(user, now)
		switch mode {
		case SortByDuration:
			if total <= 0 {
				continue
			}
		default:
			if total <= 0 && user.Points <= 0 {
				continue
			}
		}
		entries = append(entries, models.LeaderboardEntry{
			Username:      user.Username,
			Points:        user.Points,
			TotalDuration: total,
			Formatted:     FormatDuration(total),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if mode == SortByDuration {
			return entries[i].TotalDuration < entries[j].TotalDuration
		}
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].TotalDuration < entries[j].TotalDuration
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// FormatDuration renders milliseconds as mm:ss, flooring at 00:00 so a
// clock skew can never print a negative component.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSec := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSec/60, totalSec%60)
}

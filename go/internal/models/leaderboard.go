package models

// LeaderboardEntry represents a single racer's row on the weekly board.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	Username      string `json:"username"`
	Points        int    `json:"points"`
	TotalDuration int64  `json:"total_duration_ms"`
	Formatted     string `json:"formatted"` // mm:ss of TotalDuration
}

package grandprix

import (
	"sort"
	"time"

	"github.com/pitdev14/workgp/go/internal/leaderboard"
	"github.com/pitdev14/workgp/go/internal/models"
	"github.com/pitdev14/workgp/go/internal/race"
)

// View models are rebuilt wholesale from domain state on every request,
// the way the original redraws a whole screen region. Nothing is cached.

// AuthView is the logged-out screen.
type AuthView struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
}

// WelcomeView is the landing screen for a logged-in racer.
type WelcomeView struct {
	Username       string   `json:"username"`
	Points         int      `json:"points"`
	Friends        []string `json:"friends"`
	FriendRequests []string `json:"friend_requests"`
	OnlineFriends  []string `json:"online_friends"`
}

// SectorStatus summarizes one sector for the sector-select screen.
type SectorStatus struct {
	Sector       int    `json:"sector"`
	TaskCount    int    `json:"task_count"`
	Started      bool   `json:"started"`
	AllFinished  bool   `json:"all_finished"`
	RemainingSec int    `json:"remaining_sec"`
	Remaining    string `json:"remaining"`
}

// SectorSelectView is the sector-select screen.
type SectorSelectView struct {
	Date    string         `json:"date"`
	Sectors []SectorStatus `json:"sectors"`
}

// TaskView is one row of the task board.
type TaskView struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Status  models.TaskStatus `json:"status"`
	Elapsed string            `json:"elapsed"`
}

// BoardView is the task board for one sector.
type BoardView struct {
	Sector       int        `json:"sector"`
	Started      bool       `json:"started"`
	RemainingSec int        `json:"remaining_sec"`
	Remaining    string     `json:"remaining"`
	Tasks        []TaskView `json:"tasks"`
}

// DaySummary is one row of the history screen.
type DaySummary struct {
	Date          string `json:"date"`
	FinishedTasks int    `json:"finished_tasks"`
	TotalDuration string `json:"total_duration"`
}

// HistoryView lists past days, newest first.
type HistoryView struct {
	Username string       `json:"username"`
	Days     []DaySummary `json:"days"`
}

// Auth builds the auth screen view.
func (a *App) Auth() AuthView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AuthView{LoggedIn: a.current != "", Username: a.current}
}

// Welcome builds the welcome screen view. online is the set of racers with
// an open connection, supplied by the gateway.
func (a *App) Welcome(online []string) (WelcomeView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, err := a.currentUserLocked()
	if err != nil {
		return WelcomeView{}, err
	}

	onlineSet := make(map[string]bool, len(online))
	for _, name := range online {
		onlineSet[name] = true
	}
	onlineFriends := make([]string, 0, len(user.Friends))
	for _, friend := range user.Friends {
		if onlineSet[friend] {
			onlineFriends = append(onlineFriends, friend)
		}
	}

	return WelcomeView{
		Username:       user.Username,
		Points:         user.Points,
		Friends:        append([]string(nil), user.Friends...),
		FriendRequests: append([]string(nil), user.FriendRequests...),
		OnlineFriends:  onlineFriends,
	}, nil
}

// SectorSelect builds the sector-select screen view for today.
func (a *App) SectorSelect() (SectorSelectView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, err := a.currentUserLocked()
	if err != nil {
		return SectorSelectView{}, err
	}

	now := a.clock.Now()
	key := a.todayKey()
	view := SectorSelectView{Date: key}
	for sector := 1; sector <= models.SectorCount; sector++ {
		status := SectorStatus{Sector: sector, RemainingSec: int(models.SectorLength / time.Second)}
		if day, exists := user.Records[key]; exists {
			if rec, exists := day.Sectors[sector]; exists {
				remaining := race.Remaining(rec, now)
				status.TaskCount = len(rec.Tasks)
				status.Started = rec.Started()
				status.AllFinished = rec.AllFinished()
				status.RemainingSec = int(remaining / time.Second)
			}
		}
		status.Remaining = leaderboard.FormatDuration(int64(status.RemainingSec) * 1000)
		view.Sectors = append(view.Sectors, status)
	}
	return view, nil
}

// Board builds the task board view for a sector, with per-task elapsed
// display recomputed from the clock.
func (a *App) Board(sector int) (BoardView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sector < 1 || sector > models.SectorCount {
		return BoardView{}, ErrInvalidSector
	}
	user, err := a.currentUserLocked()
	if err != nil {
		return BoardView{}, err
	}

	now := a.clock.Now()
	view := BoardView{Sector: sector}
	day, exists := user.Records[a.todayKey()]
	if !exists {
		view.RemainingSec = int(models.SectorLength / time.Second)
		view.Remaining = leaderboard.FormatDuration(int64(view.RemainingSec) * 1000)
		return view, nil
	}
	rec, exists := day.Sectors[sector]
	if !exists {
		view.RemainingSec = int(models.SectorLength / time.Second)
		view.Remaining = leaderboard.FormatDuration(int64(view.RemainingSec) * 1000)
		return view, nil
	}

	remaining := race.Remaining(rec, now)
	view.Started = rec.Started()
	view.RemainingSec = int(remaining / time.Second)
	view.Remaining = leaderboard.FormatDuration(int64(view.RemainingSec) * 1000)
	for _, task := range rec.Tasks {
		view.Tasks = append(view.Tasks, TaskView{
			ID:      task.ID,
			Name:    task.Name,
			Status:  task.Status,
			Elapsed: leaderboard.FormatDuration(race.Elapsed(task, now).Milliseconds()),
		})
	}
	return view, nil
}

// History builds the history screen view, newest day first.
func (a *App) History() (HistoryView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, err := a.currentUserLocked()
	if err != nil {
		return HistoryView{}, err
	}

	view := HistoryView{Username: user.Username}
	dates := make([]string, 0, len(user.Records))
	for date := range user.Records {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	for _, date := range dates {
		day := user.Records[date]
		summary := DaySummary{Date: date}
		var total int64
		for _, rec := range day.Sectors {
			for _, task := range rec.Tasks {
				if task.Status == models.TaskFinished && task.Duration != nil {
					summary.FinishedTasks++
					total += *task.Duration
				}
			}
		}
		summary.TotalDuration = leaderboard.FormatDuration(total)
		view.Days = append(view.Days, summary)
	}
	return view, nil
}

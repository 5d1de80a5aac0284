// Package httpapi exposes the controller over plain JSON endpoints. Every
// screen is a GET that returns the freshly computed view model; every
// mutation is a POST that returns the screen it lands on.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/pitdev14/workgp/go/internal/grandprix"
	"github.com/pitdev14/workgp/go/internal/leaderboard"
	"github.com/pitdev14/workgp/go/internal/race"
	"github.com/pitdev14/workgp/go/internal/users"
)

// OnlineLister reports which usernames currently hold a live socket. The
// gateway's connection manager satisfies it.
type OnlineLister interface {
	OnlineUsers() []string
}

// Handlers binds the controller and the presence source to the HTTP routes.
type Handlers struct {
	app    *grandprix.App
	online OnlineLister
}

func NewHandlers(app *grandprix.App, online OnlineLister) *Handlers {
	return &Handlers{app: app, online: online}
}

// RegisterRoutes wires all endpoints onto the mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.handleSignUp)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)

	mux.HandleFunc("GET /screen/auth", h.handleAuthScreen)
	mux.HandleFunc("GET /screen/welcome", h.handleWelcomeScreen)
	mux.HandleFunc("GET /screen/sectors", h.handleSectorsScreen)
	mux.HandleFunc("GET /screen/board/{sector}", h.handleBoardScreen)
	mux.HandleFunc("GET /screen/history", h.handleHistoryScreen)

	mux.HandleFunc("POST /sectors/{sector}/enter", h.handleEnterSector)
	mux.HandleFunc("POST /sectors/{sector}/tasks", h.handleAddTask)
	mux.HandleFunc("DELETE /sectors/{sector}/tasks/{id}", h.handleRemoveTask)
	mux.HandleFunc("DELETE /sectors/{sector}/tasks", h.handleClearSector)
	mux.HandleFunc("POST /sectors/{sector}/ready", h.handleReadySector)
	mux.HandleFunc("POST /sectors/{sector}/tasks/{id}/start", h.taskTransition(h.app.StartTask))
	mux.HandleFunc("POST /sectors/{sector}/tasks/{id}/pause", h.taskTransition(h.app.PauseTask))
	mux.HandleFunc("POST /sectors/{sector}/tasks/{id}/resume", h.taskTransition(h.app.ResumeTask))
	mux.HandleFunc("POST /sectors/{sector}/tasks/{id}/finish", h.taskTransition(h.app.FinishTask))
	mux.HandleFunc("POST /sectors/{sector}/tasks/{id}/reset", h.taskTransition(h.app.ResetTask))

	mux.HandleFunc("POST /friends/request", h.handleFriendRequest)
	mux.HandleFunc("POST /friends/accept", h.handleFriendAccept)
	mux.HandleFunc("POST /race/invite", h.handleRaceInvite)

	mux.HandleFunc("GET /leaderboard", h.handleLeaderboard)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

type taskRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, grandprix.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrUnknownUser), errors.Is(err, race.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrDuplicateUsername), errors.Is(err, users.ErrAlreadyFriends):
		return http.StatusConflict
	case errors.Is(err, users.ErrMissingCredentials),
		errors.Is(err, users.ErrSelfFriend),
		errors.Is(err, grandprix.ErrInvalidSector),
		errors.Is(err, grandprix.ErrNotFriends):
		return http.StatusBadRequest
	case errors.Is(err, race.ErrSectorStarted),
		errors.Is(err, race.ErrSectorNotStarted),
		errors.Is(err, race.ErrTooFewTasks),
		errors.Is(err, race.ErrTooManyTasks),
		errors.Is(err, race.ErrTaskNotStarted),
		errors.Is(err, race.ErrTaskStarted),
		errors.Is(err, race.ErrTaskNotRunning),
		errors.Is(err, race.ErrTaskNotPaused),
		errors.Is(err, race.ErrTaskFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func sectorParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	sector, err := strconv.Atoi(r.PathValue("sector"))
	if err != nil {
		writeError(w, grandprix.ErrInvalidSector)
		return 0, false
	}
	return sector, true
}

func (h *Handlers) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.Register(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	h.handleWelcomeScreen(w, r)
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.Login(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	h.handleWelcomeScreen(w, r)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.app.Logout()
	writeJSON(w, http.StatusOK, h.app.Auth())
}

func (h *Handlers) handleAuthScreen(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Auth())
}

func (h *Handlers) handleWelcomeScreen(w http.ResponseWriter, _ *http.Request) {
	view, err := h.app.Welcome(h.online.OnlineUsers())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleSectorsScreen(w http.ResponseWriter, _ *http.Request) {
	view, err := h.app.SectorSelect()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleBoardScreen(w http.ResponseWriter, r *http.Request) {
	sector, ok := sectorParam(w, r)
	if !ok {
		return
	}
	view, err := h.app.Board(sector)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleHistoryScreen(w http.ResponseWriter, _ *http.Request) {
	view, err := h.app.History()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleEnterSector(w http.ResponseWriter, r *http.Request) {
	sector, ok := sectorParam(w, r)
	if !ok {
		return
	}
	if err := h.app.EnterSector(r.Context(), sector); err != nil {
		writeError(w, err)
		return
	}
	h.writeBoard(w, sector)
}

func (h *Handlers) handleAddTask(w http.ResponseWriter, r *http.Request) {
	sector, ok := sectorParam(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.app.AddTask(sector, req.Name); err != nil {
		writeError(w, err)
		return
	}
	h.writeBoard(w, sector)
}

func (h *Handlers) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	sector, ok := sectorParam(w, r)
	if !ok {
		return
	}
	if err := h.app.RemoveTask(sector, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	h.writeBoard(w, sector)
}

func (h *Handlers) handleClearSector(w http.ResponseWriter, r *http.Request) {
	sector, ok := sectorParam(w, r)
	if !ok {
		return
	}
	if err := h.app.ClearSector(r.Context(), sector); err != nil {
		writeError(w, err)
		return
	}
	h.writeBoard(w, sector)
}

// handleReadySector blocks through the ignition sequence; the lights
// themselves stream over the gateway.
func (h *Handlers) handleReadySector(w http.ResponseWriter, r *http.Request) {
	sector, ok := sectorParam(w, r)
	if !ok {
		return
	}
	if err := h.app.ReadySector(r.Context(), sector); err != nil {
		writeError(w, err)
		return
	}
	h.writeBoard(w, sector)
}

func (h *Handlers) taskTransition(op func(sector int, taskID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sector, ok := sectorParam(w, r)
		if !ok {
			return
		}
		if err := op(sector, r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		h.writeBoard(w, sector)
	}
}

func (h *Handlers) writeBoard(w http.ResponseWriter, sector int) {
	view, err := h.app.Board(sector)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.SendFriendRequest(req.Username); err != nil {
		writeError(w, err)
		return
	}
	h.handleWelcomeScreen(w, r)
}

func (h *Handlers) handleFriendAccept(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.AcceptFriendRequest(req.Username); err != nil {
		writeError(w, err)
		return
	}
	h.handleWelcomeScreen(w, r)
}

func (h *Handlers) handleRaceInvite(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.app.InviteToRace(req.Username); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	mode := leaderboard.SortByPoints
	if r.URL.Query().Get("mode") == string(leaderboard.SortByDuration) {
		mode = leaderboard.SortByDuration
	}
	writeJSON(w, http.StatusOK, h.app.Leaderboard(r.Context(), mode))
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitdev14/workgp/go/internal/bus"
	"github.com/pitdev14/workgp/go/internal/grandprix"
	"github.com/pitdev14/workgp/go/internal/remote"
	"github.com/pitdev14/workgp/go/internal/store"
)

type staticOnline []string

func (s staticOnline) OnlineUsers() []string { return s }

func newTestServer(t *testing.T, online []string) (*httptest.Server, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local))
	b := bus.NewInProcBus()
	app := grandprix.NewApp(store.NewMemoryStore(), b, fc, remote.Noop{})

	mux := http.NewServeMux()
	NewHandlers(app, staticOnline(online)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		app.Close()
		b.Close()
	})
	return srv, fc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestSignUpReturnsWelcome(t *testing.T) {
	srv, _ := newTestServer(t, []string{"bob"})

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var welcome grandprix.WelcomeView
	decodeInto(t, resp, &welcome)
	assert.Equal(t, "alice", welcome.Username)
	assert.Zero(t, welcome.Points)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw1"})
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/auth/logout", nil)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/auth/login", credentialsRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errBody errorResponse
	decodeInto(t, resp, &errBody)
	assert.NotEmpty(t, errBody.Error)
}

func TestScreensRequireLogin(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/screen/welcome")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/sectors/1/tasks", taskRequest{Name: "warmup"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTaskBoardRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw"})
	resp.Body.Close()

	var board grandprix.BoardView
	for i := 0; i < 5; i++ {
		resp = postJSON(t, srv.URL+"/sectors/1/tasks", taskRequest{Name: fmt.Sprintf("lap %d", i+1)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decodeInto(t, resp, &board)
	}
	require.Len(t, board.Tasks, 5)
	assert.False(t, board.Started)
	assert.Equal(t, "45:00", board.Remaining)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sectors/1/tasks/"+board.Tasks[4].ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeInto(t, resp, &board)
	require.Len(t, board.Tasks, 4)

	// Removal stops at the 4-task floor.
	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/sectors/1/tasks/"+board.Tasks[3].ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReadyRejectsShortGrid(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw"})
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/sectors/1/tasks", taskRequest{Name: "only one"})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/sectors/1/ready", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInvalidSectorPaths(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw"})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/sectors/9/tasks", taskRequest{Name: "nope"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/sectors/abc/tasks", taskRequest{Name: "nope"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFriendFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, []string{"alice", "bob"})

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "bob", Password: "pw"})
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/auth/logout", nil)
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw"})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/friends/request", usernameRequest{Username: "ghost"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/friends/request", usernameRequest{Username: "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/auth/logout", nil)
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/auth/login", credentialsRequest{Username: "bob", Password: "pw"})
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/friends/accept", usernameRequest{Username: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var welcome grandprix.WelcomeView
	decodeInto(t, resp, &welcome)
	assert.Equal(t, []string{"alice"}, welcome.Friends)
	assert.Contains(t, welcome.OnlineFriends, "alice")

	resp = postJSON(t, srv.URL+"/race/invite", usernameRequest{Username: "alice"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/auth/signup", credentialsRequest{Username: "alice", Password: "pw"})
	resp.Body.Close()

	for _, mode := range []string{"", "?mode=duration"} {
		resp, err := http.Get(srv.URL + "/leaderboard" + mode)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

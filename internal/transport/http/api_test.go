package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"karoot/internal/app"
	"karoot/internal/domain"
)

func TestAPIHostLifecycle(t *testing.T) {
	_, server := newTestServer(t)
	client := newClient(t)

	var game domain.Game
	resp := hostRequest(t, client, http.MethodPost, server.URL+"/api/games", `{"title":"Carrot Quiz"}`, &game)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, domain.StatusDraft, game.Status)
	assert.True(t, domain.ValidCode(game.Code))

	resp = hostRequest(t, client, http.MethodPatch, server.URL+"/api/games/"+game.ID, `{"title":"Carrots"}`, &game)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Carrots", game.Title)
	resp = hostRequest(t, client, http.MethodPatch, server.URL+"/api/games/"+game.ID, `{"title":"C"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "title too short")

	resp = hostRequest(t, client, http.MethodPost, server.URL+"/api/games/"+game.ID+"/publish", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "publishing without questions")

	var q domain.Question
	resp = hostRequest(t, client, http.MethodPost, server.URL+"/api/games/"+game.ID+"/questions", `{"text":"Orange vegetable?"}`, &q)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, q.Options, 4)

	edit := `{"text":"Which is orange?","points":2,"options":[` +
		`{"text":"Carrot","isCorrect":true},{"text":"Leek"},{"text":"Kale"},{"text":"Pea"}]}`
	resp = hostRequest(t, client, http.MethodPut, server.URL+"/api/games/"+game.ID+"/questions/"+q.ID, edit, &q)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Carrot", q.Options[0].Text)
	assert.Equal(t, 2, q.Points)

	resp = hostRequest(t, client, http.MethodPost, server.URL+"/api/games/"+game.ID+"/publish", `{"title":"Root Quiz"}`, &game)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.StatusLobby, game.Status)
	assert.Equal(t, "Root Quiz", game.Title)

	resp = hostRequest(t, client, http.MethodDelete, server.URL+"/api/games/"+game.ID+"/questions/"+q.ID, "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "questions are frozen once published")

	resp = hostRequest(t, client, http.MethodPost, server.URL+"/api/games/"+game.ID+"/start", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "starting an empty lobby")
	joinGame(t, newClient(t), server.URL, game.Code, "Alice")

	for _, action := range []string{"start", "next"} {
		resp = hostRequest(t, client, http.MethodPost, server.URL+"/api/games/"+game.ID+"/"+action, "", &game)
		require.Equal(t, http.StatusOK, resp.StatusCode, action)
	}
	assert.Equal(t, domain.StatusFinished, game.Status, "next past the last question ends the game")

	var clone domain.Game
	resp = hostRequest(t, client, http.MethodPost, server.URL+"/api/games/"+game.ID+"/clone", "", &clone)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, domain.StatusDraft, clone.Status)
	assert.NotEqual(t, game.ID, clone.ID)

	var games []domain.Game
	resp = hostRequest(t, client, http.MethodGet, server.URL+"/api/games", "", &games)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, games, 2)
}

func TestAPIRejectsOtherHost(t *testing.T) {
	service, server := newTestServer(t)
	game := publishedGame(t, service)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/games/"+game.ID, nil)
	require.NoError(t, err)
	req.Header.Set(HostHeader, "intruder")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPIJoinAndLeave(t *testing.T) {
	service, server := newTestServer(t)
	game := publishedGame(t, service)
	alice := newClient(t)

	joined := joinGame(t, alice, server.URL, game.Code, "Alice")
	assert.Equal(t, "Alice", joined.Participant.Name)
	assert.Equal(t, game.ID, joined.Game.ID)

	resp, err := newClient(t).Post(server.URL+"/api/join", "application/json",
		strings.NewReader(fmt.Sprintf(`{"code":%q,"nickname":"Alice"}`, game.Code)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "duplicate nickname")

	resp, err = alice.Get(server.URL + "/api/play/" + game.ID)
	require.NoError(t, err)
	var view app.PlayerView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, app.ScreenLobby, view.Screen)
	assert.Equal(t, joined.Participant.ID, view.Participant.ID)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/play/"+game.ID+"/me", nil)
	resp, err = alice.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = alice.Get(server.URL + "/api/play/" + game.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIJoinUnknownCode(t *testing.T) {
	_, server := newTestServer(t)
	resp, err := http.Post(server.URL+"/api/join", "application/json", strings.NewReader(`{"code":"0000","nickname":"Bob"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIQRCode(t *testing.T) {
	service, server := newTestServer(t)
	game := publishedGame(t, service)

	resp, err := http.Get(server.URL + "/api/games/" + game.ID + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}

func TestJoinRateLimited(t *testing.T) {
	service, _ := newTestServer(t)
	router, throttle := NewRouter(service, RouterConfig{JoinRate: 0.001, JoinBurst: 1})
	defer throttle.Stop()

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join", strings.NewReader(`{"code":"0000","nickname":"Bob"}`)))
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusTooManyRequests}, statuses)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.Invalid("title", "too short"):             http.StatusBadRequest,
		domain.ErrNotHost:                                http.StatusForbidden,
		fmt.Errorf("lookup: %w", domain.ErrGameNotFound): http.StatusNotFound,
		domain.ErrNicknameTaken:                          http.StatusConflict,
		domain.ErrStatusConflict:                         http.StatusConflict,
		domain.ErrCodeSpaceExhausted:                     http.StatusServiceUnavailable,
		errors.New("connection reset"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func hostRequest(t *testing.T, client *http.Client, method, url, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(HostHeader, testHost)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

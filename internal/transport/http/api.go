package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
	"karoot/internal/app"
	"karoot/internal/domain"
)

// HostHeader carries the host identity set by the upstream auth proxy.
const HostHeader = "X-Karoot-Host"

const participantCookiePrefix = "karoot_p_"

// API serves the REST surface of the game service.
type API struct {
	service   *app.GameService
	publicURL string
}

func NewAPI(service *app.GameService, publicURL string) *API {
	return &API{service: service, publicURL: strings.TrimSuffix(publicURL, "/")}
}

type titleRequest struct {
	Title string `json:"title"`
}

type questionRequest struct {
	Text    string            `json:"text"`
	Points  int               `json:"points"`
	Options []app.OptionInput `json:"options"`
}

type joinRequest struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
}

type joinResponse struct {
	Participant domain.Participant `json:"participant"`
	Game        domain.Game        `json:"game"`
}

// playerSession is what the participant cookie remembers between page loads.
type playerSession struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decode(w, r, &req) {
		return
	}
	game, err := a.service.CreateGame(r.Context(), hostID(r), req.Title)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	host := hostID(r)
	if host == "" {
		respondErr(w, r, domain.ErrNotHost)
		return
	}
	games, err := a.service.ListGames(r.Context(), host)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (a *API) hostView(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.HostView(r.Context(), hostID(r), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) updateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decode(w, r, &req) {
		return
	}
	game, err := a.service.UpdateTitle(r.Context(), hostID(r), mux.Vars(r)["id"], req.Title)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (a *API) addQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := a.service.AddQuestion(r.Context(), hostID(r), mux.Vars(r)["id"], req.Text)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (a *API) editQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	q, err := a.service.EditQuestion(r.Context(), hostID(r), vars["id"], vars["qid"], req.Text, req.Points, req.Options)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.service.DeleteQuestion(r.Context(), hostID(r), vars["id"], vars["qid"]); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) lifecycle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx, host, gameID := r.Context(), hostID(r), vars["id"]

	var (
		game domain.Game
		err  error
	)
	status := http.StatusOK
	switch vars["action"] {
	case "publish":
		var req titleRequest
		if r.ContentLength > 0 && !decode(w, r, &req) {
			return
		}
		game, err = a.service.Publish(ctx, host, gameID, req.Title)
	case "unpublish":
		game, err = a.service.Unpublish(ctx, host, gameID)
	case "start":
		game, err = a.service.StartGame(ctx, host, gameID)
	case "next":
		game, err = a.service.NextQuestion(ctx, host, gameID)
	case "end":
		game, err = a.service.EndGame(ctx, host, gameID)
	case "restart":
		game, err = a.service.RestartSameQuestions(ctx, host, gameID)
	case "clone":
		game, err = a.service.CloneAsNewGame(ctx, host, gameID)
		status = http.StatusCreated
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, status, game)
}

// qr renders a PNG QR code pointing at the join page for the game's code.
func (a *API) qr(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.Game(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, r, err)
		return
	}

	const qrSize = 320
	png, err := qrcode.Encode(a.joinURL(r, game.Code), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) joinURL(r *http.Request, code string) string {
	base := a.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join?code=" + url.QueryEscape(code)
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	p, game, err := a.service.JoinGame(r.Context(), strings.TrimSpace(req.Code), req.Nickname)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	setPlayerCookie(w, game.ID, playerSession{ParticipantID: p.ID, Nickname: p.Name})
	writeJSON(w, http.StatusCreated, joinResponse{Participant: p, Game: game})
}

func (a *API) playerView(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	session, ok := playerCookie(r, gameID)
	if !ok {
		respondErr(w, r, domain.ErrParticipantNotFound)
		return
	}
	view, err := a.service.PlayerView(r.Context(), gameID, session.ParticipantID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		clearPlayerCookie(w, gameID)
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// leave forgets the player's session so they can join again.
func (a *API) leave(w http.ResponseWriter, r *http.Request) {
	clearPlayerCookie(w, mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// hostID reads the host identity; websocket clients may pass it as a query parameter.
func hostID(r *http.Request) string {
	if h := r.Header.Get(HostHeader); h != "" {
		return h
	}
	return r.URL.Query().Get("host")
}

func setPlayerCookie(w http.ResponseWriter, gameID string, s playerSession) {
	data, _ := json.Marshal(s)
	http.SetCookie(w, &http.Cookie{
		Name:     participantCookiePrefix + gameID,
		Value:    url.QueryEscape(string(data)),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearPlayerCookie(w http.ResponseWriter, gameID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     participantCookiePrefix + gameID,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func playerCookie(r *http.Request, gameID string) (playerSession, bool) {
	c, err := r.Cookie(participantCookiePrefix + gameID)
	if err != nil {
		return playerSession{}, false
	}
	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return playerSession{}, false
	}
	var s playerSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.ParticipantID == "" {
		return playerSession{}, false
	}
	return s, true
}

package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
	"karoot/internal/app"
)

// RouterConfig tunes the public surface.
type RouterConfig struct {
	PublicURL string
	JoinRate  rate.Limit
	JoinBurst int
	JoinIdle  time.Duration
}

// NewRouter wires the REST API and websocket endpoints. The returned throttle should be stopped on shutdown.
func NewRouter(service *app.GameService, cfg RouterConfig) (*mux.Router, *JoinThrottle) {
	if cfg.JoinRate <= 0 {
		cfg.JoinRate = rate.Limit(1)
	}
	if cfg.JoinBurst <= 0 {
		cfg.JoinBurst = 5
	}
	api := NewAPI(service, cfg.PublicURL)
	ws := NewWSHandler(service)
	throttle := NewJoinThrottle(ThrottleConfig{Rate: cfg.JoinRate, Burst: cfg.JoinBurst, Idle: cfg.JoinIdle})

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/games", api.createGame).Methods(http.MethodPost)
	s.HandleFunc("/games", api.listGames).Methods(http.MethodGet)
	s.HandleFunc("/games/{id}", api.hostView).Methods(http.MethodGet)
	s.HandleFunc("/games/{id}", api.updateTitle).Methods(http.MethodPatch)
	s.HandleFunc("/games/{id}/qr", api.qr).Methods(http.MethodGet)
	s.HandleFunc("/games/{id}/questions", api.addQuestion).Methods(http.MethodPost)
	s.HandleFunc("/games/{id}/questions/{qid}", api.editQuestion).Methods(http.MethodPut)
	s.HandleFunc("/games/{id}/questions/{qid}", api.deleteQuestion).Methods(http.MethodDelete)
	s.HandleFunc("/games/{id}/{action:publish|unpublish|start|next|end|restart|clone}", api.lifecycle).Methods(http.MethodPost)
	s.Handle("/join", throttle.Middleware(http.HandlerFunc(api.join))).Methods(http.MethodPost)
	s.HandleFunc("/play/{id}", api.playerView).Methods(http.MethodGet)
	s.HandleFunc("/play/{id}/me", api.leave).Methods(http.MethodDelete)

	r.HandleFunc("/ws/host/{id}", ws.ServeHost)
	r.HandleFunc("/ws/play/{id}", ws.ServePlayer)
	return r, throttle
}

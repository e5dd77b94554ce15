package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"karoot/internal/app"
	"karoot/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	OptionID string `json:"optionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// connection owns the single writer of a websocket and the goroutine that
// turns change events into outbound messages.
type connection struct {
	conn         *websocket.Conn
	send         chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
	updatesDone  chan struct{}
}

func newConnection(conn *websocket.Conn) *connection {
	c := &connection{
		conn:         conn,
		send:         make(chan outboundMessage[any], 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
		updatesDone:  make(chan struct{}),
	}
	go func() {
		defer close(c.writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()
	return c
}

// push queues a message unless the connection is shutting down.
func (c *connection) push(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.closeSignals:
	case <-c.writerDone:
	}
}

func (c *connection) fail(err error) {
	c.push("error", errorPayload{Message: wsMessage(err)})
}

// watch hands every event to handle until the connection closes.
func (c *connection) watch(events <-chan domain.Event, handle func(domain.Event)) {
	go func() {
		defer close(c.updatesDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				handle(event)
			case <-c.closeSignals:
				return
			}
		}
	}()
}

func (c *connection) shutdown() {
	close(c.closeSignals)
	<-c.updatesDone
	close(c.send)
	<-c.writerDone
}

// ServeHost streams the host view of a game and accepts lifecycle commands.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	host := hostID(r)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	monitor, err := h.service.Monitor(ctx, host, gameID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	defer monitor.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := newConnection(conn)
	render := func() {
		view, err := monitor.View(ctx)
		if err != nil {
			c.fail(err)
			return
		}
		c.push("view", view)
	}
	c.watch(monitor.Events(), func(event domain.Event) {
		if err := monitor.Apply(ctx, event); err != nil {
			c.fail(err)
			return
		}
		render()
	})
	render()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var cmdErr error
		switch inbound.Type {
		case "start":
			_, cmdErr = h.service.StartGame(ctx, host, gameID)
		case "next":
			_, cmdErr = h.service.NextQuestion(ctx, host, gameID)
		case "end":
			_, cmdErr = h.service.EndGame(ctx, host, gameID)
		case "refresh":
			if cmdErr = monitor.Sync(ctx); cmdErr == nil {
				render()
			}
		default:
			c.push("error", errorPayload{Message: "unsupported message type"})
			continue
		}
		if cmdErr != nil {
			c.fail(cmdErr)
		}
	}

	cancel()
	c.shutdown()
}

// ServePlayer streams the participant's screen and takes their answers.
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cookie, ok := playerCookie(r, gameID)
	if !ok {
		respondErr(w, r, domain.ErrParticipantNotFound)
		return
	}
	if _, _, err := h.service.Participant(ctx, gameID, cookie.ParticipantID); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			clearPlayerCookie(w, gameID)
		}
		respondErr(w, r, err)
		return
	}

	events, unsubscribe, err := h.service.Subscribe(ctx, gameID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := h.service.NewPlayerSession(gameID, cookie.ParticipantID)
	c := newConnection(conn)
	render := func() {
		view, err := session.View(ctx)
		if err != nil {
			c.fail(err)
			return
		}
		c.push("view", view)
	}
	c.watch(events, func(event domain.Event) {
		switch event.Type {
		case domain.EventGameUpdated, domain.EventParticipantJoined:
			render()
		}
	})
	render()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.OptionID == "" {
				c.push("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			result, err := session.Submit(ctx, payload.OptionID)
			if err != nil {
				c.fail(err)
				continue
			}
			c.push("answerResult", result)
		case "refresh":
			render()
		default:
			c.push("error", errorPayload{Message: "unsupported message type"})
		}
	}

	cancel()
	c.shutdown()
}

// wsMessage hides internal failures from clients the same way the REST API does.
func wsMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		log.Printf("ws request failed: %v", err)
		return "something went wrong, please try again"
	}
	return err.Error()
}

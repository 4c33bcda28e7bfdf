package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"duel-quiz-service/internal/app"
	"duel-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.DuelService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.DuelService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
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

type joinPayload struct {
	Mode     string `json:"mode"`
	RoomCode string `json:"roomCode"`
}

type answerPayload struct {
	SessionID      string `json:"sessionId"`
	QuestionIndex  int    `json:"questionIndex"`
	SelectedOption int    `json:"selectedOption"`
}

type skipPayload struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
}

type sessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// trySend queues an outbound message unless the writer goroutine has already
// exited; a dead writer must never wedge the read loop on a full buffer.
func trySend(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-writerDone:
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the duel
// use cases. One connection drives at most one live session at a time.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if playerID == "" || displayName == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "err", err)
				return
			}
		}
	}()

	sessionID := ""
	var detach func()

	// attach subscribes the player and pumps session events to the socket.
	attach := func(id string) error {
		events, cancel, err := h.service.Subscribe(id, playerID)
		if err != nil {
			return err
		}
		pumpDone := make(chan struct{})
		go func() {
			defer close(pumpDone)
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev.Payload}:
					case <-writerDone:
						return
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
		sessionID = id
		detach = func() {
			cancel()
			<-pumpDone
			sessionID = ""
			detach = nil
		}
		return nil
	}

	fail := func(err error) {
		trySend(send, writerDone, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "join-session":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid join payload"))
				continue
			}
			if sessionID != "" {
				if h.service.SessionActive(sessionID) {
					fail(errors.New("already in a session"))
					continue
				}
				detach()
			}
			session, err := h.join(r, playerID, displayName, payload)
			if err != nil {
				fail(err)
				continue
			}
			if err := attach(session.ID()); err != nil {
				fail(err)
				continue
			}
			_ = h.service.Resync(session.ID(), playerID)

		case "resume-session":
			var payload sessionRefPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid resume payload"))
				continue
			}
			session, err := h.service.Resume(r.Context(), payload.SessionID, playerID)
			if err != nil {
				fail(err)
				continue
			}
			if sessionID != "" {
				detach()
			}
			if err := attach(session.ID()); err != nil {
				fail(err)
				continue
			}
			_ = h.service.Resync(session.ID(), playerID)

		case "submit-answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid answer payload"))
				continue
			}
			_, err := h.service.SubmitAnswer(r.Context(), payload.SessionID, playerID, payload.QuestionIndex, payload.SelectedOption)
			if err != nil && !errors.Is(err, domain.ErrSessionFinished) {
				fail(err)
			}

		case "skip-question":
			var payload skipPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid skip payload"))
				continue
			}
			_, err := h.service.SkipQuestion(r.Context(), payload.SessionID, playerID, payload.QuestionIndex)
			if err != nil && !errors.Is(err, domain.ErrSessionFinished) {
				fail(err)
			}

		case "leave-session":
			var payload sessionRefPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid leave payload"))
				continue
			}
			h.service.Leave(r.Context(), payload.SessionID, playerID)
			if sessionID == payload.SessionID && detach != nil {
				detach()
			}

		case "resync-request":
			var payload sessionRefPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid resync payload"))
				continue
			}
			if err := h.service.Resync(payload.SessionID, playerID); err != nil {
				fail(err)
			}

		default:
			fail(errors.New("unsupported message type"))
		}
	}

	// A dropped connection counts as leaving; terminal sessions ignore it.
	if sessionID != "" {
		h.service.Leave(r.Context(), sessionID, playerID)
	}
	h.service.CancelQueue(r.Context(), playerID)

	close(closeSignals)
	if detach != nil {
		detach()
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) join(r *http.Request, playerID, displayName string, payload joinPayload) (*app.Session, error) {
	switch domain.MatchMode(payload.Mode) {
	case domain.ModeRandom:
		return h.service.JoinRandom(r.Context(), playerID, displayName)
	case domain.ModeRoom:
		if payload.RoomCode == "" {
			return h.service.CreateRoom(r.Context(), playerID, displayName)
		}
		return h.service.JoinRoom(r.Context(), playerID, displayName, payload.RoomCode)
	default:
		return nil, errors.New("unknown match mode")
	}
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-engine/internal/app"
	"quiz-engine/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(service *app.QuizService, log logrus.FieldLogger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		service: service,
		log:     log,
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

type selectPayload struct {
	Choice string `json:"choice"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type questionPayload struct {
	SessionID string              `json:"sessionId"`
	Question  domain.QuestionView `json:"question"`
	Remaining int                 `json:"remaining"`
}

type tickPayload struct {
	Remaining int `json:"remaining"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ServeWS upgrades the request, starts a quiz attempt for userId/category and relays the
// session's state changes until the client disconnects. Disconnecting abandons the attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	category := r.URL.Query().Get("category")
	if userID == "" || category == "" {
		http.Error(w, "missing userId or category", http.StatusBadRequest)
		return
	}
	log := h.log.WithFields(logrus.Fields{"user_id": userID, "category": category})

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	session, err := h.service.Start(r.Context(), userID, category)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer h.service.Abandon(session.ID())
	log = log.WithField("session_id", session.ID())

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := eventMessage(ev)
				if !ok {
					continue
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid select payload"}})
				continue
			}
			err = session.SelectAnswer(payload.Choice)
		case "next":
			err = session.Advance()
		case "previous":
			err = session.Retreat()
		case "restart":
			err = session.Restart(r.Context())
		case "state":
			if msg, ok := eventMessage(session.Snapshot()); ok {
				reply(msg)
			}
			continue
		default:
			reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
			continue
		}
		if err != nil {
			log.WithError(err).WithField("message", inbound.Type).Debug("rejected quiz command")
			reply(errorMessage(err))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func eventMessage(ev app.Event) (outboundMessage, bool) {
	switch ev.Type {
	case app.EventQuestion:
		return outboundMessage{Type: ev.Type, Payload: questionPayload{
			SessionID: ev.SessionID,
			Question:  *ev.Question,
			Remaining: ev.Remaining,
		}}, true
	case app.EventTick:
		return outboundMessage{Type: ev.Type, Payload: tickPayload{Remaining: ev.Remaining}}, true
	case app.EventCompleted:
		return outboundMessage{Type: ev.Type, Payload: ev.Result}, true
	default:
		return outboundMessage{}, false
	}
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{
		Message:   err.Error(),
		Retryable: errors.Is(err, domain.ErrTransientFetch),
	}}
}

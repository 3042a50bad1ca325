// Package http is the UI-shell boundary: a websocket protocol wrapping
// ingestion, upload and the exam session use cases.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"quizbank-service/internal/app"
	"quizbank-service/internal/auth"
	"quizbank-service/internal/domain"
	"quizbank-service/internal/ingest"
)

// WSHandler serves one exam session per connection. Identity is
// resolved at connect time, before any upload or exam operation.
type WSHandler struct {
	uploader *app.BatchUploader
	bank     *app.QuestionBankSync
	provider auth.Provider
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[chan catalogPayload]struct{}
}

func NewWSHandler(uploader *app.BatchUploader, bank *app.QuestionBankSync, provider auth.Provider) *WSHandler {
	return &WSHandler{
		uploader: uploader,
		bank:     bank,
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[chan catalogPayload]struct{}),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type joinedPayload struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
}

type catalogPayload struct {
	Subjects     []string `json:"subjects"`
	Difficulties []string `json:"difficulties"`
}

type uploadPayload struct {
	CSV string `json:"csv"`
}

type validationReport struct {
	HeaderValid bool     `json:"headerValid"`
	RowCount    int      `json:"rowCount"`
	Errors      []string `json:"errors"`
}

type uploadResult struct {
	UploadedCount int `json:"uploadedCount"`
}

type startExamPayload struct {
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty"`
}

type answerPayload struct {
	SelectedIndex int `json:"selectedIndex"`
}

type errorPayload struct {
	Message      string `json:"message"`
	PartialCount int    `json:"partialCount,omitempty"`
}

// BroadcastCatalog pushes the current subject/difficulty projections to
// every connected client. The server calls it from the question bank
// subscription.
func (h *WSHandler) BroadcastCatalog() {
	payload := catalogPayload{
		Subjects:     h.bank.Subjects(),
		Difficulties: h.bank.Difficulties(),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.conns {
		select {
		case ch <- payload:
		default:
			// drop for slow clients; the next update supersedes this one
		}
	}
}

func (h *WSHandler) register() (chan catalogPayload, func()) {
	ch := make(chan catalogPayload, 4)
	h.mu.Lock()
	h.conns[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.conns, ch)
		h.mu.Unlock()
	}
}

// ServeWS upgrades the request, resolves identity and runs the message
// loop for one client.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// One-shot identity resolution; on failure the client observes a
	// degraded state and no further operations are served.
	var principal auth.Principal
	if token := r.URL.Query().Get("token"); token != "" {
		principal, err = h.provider.SignInWithToken(r.Context(), token)
	} else {
		principal, err = h.provider.SignInAnonymous(r.Context())
	}
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "authError", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	catalog, unregister := h.register()
	closeSignals := make(chan struct{})
	catalogDone := make(chan struct{})
	go func() {
		defer close(catalogDone)
		for {
			select {
			case payload := <-catalog:
				select {
				case send <- outboundMessage[any]{Type: "catalog", Payload: payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	engine := app.NewExamEngine()
	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{UID: principal.UID, Role: principal.Role}}
	send <- outboundMessage[any]{Type: "catalog", Payload: catalogPayload{
		Subjects:     h.bank.Subjects(),
		Difficulties: h.bank.Difficulties(),
	}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "upload":
			h.handleUpload(r, send, principal, inbound.Payload)
		case "startExam":
			h.handleStartExam(send, engine, inbound.Payload)
		case "answer":
			h.handleAnswer(send, engine, inbound.Payload)
		case "reset":
			engine.Reset()
			send <- outboundMessage[any]{Type: "resetDone", Payload: struct{}{}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	unregister()
	close(closeSignals)
	<-catalogDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleUpload(r *http.Request, send chan<- outboundMessage[any], principal auth.Principal, raw json.RawMessage) {
	if !principal.CanUpload() {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: domain.ErrForbidden.Error()}}
		return
	}
	var payload uploadPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid upload payload"}}
		return
	}

	result := ingest.Parse(payload.CSV)
	if !result.HeaderValid || len(result.Errors) > 0 || len(result.Rows) == 0 {
		send <- outboundMessage[any]{Type: "validationReport", Payload: validationReport{
			HeaderValid: result.HeaderValid,
			RowCount:    len(result.Rows),
			Errors:      result.Errors,
		}}
		return
	}

	count, err := h.uploader.Upload(r.Context(), result.Rows, principal.UID)
	if err != nil {
		var uploadErr *app.UploadError
		if errors.As(err, &uploadErr) {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{
				Message:      uploadErr.Error(),
				PartialCount: uploadErr.PartialCount,
			}}
			return
		}
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	send <- outboundMessage[any]{Type: "uploadResult", Payload: uploadResult{UploadedCount: count}}
}

func (h *WSHandler) handleStartExam(send chan<- outboundMessage[any], engine *app.ExamEngine, raw json.RawMessage) {
	var payload startExamPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid startExam payload"}}
		return
	}
	if err := engine.StartExam(h.bank.View(), payload.Subject, payload.Difficulty); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	if prompt, ok := engine.CurrentQuestion(); ok {
		send <- outboundMessage[any]{Type: "question", Payload: prompt}
		return
	}
	// Empty filter result: the engine silently stayed idle.
	send <- outboundMessage[any]{Type: "noQuestions", Payload: struct{}{}}
}

func (h *WSHandler) handleAnswer(send chan<- outboundMessage[any], engine *app.ExamEngine, raw json.RawMessage) {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
		return
	}
	if err := engine.Answer(payload.SelectedIndex); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	if prompt, ok := engine.CurrentQuestion(); ok {
		send <- outboundMessage[any]{Type: "question", Payload: prompt}
		return
	}
	score, err := engine.Score()
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	send <- outboundMessage[any]{Type: "score", Payload: score}
}

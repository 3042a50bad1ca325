package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"quizbank-service/internal/app"
	"quizbank-service/internal/auth"
	"quizbank-service/internal/domain"
	"quizbank-service/internal/infra/memory"
)

var testSecret = []byte("ws-test-secret")

func TestUploadAndExamFlow(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, server, conductorToken(t))
	defer conn.Close()

	expectType(t, conn, "joined")
	expectType(t, conn, "catalog")

	csv := strings.Join([]string{
		"subject,difficulty,question,option1,option2,option3,option4,correctAnswerIndex",
		"Math,Easy,What is 2+2?,3,4,5,6,1",
		"Math,Easy,What is 3+3?,5,6,7,8,1",
	}, "\n")
	writeMsg(t, conn, "upload", map[string]any{"csv": csv})

	// The uploadResult and the rebuilt-catalog push race; accept both orders.
	var uploadRes, catalog map[string]any
	for i := 0; i < 4 && (uploadRes == nil || catalog == nil); i++ {
		typ, payload := readAny(t, conn)
		switch typ {
		case "uploadResult":
			uploadRes = payload
		case "catalog":
			catalog = payload
		default:
			t.Fatalf("unexpected message %s (%v)", typ, payload)
		}
	}
	if uploadRes == nil || uploadRes["uploadedCount"].(float64) != 2 {
		t.Fatalf("expected 2 uploaded, got %v", uploadRes)
	}
	subjects, _ := catalog["subjects"].([]any)
	if len(subjects) != 1 || subjects[0] != "Math" {
		t.Fatalf("expected catalog [Math], got %v", catalog)
	}

	writeMsg(t, conn, "startExam", map[string]any{"subject": "Math", "difficulty": "Easy"})
	question := expectType(t, conn, "question")
	if question["total"].(float64) != 2 {
		t.Fatalf("expected 2 questions in exam, got %v", question["total"])
	}
	if _, hasAnswer := question["correctAnswerIndex"]; hasAnswer {
		t.Fatal("question prompt must not leak the correct answer")
	}

	writeMsg(t, conn, "answer", map[string]any{"selectedIndex": 1})
	expectType(t, conn, "question")
	writeMsg(t, conn, "answer", map[string]any{"selectedIndex": 1})
	score := expectType(t, conn, "score")
	if score["correct"].(float64) != 2 || score["total"].(float64) != 2 {
		t.Fatalf("expected 2/2, got %v", score)
	}

	writeMsg(t, conn, "reset", map[string]any{})
	expectType(t, conn, "resetDone")
}

func TestStartExamWithNoMatches(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, server, "")
	defer conn.Close()

	expectType(t, conn, "joined")
	expectType(t, conn, "catalog")

	writeMsg(t, conn, "startExam", map[string]any{"subject": "Nope", "difficulty": "Nope"})
	expectType(t, conn, "noQuestions")
}

func TestUploadRequiresConductor(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, server, "") // anonymous: student role
	defer conn.Close()

	expectType(t, conn, "joined")
	expectType(t, conn, "catalog")

	writeMsg(t, conn, "upload", map[string]any{"csv": "whatever"})
	payload := expectType(t, conn, "error")
	if !strings.Contains(payload["message"].(string), "not allowed") {
		t.Fatalf("expected forbidden error, got %v", payload["message"])
	}
}

func TestUploadValidationReport(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, server, conductorToken(t))
	defer conn.Close()

	expectType(t, conn, "joined")
	expectType(t, conn, "catalog")

	csv := "subject,difficulty,question,option1,option2,option3,option4,correctAnswerIndex\n" +
		"Math,Easy,Q?,a,b,c,d,9"
	writeMsg(t, conn, "upload", map[string]any{"csv": csv})
	payload := expectType(t, conn, "validationReport")
	if payload["headerValid"].(bool) != true {
		t.Fatalf("expected valid header, got %v", payload)
	}
	errs, _ := payload["errors"].([]any)
	if len(errs) != 1 || !strings.Contains(errs[0].(string), "Line 2") {
		t.Fatalf("expected one line-2 error, got %v", errs)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	store := memory.NewQuestionStore()
	bank := app.NewQuestionBankSync(store, store)
	uploader := app.NewBatchUploader(store)
	provider := auth.NewJWTProvider(testSecret)
	handler := NewWSHandler(uploader, bank, provider)

	cancel, err := bank.Subscribe(context.Background(), func(map[string]domain.Question) {
		handler.BroadcastCatalog()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	return server, func() {
		server.Close()
		cancel()
	}
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func conductorToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "conductor-1",
		"role": auth.RoleConductor,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func writeMsg(t *testing.T, conn *websocket.Conn, msgType string, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readAny(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}

func expectType(t *testing.T, conn *websocket.Conn, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read while waiting for %s: %v", expect, err)
	}
	if msg.Type != expect {
		t.Fatalf("expected message %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Payload
}

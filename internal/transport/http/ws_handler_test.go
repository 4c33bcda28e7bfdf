package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"duel-quiz-service/internal/app"
	"duel-quiz-service/internal/domain"
	"duel-quiz-service/internal/infra/memory"
)

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool := make([]domain.Question, 0, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("q%d", i)
		pool = append(pool, domain.Question{
			ID:     id,
			Prompt: "pick the right option",
			Options: []domain.Option{
				{ID: id + "-a", Text: "wrong"},
				{ID: id + "-b", Text: "right", Correct: true},
			},
			Domain: "general",
		})
	}
	loader := memory.NewStaticQuestionLoader(map[string][]domain.Question{"general": pool})

	service := app.NewDuelService(app.Config{
		QuestionCount: 10,
		Composition:   []domain.DomainQuota{{Domain: "general", Count: 10}},
		TimeLimit:     2 * time.Minute,
		RatingK:       32,
		RatingFloor:   800,
		TimerTick:     time.Minute,
	}, memory.NewSessionStore(), memory.NewQuestionRepository(loader, time.Minute), memory.NewProfileStore(), memory.NewArchiveStore(), app.NewLogNotifier(logger), logger)

	handler := NewWSHandler(service, logger)
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	return server
}

func dialPlayer(t *testing.T, server *httptest.Server, playerID, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?userId=" + playerID + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", playerID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(wireMessage{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// waitFor reads messages until one of the wanted type arrives, skipping
// timer syncs and live updates along the way.
func waitFor(t *testing.T, conn *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == "error" {
			t.Fatalf("waiting for %s, got error payload %s", msgType, msg.Payload)
		}
		if msg.Type == msgType {
			return msg.Payload
		}
	}
}

func TestRandomDuelOverWebSocket(t *testing.T) {
	server := newTestServer(t)

	alice := dialPlayer(t, server, "p1", "Alice")
	send(t, alice, "join-session", map[string]string{"mode": "random"})

	var waiting domain.SessionSnapshot
	if err := json.Unmarshal(waitFor(t, alice, "session-state"), &waiting); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if waiting.Status != domain.SessionWaiting {
		t.Fatalf("first joiner must wait, got %s", waiting.Status)
	}
	if len(waiting.Questions) != 0 {
		t.Fatalf("waiting snapshot must not leak questions")
	}

	bob := dialPlayer(t, server, "p2", "Bob")
	send(t, bob, "join-session", map[string]string{"mode": "random"})

	var ongoing domain.SessionSnapshot
	if err := json.Unmarshal(waitFor(t, bob, "session-state"), &ongoing); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if ongoing.Status != domain.SessionOngoing {
		t.Fatalf("second joiner must see the match ongoing, got %s", ongoing.Status)
	}
	if ongoing.SessionID != waiting.SessionID {
		t.Fatalf("both players must share a session")
	}
	if len(ongoing.Questions) != 10 {
		t.Fatalf("ongoing snapshot carries the sequence, got %d questions", len(ongoing.Questions))
	}

	// The first joiner hears the start on its own subscription.
	waitFor(t, alice, "session-started")

	send(t, alice, "submit-answer", map[string]any{
		"sessionId": ongoing.SessionID, "questionIndex": 0, "selectedOption": 1,
	})

	var outcome domain.AnswerOutcome
	if err := json.Unmarshal(waitFor(t, alice, "answer-result"), &outcome); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if !outcome.Correct || outcome.NewScore != 1 {
		t.Fatalf("expected correct answer worth 1 point, got %+v", outcome)
	}

	var live []domain.PlayerPublicStats
	if err := json.Unmarshal(waitFor(t, bob, "live-update"), &live); err != nil {
		t.Fatalf("unmarshal live update: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("live update must carry both players, got %d", len(live))
	}

	// Alice bails; Bob hears both the departure and the final result.
	send(t, alice, "leave-session", map[string]string{"sessionId": ongoing.SessionID})

	waitFor(t, bob, "opponent-left")
	var ended struct {
		ResultSet domain.ResultSet `json:"resultSet"`
	}
	if err := json.Unmarshal(waitFor(t, bob, "session-ended"), &ended); err != nil {
		t.Fatalf("unmarshal ended payload: %v", err)
	}
	if winner, _ := ended.ResultSet.Entry("p2"); winner.Result != domain.ResultWin {
		t.Fatalf("remaining player must win the walkover, got %+v", winner)
	}
	if loser, _ := ended.ResultSet.Entry("p1"); loser.Result != domain.ResultLoss {
		t.Fatalf("leaver must lose, got %+v", loser)
	}
}

func TestRoomDuelOverWebSocket(t *testing.T) {
	server := newTestServer(t)

	host := dialPlayer(t, server, "p1", "Alice")
	send(t, host, "join-session", map[string]string{"mode": "room"})

	var waiting domain.SessionSnapshot
	if err := json.Unmarshal(waitFor(t, host, "session-state"), &waiting); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if waiting.RoomCode == "" {
		t.Fatalf("room host must receive a share code")
	}

	guest := dialPlayer(t, server, "p2", "Bob")
	send(t, guest, "join-session", map[string]string{"mode": "room", "roomCode": waiting.RoomCode})

	var ongoing domain.SessionSnapshot
	if err := json.Unmarshal(waitFor(t, guest, "session-state"), &ongoing); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if ongoing.Status != domain.SessionOngoing || ongoing.SessionID != waiting.SessionID {
		t.Fatalf("guest must land in the host's ongoing session, got %+v", ongoing)
	}
	waitFor(t, host, "session-started")
}

func TestJoinWithBadCodeReportsError(t *testing.T) {
	server := newTestServer(t)

	conn := dialPlayer(t, server, "p1", "Alice")
	send(t, conn, "join-session", map[string]string{"mode": "room", "roomCode": "ZZZZZZ"})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %s", msg.Type)
	}
}

func TestTrySendDoesNotBlockAfterWriterExit(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})
	send <- outboundMessage[any]{Type: "error"} // buffer already full
	close(writerDone)                           // writer gone, nobody drains

	done := make(chan struct{})
	go func() {
		trySend(send, writerDone, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "late"}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("queueing must not block once the writer exited")
	}
}

func TestMissingIdentityRejectsUpgrade(t *testing.T) {
	server := newTestServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?userId=p1"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("dial without name must fail")
	} else if resp != nil && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

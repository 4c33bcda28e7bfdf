package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"duel-quiz-service/internal/domain"
)

func newTestRegistry() *MatchRegistry {
	var seq int
	factory := func(ctx context.Context, mode domain.MatchMode, roomCode string) (*Session, error) {
		seq++
		return newSession(fmt.Sprintf("sess-%d", seq), mode, roomCode, testQuestions(10), 2*time.Minute, time.Now), nil
	}
	return NewMatchRegistry(factory, nil, time.Now)
}

func TestEnqueueRandomPairsOldestFirst(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	first, started, err := reg.EnqueueRandom(ctx, "p1", "Alice")
	if err != nil {
		t.Fatalf("enqueue p1: %v", err)
	}
	if started {
		t.Fatalf("first intent must wait")
	}
	if reg.PendingCount() != 1 {
		t.Fatalf("expected 1 pending, got %d", reg.PendingCount())
	}

	second, started, err := reg.EnqueueRandom(ctx, "p2", "Bob")
	if err != nil {
		t.Fatalf("enqueue p2: %v", err)
	}
	if !started {
		t.Fatalf("second intent must complete the pairing")
	}
	if second.ID() != first.ID() {
		t.Fatalf("p2 paired into %s, want %s", second.ID(), first.ID())
	}
	if second.Status() != domain.SessionOngoing {
		t.Fatalf("paired session must be ongoing, got %s", second.Status())
	}
	if reg.PendingCount() != 0 {
		t.Fatalf("pending queue must drain, got %d", reg.PendingCount())
	}
}

func TestEnqueueRandomRejectsDuplicateIntent(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	if _, _, err := reg.EnqueueRandom(ctx, "p1", "Alice"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, _, err := reg.EnqueueRandom(ctx, "p1", "Alice"); err != domain.ErrAlreadyQueued {
		t.Fatalf("expected already-queued, got %v", err)
	}
}

func TestEnqueueRandomSkipsDeadSessions(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	stale, _, err := reg.EnqueueRandom(ctx, "p1", "Alice")
	if err != nil {
		t.Fatalf("enqueue p1: %v", err)
	}
	// Session died (e.g. owner torn down) while the intent still sits queued.
	stale.conclude(domain.TerminationAbandoned, "p1")

	fresh, _, err := reg.EnqueueRandom(ctx, "p2", "Bob")
	if err != nil {
		t.Fatalf("enqueue p2: %v", err)
	}
	if fresh.ID() == stale.ID() {
		t.Fatalf("paired into a dead session")
	}

	paired, started, err := reg.EnqueueRandom(ctx, "p3", "Carol")
	if err != nil {
		t.Fatalf("enqueue p3: %v", err)
	}
	if !started || paired.ID() != fresh.ID() {
		t.Fatalf("p3 must pair with p2's session, got %s started=%v", paired.ID(), started)
	}
}

func TestConcurrentEnqueuePairsDespiteSlowFactory(t *testing.T) {
	// Both players pass the empty-queue check before either has registered an
	// intent; the post-factory re-check must still pair them and discard the
	// session that lost the race.
	var mu sync.Mutex
	var seq int
	var discarded []*Session
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})

	factory := func(ctx context.Context, mode domain.MatchMode, roomCode string) (*Session, error) {
		arrived <- struct{}{}
		<-release
		mu.Lock()
		seq++
		id := fmt.Sprintf("sess-%d", seq)
		mu.Unlock()
		return newSession(id, mode, roomCode, testQuestions(10), 2*time.Minute, time.Now), nil
	}
	discard := func(s *Session) {
		mu.Lock()
		discarded = append(discarded, s)
		mu.Unlock()
	}
	reg := NewMatchRegistry(factory, discard, time.Now)

	type result struct {
		session *Session
		started bool
		err     error
	}
	results := make(chan result, 2)
	for _, player := range []string{"p1", "p2"} {
		go func(player string) {
			s, started, err := reg.EnqueueRandom(context.Background(), player, player)
			results <- result{s, started, err}
		}(player)
	}

	// Wait until both are loading questions, then let them race to the queue.
	<-arrived
	<-arrived
	close(release)

	first := <-results
	second := <-results
	if first.err != nil || second.err != nil {
		t.Fatalf("enqueue errors: %v %v", first.err, second.err)
	}
	if first.session.ID() != second.session.ID() {
		t.Fatalf("players landed in different sessions: %s vs %s", first.session.ID(), second.session.ID())
	}
	if first.started == second.started {
		t.Fatalf("exactly one enqueue must complete the pairing, got %v and %v", first.started, second.started)
	}
	if first.session.Status() != domain.SessionOngoing {
		t.Fatalf("paired session must be ongoing, got %s", first.session.Status())
	}
	if reg.PendingCount() != 0 {
		t.Fatalf("no intent may stay queued, got %d", reg.PendingCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(discarded) != 1 {
		t.Fatalf("the losing session must be discarded, got %d", len(discarded))
	}
	if discarded[0].ID() == first.session.ID() {
		t.Fatalf("the shared session must not be discarded")
	}
}

func TestCreateAndJoinRoom(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, err := reg.CreateRoom(ctx, "p1", "Alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	code := session.RoomCode()
	if len(code) != roomCodeLength {
		t.Fatalf("room code %q has wrong length", code)
	}
	for _, c := range code {
		if !strings.ContainsRune(roomCodeAlphabet, c) {
			t.Fatalf("room code %q uses character outside alphabet", code)
		}
	}

	// Codes are normalized, so sloppy client input still matches.
	joined, started, err := reg.JoinRoom("p2", "Bob", "  "+strings.ToLower(code)+" ")
	if err != nil {
		t.Fatalf("join room: %v", err)
	}
	if !started || joined.ID() != session.ID() {
		t.Fatalf("join must start the room session")
	}

	if _, _, err := reg.JoinRoom("p3", "Carol", code); err != domain.ErrRoomNotFound {
		t.Fatalf("consumed code must not be joinable, got %v", err)
	}
}

func TestJoinRoomValidation(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	if _, _, err := reg.JoinRoom("p1", "Alice", "NOPE99"); err != domain.ErrRoomNotFound {
		t.Fatalf("expected room-not-found, got %v", err)
	}

	session, err := reg.CreateRoom(ctx, "p1", "Alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, _, err := reg.JoinRoom("p1", "Alice", session.RoomCode()); err != domain.ErrSelfJoin {
		t.Fatalf("expected self-join rejection, got %v", err)
	}
}

func TestCancelRemovesPendingIntent(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, _, err := reg.EnqueueRandom(ctx, "p1", "Alice")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cancelled, ok := reg.Cancel("p1")
	if !ok || cancelled.ID() != session.ID() {
		t.Fatalf("cancel must return the pending session")
	}
	if reg.PendingCount() != 0 {
		t.Fatalf("expected empty registry, got %d pending", reg.PendingCount())
	}
	if _, ok := reg.Cancel("p1"); ok {
		t.Fatalf("duplicate cancel must be a no-op")
	}

	// After cancelling, the player can queue again.
	if _, _, err := reg.EnqueueRandom(ctx, "p1", "Alice"); err != nil {
		t.Fatalf("re-enqueue after cancel: %v", err)
	}
}

func TestDropRemovesRoomEntry(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, err := reg.CreateRoom(ctx, "p1", "Alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	reg.Drop(session.ID())
	if _, _, err := reg.JoinRoom("p2", "Bob", session.RoomCode()); err != domain.ErrRoomNotFound {
		t.Fatalf("dropped room must be gone, got %v", err)
	}
}

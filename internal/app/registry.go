package app

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"duel-quiz-service/internal/domain"
)

// Room codes skip easily confused characters.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const roomCodeLength = 6

// SessionFactory creates a fresh waiting session; it may hit the question
// bank, so the registry never calls it while holding its own lock.
type SessionFactory func(ctx context.Context, mode domain.MatchMode, roomCode string) (*Session, error)

type pendingEntry struct {
	intent  *domain.MatchIntent
	session *Session
}

// MatchRegistry holds pending match intents (random FIFO queue plus room
// codes) and pairs them into sessions. discard tears down a freshly created
// session that lost a pairing race before anyone could observe it.
type MatchRegistry struct {
	factory SessionFactory
	discard func(*Session)
	now     func() time.Time

	mu    sync.Mutex
	queue []*pendingEntry
	rooms map[string]*pendingEntry
	rnd   *rand.Rand
}

func NewMatchRegistry(factory SessionFactory, discard func(*Session), now func() time.Time) *MatchRegistry {
	return &MatchRegistry{
		factory: factory,
		discard: discard,
		now:     now,
		rooms:   make(map[string]*pendingEntry),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EnqueueRandom pairs the player with the oldest pending random intent, or
// registers a new pending one. Returns the joined session and whether the
// pairing completed (the session went ongoing).
func (r *MatchRegistry) EnqueueRandom(ctx context.Context, playerID, displayName string) (*Session, bool, error) {
	r.mu.Lock()
	if r.hasPendingLocked(playerID) {
		r.mu.Unlock()
		return nil, false, domain.ErrAlreadyQueued
	}
	if entry := r.popOldestLocked(playerID); entry != nil {
		started, err := entry.session.addPlayer(playerID, displayName)
		if err != nil {
			r.mu.Unlock()
			return nil, false, err
		}
		entry.intent.Status = domain.IntentMatched
		r.mu.Unlock()
		return entry.session, started, nil
	}
	r.mu.Unlock()

	session, err := r.factory(ctx, domain.ModeRandom, "")
	if err != nil {
		return nil, false, err
	}
	if _, err := session.addPlayer(playerID, displayName); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	// A peer may have queued while the question bank was loading. Pair with
	// them and throw away the session built above, which nobody has seen yet.
	if entry := r.popOldestLocked(playerID); entry != nil {
		started, err := entry.session.addPlayer(playerID, displayName)
		if err != nil {
			r.mu.Unlock()
			if r.discard != nil {
				r.discard(session)
			}
			return nil, false, err
		}
		entry.intent.Status = domain.IntentMatched
		r.mu.Unlock()
		if r.discard != nil {
			r.discard(session)
		}
		return entry.session, started, nil
	}
	r.queue = append(r.queue, &pendingEntry{
		intent: &domain.MatchIntent{
			PlayerID:  playerID,
			SessionID: session.ID(),
			Mode:      domain.ModeRandom,
			CreatedAt: r.now(),
			Status:    domain.IntentPending,
		},
		session: session,
	})
	r.mu.Unlock()
	return session, false, nil
}

// CreateRoom creates a waiting session behind a collision-checked room code.
func (r *MatchRegistry) CreateRoom(ctx context.Context, playerID, displayName string) (*Session, error) {
	r.mu.Lock()
	if r.hasPendingLocked(playerID) {
		r.mu.Unlock()
		return nil, domain.ErrAlreadyQueued
	}
	code := r.generateCodeLocked()
	r.mu.Unlock()

	session, err := r.factory(ctx, domain.ModeRoom, code)
	if err != nil {
		return nil, err
	}
	if _, err := session.addPlayer(playerID, displayName); err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Regenerate on the off chance the code got claimed while loading questions.
	for {
		if _, taken := r.rooms[code]; !taken {
			break
		}
		code = r.generateCodeLocked()
	}
	r.rooms[code] = &pendingEntry{
		intent: &domain.MatchIntent{
			PlayerID:  playerID,
			SessionID: session.ID(),
			Mode:      domain.ModeRoom,
			RoomCode:  code,
			CreatedAt: r.now(),
			Status:    domain.IntentPending,
		},
		session: session,
	}
	r.mu.Unlock()
	return session, nil
}

// JoinRoom adds the second player to the room's waiting session.
func (r *MatchRegistry) JoinRoom(playerID, displayName, code string) (*Session, bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rooms[code]
	if !ok {
		return nil, false, domain.ErrRoomNotFound
	}
	started, err := entry.session.addPlayer(playerID, displayName)
	if err != nil {
		return nil, false, err
	}
	entry.intent.Status = domain.IntentMatched
	delete(r.rooms, code)
	return entry.session, started, nil
}

// Cancel removes the player's still-pending intent and returns its session so
// the caller can tear it down. No-op when nothing is pending.
func (r *MatchRegistry) Cancel(playerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.queue {
		if entry.intent.PlayerID == playerID {
			entry.intent.Status = domain.IntentCancelled
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return entry.session, true
		}
	}
	for code, entry := range r.rooms {
		if entry.intent.PlayerID == playerID {
			entry.intent.Status = domain.IntentCancelled
			delete(r.rooms, code)
			return entry.session, true
		}
	}
	return nil, false
}

// Drop removes any pending intent bound to the given session id.
func (r *MatchRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.queue {
		if entry.intent.SessionID == sessionID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	for code, entry := range r.rooms {
		if entry.intent.SessionID == sessionID {
			delete(r.rooms, code)
			break
		}
	}
}

// PendingCount reports how many intents are waiting (random plus rooms).
func (r *MatchRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue) + len(r.rooms)
}

func (r *MatchRegistry) hasPendingLocked(playerID string) bool {
	for _, entry := range r.queue {
		if entry.intent.PlayerID == playerID {
			return true
		}
	}
	for _, entry := range r.rooms {
		if entry.intent.PlayerID == playerID {
			return true
		}
	}
	return false
}

// popOldestLocked removes and returns the oldest pending random intent from
// another player, skipping entries whose session was cancelled meanwhile.
func (r *MatchRegistry) popOldestLocked(playerID string) *pendingEntry {
	for i, entry := range r.queue {
		if entry.intent.PlayerID == playerID {
			continue
		}
		if entry.session.Status() != domain.SessionWaiting {
			continue
		}
		r.queue = append(r.queue[:i], r.queue[i+1:]...)
		return entry
	}
	return nil
}

func (r *MatchRegistry) generateCodeLocked() string {
	for {
		b := make([]byte, roomCodeLength)
		for i := range b {
			b[i] = roomCodeAlphabet[r.rnd.Intn(len(roomCodeAlphabet))]
		}
		code := string(b)
		if _, taken := r.rooms[code]; !taken {
			return code
		}
	}
}

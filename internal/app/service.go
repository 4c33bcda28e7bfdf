package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"duel-quiz-service/internal/domain"
)

// QuestionRepository loads a balanced question sequence from the bank.
type QuestionRepository interface {
	FetchSequence(ctx context.Context, quotas []domain.DomainQuota) ([]domain.Question, error)
}

// ProfileStore is the identity/profile collaborator holding ratings and stats.
type ProfileStore interface {
	GetRating(ctx context.Context, playerID string) (int, error)
	GetStats(ctx context.Context, playerID string) (domain.PlayerStats, error)
	SaveStats(ctx context.Context, stats domain.PlayerStats) error
}

// ArchiveStore persists finished session records. MarkRated must claim the
// already-rated marker atomically so rating application happens exactly once.
type ArchiveStore interface {
	SaveRecord(ctx context.Context, rec domain.SessionRecord) error
	MarkRated(ctx context.Context, sessionID string) (bool, error)
}

// SessionStore indexes live sessions by id (in-memory, Redis-backed, etc).
type SessionStore interface {
	Put(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
}

// Config carries the tunables of the duel mode.
type Config struct {
	QuestionCount int
	Composition   []domain.DomainQuota
	TimeLimit     time.Duration
	RatingK       float64
	RatingFloor   int
	TimerTick     time.Duration
}

// DuelService contains the duel use cases: pairing, answering, termination,
// rating, and stats aggregation.
type DuelService struct {
	cfg       Config
	sessions  SessionStore
	registry  *MatchRegistry
	questions QuestionRepository
	profiles  ProfileStore
	archive   ArchiveStore
	notifier  Notifier
	rating    RatingEngine
	stats     StatsAggregator
	timers    *timerAuthority
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []pendingCommit
}

// pendingCommit is a persistence step that exhausted its retries and waits
// for reconciliation instead of being dropped. A settle task holds the whole
// tail of the pipeline: the archive row must land before the rated marker can
// be claimed and stats applied.
type pendingCommit struct {
	record *domain.SessionRecord
	stats  *domain.PlayerStats
	settle *pendingSettle
}

type pendingSettle struct {
	record  domain.SessionRecord
	results domain.ResultSet
	updates []domain.RatingUpdate
}

func NewDuelService(cfg Config, sessions SessionStore, questions QuestionRepository, profiles ProfileStore, archive ArchiveStore, notifier Notifier, logger *slog.Logger) *DuelService {
	svc := &DuelService{
		cfg:       cfg,
		sessions:  sessions,
		questions: questions,
		profiles:  profiles,
		archive:   archive,
		notifier:  notifier,
		rating:    RatingEngine{K: cfg.RatingK, Floor: cfg.RatingFloor},
		stats:     StatsAggregator{QuestionCount: cfg.QuestionCount},
		timers:    newTimerAuthority(cfg.TimerTick),
		logger:    logger,
		now:       time.Now,
	}
	svc.registry = NewMatchRegistry(svc.createSession, svc.discardSession, svc.now)
	return svc
}

// Registry exposes the match registry (queue cancellation, pending counts).
func (s *DuelService) Registry() *MatchRegistry { return s.registry }

func (s *DuelService) createSession(ctx context.Context, mode domain.MatchMode, roomCode string) (*Session, error) {
	questions, err := s.questions.FetchSequence(ctx, s.cfg.Composition)
	if err != nil {
		return nil, err
	}
	session := newSession(uuid.NewString(), mode, roomCode, questions, s.cfg.TimeLimit, s.now)
	s.sessions.Put(session)
	return session, nil
}

func (s *DuelService) discardSession(session *Session) {
	s.sessions.Delete(session.ID())
}

// JoinRandom pairs with the oldest pending random intent or queues a new one.
func (s *DuelService) JoinRandom(ctx context.Context, playerID, displayName string) (*Session, error) {
	session, started, err := s.registry.EnqueueRandom(ctx, playerID, displayName)
	if err != nil {
		return nil, err
	}
	if started {
		s.startTimer(session)
	}
	return session, nil
}

// CreateRoom opens a private room; the snapshot carries the code to share.
func (s *DuelService) CreateRoom(ctx context.Context, playerID, displayName string) (*Session, error) {
	return s.registry.CreateRoom(ctx, playerID, displayName)
}

// JoinRoom joins an existing room by code and starts the match.
func (s *DuelService) JoinRoom(_ context.Context, playerID, displayName, code string) (*Session, error) {
	session, started, err := s.registry.JoinRoom(playerID, displayName, code)
	if err != nil {
		return nil, err
	}
	if started {
		s.startTimer(session)
	}
	return session, nil
}

func (s *DuelService) startTimer(session *Session) {
	s.timers.Start(session.ID(), s.cfg.TimeLimit,
		session.timerSync,
		func() { s.handleExpiry(session.ID()) },
	)
}

// SessionActive reports whether a session is still live (not yet archived).
func (s *DuelService) SessionActive(sessionID string) bool {
	_, ok := s.sessions.Get(sessionID)
	return ok
}

// Subscribe attaches a participant to the session's event stream.
func (s *DuelService) Subscribe(sessionID, playerID string) (<-chan Event, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	return session.subscribe(playerID)
}

// Resync resends the full sanitized state plus the timer to one player.
func (s *DuelService) Resync(sessionID, playerID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.resync(playerID)
}

// Resume validates a client-presented session id and replays state for it.
// Stale references get ErrSessionNotFound / ErrSessionNotOngoing and the
// client discards them.
func (s *DuelService) Resume(_ context.Context, sessionID, playerID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !session.HasPlayer(playerID) {
		return nil, domain.ErrNotParticipant
	}
	if session.Status() != domain.SessionOngoing {
		return nil, domain.ErrSessionNotOngoing
	}
	return session, nil
}

// SubmitAnswer scores one submission. The outcome also reaches the submitter
// through the event stream; the opponent only sees aggregate live updates.
func (s *DuelService) SubmitAnswer(ctx context.Context, sessionID, playerID string, questionIndex, optionIndex int) (domain.AnswerOutcome, error) {
	return s.answer(ctx, sessionID, playerID, questionIndex, optionIndex, false)
}

// SkipQuestion records a skip; it never scores and is never penalized.
func (s *DuelService) SkipQuestion(ctx context.Context, sessionID, playerID string, questionIndex int) (domain.AnswerOutcome, error) {
	return s.answer(ctx, sessionID, playerID, questionIndex, -1, true)
}

func (s *DuelService) answer(ctx context.Context, sessionID, playerID string, questionIndex, optionIndex int, skip bool) (domain.AnswerOutcome, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrSessionNotFound
	}
	outcome, complete, err := session.applyAnswer(playerID, questionIndex, optionIndex, skip)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if complete {
		s.finalize(ctx, session, domain.TerminationCompleted, "")
	}
	return outcome, nil
}

// Leave handles a player leaving or disconnecting. Leaving a waiting session
// cancels it; leaving an ongoing one terminates it early with the leaver as
// the loss. Duplicate signals are no-ops.
func (s *DuelService) Leave(ctx context.Context, sessionID, playerID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.finalize(ctx, session, domain.TerminationOpponentLeft, playerID)
}

// CancelQueue removes a still-pending match intent; no-op otherwise.
func (s *DuelService) CancelQueue(ctx context.Context, playerID string) {
	session, ok := s.registry.Cancel(playerID)
	if !ok {
		return
	}
	s.finalize(ctx, session, domain.TerminationAbandoned, playerID)
}

func (s *DuelService) handleExpiry(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.finalize(context.Background(), session, domain.TerminationTimeout, "")
}

// finalize drives a session to its terminal state and runs the result
// pipeline exactly once. Safe against duplicate triggers: conclude is
// idempotent and the archive marker guards rating re-application.
func (s *DuelService) finalize(ctx context.Context, session *Session, reason domain.TerminationReason, leaverID string) {
	rs, outcome := session.conclude(reason, leaverID)
	s.timers.Stop(session.ID())

	switch outcome {
	case concludeAlreadyDone:
		return
	case concludeCancelled:
		session.announceCancelled(leaverID)
		s.registry.Drop(session.ID())
		s.sessions.Delete(session.ID())
		s.logger.Info("session cancelled", "session", session.ID(), "reason", reason)
		return
	}

	updates := s.settle(ctx, session, rs)
	session.applyRatingUpdates(updates)
	session.announceEnd(rs, updates, leaverID)
	s.sessions.Delete(session.ID())
	s.logger.Info("session finished", "session", session.ID(), "reason", reason)
}

// settle computes rating updates, persists the archive record, and applies
// stats. Persistence failures never block the client-visible result: the
// in-memory ResultSet is queued for reconciliation instead.
func (s *DuelService) settle(ctx context.Context, session *Session, rs domain.ResultSet) []domain.RatingUpdate {
	ratings := make(map[string]int, len(rs.Players))
	for _, p := range rs.Players {
		rating, err := s.profiles.GetRating(ctx, p.PlayerID)
		if err != nil {
			s.logger.Warn("rating lookup failed, using default", "player", p.PlayerID, "err", err)
			rating = domain.DefaultRating
		}
		ratings[p.PlayerID] = rating
	}
	updates := s.rating.Update(rs, ratings)

	record := domain.SessionRecord{
		SessionID:     session.ID(),
		QuestionIDs:   session.QuestionIDs(),
		Players:       rs.Players,
		RatingUpdates: updates,
		Reason:        rs.Reason,
		StartedAt:     session.StartedAt(),
		EndedAt:       rs.EndedAt,
	}
	// Without the archive row the rated marker cannot be claimed, so an
	// unavailable archive defers the whole tail of the pipeline, not just the
	// record write. The client-visible result is announced regardless.
	if err := s.withRetry(ctx, func() error { return s.archive.SaveRecord(ctx, record) }); err != nil {
		s.logger.Error("archive write failed, settle queued for reconciliation", "session", session.ID(), "err", err)
		s.enqueuePending(pendingCommit{settle: &pendingSettle{record: record, results: rs, updates: updates}})
		return updates
	}

	claimed, err := s.archive.MarkRated(ctx, session.ID())
	if err != nil {
		s.logger.Error("rated marker failed, settle queued for reconciliation", "session", session.ID(), "err", err)
		s.enqueuePending(pendingCommit{settle: &pendingSettle{record: record, results: rs, updates: updates}})
		return updates
	}
	if !claimed {
		// Someone already rated this session; re-application is a no-op.
		return updates
	}

	s.applyAllStats(ctx, rs, updates)
	return updates
}

func (s *DuelService) applyAllStats(ctx context.Context, rs domain.ResultSet, updates []domain.RatingUpdate) {
	for _, update := range updates {
		entry, ok := rs.Entry(update.PlayerID)
		if !ok {
			continue
		}
		opponentID := ""
		if opp, ok := rs.Opponent(update.PlayerID); ok {
			opponentID = opp.PlayerID
		}
		s.applyStats(ctx, entry, update, opponentID, rs.SessionID)
	}
}

// runSettle re-drives a deferred settle: archive row first, then the rated
// marker, then stats. Returns an error while the archive stays unavailable so
// the task remains queued.
func (s *DuelService) runSettle(ctx context.Context, task *pendingSettle) error {
	if err := s.archive.SaveRecord(ctx, task.record); err != nil {
		return err
	}
	claimed, err := s.archive.MarkRated(ctx, task.record.SessionID)
	if err != nil {
		return err
	}
	if claimed {
		s.applyAllStats(ctx, task.results, task.updates)
	}
	return nil
}

func (s *DuelService) applyStats(ctx context.Context, entry domain.PlayerResult, update domain.RatingUpdate, opponentID, sessionID string) {
	stats, err := s.profiles.GetStats(ctx, entry.PlayerID)
	if err != nil {
		s.logger.Error("stats lookup failed", "player", entry.PlayerID, "err", err)
		return
	}
	before := len(stats.Achievements)
	stats.PlayerID = entry.PlayerID
	updated := s.stats.Apply(stats, entry, update, opponentID, sessionID, s.now())

	if err := s.withRetry(ctx, func() error { return s.profiles.SaveStats(ctx, updated) }); err != nil {
		s.logger.Error("stats write failed, queued for reconciliation", "player", entry.PlayerID, "err", err)
		s.enqueuePending(pendingCommit{stats: &updated})
	}

	if err := s.notifier.Notify(ctx, entry.PlayerID, "session-ended", entry); err != nil {
		s.logger.Warn("notification failed", "player", entry.PlayerID, "err", err)
	}
	for _, unlocked := range updated.Achievements[before:] {
		if err := s.notifier.Notify(ctx, entry.PlayerID, "achievement-unlocked", unlocked); err != nil {
			s.logger.Warn("notification failed", "player", entry.PlayerID, "err", err)
		}
	}
}

func (s *DuelService) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx))
}

func (s *DuelService) enqueuePending(commit pendingCommit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, commit)
}

// PendingCommits reports how many writes await reconciliation.
func (s *DuelService) PendingCommits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FlushPending retries queued persistence writes, keeping whatever still fails.
func (s *DuelService) FlushPending(ctx context.Context) {
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	var remaining []pendingCommit
	for _, commit := range queued {
		var err error
		switch {
		case commit.settle != nil:
			err = s.runSettle(ctx, commit.settle)
		case commit.record != nil:
			err = s.archive.SaveRecord(ctx, *commit.record)
		case commit.stats != nil:
			err = s.profiles.SaveStats(ctx, *commit.stats)
		}
		if err != nil {
			remaining = append(remaining, commit)
		}
	}

	if len(remaining) > 0 {
		s.mu.Lock()
		s.pending = append(remaining, s.pending...)
		s.mu.Unlock()
	}
}

package app

import (
	"math"
	"sync"
	"time"

	"duel-quiz-service/internal/domain"
)

// Session is the authoritative representation of one two-player match.
// Every mutating operation takes the session mutex, so concurrent answer,
// timeout, and leave messages serialize per session while independent
// sessions proceed in parallel.
type Session struct {
	id        string
	mode      domain.MatchMode
	roomCode  string
	questions []domain.Question
	timeLimit time.Duration
	now       func() time.Time

	mu          sync.Mutex
	status      domain.SessionStatus
	reason      domain.TerminationReason
	players     []*domain.PlayerState
	subscribers map[string]chan Event
	createdAt   time.Time
	startedAt   time.Time
	endedAt     time.Time
	deadline    time.Time
	lastSync    int
}

func newSession(id string, mode domain.MatchMode, roomCode string, questions []domain.Question, timeLimit time.Duration, now func() time.Time) *Session {
	return &Session{
		id:          id,
		mode:        mode,
		roomCode:    roomCode,
		questions:   questions,
		timeLimit:   timeLimit,
		now:         now,
		status:      domain.SessionWaiting,
		subscribers: make(map[string]chan Event),
		createdAt:   now(),
		lastSync:    int(timeLimit / time.Second),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// RoomCode returns the room code, empty for random matches.
func (s *Session) RoomCode() string { return s.roomCode }

// Status returns the current state-machine state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartedAt returns when the match went ongoing (zero while waiting).
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// QuestionIDs returns the ids of the fixed question sequence.
func (s *Session) QuestionIDs() []string {
	ids := make([]string, 0, len(s.questions))
	for _, q := range s.questions {
		ids = append(ids, q.ID)
	}
	return ids
}

// HasPlayer reports whether the given player belongs to this session.
func (s *Session) HasPlayer(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerLocked(playerID) != nil
}

func (s *Session) playerLocked(playerID string) *domain.PlayerState {
	for _, p := range s.players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (s *Session) opponentLocked(playerID string) *domain.PlayerState {
	for _, p := range s.players {
		if p.PlayerID != playerID {
			return p
		}
	}
	return nil
}

// addPlayer registers a player; adding the second one starts the match and
// broadcasts the sanitized state plus the start announcement.
func (s *Session) addPlayer(playerID, displayName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.SessionWaiting {
		if s.status == domain.SessionOngoing {
			return false, domain.ErrRoomFull
		}
		return false, domain.ErrSessionNotFound
	}
	if s.playerLocked(playerID) != nil {
		return false, domain.ErrSelfJoin
	}
	if len(s.players) >= 2 {
		return false, domain.ErrRoomFull
	}

	s.players = append(s.players, &domain.PlayerState{
		PlayerID:    playerID,
		DisplayName: displayName,
		Answers:     make(map[int]domain.AnswerRecord),
	})
	if len(s.players) < 2 {
		return false, nil
	}

	s.status = domain.SessionOngoing
	s.startedAt = s.now()
	s.deadline = s.startedAt.Add(s.timeLimit)
	s.broadcastLocked(Event{Type: EventSessionState, Payload: s.snapshotLocked()})
	s.broadcastLocked(Event{Type: EventSessionStarted, Payload: startedPayload{
		Questions:       s.sanitizedQuestionsLocked(),
		DurationSeconds: int(s.timeLimit / time.Second),
	}})
	return true, nil
}

type startedPayload struct {
	Questions       []domain.SanitizedQuestion `json:"questionSequence"`
	DurationSeconds int                        `json:"durationSeconds"`
}

// applyAnswer validates and scores a submission. The perQuestionRecord map is
// write-once per (player, index): duplicates are rejected without any score
// change. Returns whether both players have now answered every question.
func (s *Session) applyAnswer(playerID string, questionIndex, optionIndex int, skip bool) (domain.AnswerOutcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case domain.SessionOngoing:
	case domain.SessionFinished, domain.SessionCancelled:
		return domain.AnswerOutcome{}, false, domain.ErrSessionFinished
	default:
		return domain.AnswerOutcome{}, false, domain.ErrSessionNotOngoing
	}

	player := s.playerLocked(playerID)
	if player == nil {
		return domain.AnswerOutcome{}, false, domain.ErrNotParticipant
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return domain.AnswerOutcome{}, false, domain.ErrQuestionIndex
	}
	if _, dup := player.Answers[questionIndex]; dup {
		return domain.AnswerOutcome{}, false, domain.ErrAlreadyAnswered
	}

	question := s.questions[questionIndex]
	record := domain.AnswerRecord{OptionIndex: -1, Skipped: true, AnsweredAt: s.now()}
	if !skip {
		if optionIndex < 0 || optionIndex >= len(question.Options) {
			return domain.AnswerOutcome{}, false, domain.ErrOptionNotFound
		}
		record.OptionIndex = optionIndex
		record.Skipped = false
		record.Correct = question.Options[optionIndex].Correct
		if record.Correct {
			player.Score++
			player.CorrectCount++
		} else {
			player.Score -= 0.5
			player.IncorrectCount++
		}
	}
	player.Answers[questionIndex] = record
	player.AnsweredCount++

	outcome := domain.AnswerOutcome{
		QuestionIndex:      questionIndex,
		Skipped:            record.Skipped,
		Correct:            record.Correct,
		CorrectOptionIndex: question.CorrectOptionIndex(),
		Explanation:        question.Explanation,
		NewScore:           player.Score,
	}

	// Correctness goes to the submitter only; the opponent sees aggregates.
	s.publishLocked(playerID, Event{Type: EventAnswerResult, Payload: outcome})
	if opp := s.opponentLocked(playerID); opp != nil {
		s.publishLocked(opp.PlayerID, Event{Type: EventLiveUpdate, Payload: s.publicStatsLocked()})
	}

	complete := len(s.players) == 2
	for _, p := range s.players {
		if p.AnsweredCount < len(s.questions) {
			complete = false
		}
	}
	return outcome, complete, nil
}

type concludeOutcome int

const (
	concludeAlreadyDone concludeOutcome = iota
	concludeCancelled
	concludeFinished
)

// conclude drives the session to a terminal state and computes the final
// standing. It is idempotent: duplicate timeout or leave signals on a
// terminal session report concludeAlreadyDone and change nothing.
func (s *Session) conclude(reason domain.TerminationReason, leaverID string) (domain.ResultSet, concludeOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return domain.ResultSet{}, concludeAlreadyDone
	}

	if s.status == domain.SessionWaiting {
		s.status = domain.SessionCancelled
		s.reason = domain.TerminationAbandoned
		s.endedAt = s.now()
		return domain.ResultSet{}, concludeCancelled
	}

	// A walkover with zero answers on both sides is cancelled, not scored.
	if reason == domain.TerminationOpponentLeft && s.answeredTotalLocked() == 0 {
		s.status = domain.SessionCancelled
		s.reason = reason
		s.endedAt = s.now()
		return domain.ResultSet{}, concludeCancelled
	}

	s.status = domain.SessionFinished
	s.reason = reason
	s.endedAt = s.now()
	results := computeStandings(s.players, leaverID)
	return domain.ResultSet{
		SessionID: s.id,
		Reason:    reason,
		Players:   results,
		EndedAt:   s.endedAt,
	}, concludeFinished
}

func (s *Session) answeredTotalLocked() int {
	total := 0
	for _, p := range s.players {
		total += p.AnsweredCount
	}
	return total
}

// applyRatingUpdates records the applied rating changes on player state.
func (s *Session) applyRatingUpdates(updates []domain.RatingUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if p := s.playerLocked(u.PlayerID); p != nil {
			p.RatingBefore = u.Before
			p.RatingAfter = u.After
			p.RatingDelta = u.Delta
		}
	}
}

// announceEnd pushes the terminal events after rating/stats have been applied.
func (s *Session) announceEnd(rs domain.ResultSet, updates []domain.RatingUpdate, leaverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if leaverID != "" {
		if opp := s.opponentLocked(leaverID); opp != nil {
			s.publishLocked(opp.PlayerID, Event{Type: EventOpponentLeft, Payload: opponentLeftPayload{
				Message:   "your opponent left the match",
				ResultSet: &rs,
			}})
		}
	}
	s.broadcastLocked(Event{Type: EventSessionEnded, Payload: endedPayload{
		ResultSet:     rs,
		RatingUpdates: updates,
	}})
}

// announceCancelled notifies the remaining player that the match was dropped.
func (s *Session) announceCancelled(leaverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if leaverID == "" {
		return
	}
	if opp := s.opponentLocked(leaverID); opp != nil {
		s.publishLocked(opp.PlayerID, Event{Type: EventOpponentLeft, Payload: opponentLeftPayload{
			Message: "your opponent left before the match got scored",
		}})
	}
}

type opponentLeftPayload struct {
	Message   string            `json:"message"`
	ResultSet *domain.ResultSet `json:"resultSet,omitempty"`
}

type endedPayload struct {
	ResultSet     domain.ResultSet      `json:"resultSet"`
	RatingUpdates []domain.RatingUpdate `json:"ratingUpdates"`
}

// timerSync broadcasts the authoritative remaining time. The value is
// clamped so it never increases within a session.
func (s *Session) timerSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.SessionOngoing {
		return
	}
	s.broadcastLocked(Event{Type: EventTimerSync, Payload: timerPayload{RemainingSeconds: s.remainingLocked()}})
}

type timerPayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

func (s *Session) remainingLocked() int {
	if s.status != domain.SessionOngoing {
		return 0
	}
	r := int(math.Ceil(s.deadline.Sub(s.now()).Seconds()))
	if r < 0 {
		r = 0
	}
	if r > s.lastSync {
		r = s.lastSync
	}
	s.lastSync = r
	return r
}

// subscribe attaches a buffered event channel for one participant. The caller
// must invoke the returned cancel function to avoid leaks.
func (s *Session) subscribe(playerID string) (<-chan Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playerLocked(playerID) == nil {
		return nil, nil, domain.ErrNotParticipant
	}
	ch := make(chan Event, 16)
	s.subscribers[playerID] = ch

	cancel := func() {
		s.mu.Lock()
		if existing, ok := s.subscribers[playerID]; ok && existing == ch {
			delete(s.subscribers, playerID)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// resync pushes the full sanitized state (and timer) to one player.
func (s *Session) resync(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playerLocked(playerID) == nil {
		return domain.ErrNotParticipant
	}
	s.publishLocked(playerID, Event{Type: EventSessionState, Payload: s.snapshotLocked()})
	if s.status == domain.SessionOngoing {
		s.publishLocked(playerID, Event{Type: EventTimerSync, Payload: timerPayload{RemainingSeconds: s.remainingLocked()}})
	}
	return nil
}

func (s *Session) publishLocked(playerID string, ev Event) {
	ch, ok := s.subscribers[playerID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		// Drop the oldest pending event so slow clients cannot block the owner.
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}

func (s *Session) broadcastLocked(ev Event) {
	for playerID := range s.subscribers {
		s.publishLocked(playerID, ev)
	}
}

func (s *Session) publicStatsLocked() []domain.PlayerPublicStats {
	stats := make([]domain.PlayerPublicStats, 0, len(s.players))
	for _, p := range s.players {
		stats = append(stats, domain.PlayerPublicStats{
			PlayerID:      p.PlayerID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			AnsweredCount: p.AnsweredCount,
		})
	}
	return stats
}

func (s *Session) sanitizedQuestionsLocked() []domain.SanitizedQuestion {
	questions := make([]domain.SanitizedQuestion, 0, len(s.questions))
	for _, q := range s.questions {
		questions = append(questions, q.Sanitize())
	}
	return questions
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:        s.id,
		RoomCode:         s.roomCode,
		Status:           s.status,
		Players:          s.publicStatsLocked(),
		DurationSeconds:  int(s.timeLimit / time.Second),
		RemainingSeconds: s.remainingLocked(),
	}
	if s.status != domain.SessionWaiting {
		snap.Questions = s.sanitizedQuestionsLocked()
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	return snap
}

// Snapshot returns the sanitized client-facing view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

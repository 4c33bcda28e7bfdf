package domain

import "time"

// DefaultRating is the rating assigned to players without a stored profile.
const DefaultRating = 1200

// MatchMode selects how a player gets paired into a session.
type MatchMode string

const (
	ModeRandom MatchMode = "random"
	ModeRoom   MatchMode = "room"
)

// IntentStatus tracks the lifecycle of a pending pairing request.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentMatched   IntentStatus = "matched"
	IntentCancelled IntentStatus = "cancelled"
)

// MatchIntent is a pending request to be paired into a session.
type MatchIntent struct {
	PlayerID  string
	SessionID string
	Mode      MatchMode
	RoomCode  string
	CreatedAt time.Time
	Status    IntentStatus
}

// SessionStatus is the state-machine state of a duel session.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionOngoing   SessionStatus = "ongoing"
	SessionFinished  SessionStatus = "finished"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionCancelled
}

// TerminationReason records why a session left the ongoing state.
type TerminationReason string

const (
	TerminationCompleted    TerminationReason = "completed"
	TerminationTimeout      TerminationReason = "timeout"
	TerminationOpponentLeft TerminationReason = "opponent_left"
	TerminationAbandoned    TerminationReason = "abandoned"
)

// MatchResult is the per-player outcome of a finished session.
type MatchResult string

const (
	ResultWin  MatchResult = "win"
	ResultLoss MatchResult = "loss"
	ResultDraw MatchResult = "draw"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []Option `json:"options"`
	Domain      string   `json:"domain"`
	Difficulty  int      `json:"difficulty"`
	Explanation string   `json:"explanation"`
}

// CorrectOptionIndex returns the index of the correct option, or -1.
func (q Question) CorrectOptionIndex() int {
	for i, opt := range q.Options {
		if opt.Correct {
			return i
		}
	}
	return -1
}

// DomainQuota is one slot of the fixed domain composition of a sequence.
type DomainQuota struct {
	Domain string `json:"domain" yaml:"domain"`
	Count  int    `json:"count" yaml:"count"`
}

// AnswerRecord is the write-once record of one answered (or skipped) question.
type AnswerRecord struct {
	OptionIndex int       `json:"optionIndex"` // -1 when skipped
	Skipped     bool      `json:"skipped"`
	Correct     bool      `json:"correct"`
	AnsweredAt  time.Time `json:"answeredAt"`
}

// PlayerState is the authoritative per-player state inside a session.
type PlayerState struct {
	PlayerID       string
	DisplayName    string
	Score          float64
	CorrectCount   int
	IncorrectCount int
	AnsweredCount  int
	Answers        map[int]AnswerRecord
	RatingBefore   int
	RatingAfter    int
	RatingDelta    int
	Rank           int
	Result         MatchResult
}

// PlayerResult is one player's entry in an immutable ResultSet.
type PlayerResult struct {
	PlayerID       string      `json:"playerId"`
	DisplayName    string      `json:"displayName"`
	Score          float64     `json:"score"`
	CorrectCount   int         `json:"correctCount"`
	IncorrectCount int         `json:"incorrectCount"`
	Rank           int         `json:"rank"`
	Result         MatchResult `json:"result"`
}

// ResultSet captures the final standing of a finished session.
type ResultSet struct {
	SessionID string            `json:"sessionId"`
	Reason    TerminationReason `json:"reason"`
	Players   []PlayerResult    `json:"players"`
	EndedAt   time.Time         `json:"endedAt"`
}

// Entry returns the player's own entry from the result set.
func (rs ResultSet) Entry(playerID string) (PlayerResult, bool) {
	for _, p := range rs.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return PlayerResult{}, false
}

// Opponent returns the other player's entry from the result set.
func (rs ResultSet) Opponent(playerID string) (PlayerResult, bool) {
	for _, p := range rs.Players {
		if p.PlayerID != playerID {
			return p, true
		}
	}
	return PlayerResult{}, false
}

// RatingUpdate is the applied rating change for one player.
type RatingUpdate struct {
	PlayerID string `json:"playerId"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Delta    int    `json:"delta"`
}

// RatingRecord is one entry of the bounded rating history (capacity 50, FIFO).
type RatingRecord struct {
	Rating     int         `json:"rating"`
	Delta      int         `json:"delta"`
	OpponentID string      `json:"opponentId"`
	Result     MatchResult `json:"result"`
	SessionID  string      `json:"sessionId"`
	RecordedAt time.Time   `json:"recordedAt"`
}

// RecentResult is one entry of the bounded recent-form buffers (front-inserted).
type RecentResult struct {
	Result      MatchResult `json:"result"`
	OpponentID  string      `json:"opponentId"`
	Score       float64     `json:"score"`
	RatingDelta int         `json:"ratingDelta"`
	PlayedAt    time.Time   `json:"playedAt"`
}

// AchievementType tags an achievement; each type unlocks at most once per player.
type AchievementType string

const (
	AchievementFirstWin     AchievementType = "first_win"
	AchievementWinStreak3   AchievementType = "win_streak_3"
	AchievementWinStreak5   AchievementType = "win_streak_5"
	AchievementGames10      AchievementType = "games_10"
	AchievementGames50      AchievementType = "games_50"
	AchievementRating1400   AchievementType = "rating_1400"
	AchievementRating1600   AchievementType = "rating_1600"
	AchievementPerfectScore AchievementType = "perfect_score"
)

// Achievement records an unlocked achievement.
type Achievement struct {
	Type       AchievementType `json:"type"`
	UnlockedAt time.Time       `json:"unlockedAt"`
	SessionID  string          `json:"sessionId"`
}

// PlayerStats is the aggregate profile updated after every finished session.
type PlayerStats struct {
	PlayerID          string         `json:"playerId"`
	Rating            int            `json:"rating"`
	GamesPlayed       int            `json:"gamesPlayed"`
	Won               int            `json:"won"`
	Lost              int            `json:"lost"`
	Tied              int            `json:"tied"`
	CurrentWinStreak  int            `json:"currentWinStreak"`
	CurrentLossStreak int            `json:"currentLossStreak"`
	MaxWinStreak      int            `json:"maxWinStreak"`
	MaxLossStreak     int            `json:"maxLossStreak"`
	TotalScore        float64        `json:"totalScore"`
	BestScore         float64        `json:"bestScore"`
	WorstScore        float64        `json:"worstScore"`
	AverageScore      float64        `json:"averageScore"`
	RatingHistory     []RatingRecord `json:"ratingHistory"` // capacity 50
	RecentForm        []RecentResult `json:"recentForm"`    // capacity 5
	RecentHistory     []RecentResult `json:"recentHistory"` // capacity 10
	Achievements      []Achievement  `json:"achievements"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// HasAchievement reports whether the given type is already unlocked.
func (s PlayerStats) HasAchievement(t AchievementType) bool {
	for _, a := range s.Achievements {
		if a.Type == t {
			return true
		}
	}
	return false
}

// SessionRecord is the persisted archive row for a finished session.
type SessionRecord struct {
	SessionID     string            `json:"sessionId"`
	QuestionIDs   []string          `json:"questionIds"`
	Players       []PlayerResult    `json:"players"`
	RatingUpdates []RatingUpdate    `json:"ratingUpdates"`
	Reason        TerminationReason `json:"reason"`
	StartedAt     time.Time         `json:"startedAt"`
	EndedAt       time.Time         `json:"endedAt"`
	AlreadyRated  bool              `json:"alreadyRated"`
}

// SanitizedOption is an option with its correctness flag stripped.
type SanitizedOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SanitizedQuestion is a question as sent to clients before resolution.
type SanitizedQuestion struct {
	ID         string            `json:"id"`
	Prompt     string            `json:"prompt"`
	Domain     string            `json:"domain"`
	Difficulty int               `json:"difficulty"`
	Options    []SanitizedOption `json:"options"`
}

// Sanitize strips correctness and the explanation from a question.
func (q Question) Sanitize() SanitizedQuestion {
	opts := make([]SanitizedOption, 0, len(q.Options))
	for _, opt := range q.Options {
		opts = append(opts, SanitizedOption{ID: opt.ID, Text: opt.Text})
	}
	return SanitizedQuestion{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Domain:     q.Domain,
		Difficulty: q.Difficulty,
		Options:    opts,
	}
}

// PlayerPublicStats is the opponent-visible slice of player state.
type PlayerPublicStats struct {
	PlayerID      string  `json:"playerId"`
	DisplayName   string  `json:"displayName"`
	Score         float64 `json:"score"`
	AnsweredCount int     `json:"answeredCount"`
}

// SessionSnapshot is the full sanitized session state sent to clients.
type SessionSnapshot struct {
	SessionID        string              `json:"sessionId"`
	RoomCode         string              `json:"roomCode,omitempty"`
	Status           SessionStatus       `json:"status"`
	Players          []PlayerPublicStats `json:"players"`
	Questions        []SanitizedQuestion `json:"questions,omitempty"`
	DurationSeconds  int                 `json:"durationSeconds"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	StartedAt        *time.Time          `json:"startedAt,omitempty"`
}

// AnswerOutcome is returned to the submitter only; it reveals correctness.
type AnswerOutcome struct {
	QuestionIndex      int     `json:"questionIndex"`
	Skipped            bool    `json:"skipped"`
	Correct            bool    `json:"correct"`
	CorrectOptionIndex int     `json:"correctOptionIndex"`
	Explanation        string  `json:"explanation"`
	NewScore           float64 `json:"newScore"`
}

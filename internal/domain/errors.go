package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a duel session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRoomNotFound is returned when joining an unknown room code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a room already has two players.
	ErrRoomFull = errors.New("room is full")
	// ErrSelfJoin is returned when a player tries to join their own room.
	ErrSelfJoin = errors.New("cannot join your own room")
	// ErrAlreadyQueued is returned when a player already has a pending intent.
	ErrAlreadyQueued = errors.New("already waiting for a match")
	// ErrNotParticipant is returned when a player acts on a session they are not part of.
	ErrNotParticipant = errors.New("player not part of session")
	// ErrSessionNotOngoing is returned for operations that require an ongoing session.
	ErrSessionNotOngoing = errors.New("session is not ongoing")
	// ErrSessionFinished marks a message for an already-terminal session; callers drop it.
	ErrSessionFinished = errors.New("session already finished")
	// ErrQuestionIndex is returned for an out-of-range question index.
	ErrQuestionIndex = errors.New("question index out of range")
	// ErrOptionNotFound is returned for an out-of-range option index.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAlreadyAnswered is returned on a duplicate submission for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrInsufficientQuestions indicates the question bank cannot satisfy the composition.
	ErrInsufficientQuestions = errors.New("not enough questions for requested composition")
)

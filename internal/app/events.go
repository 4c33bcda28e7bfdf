package app

// EventType names an engine-to-client message.
type EventType string

const (
	EventSessionState   EventType = "session-state"
	EventSessionStarted EventType = "session-started"
	EventTimerSync      EventType = "timer-sync"
	EventLiveUpdate     EventType = "live-update"
	EventAnswerResult   EventType = "answer-result"
	EventOpponentLeft   EventType = "opponent-left"
	EventSessionEnded   EventType = "session-ended"
)

// Event is a message delivered to a subscribed player.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

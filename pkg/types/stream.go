package types

// StreamEventType discriminates simulated-streaming events.
type StreamEventType string

const (
	// StreamWord is emitted once per whitespace-delimited word.
	StreamWord StreamEventType = "word"
	// StreamSentence is emitted when a buffered sentence completes.
	StreamSentence StreamEventType = "sentence"
	// StreamComplete terminates every stream and carries the full text.
	StreamComplete StreamEventType = "complete"
)

// StreamEvent is one element of a simulated token stream. Event content and
// order depend only on the source text; backend pacing affects timing only.
type StreamEvent struct {
	// Event kind: word, sentence or complete.
	// example: word
	Type StreamEventType `json:"type" example:"word"`
	// The word, the completed sentence, or the full text for complete events.
	// example: Hello
	Text string `json:"text" example:"Hello"`
	// Accumulated text so far; set on word events.
	// example: Hello there.
	Accumulated string `json:"accumulated,omitempty" example:"Hello there."`
	// True only on the final complete event.
	// example: false
	Done bool `json:"done,omitempty" example:"false"`
}

package app

import "github.com/mirko1075/in-one-button-be/internal/domain"

// Outbound room events. The gateway composes its own unicast replies; these
// are the ones the coordinator broadcasts from the session run loop.

type TranscriptionUpdate struct {
	Type       string           `json:"type"`
	SessionID  domain.SessionID `json:"sessionId"`
	Text       string           `json:"text"`
	IsFinal    bool             `json:"isFinal"`
	Confidence float64          `json:"confidence"`
	Words      []domain.Word    `json:"words,omitempty"`
}

type StreamStopped struct {
	Type       string           `json:"type"`
	SessionID  domain.SessionID `json:"sessionId"`
	Transcript string           `json:"transcript"`
}

type StreamError struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
	Error     string           `json:"error"`
}

const (
	EventTranscriptionUpdate = "transcription:update"
	EventStreamStopped       = "stream:stopped"
	EventStreamError         = "stream:error"
)

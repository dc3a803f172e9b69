package domain

// Word carries optional word-level timing from the recognizer.
type Word struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker int     `json:"speaker,omitempty"`
}

// TranscriptFragment is one unit of recognizer output. Interim fragments are
// broadcast but never persisted; final fragments are both.
type TranscriptFragment struct {
	SessionID  SessionID `json:"sessionId"`
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	Confidence float64   `json:"confidence"`
	Sequence   uint64    `json:"sequence"`
	Words      []Word    `json:"words,omitempty"`
}

// Package api defines the JSON shapes of the control surface, shared between
// the daemon's HTTP handlers and the command-line client.
package api

import "github.com/speakuplabs/speakup-core/internal/ledger"

// SpeakRequest submits one announcement. Only Text is required; the server
// fills in defaults for the rest.
type SpeakRequest struct {
	Text     string  `json:"text"`
	Project  string  `json:"project,omitempty"`
	Tone     string  `json:"tone,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Announce string  `json:"announce,omitempty"`
}

type SpeakResponse struct {
	MessageID     int64 `json:"message_id"`
	QueuePosition int   `json:"queue_position"`
}

type StatusResponse struct {
	Playing   *ledger.Entry  `json:"playing"`
	Queued    []ledger.Entry `json:"queued"`
	QueueSize int            `json:"queue_size"`
}

type HistoryResponse struct {
	Messages []ledger.Entry `json:"messages"`
}

type StopResponse struct {
	Cleared int `json:"cleared"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

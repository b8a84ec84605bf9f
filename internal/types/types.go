// Package types holds the JSON bodies of the console's own HTTP API.
package types

import "ragconsole/internal/backend"

type SubmitRequest struct {
	Query string `json:"query"`
}

type ClarificationRequest struct {
	Option string `json:"option"`
}

type DebugRequest struct {
	Enabled bool `json:"enabled"`
}

type PreviewRequest struct {
	Index int `json:"index"`
}

type SyncRequest struct {
	SourceTypes []string `json:"source_types"`
}

type JobsResponse struct {
	Jobs []backend.Job `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

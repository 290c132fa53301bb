package models

// SynthesisRequest is the body of POST /api/tts
type SynthesisRequest struct {
	Text   string `json:"text"`
	APIKey string `json:"apiKey,omitempty"`
}

// ErrorResponse is the JSON error body of the API endpoints. Raw carries the
// beginning of an upstream body that could not be interpreted.
type ErrorResponse struct {
	Error string  `json:"error"`
	Raw   *string `json:"raw,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

// Asset event types pushed to live-reload clients
const (
	AssetChanged = "asset-change"
	AssetRemoved = "asset-removed"
)

// AssetEvent tells a browser that a file under the static root changed
type AssetEvent struct {
	Type      string `json:"type"`
	Path      string `json:"path"` // slash separated, relative to the static root
	Timestamp int64  `json:"timestamp"`
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"gojuon-server/auth"
	"gojuon-server/config"
	"gojuon-server/dashscope"
	"gojuon-server/metrics"
	"gojuon-server/models"
)

const (
	errNoAPIKey      = "No API key provided"
	errParseResponse = "Failed to parse response"
	errBodyTooLarge  = "Request body too large"

	rawPreviewChars      = 300
	fragmentPreviewChars = 500
)

// Synthesizer sends text to the speech upstream and returns its raw body.
type Synthesizer interface {
	Synthesize(ctx context.Context, apiKey, text string) (*dashscope.Result, error)
}

// TTSProxy handles POST /api/tts. It forwards the text to DashScope, waits
// for the whole event stream and answers with its last JSON fragment.
type TTSProxy struct {
	cfg         *config.TTSConfig
	synthesizer Synthesizer
	logger      *slog.Logger
}

func NewTTSProxy(cfg *config.TTSConfig, synthesizer Synthesizer, logger *slog.Logger) *TTSProxy {
	return &TTSProxy{
		cfg:         cfg,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

func (p *TTSProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			p.fail(w, http.StatusRequestEntityTooLarge, metrics.OutcomeTooLarge, errBodyTooLarge)
			return
		}

		p.fail(w, http.StatusInternalServerError, metrics.OutcomeBadRequest, err.Error())
		return
	}

	var req models.SynthesisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		p.fail(w, http.StatusInternalServerError, metrics.OutcomeBadRequest, err.Error())
		return
	}

	key, err := auth.Resolve(req.APIKey, r.Header.Get("Authorization"), p.cfg.APIKey)
	if err != nil {
		p.fail(w, http.StatusBadRequest, metrics.OutcomeNoCredential, errNoAPIKey)
		return
	}

	result, err := p.synthesizer.Synthesize(r.Context(), key, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, dashscope.ErrRateLimited):
			p.fail(w, http.StatusTooManyRequests, metrics.OutcomeRateLimited, err.Error())
		case errors.Is(err, dashscope.ErrResponseTooLarge):
			p.fail(w, http.StatusBadGateway, metrics.OutcomeTooLarge, err.Error())
		default:
			p.fail(w, http.StatusInternalServerError, metrics.OutcomeTransport, err.Error())
		}
		return
	}

	logger := p.logger.With("synthesis_id", result.ID, "upstream_status", result.Status)

	fragment, ok := dashscope.LastEvent(result.Raw)
	if !ok {
		logger.Warn("failed to parse SSE")

		raw := dashscope.Truncate(string(result.Raw), rawPreviewChars)
		metrics.Get().TTSRequests.WithLabelValues(metrics.OutcomeUnparseable).Inc()
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Error: errParseResponse,
			Raw:   &raw,
		})
		return
	}

	logger.Debug("parsed JSON", "fragment", dashscope.Truncate(string(fragment), fragmentPreviewChars))

	metrics.Get().TTSRequests.WithLabelValues(metrics.OutcomeOK).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(fragment)
}

func (p *TTSProxy) fail(w http.ResponseWriter, code int, outcome, message string) {
	if code >= http.StatusInternalServerError {
		p.logger.Error("tts request failed", "status", code, "err", message)
	} else {
		p.logger.Warn("tts request rejected", "status", code, "err", message)
	}

	metrics.Get().TTSRequests.WithLabelValues(outcome).Inc()
	writeError(w, code, message)
}

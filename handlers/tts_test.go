package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"gojuon-server/config"
	"gojuon-server/dashscope"
	"gojuon-server/handlers"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTTSConfig(apiKey string) *config.TTSConfig {
	cfg := config.Default().TTS
	cfg.APIKey = apiKey
	return &cfg
}

type fakeSynthesizer struct {
	calls  atomic.Int32
	apiKey string
	text   string

	result *dashscope.Result
	err    error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, apiKey, text string) (*dashscope.Result, error) {
	f.calls.Add(1)
	f.apiKey = apiKey
	f.text = text

	return f.result, f.err
}

func sseResult(body string) *dashscope.Result {
	return &dashscope.Result{ID: "test", Status: http.StatusOK, Raw: []byte(body)}
}

func postTTS(t *testing.T, h http.Handler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestTTSProxyNoCredential(t *testing.T) {
	synth := &fakeSynthesizer{result: sseResult("data: {}\n")}
	proxy := handlers.NewTTSProxy(testTTSConfig(""), synth, testLogger())

	rec := postTTS(t, proxy, `{"text":"あ"}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, map[string]any{"error": "No API key provided"}, decodeError(t, rec))
	require.Zero(t, synth.calls.Load())
}

func TestTTSProxyCredentialPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header http.Header
		def    string
		want   string
	}{
		{"body key", `{"text":"a","apiKey":"sk-body"}`, http.Header{"Authorization": {"Bearer sk-header"}}, "sk-default", "sk-body"},
		{"header key", `{"text":"a"}`, http.Header{"Authorization": {"Bearer sk-header"}}, "sk-default", "sk-header"},
		{"default key", `{"text":"a"}`, nil, "sk-default", "sk-default"},
		{"empty body key falls back", `{"text":"a","apiKey":""}`, nil, "sk-default", "sk-default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &fakeSynthesizer{result: sseResult("data: {\"ok\":true}\n")}
			proxy := handlers.NewTTSProxy(testTTSConfig(tt.def), synth, testLogger())

			rec := postTTS(t, proxy, tt.body, tt.header)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tt.want, synth.apiKey)
			require.Equal(t, "a", synth.text)
		})
	}
}

func TestTTSProxyReturnsLastFragmentVerbatim(t *testing.T) {
	stream := strings.Join([]string{
		`id:1`,
		`event:result`,
		`data:{"output":{"audio":{"data":"UklGR"},"finish_reason":"null"}}`,
		``,
		`id:2`,
		`event:result`,
		`data:{"output":{"audio":{"url":"https://example.com/a.wav"},"finish_reason":"stop"},"usage":{"characters":1}}`,
		``,
	}, "\n")

	synth := &fakeSynthesizer{result: sseResult(stream)}
	proxy := handlers.NewTTSProxy(testTTSConfig("sk"), synth, testLogger())

	rec := postTTS(t, proxy, `{"text":"あ"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, `{"output":{"audio":{"url":"https://example.com/a.wav"},"finish_reason":"stop"},"usage":{"characters":1}}`, rec.Body.String())
}

func TestTTSProxyUnparseableResponse(t *testing.T) {
	raw := ":keep-alive\n" + strings.Repeat("x", 400)

	synth := &fakeSynthesizer{result: sseResult(raw)}
	proxy := handlers.NewTTSProxy(testTTSConfig("sk"), synth, testLogger())

	rec := postTTS(t, proxy, `{"text":"あ"}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeError(t, rec)
	require.Equal(t, "Failed to parse response", body["error"])
	require.Equal(t, raw[:300], body["raw"])
}

func TestTTSProxyUnparseableEmptyResponseKeepsRaw(t *testing.T) {
	synth := &fakeSynthesizer{result: sseResult("")}
	proxy := handlers.NewTTSProxy(testTTSConfig("sk"), synth, testLogger())

	rec := postTTS(t, proxy, `{"text":"あ"}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, map[string]any{"error": "Failed to parse response", "raw": ""}, decodeError(t, rec))
}

func TestTTSProxyMalformedBody(t *testing.T) {
	synth := &fakeSynthesizer{result: sseResult("data: {}\n")}
	proxy := handlers.NewTTSProxy(testTTSConfig("sk"), synth, testLogger())

	rec := postTTS(t, proxy, `{"text":`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, decodeError(t, rec)["error"])
	require.Zero(t, synth.calls.Load())
}

func TestTTSProxyBodyTooLarge(t *testing.T) {
	cfg := testTTSConfig("sk")
	cfg.MaxBodyBytes = 16

	synth := &fakeSynthesizer{result: sseResult("data: {}\n")}
	proxy := handlers.NewTTSProxy(cfg, synth, testLogger())

	rec := postTTS(t, proxy, `{"text":"`+strings.Repeat("あ", 50)+`"}`, nil)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "Request body too large", decodeError(t, rec)["error"])
	require.Zero(t, synth.calls.Load())
}

func TestTTSProxyUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"transport", errors.Join(dashscope.ErrTransport, errors.New("dial tcp: connection refused")), http.StatusInternalServerError},
		{"rate limited", errors.Join(dashscope.ErrRateLimited, context.DeadlineExceeded), http.StatusTooManyRequests},
		{"too large", dashscope.ErrResponseTooLarge, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &fakeSynthesizer{err: tt.err}
			proxy := handlers.NewTTSProxy(testTTSConfig("sk"), synth, testLogger())

			rec := postTTS(t, proxy, `{"text":"あ"}`, nil)

			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, tt.err.Error(), decodeError(t, rec)["error"])
		})
	}
}

func TestTTSProxyAgainstUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-live" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"code":"InvalidApiKey"}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"step\":1}\n\ndata: {\"step\":2}\n\n")
	}))
	defer upstream.Close()

	cfg := testTTSConfig("sk-live")
	client := dashscope.NewClient(upstream.URL, cfg.Model, dashscope.WithLogger(testLogger()))
	proxy := handlers.NewTTSProxy(cfg, client, testLogger())

	rec := postTTS(t, proxy, `{"text":"か"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"step":2}`, rec.Body.String())

	rec = postTTS(t, proxy, `{"text":"か","apiKey":"sk-wrong"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, map[string]any{"error": "Failed to parse response", "raw": `{"code":"InvalidApiKey"}`}, decodeError(t, rec))
}

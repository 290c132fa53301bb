package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gojuon-server/config"
	"gojuon-server/metrics"
	"gojuon-server/utils"
)

// StaticFiles serves the learning page and its assets from a local directory.
type StaticFiles struct {
	root   string
	index  string
	logger *slog.Logger
}

func NewStaticFiles(cfg *config.StaticConfig, logger *slog.Logger) *StaticFiles {
	return &StaticFiles{
		root:   cfg.Root,
		index:  cfg.Index,
		logger: logger,
	}
}

// ServeHTTP reads the whole file and writes it with a content type derived
// from its extension.
func (s *StaticFiles) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filePath, err := utils.ResolvePath(s.root, s.index, r.URL.Path)
	if err != nil {
		s.respond(w, http.StatusBadRequest, "invalid path")
		return
	}

	// a directory serves its own index document
	if info, err := os.Stat(filePath); err == nil && info.IsDir() {
		filePath = filepath.Join(filePath, s.index)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.respond(w, http.StatusNotFound, "File not found")
			return
		}

		s.logger.Error("failed to read file", "path", filePath, "err", err)
		s.respond(w, http.StatusInternalServerError, "Server error")
		return
	}

	metrics.Get().StaticRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	w.Header().Set("Content-Type", mimeTypeFromExt(filepath.Ext(filePath)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *StaticFiles) respond(w http.ResponseWriter, code int, message string) {
	metrics.Get().StaticRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	writeText(w, code, message)
}

// mimeTypeFromExt returns the content type for the asset types the page uses.
func mimeTypeFromExt(ext string) string {
	types := map[string]string{
		".html":  "text/html",
		".htm":   "text/html",
		".js":    "application/javascript",
		".mjs":   "application/javascript",
		".css":   "text/css",
		".json":  "application/json",
		".txt":   "text/plain",
		".png":   "image/png",
		".jpg":   "image/jpeg",
		".jpeg":  "image/jpeg",
		".svg":   "image/svg+xml",
		".webp":  "image/webp",
		".ico":   "image/x-icon",
		".mp3":   "audio/mpeg",
		".wav":   "audio/wav",
		".ogg":   "audio/ogg",
		".woff":  "font/woff",
		".woff2": "font/woff2",
	}
	if mime, ok := types[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

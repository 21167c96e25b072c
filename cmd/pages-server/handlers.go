package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sekai02/redcloud-pages/internal/metrics"
	"github.com/sekai02/redcloud-pages/internal/pagefile"
	"github.com/sekai02/redcloud-pages/internal/stream"
	"github.com/sekai02/redcloud-pages/pkg/pagefs"
)

const maxReadBytes = 64 << 20

var maxWriteBytes int64 = 64 << 20

type handler struct {
	service pagefs.API
}

func newMux(service pagefs.API) *http.ServeMux {
	h := &handler{service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/streams", h.handleStreams)
	mux.HandleFunc("/v1/streams/", h.handleStreamOps)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, stream.ErrInvalidName), errors.Is(err, pagefile.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, pagefile.ErrNotOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *handler) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"streams": names})
}

func (h *handler) handleStreamOps(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/streams/")
	parts := strings.Split(path, "/")

	if len(parts) > 2 || parts[0] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	name := parts[0]

	if len(parts) == 2 {
		switch parts[1] {
		case "stat":
			h.handleStat(w, r, name)
		case "open":
			h.handleLifecycle(w, r, name, h.service.Open)
		case "close":
			h.handleLifecycle(w, r, name, h.service.Close)
		default:
			http.Error(w, "invalid path", http.StatusBadRequest)
		}
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.handleDelete(w, r, name)
	case http.MethodGet:
		h.handleRead(w, r, name)
	case http.MethodPut:
		h.handleWrite(w, r, name)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func parseInt(r *http.Request, key string, def int64) (int64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func (h *handler) handleRead(w http.ResponseWriter, r *http.Request, name string) {
	off, err := parseInt(r, "off", 0)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}

	length, err := parseInt(r, "len", -1)
	if err != nil {
		http.Error(w, "invalid length", http.StatusBadRequest)
		return
	}

	if length > maxReadBytes {
		http.Error(w, "length exceeds limit", http.StatusBadRequest)
		return
	}

	if length < 0 {
		stats, err := h.service.Stat(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		length = min(max(stats.Size-off, 0), maxReadBytes)
	}

	result, err := h.service.ReadPartial(r.Context(), name, off, length)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Fault != nil {
		w.Header().Set("X-Partial-Read", "true")
		w.Header().Set("X-Fault-Page", strconv.FormatInt(result.Fault.Page, 10))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(result.Data)
}

func (h *handler) handleWrite(w http.ResponseWriter, r *http.Request, name string) {
	off, err := parseInt(r, "off", 0)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWriteBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := h.service.Write(r.Context(), name, off, data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

func (h *handler) handleStat(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.service.Stat(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) handleLifecycle(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := op(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.service.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

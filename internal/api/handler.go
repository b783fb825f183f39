package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/trendradar-webui/internal/document"
	"github.com/eugenenazirov/trendradar-webui/internal/metrics"
	"github.com/eugenenazirov/trendradar-webui/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// ConfigService reads and writes the TrendRadar configuration.
type ConfigService interface {
	LoadEffective() *document.Document
	Section(path ...string) *yaml.Node
	EnvStatus() map[string]map[string]bool
	Save(candidate *document.Document) error
	UpdateSection(value *yaml.Node, path ...string) error
}

// Restarter restarts the TrendRadar container.
type Restarter interface {
	Restart(ctx context.Context) error
	ManualInstruction() string
}

// Handler wires configuration, keyword, and restart dependencies into HTTP handlers.
type Handler struct {
	config    ConfigService
	keywords  storage.KeywordStore
	restarter Restarter

	logger *zap.Logger
	clock  func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(config ConfigService, keywords storage.KeywordStore, restarter Restarter, opts ...HandlerOption) *Handler {
	h := &Handler{
		config:    config,
		keywords:  keywords,
		restarter: restarter,
		logger:    zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	})
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeData(w, h.config.LoadEffective())
}

func (h *Handler) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.failRequest(w, r, "Configuration update failed", err)
		return
	}
	doc, err := document.ParseJSON(body)
	if err != nil {
		h.failRequest(w, r, "Configuration update failed", fmt.Errorf("%w: %w", errInvalidBody, err))
		return
	}

	err = h.config.Save(doc)
	metrics.ConfigWritesTotal.WithLabelValues("all", metrics.Result(err)).Inc()
	if err != nil {
		h.failRequest(w, r, "Failed to save configuration", err)
		return
	}
	writeMessage(w, "Configuration saved")
}

func (h *Handler) handleGetEnvStatus(w http.ResponseWriter, _ *http.Request) {
	writeData(w, envStatusResponse{
		Notification: envStatusNotification{
			Channels: h.config.EnvStatus(),
		},
	})
}

func (h *Handler) handleGetKeywords(w http.ResponseWriter, r *http.Request) {
	content, err := h.keywords.Read()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("keyword file missing", zap.Error(err))
		} else {
			h.logger.Error("failed to load keyword file",
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}
		content = ""
	}
	writeData(w, content)
}

func (h *Handler) handlePostKeywords(w http.ResponseWriter, r *http.Request) {
	var req keywordsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.failRequest(w, r, "Keyword update failed", err)
		return
	}

	err := h.keywords.Write(req.Content)
	metrics.KeywordWritesTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		h.failRequest(w, r, "Failed to save keywords", err)
		return
	}
	writeMessage(w, "Keywords saved")
}

// failRequest logs err with the request id and answers with a generic 500.
func (h *Handler) failRequest(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error(message,
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, message)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// readBody returns the raw body, bounded by maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return data, nil
}

// readJSONNode parses the body into an order-preserving node.
func readJSONNode(w http.ResponseWriter, r *http.Request) (*yaml.Node, error) {
	data, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	node, err := document.ParseJSONValue(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return node, nil
}

// decodeBody unmarshals a JSON object body into dst. A null or non-object
// body is rejected so that it never reaches dst as zero values.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if data = bytes.TrimSpace(data); len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("%w: body must be a JSON object", errInvalidBody)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return nil
}

type keywordsRequest struct {
	Content string `json:"content"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type envStatusNotification struct {
	Channels map[string]map[string]bool `json:"channels"`
}

type envStatusResponse struct {
	Notification envStatusNotification `json:"notification"`
}

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

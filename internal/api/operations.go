package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/eugenenazirov/trendradar-webui/internal/overlay"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return overlay.IsChannel(fl.Field().String())
	})
	return v
}

type testNotificationRequest struct {
	Channel string          `json:"channel" validate:"required,channel"`
	Config  json.RawMessage `json:"config"`
}

// handleTestNotification accepts a channel test request. Delivery is not
// performed; the request is only validated.
func (h *Handler) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	var req testNotificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.failRequest(w, r, "Notification test failed", err)
		return
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			message := "Unknown notification channel"
			if verrs[0].Tag() == "required" {
				message = "Notification channel is required"
			}
			writeError(w, http.StatusBadRequest, message)
			return
		}
		h.failRequest(w, r, "Notification test failed", err)
		return
	}

	writeMessage(w, req.Channel+" test message sent")
}

// handleReload acknowledges a reload request. TrendRadar picks up file
// changes on its next run, so there is nothing to signal.
func (h *Handler) handleReload(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, "Configuration reloaded")
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := h.restarter.Restart(r.Context()); err != nil {
		h.logger.Warn("restart request failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: h.restarter.ManualInstruction()})
		return
	}
	writeMessage(w, "Container restarted")
}

package handlers

import (
	"net/http"
	"strings"

	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/validate"
)

type webhookRequest struct {
	URL string `json:"url"`
}

func (h *Handler) decodeWebhook(w http.ResponseWriter, r *http.Request) (string, error) {
	var req webhookRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return "", err
	}
	url := strings.TrimSpace(req.URL)
	if err := validate.HTTPURL("url", url); err != nil {
		return "", err
	}
	return url, nil
}

// RegisterWebhook subscribes a URL to the log lines.
func (h *Handler) RegisterWebhook(w http.ResponseWriter, r *http.Request) error {
	url, err := h.decodeWebhook(w, r)
	if err != nil {
		return err
	}
	h.webhooks.Register(r.Context(), url)
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"message": "Webhook registered", "url": url})
	return nil
}

// UnregisterWebhook removes a subscriber. Unknown URLs are not an error.
func (h *Handler) UnregisterWebhook(w http.ResponseWriter, r *http.Request) error {
	url, err := h.decodeWebhook(w, r)
	if err != nil {
		return err
	}
	h.webhooks.Unregister(r.Context(), url)
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"message": "Webhook unregistered", "url": url})
	return nil
}

func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) error {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"webhooks": h.webhooks.List()})
	return nil
}

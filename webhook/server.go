package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lyrebirdhq/linescribe/line"
)

const maxBodyBytes = 1 << 20

// EventHandler processes one decoded webhook event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev line.Event) error
}

// Options configure the webhook HTTP handler.
type Options struct {
	// ChannelSecret signs webhook deliveries. Verification fails closed when
	// it is empty.
	ChannelSecret string

	Handler EventHandler

	Log *slog.Logger

	HealthEnabled bool
}

// NewHandler builds the HTTP surface: POST /webhook and an optional
// GET /health liveness probe.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("nil event handler")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		signature := req.Header.Get("X-Line-Signature")
		if !line.VerifySignature(opts.ChannelSecret, body, signature) {
			log.Warn("webhook_signature_invalid", "remote", req.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		log.Debug("webhook_signature_ok")

		// Past this point the platform always gets a success response:
		// per-event failures are contained and logged, never escalated.
		decoded, err := line.DecodeWebhookRequest(body)
		if err != nil {
			log.Warn("webhook_body_undecodable", "error", err.Error())
			writeOK(w)
			return
		}

		for _, ev := range decoded.Events {
			if err := opts.Handler.HandleEvent(req.Context(), ev); err != nil {
				log.Error("webhook_event_error",
					"type", ev.Type,
					"error", err.Error(),
					"raw", ev.RawJSON())
			}
		}
		writeOK(w)
	})

	if opts.HealthEnabled {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":   true,
				"time": time.Now().Format(time.RFC3339Nano),
			})
		})
	}

	return r, nil
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

package handler

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/grabtube/grabtube/internal/service/conversation"
	"github.com/grabtube/grabtube/pkg/utils"
)

// NewRouter wires the webhook and health endpoints. The webhook path
// carries the bot token as a secret segment so only Telegram can reach
// it.
func NewRouter(secret string, conv *conversation.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/webhook/{secret}", handleWebhook(secret, conv))

	// Keep-alive probe so the hosting platform does not idle the
	// service out.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

// handleWebhook decodes one Telegram update and feeds it to the
// conversation state machine. The update is processed before responding;
// dispatched jobs detach into their own goroutines, so slow downloads
// never hold up the webhook.
func handleWebhook(secret string, conv *conversation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := chi.URLParam(r, "secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			utils.RespondError(w, http.StatusNotFound, "not found")
			return
		}

		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			utils.RespondError(w, http.StatusBadRequest, "expected application/json")
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			log.Printf("[webhook] malformed update: %v", err)
			utils.RespondError(w, http.StatusBadRequest, "malformed update")
			return
		}

		conv.HandleUpdate(r.Context(), &update)
		w.WriteHeader(http.StatusOK)
	}
}

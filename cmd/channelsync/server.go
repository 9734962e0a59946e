package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"channelsync/internal/errors"
	"channelsync/internal/httputil"
	"channelsync/internal/models"
	"channelsync/internal/service"
	"channelsync/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const webhookSignatureHeader = "X-Hub-Signature-256"

type Server struct {
	router       *mux.Router
	logger       *logrus.Logger
	cfg          models.ServerConfig
	provisioner  *service.Provisioner
	verification *service.VerificationService
	syncManager  *service.SyncManager
	rateLimiter  *RateLimiter
	server       *http.Server
}

func NewServer(cfg models.ServerConfig, provisioner *service.Provisioner, verification *service.VerificationService, syncManager *service.SyncManager, rateLimiter *RateLimiter, logger *logrus.Logger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       logger,
		cfg:          cfg,
		provisioner:  provisioner,
		verification: verification,
		syncManager:  syncManager,
		rateLimiter:  rateLimiter,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/channels/{type}/connect", s.handleConnect()).Methods(http.MethodPost)
	api.HandleFunc("/channels/{channelId}/verification", s.handleGenerateChallenge()).Methods(http.MethodPost)
	api.HandleFunc("/channels/{channelId}/verification", s.handleChallengeStatus()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{conversationId}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{conversationId}/messages", s.handleListMessages()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook").Subrouter()
	webhook.HandleFunc("/inbound", s.handleInboundWebhook()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(s.cfg.Port)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %s", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := tracing.EnsureRequestID(r.Context())
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			s.logger.WithField("ip", ip).Warn("Rate limit exceeded")
			s.writeError(w, r, errors.New(errors.ErrCodeRateLimit, "too many requests").
				WithUserMessage("Too many requests, slow down"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type connectRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// channelResponse is the outward view of a channel; provider tokens stay
// out of API responses.
type channelResponse struct {
	ID          int64              `json:"id"`
	OwnerID     string             `json:"ownerId"`
	Type        models.ChannelType `json:"type"`
	ResourceID  string             `json:"resourceId"`
	IsConnected bool               `json:"isConnected"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func newChannelResponse(ch *models.Channel) channelResponse {
	return channelResponse{
		ID:          ch.ID,
		OwnerID:     ch.OwnerID,
		Type:        ch.Type,
		ResourceID:  ch.ResourceID(),
		IsConnected: ch.IsConnected,
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
	}
}

func (s *Server) handleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelType, err := models.ParseChannelType(mux.Vars(r)["type"])
		if err != nil {
			s.writeError(w, r, errors.NewValidationError("type", err.Error()))
			return
		}

		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "invalid JSON payload"))
			return
		}

		channel, err := s.provisioner.Provision(r.Context(), channelType, req.Code, req.State)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, newChannelResponse(channel))
	}
}

func (s *Server) handleGenerateChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := strconv.ParseInt(mux.Vars(r)["channelId"], 10, 64)
		if err != nil {
			s.writeError(w, r, errors.NewValidationError("channelId", "must be an integer"))
			return
		}

		challenge, err := s.verification.Generate(r.Context(), channelID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, challenge)
	}
}

func (s *Server) handleChallengeStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := strconv.ParseInt(mux.Vars(r)["channelId"], 10, 64)
		if err != nil {
			s.writeError(w, r, errors.NewValidationError("channelId", "must be an integer"))
			return
		}

		challenge, err := s.verification.Status(r.Context(), channelID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, challenge)
	}
}

func (s *Server) handleInboundWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifySignature(r, s.cfg.WebhookSecret, webhookSignatureHeader)
		if err != nil {
			s.logger.WithError(err).Warn("Webhook signature verification failed")
			s.writeError(w, r, errors.New(errors.ErrCodeAuthentication, "signature verification failed"))
			return
		}

		var payload models.InboundWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "invalid JSON payload"))
			return
		}

		s.verification.HandleInboundEvent(r.Context(), payload.Event())

		// Inbound provider messages also land in the timeline; the insert
		// path handles dedup against a stream echo of the same message.
		if payload.Text != "" {
			s.syncManager.Apply(payload.ConversationKey(), models.MessageEvent{
				Type:    models.MessageEventInsert,
				Message: payload.Message(),
			})
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["conversationId"]

		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "invalid JSON payload"))
			return
		}
		if req.Content == "" {
			s.writeError(w, r, errors.NewValidationError("content", "content is required"))
			return
		}

		msg := s.syncManager.Timeline(conversationID).SendOptimistic(req.Content, models.SenderTypeAgent)
		s.writeJSON(w, http.StatusAccepted, msg)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["conversationId"]
		messages := s.syncManager.Timeline(conversationID).Snapshot()
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversationId": conversationID,
			"messages":       messages,
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	message := errors.GetUserMessage(err)

	s.logger.WithError(err).WithFields(logrus.Fields{
		"path":      r.URL.Path,
		"status":    status,
		"requestId": tracing.GetRequestID(r.Context()),
	}).Warn("Request failed")

	s.writeJSON(w, status, map[string]interface{}{
		"error": message,
		"code":  string(errors.GetCode(err)),
	})
}

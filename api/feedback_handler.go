package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pilacorp/go-did-gateway/feedback"
)

// FeedbackService is the orchestration service behind the /feedback routes.
type FeedbackService interface {
	Submit(ctx context.Context, sub feedback.Submission) (*feedback.Receipt, error)
	List(ctx context.Context) ([]feedback.Record, error)
	Reputation(ctx context.Context, did string) (*feedback.Reputation, error)
}

// FeedbackHandler relays signed feedback and reads the ledger.
type FeedbackHandler struct {
	svc FeedbackService
	log *slog.Logger
}

// NewFeedbackHandler creates a FeedbackHandler.
func NewFeedbackHandler(svc FeedbackService, log *slog.Logger) *FeedbackHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FeedbackHandler{svc: svc, log: log}
}

// RegisterRoutes implements RouteRegistrar.
func (h *FeedbackHandler) RegisterRoutes(r chi.Router) {
	r.Route("/feedback", func(r chi.Router) {
		r.Post("/submit", h.handleSubmit)
		r.Get("/list", h.handleList)
		r.Get("/reputation/{did}", h.handleReputation)
	})
}

func (h *FeedbackHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := decodeBody(w, r, schemaSubmit, &sub); err != nil {
		writeError(w, h.log, err)
		return
	}

	receipt, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusCreated, receipt)
}

func (h *FeedbackHandler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusOK, records)
}

func (h *FeedbackHandler) handleReputation(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Reputation(r.Context(), pathParam(r, "did"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/pilacorp/go-did-gateway/did"
	"github.com/pilacorp/go-did-gateway/feedback"
	"github.com/pilacorp/go-did-gateway/identity"
)

// IdentityService is the signing service behind the /did routes.
type IdentityService interface {
	GenerateIdentity(ctx context.Context) (*identity.Identity, error)
	Sign(ctx context.Context, req identity.SignRequest) (*identity.SignResult, error)
	Verify(ctx context.Context, message, signature, address string) (*identity.Verification, error)
	Balance(ctx context.Context, address string) (*identity.Balance, error)
	Resolve(ctx context.Context, id, publicKeyHex string) (*did.DIDDocument, error)
}

// DIDHandler serves identity generation, signing and lookups.
type DIDHandler struct {
	svc IdentityService
	log *slog.Logger
}

// NewDIDHandler creates a DIDHandler.
func NewDIDHandler(svc IdentityService, log *slog.Logger) *DIDHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DIDHandler{svc: svc, log: log}
}

// RegisterRoutes implements RouteRegistrar.
func (h *DIDHandler) RegisterRoutes(r chi.Router) {
	r.Route("/did", func(r chi.Router) {
		r.Post("/generate", h.handleGenerate)
		r.Post("/sign", h.handleSign)
		r.Post("/verify", h.handleVerify)
		r.Get("/balance/{address}", h.handleBalance)
		r.Get("/resolve/{did}", h.handleResolve)
	})
}

type signRequest struct {
	Message    string            `json:"message"`
	PrivateKey string            `json:"privateKey"`
	Feedback   *feedback.Payload `json:"feedback"`
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

func (h *DIDHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.GenerateIdentity(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("Generated identity", "did", id.DID)
	writeData(w, http.StatusCreated, id)
}

func (h *DIDHandler) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeBody(w, r, schemaSign, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	var signReq identity.SignRequest = identity.MessageSignRequest{PrivateKey: req.PrivateKey, Message: req.Message}
	if req.Feedback != nil {
		signReq = identity.FeedbackSignRequest{PrivateKey: req.PrivateKey, Feedback: *req.Feedback}
	}

	res, err := h.svc.Sign(r.Context(), signReq)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *DIDHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(w, r, schemaVerify, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.svc.Verify(r.Context(), req.Message, req.Signature, req.Address)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *DIDHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Balance(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *DIDHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Resolve(r.Context(), pathParam(r, "did"), r.URL.Query().Get("publicKey"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}

// pathParam returns the unescaped URL parameter key.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

type banner struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Version is reported by the root banner.
var Version = "dev"

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, banner{
		Message: "DID gateway is running",
		Version: Version,
		Endpoints: map[string]string{
			"did":      "/did",
			"feedback": "/feedback",
			"health":   "/livez",
		},
	})
}

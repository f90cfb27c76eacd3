// Package keyserver implements one threshold key holder: an HTTP service
// that stores a single key share per envelope at encrypt time and releases
// it at decrypt time only against a valid session credential and an
// authorization transaction referencing the envelope. Shares are wrapped at
// rest under a key derived from the server's master key.
package keyserver

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/sealflow/sealflow/chain"
	"github.com/sealflow/sealflow/interfaces"
	"github.com/sealflow/sealflow/session"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// approveCallSuffix is the move call a fetch proof must contain.
const approveCallSuffix = "::seal_manager::seal_approve"

// Config configures a key-server handler.
type Config struct {
	// PackageID is the package scope credentials must be issued for.
	PackageID interfaces.ObjectID

	// MasterKey wraps shares at rest. Must be at least 32 bytes.
	MasterKey []byte
}

// RegisterShareRequest registers one key share for an envelope.
type RegisterShareRequest struct {
	EnvelopeID string   `json:"envelopeId"`
	Share      []byte   `json:"share"`
	Threshold  int      `json:"threshold"`
	Authorized []string `json:"authorized"`
}

// FetchShareRequest asks for a stored share. Message and Signature are the
// session credential's challenge message and the wallet signature over it;
// TxBytes is the serialized unsigned authorization transaction.
type FetchShareRequest struct {
	EnvelopeID string `json:"envelopeId"`
	Message    []byte `json:"message"`
	Signature  []byte `json:"signature"`
	TxBytes    []byte `json:"txBytes"`
}

// FetchShareResponse carries the released share.
type FetchShareResponse struct {
	Share []byte `json:"share"`
}

type shareRecord struct {
	wrapped    []byte
	nonce      []byte
	threshold  int
	authorized map[interfaces.AccountAddress]struct{}
}

// Handler processes key-server HTTP requests. Shares live in memory for the
// lifetime of the process.
type Handler struct {
	cfg Config
	log *slog.Logger

	mu      sync.RWMutex
	records map[string]*shareRecord
}

// NewHandler creates a key-server handler.
func NewHandler(cfg Config, log *slog.Logger) (*Handler, error) {
	if len(cfg.MasterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}
	if cfg.PackageID.IsZero() {
		return nil, errors.New("package ID is required")
	}

	return &Handler{
		cfg:     cfg,
		log:     log,
		records: make(map[string]*shareRecord),
	}, nil
}

// RegisterRoutes mounts the key-server API on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/shares/register", h.HandleRegisterShare)
	r.Post("/api/v1/shares/fetch", h.HandleFetchShare)
}

// HandleRegisterShare stores a wrapped key share together with the policy's
// authorized address set. Registering an envelope ID twice overwrites the
// previous record; the caller derives IDs with a fresh nonce per encryption,
// so collisions only occur when the same client retries.
func (h *Handler) HandleRegisterShare(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req RegisterShareRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, reqID, fmt.Errorf("could not parse request: %w", err))
		return
	}

	id, err := interfaces.NewEnvelopeIDFromHex(req.EnvelopeID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, reqID, err)
		return
	}
	if len(req.Share) == 0 {
		h.writeError(w, http.StatusBadRequest, reqID, errors.New("share is required"))
		return
	}
	if req.Threshold < 1 {
		h.writeError(w, http.StatusBadRequest, reqID, fmt.Errorf("invalid threshold %d", req.Threshold))
		return
	}
	if len(req.Authorized) == 0 {
		h.writeError(w, http.StatusBadRequest, reqID, errors.New("authorized address set is required"))
		return
	}

	authorized := make(map[interfaces.AccountAddress]struct{}, len(req.Authorized))
	for _, addrHex := range req.Authorized {
		addr, err := interfaces.NewAccountAddressFromHex(addrHex)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, reqID, fmt.Errorf("invalid authorized address %q: %w", addrHex, err))
			return
		}
		authorized[addr] = struct{}{}
	}

	wrapped, nonce, err := h.wrapShare(id, req.Share)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, reqID, err)
		return
	}

	h.mu.Lock()
	h.records[id.Hex()] = &shareRecord{
		wrapped:    wrapped,
		nonce:      nonce,
		threshold:  req.Threshold,
		authorized: authorized,
	}
	h.mu.Unlock()

	h.log.Info("Registered key share",
		slog.String("request_id", reqID),
		slog.String("envelope_id", id.Hex()),
		slog.Int("threshold", req.Threshold),
		slog.Int("authorized", len(authorized)))

	w.WriteHeader(http.StatusNoContent)
}

// HandleFetchShare releases a share after validating the session credential
// and the authorization transaction.
func (h *Handler) HandleFetchShare(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req FetchShareRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, reqID, fmt.Errorf("could not parse request: %w", err))
		return
	}

	id, err := interfaces.NewEnvelopeIDFromHex(req.EnvelopeID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, reqID, err)
		return
	}

	claims, err := session.VerifyPresented(req.Message, req.Signature, h.cfg.PackageID, time.Now())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, reqID, fmt.Errorf("invalid credential: %w", err))
		return
	}

	h.mu.RLock()
	record, ok := h.records[id.Hex()]
	h.mu.RUnlock()
	if !ok {
		h.writeError(w, http.StatusNotFound, reqID, fmt.Errorf("no share for envelope %s", id.Hex()))
		return
	}

	if _, ok := record.authorized[claims.Account]; !ok {
		h.writeError(w, http.StatusForbidden, reqID, fmt.Errorf("account %s not authorized for envelope", claims.Account))
		return
	}

	if err := h.validateProof(req.TxBytes, id, claims.Account); err != nil {
		h.writeError(w, http.StatusForbidden, reqID, fmt.Errorf("invalid authorization transaction: %w", err))
		return
	}

	share, err := h.unwrapShare(id, record)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, reqID, err)
		return
	}

	h.log.Info("Released key share",
		slog.String("request_id", reqID),
		slog.String("envelope_id", id.Hex()),
		slog.String("account", claims.Account.String()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(FetchShareResponse{Share: share})
}

// validateProof checks the serialized unsigned transaction: it must be sent
// by the credential's account and contain a seal_approve call whose first
// argument is the envelope ID.
func (h *Handler) validateProof(txBytes []byte, id interfaces.EnvelopeID, account interfaces.AccountAddress) error {
	var tx chain.Transaction
	if err := json.Unmarshal(txBytes, &tx); err != nil {
		return fmt.Errorf("could not parse transaction: %w", err)
	}

	if tx.Sender != account.String() {
		return fmt.Errorf("transaction sender %s does not match credential account", tx.Sender)
	}

	for _, call := range tx.Calls {
		if !strings.HasSuffix(call.Target, approveCallSuffix) {
			continue
		}
		if len(call.Args) > 0 && call.Args[0].Value == id.Hex() {
			return nil
		}
	}

	return errors.New("no approval call referencing the envelope")
}

func (h *Handler) wrapKey(id interfaces.EnvelopeID) ([]byte, error) {
	kdf := hkdf.New(sha256.New, h.cfg.MasterKey, id.Bytes(), []byte("sealflow-share-wrap"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("could not derive wrapping key: %w", err)
	}
	return key, nil
}

func (h *Handler) wrapShare(id interfaces.EnvelopeID, share []byte) (wrapped, nonce []byte, err error) {
	key, err := h.wrapKey(id)
	if err != nil {
		return nil, nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aead.Seal(nil, nonce, share, id.Bytes()), nonce, nil
}

func (h *Handler) unwrapShare(id interfaces.EnvelopeID, record *shareRecord) ([]byte, error) {
	key, err := h.wrapKey(id)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	share, err := aead.Open(nil, record.nonce, record.wrapped, id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not unwrap share: %w", err)
	}
	return share, nil
}

func (h *Handler) writeError(w http.ResponseWriter, status int, reqID string, err error) {
	h.log.Warn("Request failed",
		slog.String("request_id", reqID),
		slog.Int("status", status),
		"err", err)
	http.Error(w, err.Error(), status)
}

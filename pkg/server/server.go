// Package server exposes the wallet's dispatcher surface over HTTP:
// account registration, owner and guardian management, the recovery
// lifecycle, the generic execute authorization check and the audit head.
//
// The server is the trusted dispatcher. Transport-level authentication of
// callers is the deployment's responsibility; handlers take the caller
// identity from the request and the account core enforces the privilege
// tiers.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/audit"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/signature"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/wallet"
)

// Server dispatches wallet operations to managed accounts.
type Server struct {
	wallet       *wallet.Wallet
	validator    *signature.Validator
	auditLog     *audit.Log
	storeManager *sqlite.StoreManager
}

// NewServer creates a Server from options. A wallet is required.
func NewServer(opts ...Option) (*Server, error) {
	cfg := applyOptions(opts...)
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("server requires a wallet")
	}

	validator := cfg.Validator
	if validator == nil {
		validator = signature.NewValidator(signature.DefaultCacheSize)
	}

	return &Server{
		wallet:       cfg.Wallet,
		validator:    validator,
		auditLog:     cfg.Audit,
		storeManager: cfg.StoreManager,
	}, nil
}

// Routes registers all handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /networks", s.handleAddNetwork)
	mux.HandleFunc("GET /networks", s.handleListNetworks)

	mux.HandleFunc("POST /accounts", s.handleAddAccount)
	mux.HandleFunc("GET /accounts/{address}", s.handleGetAccount)

	mux.HandleFunc("PUT /accounts/{address}/owners", s.handleUpdateOwners)
	mux.HandleFunc("POST /accounts/{address}/owners", s.handleAddOwner)
	mux.HandleFunc("DELETE /accounts/{address}/owners/{owner}", s.handleRemoveOwner)

	mux.HandleFunc("PUT /accounts/{address}/guardians", s.handleUpdateGuardians)
	mux.HandleFunc("POST /accounts/{address}/guardians", s.handleAddGuardian)
	mux.HandleFunc("DELETE /accounts/{address}/guardians/{guardian}", s.handleRemoveGuardian)

	mux.HandleFunc("POST /accounts/{address}/recovery/approvals", s.handleApproveRecovery)
	mux.HandleFunc("POST /accounts/{address}/recovery/revocations", s.handleRevokeRecovery)
	mux.HandleFunc("POST /accounts/{address}/recovery/execute", s.handleExecuteRecovery)
	mux.HandleFunc("POST /accounts/{address}/recovery/status", s.handleRecoveryStatus)

	mux.HandleFunc("POST /accounts/{address}/execute", s.handleExecute)

	mux.HandleFunc("GET /audit/head", s.handleAuditHead)
	mux.HandleFunc("GET /status", s.handleStatus)
}

// statusForError maps core errors onto HTTP status codes: privilege
// failures are 403, missing members and accounts 404, state conflicts
// 409, malformed or invalid input 400.
func statusForError(err error) int {
	switch {
	case errors.Is(err, wallet.ErrAccountNotFound),
		errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	case isAuthorizationError(err):
		return http.StatusForbidden
	case isStateConflict(err):
		return http.StatusConflict
	case isBadRequest(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

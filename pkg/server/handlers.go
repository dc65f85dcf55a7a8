package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/account"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/config"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/signature"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/wallet"
)

func isAuthorizationError(err error) bool {
	return errors.Is(err, account.ErrUnauthorized) ||
		errors.Is(err, account.ErrNotOwner) ||
		errors.Is(err, account.ErrNotGuardian)
}

func isStateConflict(err error) bool {
	return errors.Is(err, account.ErrDuplicateMember) ||
		errors.Is(err, account.ErrUnknownMember) ||
		errors.Is(err, account.ErrThresholdViolation) ||
		errors.Is(err, account.ErrRecoveryDisabled) ||
		errors.Is(err, account.ErrAlreadyApproved) ||
		errors.Is(err, account.ErrNotApproved) ||
		errors.Is(err, account.ErrInsufficientApprovals) ||
		errors.Is(err, account.ErrAlreadyInitialized) ||
		errors.Is(err, account.ErrNotInitialized) ||
		errors.Is(err, wallet.ErrAccountExists) ||
		errors.Is(err, wallet.ErrSignerNotOwner)
}

func isBadRequest(err error) bool {
	return errors.Is(err, account.ErrInvalidConfiguration) ||
		errors.Is(err, account.ErrInvalidMember) ||
		errors.Is(err, signature.ErrMalformedSignatureBundle) ||
		errors.Is(err, signature.ErrInsufficientSignatureCount) ||
		errors.Is(err, config.ErrUnknownNetwork)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func parseAddress(hex string) (common.Address, error) {
	if !common.IsHexAddress(hex) {
		return common.Address{}, errors.New("invalid address: " + hex)
	}
	return common.HexToAddress(hex), nil
}

func parseAddressList(hexes []string) ([]common.Address, error) {
	addrs := make([]common.Address, len(hexes))
	for i, h := range hexes {
		addr, err := parseAddress(h)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}

func formatAddresses(addrs []common.Address) []string {
	hexes := make([]string, len(addrs))
	for i, a := range addrs {
		hexes[i] = a.Hex()
	}
	return hexes
}

// pathAccount resolves the {address} path segment to a managed account.
func (s *Server) pathAccount(w http.ResponseWriter, r *http.Request) (*wallet.ManagedAccount, bool) {
	addr, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	managed, err := s.wallet.FindAccount(addr)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return managed, true
}

// sync persists the account snapshot after a successful mutation.
func (s *Server) sync(r *http.Request, managed *wallet.ManagedAccount) {
	if err := s.wallet.Sync(r.Context(), managed); err != nil {
		slog.Error("failed to persist account snapshot", "account", managed.Address().Hex(), "error", err)
	}
}

func (s *Server) handleAddNetwork(w http.ResponseWriter, r *http.Request) {
	var cfg config.NetworkConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.wallet.Networks().AddNetwork(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	names := s.wallet.Networks().Names()
	networks := make([]config.NetworkConfig, 0, len(names))
	for _, name := range names {
		cfg, err := s.wallet.Networks().Network(name)
		if err != nil {
			continue
		}
		networks = append(networks, cfg)
	}
	writeJSON(w, http.StatusOK, networks)
}

type addAccountRequest struct {
	Network           string   `json:"network"`
	Address           string   `json:"address"`
	EntryPoint        string   `json:"entry_point"`
	Owners            []string `json:"owners"`
	Threshold         uint64   `json:"threshold"`
	Guardians         []string `json:"guardians,omitempty"`
	GuardianThreshold uint64   `json:"guardian_threshold,omitempty"`
	BundlerURL        string   `json:"bundler_url,omitempty"`
	PaymasterURL      string   `json:"paymaster_url,omitempty"`
	CustomRPC         string   `json:"custom_rpc,omitempty"`
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	addr, err := parseAddress(req.Address)
	if err == nil && req.EntryPoint == "" {
		err = errors.New("entry_point is required")
	}
	var entryPoint common.Address
	if err == nil {
		entryPoint, err = parseAddress(req.EntryPoint)
	}
	var owners, guardians []common.Address
	if err == nil {
		owners, err = parseAddressList(req.Owners)
	}
	if err == nil {
		guardians, err = parseAddressList(req.Guardians)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	managed, err := s.wallet.AddAccount(r.Context(), wallet.AddAccountParams{
		Network:           req.Network,
		Address:           addr,
		EntryPoint:        entryPoint,
		Owners:            owners,
		Threshold:         req.Threshold,
		Guardians:         guardians,
		GuardianThreshold: req.GuardianThreshold,
		BundlerURL:        req.BundlerURL,
		PaymasterURL:      req.PaymasterURL,
		CustomRPC:         req.CustomRPC,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountStatus(managed))
}

type accountStatusResponse struct {
	Network           string   `json:"network"`
	Address           string   `json:"address"`
	EntryPoint        string   `json:"entry_point"`
	Owners            []string `json:"owners"`
	Threshold         uint64   `json:"threshold"`
	Guardians         []string `json:"guardians"`
	GuardianThreshold uint64   `json:"guardian_threshold"`
	RecoveryEnabled   bool     `json:"recovery_enabled"`
}

func accountStatus(managed *wallet.ManagedAccount) accountStatusResponse {
	return accountStatusResponse{
		Network:           managed.Network,
		Address:           managed.Address().Hex(),
		EntryPoint:        managed.EntryPoint().Hex(),
		Owners:            formatAddresses(managed.Owners()),
		Threshold:         managed.Threshold(),
		Guardians:         formatAddresses(managed.Guardians()),
		GuardianThreshold: managed.GuardianThreshold(),
		RecoveryEnabled:   managed.RecoveryEnabled(),
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, accountStatus(managed))
}

type updateMembersRequest struct {
	Caller    string   `json:"caller"`
	Members   []string `json:"members"`
	Threshold uint64   `json:"threshold"`
}

func (s *Server) handleUpdateOwners(w http.ResponseWriter, r *http.Request) {
	s.handleMemberUpdate(w, r, func(managed *wallet.ManagedAccount, caller common.Address, members []common.Address, threshold uint64) error {
		return managed.UpdateOwners(caller, members, threshold)
	})
}

func (s *Server) handleUpdateGuardians(w http.ResponseWriter, r *http.Request) {
	s.handleMemberUpdate(w, r, func(managed *wallet.ManagedAccount, caller common.Address, members []common.Address, threshold uint64) error {
		return managed.UpdateGuardians(caller, members, threshold)
	})
}

func (s *Server) handleMemberUpdate(w http.ResponseWriter, r *http.Request, update func(*wallet.ManagedAccount, common.Address, []common.Address, uint64) error) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	var req updateMembersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	members, err := parseAddressList(req.Members)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := update(managed, caller, members, req.Threshold); err != nil {
		writeError(w, err)
		return
	}
	s.sync(r, managed)
	writeJSON(w, http.StatusOK, accountStatus(managed))
}

type memberRequest struct {
	Caller string `json:"caller"`
	Member string `json:"member"`
}

func (s *Server) handleAddOwner(w http.ResponseWriter, r *http.Request) {
	s.handleMemberAdd(w, r, (*wallet.ManagedAccount).AddOwner)
}

func (s *Server) handleAddGuardian(w http.ResponseWriter, r *http.Request) {
	s.handleMemberAdd(w, r, (*wallet.ManagedAccount).AddGuardian)
}

func (s *Server) handleMemberAdd(w http.ResponseWriter, r *http.Request, add func(*wallet.ManagedAccount, common.Address, common.Address) error) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	member, err := parseAddress(req.Member)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := add(managed, caller, member); err != nil {
		writeError(w, err)
		return
	}
	s.sync(r, managed)
	writeJSON(w, http.StatusOK, accountStatus(managed))
}

func (s *Server) handleRemoveOwner(w http.ResponseWriter, r *http.Request) {
	s.handleMemberRemove(w, r, "owner", (*wallet.ManagedAccount).RemoveOwner)
}

func (s *Server) handleRemoveGuardian(w http.ResponseWriter, r *http.Request) {
	s.handleMemberRemove(w, r, "guardian", (*wallet.ManagedAccount).RemoveGuardian)
}

func (s *Server) handleMemberRemove(w http.ResponseWriter, r *http.Request, segment string, remove func(*wallet.ManagedAccount, common.Address, common.Address) error) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	caller, err := parseAddress(r.URL.Query().Get("caller"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "caller query parameter: " + err.Error()})
		return
	}
	member, err := parseAddress(r.PathValue(segment))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := remove(managed, caller, member); err != nil {
		writeError(w, err)
		return
	}
	s.sync(r, managed)
	writeJSON(w, http.StatusOK, accountStatus(managed))
}

type recoveryRequest struct {
	Caller       string   `json:"caller"`
	NewOwners    []string `json:"new_owners"`
	NewThreshold uint64   `json:"new_threshold"`
}

func (s *Server) parseRecovery(w http.ResponseWriter, r *http.Request) (*wallet.ManagedAccount, common.Address, []common.Address, uint64, bool) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return nil, common.Address{}, nil, 0, false
	}
	var req recoveryRequest
	if !decodeBody(w, r, &req) {
		return nil, common.Address{}, nil, 0, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, common.Address{}, nil, 0, false
	}
	newOwners, err := parseAddressList(req.NewOwners)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, common.Address{}, nil, 0, false
	}
	return managed, caller, newOwners, req.NewThreshold, true
}

type recoveryStatusResponse struct {
	Digest        string `json:"digest"`
	ApprovalCount uint64 `json:"approval_count"`
	Approved      bool   `json:"approved,omitempty"`
}

func (s *Server) handleApproveRecovery(w http.ResponseWriter, r *http.Request) {
	managed, caller, newOwners, newThreshold, ok := s.parseRecovery(w, r)
	if !ok {
		return
	}
	if err := managed.ApproveRecovery(caller, newOwners, newThreshold); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryStatusResponse{
		Digest:        account.RecoveryDigest(newOwners, newThreshold).Hex(),
		ApprovalCount: managed.RecoveryApprovalCount(newOwners, newThreshold),
	})
}

func (s *Server) handleRevokeRecovery(w http.ResponseWriter, r *http.Request) {
	managed, caller, newOwners, newThreshold, ok := s.parseRecovery(w, r)
	if !ok {
		return
	}
	if err := managed.RevokeRecoveryApproval(caller, newOwners, newThreshold); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryStatusResponse{
		Digest:        account.RecoveryDigest(newOwners, newThreshold).Hex(),
		ApprovalCount: managed.RecoveryApprovalCount(newOwners, newThreshold),
	})
}

func (s *Server) handleExecuteRecovery(w http.ResponseWriter, r *http.Request) {
	managed, caller, newOwners, newThreshold, ok := s.parseRecovery(w, r)
	if !ok {
		return
	}
	if err := managed.ExecuteRecovery(caller, newOwners, newThreshold); err != nil {
		writeError(w, err)
		return
	}
	s.sync(r, managed)
	writeJSON(w, http.StatusOK, accountStatus(managed))
}

type recoveryQueryRequest struct {
	NewOwners    []string `json:"new_owners"`
	NewThreshold uint64   `json:"new_threshold"`
	Guardian     string   `json:"guardian,omitempty"`
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	var req recoveryQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	newOwners, err := parseAddressList(req.NewOwners)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp := recoveryStatusResponse{
		Digest:        account.RecoveryDigest(newOwners, req.NewThreshold).Hex(),
		ApprovalCount: managed.RecoveryApprovalCount(newOwners, req.NewThreshold),
	}
	if req.Guardian != "" {
		guardian, err := parseAddress(req.Guardian)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		resp.Approved = managed.HasApprovedRecovery(guardian, newOwners, req.NewThreshold)
	}
	writeJSON(w, http.StatusOK, resp)
}

type executeRequest struct {
	Caller     string `json:"caller"`
	Digest     string `json:"digest"`
	Signatures string `json:"signatures"` // hex concatenation of 65-byte signatures
}

type executeResponse struct {
	Authorized bool   `json:"authorized"`
	Digest     string `json:"digest"`
	Threshold  uint64 `json:"threshold"`
}

// handleExecute runs the generic authorization check the dispatcher uses
// before executing an arbitrary sub-call on the account's behalf: the
// caller must pass the entrypoint-or-owner tier and the signature bundle
// must reach the owner threshold over the operation digest.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	managed, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	digestBytes, err := hexutil.Decode(req.Digest)
	if err != nil || len(digestBytes) != common.HashLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "digest must be a 32-byte hex string"})
		return
	}
	bundle, err := hexutil.Decode(req.Signatures)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signatures must be a hex string"})
		return
	}

	if err := managed.AuthorizeExecute(caller); err != nil {
		writeError(w, err)
		return
	}

	digest := common.BytesToHash(digestBytes)
	authorized, err := s.validator.ValidateBundle(digest, bundle, managed.Threshold(), managed.IsOwner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		Authorized: authorized,
		Digest:     digest.Hex(),
		Threshold:  managed.Threshold(),
	})
}

type auditHeadResponse struct {
	Size uint64 `json:"size"`
	Root string `json:"root"`
}

func (s *Server) handleAuditHead(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit log not enabled"})
		return
	}
	root, err := s.auditLog.Root()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auditHeadResponse{
		Size: s.auditLog.Size(),
		Root: hexutil.Encode(root),
	})
}

type statusResponse struct {
	Wallet      string   `json:"wallet"`
	Networks    []string `json:"networks"`
	Accounts    int      `json:"accounts"`
	AuditSize   uint64   `json:"audit_size"`
	StoragePath string   `json:"storage_path,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Wallet:   s.wallet.Name(),
		Networks: s.wallet.Networks().Names(),
	}
	for _, network := range s.wallet.ActiveNetworks() {
		resp.Accounts += len(s.wallet.Accounts(network))
	}
	if s.auditLog != nil {
		resp.AuditSize = s.auditLog.Size()
	}
	if s.storeManager != nil {
		resp.StoragePath = s.storeManager.BasePath()
	}
	writeJSON(w, http.StatusOK, resp)
}

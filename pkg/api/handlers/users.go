package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/sha3"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
	"github.com/PhotonicGluon/Excalibur/pkg/exef"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
	"github.com/PhotonicGluon/Excalibur/pkg/vault"
)

// UsersHandler serves account enrolment and lookup.
type UsersHandler struct {
	Store *store.Store
	Vault *vault.Vault

	// SRPGroupBits is recorded against new accounts.
	SRPGroupBits int

	// AccountCreationKey, when set, must have been used to seal the
	// enrolment body. Enrolment is open when empty.
	AccountCreationKey string
}

// NewUsersHandler creates the user endpoints handler.
func NewUsersHandler(s *store.Store, v *vault.Vault, groupBits int, accountCreationKey string) *UsersHandler {
	return &UsersHandler{
		Store:              s,
		Vault:              v,
		SRPGroupBits:       groupBits,
		AccountCreationKey: accountCreationKey,
	}
}

// securityDetails is the public per-user key-derivation material.
type securityDetails struct {
	AukSalt string `json:"auk_salt"`
	SrpSalt string `json:"srp_salt"`
}

// encryptedVaultKey carries the vault key ciphertext; only the account
// owner's client can unwrap it.
type encryptedVaultKey struct {
	KeyEnc string `json:"key_enc"`
}

// addUserRequest is the enrolment body. All fields are base64.
type addUserRequest struct {
	AukSalt  string `json:"auk_salt"`
	SrpSalt  string `json:"srp_salt"`
	Verifier string `json:"verifier"`
	KeyEnc   string `json:"key_enc"`
}

// Check reports whether a user exists.
//
// HEAD /api/users/check/{username}
func (h *UsersHandler) Check(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Store.HasUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Security returns the salts a client needs to derive its keys.
//
// GET /api/users/security/{username}
func (h *UsersHandler) Security(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, store.ErrUserNotFound) {
		middleware.WriteDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		middleware.WriteDetail(w, http.StatusInternalServerError, "User lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, securityDetails{
		AukSalt: base64.StdEncoding.EncodeToString(user.AukSalt),
		SrpSalt: base64.StdEncoding.EncodeToString(user.SRPSalt),
	})
}

// VaultKey returns the encrypted vault key. Session-protected; the response
// travels ExEF-wrapped.
//
// GET /api/users/vault/{username}
func (h *UsersHandler) VaultKey(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, store.ErrUserNotFound) {
		middleware.WriteDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		middleware.WriteDetail(w, http.StatusInternalServerError, "User lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, encryptedVaultKey{
		KeyEnc: base64.StdEncoding.EncodeToString(user.KeyEnc),
	})
}

// Add enrols a new user. When an account creation key is configured the
// body must be an ExEF container sealed under SHA3-256 of that key.
//
// POST /api/users/add/{username}
func (h *UsersHandler) Add(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	body, detail, status := h.readEnrolmentBody(r)
	if detail != "" {
		middleware.WriteDetail(w, status, detail)
		return
	}

	var req addUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		middleware.WriteDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	fields := map[string]string{
		"auk_salt": req.AukSalt,
		"srp_salt": req.SrpSalt,
		"verifier": req.Verifier,
		"key_enc":  req.KeyEnc,
	}
	decoded := make(map[string][]byte, len(fields))
	for name, value := range fields {
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil || len(raw) == 0 {
			middleware.WriteDetail(w, http.StatusUnprocessableEntity, "Invalid base64 string: "+name)
			return
		}
		decoded[name] = raw
	}

	user := &store.User{
		Username:    username,
		AukSalt:     decoded["auk_salt"],
		SRPGroup:    h.SRPGroupBits,
		SRPSalt:     decoded["srp_salt"],
		SRPVerifier: decoded["verifier"],
		KeyEnc:      decoded["key_enc"],
	}
	if err := h.Store.AddUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			middleware.WriteDetail(w, http.StatusConflict, "User already exists")
			return
		}
		logger.ErrorCtx(r.Context(), "user enrolment failed", logger.Username(username), logger.Err(err))
		middleware.WriteDetail(w, http.StatusInternalServerError, "User enrolment failed")
		return
	}

	if err := h.Vault.CreateUserRoot(username); err != nil {
		logger.ErrorCtx(r.Context(), "creating vault directory failed", logger.Username(username), logger.Err(err))
	}

	logger.InfoCtx(r.Context(), "user enrolled", logger.Username(username), "srp_group", h.SRPGroupBits)
	writeText(w, http.StatusCreated, "User added")
}

// readEnrolmentBody returns the plaintext enrolment body, unsealing it with
// the account creation key when one is configured.
func (h *UsersHandler) readEnrolmentBody(r *http.Request) (body []byte, detail string, status int) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, "Failed to read request body", http.StatusBadRequest
	}

	if h.AccountCreationKey == "" {
		return raw, "", 0
	}

	key := sha3.Sum256([]byte(h.AccountCreationKey))
	plain, err := exef.Open(key[:], raw)
	if err != nil {
		return nil, "Enrolment body must be sealed with the account creation key", http.StatusUnauthorized
	}
	return plain, "", 0
}

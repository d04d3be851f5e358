package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oder/internal/model"
	"github.com/erazemk/oder/internal/store"
)

// UsersHandler handles account management endpoints (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// userID parses the {id} path value, writing a 400 on failure.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

// hashPassword checks the policy and hashes, writing the error response itself.
func hashPassword(w http.ResponseWriter, password string) (string, bool) {
	if err := model.ValidatePassword(password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return "", false
	}
	return string(hash), true
}

// storeError renders an account store error.
func storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		jsonError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, store.ErrUsernameTaken):
		jsonError(w, http.StatusConflict, "username already exists")
	default:
		slog.Error(op+" failed", "error", err)
		jsonError(w, http.StatusInternalServerError, op+" failed")
	}
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		storeError(w, "listing users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	hash, ok := hashPassword(w, req.Password)
	if !ok {
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, hash, req.Role)
	if err != nil {
		storeError(w, "creating user", err)
		return
	}

	slog.Info("user created", "user", actor(r), "new_user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, "getting user", err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}. Only the role can change.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	// Admins cannot demote themselves out of account management.
	if c := GetClaims(r.Context()); c != nil && c.UserID == id && req.Role != model.RoleAdmin {
		jsonError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}

	if err := store.UpdateUser(r.Context(), h.DB, id, req.Role); err != nil {
		storeError(w, "updating user", err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, "getting user", err)
		return
	}
	slog.Info("user role updated", "user", actor(r), "target_user", user.Username, "new_role", req.Role)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		jsonError(w, http.StatusBadRequest, "password required")
		return
	}

	hash, ok := hashPassword(w, req.Password)
	if !ok {
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, id, hash); err != nil {
		storeError(w, "resetting password", err)
		return
	}

	slog.Info("user password reset", "user", actor(r), "target_user", h.userName(r, id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	if c := GetClaims(r.Context()); c != nil && c.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	target := h.userName(r, id)
	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		storeError(w, "deleting user", err)
		return
	}

	slog.Info("user deleted", "user", actor(r), "deleted_user", target)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// userName returns the username of id for log lines, or "id:N".
func (h *UsersHandler) userName(r *http.Request, id int64) string {
	if u, err := store.GetUser(r.Context(), h.DB, id); err == nil && u != nil {
		return u.Username
	}
	return fmt.Sprintf("id:%d", id)
}

package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/auth-sso/backend/internal/middleware"
	"github.com/auth-sso/backend/internal/usecase"
)

type Handler struct {
	authUsecase *usecase.AuthUsecase
}

func NewHandler(auth *usecase.AuthUsecase) *Handler {
	return &Handler{authUsecase: auth}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) validate() []string {
	var errs []string
	if len(strings.TrimSpace(r.Username)) < 3 {
		errs = append(errs, "username must be at least 3 characters")
	}
	if !strings.Contains(r.Email, "@") {
		errs = append(errs, "email is not valid")
	}
	if len(r.Password) < 8 {
		errs = append(errs, "password must be at least 8 characters")
	}
	return errs
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "Invalid registration data", errs...)
		return
	}

	session, err := h.authUsecase.Register(req.Username, req.Email, req.Password)
	if errors.Is(err, usecase.ErrUserExists) {
		writeError(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	writeSuccess(w, http.StatusCreated, "Registration successful", session)
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UsernameOrEmail == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Invalid login data", "usernameOrEmail and password are required")
		return
	}

	session, err := h.authUsecase.Login(req.UsernameOrEmail, req.Password, clientIP(r), r.UserAgent())
	if errors.Is(err, usecase.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid username/email or password")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", session)
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body", "refreshToken is required")
		return
	}

	session, err := h.authUsecase.Refresh(req.RefreshToken)
	if errors.Is(err, usecase.ErrInvalidToken) {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if errors.Is(err, usecase.ErrUserInactive) {
		writeError(w, http.StatusForbidden, "User is not active")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token refresh failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Token refreshed", session)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body", "refreshToken is required")
		return
	}

	err := h.authUsecase.Revoke(req.RefreshToken)
	if errors.Is(err, usecase.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Token not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token revocation failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Token revoked", true)
}

func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.authUsecase.RevokeAll(userID); err != nil {
		writeError(w, http.StatusInternalServerError, "Token revocation failed")
		return
	}

	writeSuccess(w, http.StatusOK, "All tokens revoked", true)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.authUsecase.GetUserByID(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	if user == nil || !user.IsActive {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeSuccess(w, http.StatusOK, "User info", usecase.UserInfo{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var errs []string
	if req.CurrentPassword == "" {
		errs = append(errs, "currentPassword is required")
	}
	if len(req.NewPassword) < 8 {
		errs = append(errs, "newPassword must be at least 8 characters")
	}
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "Invalid password data", errs...)
		return
	}

	err := h.authUsecase.ChangePassword(userID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, usecase.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if errors.Is(err, usecase.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Password change failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Password changed", true)
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body", "email is required")
		return
	}

	if err := h.authUsecase.ResetPassword(req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "Password reset failed")
		return
	}

	// Same answer whether or not the email is known.
	writeSuccess(w, http.StatusOK, "If the email exists, a temporary password has been sent", true)
}

func (h *Handler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.authUsecase.LoginHistory(userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load login history")
		return
	}

	writeSuccess(w, http.StatusOK, "Login history", events)
}

// Validate answers whether the presented bearer token passes verification.
// The HTTP status is 200 either way; the verdict is in the data field.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	bearer, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Authorization header required")
		return
	}

	valid := h.authUsecase.Validate(bearer)
	message := "Token is valid"
	if !valid {
		message = "Token is invalid"
	}
	writeSuccess(w, http.StatusOK, message, valid)
}

// ValidateWithClaims is the gateway's remote validation entry point.
func (h *Handler) ValidateWithClaims(w http.ResponseWriter, r *http.Request) {
	bearer, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Authorization header required")
		return
	}

	result := h.authUsecase.ValidateWithClaims(bearer)
	message := "Token is valid"
	if !result.IsValid {
		message = "Token is invalid"
	}
	writeSuccess(w, http.StatusOK, message, result)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

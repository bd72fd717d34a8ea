package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	authcore "github.com/techbridge/authcore"
	"github.com/techbridge/authcore/audit"
	"github.com/techbridge/authcore/middleware"
)

type authHandlers struct {
	authority *authcore.LocalAuthority
	sink      audit.Sink
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SubjectID    string    `json:"subject_id"`
	Role         string    `json:"role"`
}

type challengeResponse struct {
	MFARequired    bool   `json:"mfa_required"`
	TempToken      string `json:"temp_token"`
	VerificationID string `json:"verification_id"`
	Method         string `json:"method"`
}

func (h *authHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	creds := authcore.Credentials{Identifier: req.Identifier, Password: req.Password}
	if err := authcore.ValidateCredentials(creds); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	ctx := requestContext(r)
	grant, err := h.authority.Login(ctx, creds)
	if err != nil {
		h.emit(r, audit.EventLogin, req.Identifier, false, err)
		writeAuthError(w, err)
		return
	}

	if grant.MFARequired {
		h.emitSubject(r, audit.EventMFAChallenge, grant.SubjectID, string(grant.Role), true, nil)
		writeJSON(w, http.StatusOK, challengeResponse{
			MFARequired:    true,
			TempToken:      grant.TempToken,
			VerificationID: grant.VerificationID,
			Method:         grant.MFAMethod,
		})
		return
	}

	h.emitSubject(r, audit.EventLogin, grant.SubjectID, string(grant.Role), true, nil)
	writeJSON(w, http.StatusOK, grantResponse(grant))
}

func (h *authHandlers) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req authcore.MFAVerification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := authcore.ValidateMFAVerification(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	grant, err := h.authority.VerifyMFA(requestContext(r), req)
	if err != nil {
		h.emit(r, audit.EventMFAVerify, "", false, err)
		writeAuthError(w, err)
		return
	}

	h.emitSubject(r, audit.EventMFAVerify, grant.SubjectID, string(grant.Role), true, nil)
	writeJSON(w, http.StatusOK, grantResponse(grant))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *authHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token is required")
		return
	}

	grant, err := h.authority.Refresh(requestContext(r), req.RefreshToken)
	if err != nil {
		h.emit(r, audit.EventRefresh, "", false, err)
		writeAuthError(w, err)
		return
	}

	h.emitSubject(r, audit.EventRefresh, grant.SubjectID, string(grant.Role), true, nil)
	writeJSON(w, http.StatusOK, grantResponse(grant))
}

func (h *authHandlers) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token is required")
		return
	}

	if err := h.authority.Logout(requestContext(r), req.RefreshToken); err != nil {
		writeAuthError(w, err)
		return
	}
	h.emit(r, audit.EventLogout, "", true, nil)
	w.WriteHeader(http.StatusNoContent)
}

func grantResponse(grant *authcore.Grant) tokenResponse {
	return tokenResponse{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		SubjectID:    grant.SubjectID,
		Role:         string(grant.Role),
	}
}

// writeAuthError maps authority sentinels onto HTTP statuses.
func writeAuthError(w http.ResponseWriter, err error) {
	var attempt *authcore.MFAAttemptError
	switch {
	case errors.As(err, &attempt):
		if errors.Is(err, authcore.ErrMFALockedOut) {
			w.Header().Set("Retry-After", strconv.Itoa(int(attempt.RetryAfter/time.Second)+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":               errDetail("MFA_LOCKED_OUT", "too many failed codes"),
				"retry_after_seconds": int(attempt.RetryAfter / time.Second),
			})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              errDetail("MFA_INVALID_CODE", "invalid verification code"),
			"attempts_remaining": attempt.AttemptsRemaining,
		})
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid identifier or password")
	case errors.Is(err, authcore.ErrMFAEnrollmentRequired):
		writeError(w, http.StatusForbidden, "MFA_ENROLLMENT_REQUIRED", "a second factor must be enrolled for this role")
	case errors.Is(err, authcore.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "SESSION_EXPIRED", "refresh token rejected")
	case errors.Is(err, authcore.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, authcore.ErrAuthorityUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable")
	default:
		// Challenge problems (unknown or expired temp token) and the rest.
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication failed")
	}
}

func (h *authHandlers) emit(r *http.Request, eventType, subject string, success bool, err error) {
	h.emitSubject(r, eventType, subject, "", success, err)
}

func (h *authHandlers) emitSubject(r *http.Request, eventType, subject, role string, success bool, err error) {
	event := audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Subject:   subject,
		Role:      role,
		IP:        remoteIP(r),
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	h.sink.Emit(r.Context(), event)
}

func requestContext(r *http.Request) context.Context {
	return authcore.WithClientIP(r.Context(), remoteIP(r))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Resource handlers; the platform's real user service sits behind these
// routes, the demo returns the caller's identity and the route target.

func createUser(w http.ResponseWriter, r *http.Request) {
	writeResource(w, r, "create user")
}

func getUser(w http.ResponseWriter, r *http.Request) {
	writeResource(w, r, "get user")
}

func updateUser(w http.ResponseWriter, r *http.Request) {
	writeResource(w, r, "update user")
}

func deleteUser(w http.ResponseWriter, r *http.Request) {
	writeResource(w, r, "delete user")
}

func updateProfile(w http.ResponseWriter, r *http.Request) {
	writeResource(w, r, "update profile")
}

func updatePreferences(w http.ResponseWriter, r *http.Request) {
	writeResource(w, r, "update preferences")
}

func writeResource(w http.ResponseWriter, r *http.Request, action string) {
	identity, _ := middleware.FromContext(r.Context())
	body := map[string]string{"action": action}
	if id := mux.Vars(r)["id"]; id != "" {
		body["target"] = id
	}
	if identity != nil {
		body["caller"] = identity.Subject
		body["role"] = string(identity.Role)
	}
	writeJSON(w, http.StatusOK, body)
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errDetail(code, message string) errorDetail {
	return errorDetail{Code: code, Message: message}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorDetail{"error": errDetail(code, message)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

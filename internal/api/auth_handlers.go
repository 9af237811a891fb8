package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/qodeinvest/qode-engine/internal/auth"
)

// Auth constants.
const (
	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	// minPasswordLength is the minimum accepted password length.
	minPasswordLength = 8

	// defaultRefreshTTLMinutes is the refresh token lifetime when config omits it.
	defaultRefreshTTLMinutes = 7 * 24 * 60
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// changePasswordRequest is the request body for POST /auth/change-password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleLogin authenticates a user and issues an access/refresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Same response as a bad password so usernames cannot be probed.
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login lookup failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	if !user.IsActive {
		writeForbidden(w, "account is deactivated")
		return
	}

	resp, err := s.issueTokens(r.Context(), user, "", req.DeviceInfo)
	if err != nil {
		s.logger.Error("issuing tokens failed", "error", err, "user_id", user.ID)
		writeInternalError(w, "login failed")
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token and issues a new token pair.
//
// Presenting a revoked token revokes the whole family: a replayed token
// means either the client retried after a crash or the token was stolen,
// and the safe answer to both is a fresh login.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	token, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	if token.Revoked {
		if err := s.tokenRepo.RevokeFamily(r.Context(), token.FamilyID); err != nil {
			s.logger.Error("revoking token family failed", "error", err)
		}
		s.logger.Warn("refresh token reuse detected", "user_id", token.UserID, "family_id", token.FamilyID)
		writeUnauthorized(w, "refresh token reuse detected")
		return
	}

	if time.Now().After(token.ExpiresAt) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), token.UserID)
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if !user.IsActive {
		writeForbidden(w, "account is deactivated")
		return
	}

	resp, err := s.rotateTokens(r.Context(), user, token)
	if err != nil {
		s.logger.Error("rotating tokens failed", "error", err, "user_id", user.ID)
		writeInternalError(w, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the presented refresh token's family.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	token, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		// Logout with an unknown token is a no-op, not an error.
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
		return
	}

	if err := s.tokenRepo.RevokeFamily(r.Context(), token.FamilyID); err != nil {
		s.logger.Error("logout revocation failed", "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the authenticated user's account and permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "account no longer exists")
			return
		}
		s.logger.Error("me lookup failed", "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": auth.PermissionsForRole(user.Role),
	})
}

// handleChangePassword updates the caller's password and revokes all sessions.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		writeUnauthorized(w, "account no longer exists")
		return
	}

	ok, err := auth.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		writeUnauthorized(w, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	if err := s.userRepo.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		s.logger.Error("update password failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	// Existing sessions were established with the old password.
	if err := s.tokenRepo.RevokeAllForUser(r.Context(), user.ID); err != nil {
		s.logger.Error("revoking sessions after password change failed", "error", err)
	}

	s.logger.Info("password changed", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// issueTokens creates a new access/refresh pair. An empty familyID starts
// a new token family (fresh login).
func (s *Server) issueTokens(ctx context.Context, user *auth.User, familyID, deviceInfo string) (*tokenResponse, error) {
	accessTTL := s.secCfg.JWT.AccessTokenTTL
	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, accessTTL)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	token := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   familyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.refreshTTL()),
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	return s.tokenPair(access, raw), nil
}

// rotateTokens revokes the old refresh token and issues a new pair in the
// same family.
func (s *Server) rotateTokens(ctx context.Context, user *auth.User, old *auth.RefreshToken) (*tokenResponse, error) {
	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	next := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   old.FamilyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: old.DeviceInfo,
		ExpiresAt:  time.Now().Add(s.refreshTTL()),
	}
	if err := s.tokenRepo.RotateRefreshToken(ctx, old.ID, next); err != nil {
		return nil, err
	}

	return s.tokenPair(access, raw), nil
}

func (s *Server) tokenPair(access, refresh string) *tokenResponse {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15
	}
	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
	}
}

func (s *Server) refreshTTL() time.Duration {
	minutes := s.secCfg.JWT.RefreshTokenTTL
	if minutes <= 0 {
		minutes = defaultRefreshTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	userID    string
	role      auth.Role
	expiresAt time.Time
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	ticket := generateTicket()

	s.wsTickets.mu.Lock()
	if s.wsTickets.tickets == nil {
		s.wsTickets.tickets = make(map[string]ticketEntry)
	}
	s.wsTickets.tickets[ticket] = ticketEntry{
		userID:    claims.Subject,
		role:      claims.Role,
		expiresAt: time.Now().Add(ticketTTL),
	}
	s.wsTickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks if a ticket is valid and consumes it (single-use).
func (s *Server) validateTicket(ticket string) (ticketEntry, bool) {
	s.wsTickets.mu.Lock()
	defer s.wsTickets.mu.Unlock()

	entry, ok := s.wsTickets.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(s.wsTickets.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpiredTickets removes expired tickets from the store.
func (s *Server) cleanExpiredTickets() {
	s.wsTickets.mu.Lock()
	defer s.wsTickets.mu.Unlock()

	now := time.Now()
	for ticket, entry := range s.wsTickets.tickets {
		if now.After(entry.expiresAt) {
			delete(s.wsTickets.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpiredTickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanExpiredTickets()
		}
	}
}

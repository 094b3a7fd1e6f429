package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/config"
	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

const jwtCookieName = "jwt"

// AuthHandler issues and verifies bearer credentials and hosts the account
// flows that sit beside the gate (signup, login, password recovery).
type AuthHandler struct {
	users      *services.UserService
	mailer     services.Mailer
	secret     []byte
	tokenTTL   time.Duration
	cookieTTL  time.Duration
	production bool
}

func NewAuthHandler(users *services.UserService, mailer services.Mailer, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:      users,
		mailer:     mailer,
		secret:     []byte(cfg.JWT.Secret),
		tokenTTL:   cfg.JWT.TTL,
		cookieTTL:  cfg.JWT.CookieTTL,
		production: cfg.Env == "production",
	}
}

// RequireAuth is the gate for protected routes: extract the credential,
// verify it, load the principal, reject stale credentials, and attach the
// principal to the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
			return
		}

		user, err := h.verify(r.Context(), token)
		if err != nil {
			writeFailure(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
	})
}

// IsLoggedIn is the soft-check variant: it attaches the principal when the
// cookie credential verifies and otherwise proceeds unauthenticated.
func (h *AuthHandler) IsLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(jwtCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := h.verify(r.Context(), cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
	})
}

// RestrictTo authorizes only principals whose role is in the declared set.
// It must run after RequireAuth.
func (h *AuthHandler) RestrictTo(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
				return
			}
			if !allowed[principal.Role] {
				writeError(w, http.StatusForbidden, codeForbidden, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verify walks the credential through signature/expiry check, principal
// lookup and password-change staleness.
func (h *AuthHandler) verify(ctx context.Context, token string) (types.User, error) {
	subject, issuedAt, err := h.parseToken(token)
	if err != nil {
		return types.User{}, credentialError{message: "Invalid token. Please log in again"}
	}

	user, err := h.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			return types.User{}, credentialError{message: "The user belonging to this token no longer exists"}
		}
		return types.User{}, err
	}

	if user.ChangedPasswordAfter(issuedAt) {
		return types.User{}, credentialError{
			message: "User recently changed password. Please log in again",
			stale:   true,
		}
	}
	return user, nil
}

// credentialError is any verification failure; it always maps to 401.
type credentialError struct {
	message string
	stale   bool
}

func (e credentialError) Error() string { return e.message }

// Signup creates an account, queues the welcome mail and signs the caller in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		writeFailure(w, err)
		return
	}

	welcome := services.MailJob{
		Template: services.MailWelcome,
		Email:    user.Email,
		Name:     user.Name,
		URL:      fmt.Sprintf("%s://%s/me", scheme(r), r.Host),
	}
	if err := h.mailer.Send(r.Context(), welcome); err != nil {
		// The account exists either way; welcome mail is best effort.
		log.Printf("welcome mail for %s failed: %v", user.Email, err)
	}

	h.sendToken(w, http.StatusCreated, user)
}

// Login verifies a submitted secret against the stored hash.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Please provide email and password")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeFailure(w, err)
		return
	}
	h.sendToken(w, http.StatusOK, user)
}

// Logout overwrites the credential cookie with a short-lived dummy value.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     jwtCookieName,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, envelope{Status: "success"})
}

// ForgotPassword issues a single-use reset token and queues its delivery.
// The stored token is rolled back if the mail job cannot be published.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}

	user, plainToken, err := h.users.CreatePasswordResetToken(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "There is no user with that email address")
			return
		}
		writeFailure(w, err)
		return
	}

	reset := services.MailJob{
		Template: services.MailPasswordReset,
		Email:    user.Email,
		Name:     user.Name,
		URL:      fmt.Sprintf("%s://%s/api/v1/users/resetPassword/%s", scheme(r), r.Host, plainToken),
	}
	if err := h.mailer.Send(r.Context(), reset); err != nil {
		_ = h.users.ClearPasswordResetToken(r.Context(), user.ID)
		writeError(w, http.StatusInternalServerError, codeInternal, "There was an error sending the email. Try again later")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token sent to email",
	})
}

// ResetPassword consumes the emailed token and signs the caller in.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.PasswordConfirm)
	if err != nil {
		writeFailure(w, err)
		return
	}
	h.sendToken(w, http.StatusOK, user)
}

// UpdatePassword changes the signed-in user's password and re-issues the
// credential, since the old one just went stale.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "You are not logged in. Please log in to get access")
		return
	}

	var req struct {
		PasswordCurrent string `json:"passwordCurrent"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.UpdatePassword(r.Context(), principal.ID, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "Your current password is wrong")
			return
		}
		writeFailure(w, err)
		return
	}
	h.sendToken(w, http.StatusOK, user)
}

// sendToken issues a credential for the user, sets the cookie and writes the
// token response. The password hash never leaves the server.
func (h *AuthHandler) sendToken(w http.ResponseWriter, status int, user types.User) {
	token, err := h.signToken(user.ID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     jwtCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.cookieTTL),
		HttpOnly: true,
		Secure:   h.production,
	})

	user.Password = ""
	writeJSON(w, status, envelope{
		Status: "success",
		Token:  token,
		Data:   map[string]any{"user": user},
	})
}

func (h *AuthHandler) signToken(userID bson.ObjectID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *AuthHandler) parseToken(tokenString string) (subject string, issuedAt time.Time, err error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return h.secret, nil
	})
	if err != nil {
		return "", time.Time{}, err
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return "", time.Time{}, errors.New("invalid token")
	}
	return claims.Subject, claims.IssuedAt.Time, nil
}

// extractToken pulls the credential from the Authorization header or, when
// absent, from the jwt cookie.
func extractToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1]), true
		}
	}
	if cookie, err := r.Cookie(jwtCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

package middleware

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"chit-chat/internal/config"
	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
)

// SessionStore is the part of the database sessions live in.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// Toucher is notified of every authenticated request.
type Toucher interface {
	Touch(userID uuid.UUID)
}

// SessionManager issues and resolves cookie sessions.
type SessionManager struct {
	store    SessionStore
	signer   *TokenSigner
	cookie   string
	maxAge   time.Duration
	secure   bool
	presence Toucher
}

func NewSessionManager(store SessionStore, cfg *config.SessionConfig, secure bool) *SessionManager {
	return &SessionManager{
		store:  store,
		signer: NewTokenSigner(cfg.Secret),
		cookie: cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}
}

// SetPresence makes RequireUser report activity.
func (m *SessionManager) SetPresence(p Toucher) {
	m.presence = p
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the form a session token is stored in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Create starts a session for userID and sets the cookie.
func (m *SessionManager) Create(ctx context.Context, w http.ResponseWriter, userID uuid.UUID) error {
	token, err := newSessionToken()
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidToken, "Failed to generate session token", err)
	}

	expires := time.Now().Add(m.maxAge)
	session := &models.Session{
		TokenHash: HashToken(token),
		UserID:    userID,
		ExpiresAt: &expires,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return err
	}

	signed, err := m.signer.GenerateToken(token, userID, m.maxAge)
	if err != nil {
		return utils.NewAppError(utils.ErrInvalidToken, "Failed to sign session", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Resolve returns the live session behind the request cookie.
func (m *SessionManager) Resolve(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(m.cookie)
	if err != nil || cookie.Value == "" {
		return nil, utils.NewUnauthorizedError("no session cookie")
	}

	claims, err := m.signer.ValidateToken(cookie.Value)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid session", err)
	}

	hash := HashToken(claims.SessionID)
	session, err := m.store.GetSession(r.Context(), hash)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.NewUnauthorizedError("session not found")
		}
		return nil, err
	}
	if session.Expired(time.Now()) {
		if err := m.store.DeleteSession(r.Context(), hash); err != nil {
			log.Printf("Session: failed to delete expired session: %v", err)
		}
		return nil, utils.NewUnauthorizedError("session expired")
	}
	return session, nil
}

// Destroy deletes the server-side session and clears the cookie.
func (m *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) error {
	defer http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	cookie, err := r.Cookie(m.cookie)
	if err != nil {
		return nil
	}
	claims, err := m.signer.ValidateToken(cookie.Value)
	if err != nil {
		return nil
	}
	err = m.store.DeleteSession(r.Context(), HashToken(claims.SessionID))
	if err != nil && !utils.IsNotFound(err) {
		return err
	}
	return nil
}

// RequireUser redirects anonymous requests to /login and puts the user id
// in the context of the rest.
func (m *SessionManager) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.Resolve(r)
		if err != nil {
			if !utils.IsAuthError(err) {
				log.Printf("Session: resolve failed: %v", err)
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if m.presence != nil {
			m.presence.Touch(session.UserID)
		}
		next.ServeHTTP(w, r.WithContext(SetUserIDInContext(r.Context(), session.UserID)))
	})
}

// ClientIP prefers proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

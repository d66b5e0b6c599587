package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"venuebook/internal/dto"
	"venuebook/internal/model"
	"venuebook/internal/repo"
)

const (
	magicTokenTTL = 15 * time.Minute
	sessionTTL    = 30 * 24 * time.Hour

	actorKey = "actor"
)

// Sender delivers the login link. Satisfied by the mailer.
type Sender interface {
	Send(to, subject, body string) error
}

// Manager is the identity provider: it issues magic-link tokens, exchanges
// them for sessions, and resolves bearer tokens to actors. The core never
// sees any of this, only the resulting Actor.
type Manager struct {
	repo   repo.Repository
	log    *zerolog.Logger
	mail   Sender
	origin string
}

func NewManager(r repo.Repository, log *zerolog.Logger, mail Sender, origin string) *Manager {
	return &Manager{repo: r, log: log, mail: mail, origin: origin}
}

func (m *Manager) RequestMagicLink(ctx context.Context, email string) error {
	token := uuid.NewString()
	if err := m.repo.SetMagicToken(ctx, email, token, time.Now().Add(magicTokenTTL)); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/consume?token=%s", m.origin, token)
	body := fmt.Sprintf("Click to sign in: %s (valid 15 minutes)", link)
	if err := m.mail.Send(email, "Your login link", body); err != nil {
		m.log.Warn().Err(err).Str("email", email).Msg("failed to send login link")
	}
	return nil
}

// Consume redeems a magic token for a session token.
func (m *Manager) Consume(ctx context.Context, token string) (*model.User, string, error) {
	user, err := m.repo.ConsumeMagicTokenTx(ctx, token)
	if err != nil {
		return nil, "", err
	}
	s := &model.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, "", err
	}
	return user, s.Token, nil
}

func (m *Manager) Logout(ctx context.Context, token string) error {
	return m.repo.DeleteSession(ctx, token)
}

// Purge drops expired sessions and magic tokens; scheduled via cron.
func (m *Manager) Purge(ctx context.Context) {
	purged, err := m.repo.PurgeExpiredAuth(ctx, time.Now())
	if err != nil {
		m.log.Warn().Err(err).Msg("auth purge failed")
		return
	}
	if purged > 0 {
		m.log.Info().Int64("sessions", purged).Msg("expired sessions purged")
	}
}

// RequireAuth resolves the bearer token to an actor and aborts with 401
// when there is none.
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			dto.AuthRequiredError(c)
			c.Abort()
			return
		}
		user, err := m.repo.GetSessionUser(c.Request.Context(), token)
		if err != nil {
			dto.AuthRequiredError(c)
			c.Abort()
			return
		}
		c.Set(actorKey, model.Actor{ID: user.ID, Role: user.Role})
		c.Set("user", user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := c.Cookie("sess"); err == nil {
		return cookie
	}
	return ""
}

// ActorFrom returns the actor set by RequireAuth.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

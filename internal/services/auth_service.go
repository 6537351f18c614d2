package services

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/security"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/token"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrUserExists         = apperr.Conflict("User already exists")
	ErrWhatsappTaken      = apperr.Conflict("WhatsApp number already registered")
	ErrInvalidCredentials = apperr.Unauthorized("Invalid credentials")
	ErrInvalidRefresh     = apperr.Unauthorized("Invalid refresh token")
	ErrSessionNotFound    = apperr.Unauthorized("Session not found")
	ErrUserNotFound       = apperr.NotFound("User not found")
)

// ClientInfo is recorded on the session created at sign-in.
type ClientInfo struct {
	UserAgent string
	IP        string
}

type AuthService struct {
	store  repository.Store
	codec  *token.Codec
	hasher *security.Hasher
	region string
	now    func() time.Time
}

func NewAuthService(store repository.Store, codec *token.Codec, hasher *security.Hasher, cfg *config.Config) *AuthService {
	return &AuthService{
		store:  store,
		codec:  codec,
		hasher: hasher,
		region: cfg.DefaultPhoneRegion,
		now:    time.Now,
	}
}

// SignUp creates a local user and signs them in.
func (s *AuthService) SignUp(ctx context.Context, req *dto.SignUpRequest, client ClientInfo) (*dto.TokenResponse, error) {
	req.Sanitize()
	if err := dto.Invalid(req.Validate()); err != nil {
		return nil, err
	}
	if err := req.NormalizePhone(s.region); err != nil {
		return nil, err
	}

	if _, err := s.store.Users().FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err, "failed to look up user")
	}
	if _, err := s.store.Users().FindByWhatsapp(ctx, req.WhatsappNumber); err == nil {
		return nil, ErrWhatsappTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err, "failed to look up user")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash password")
	}

	user := &models.User{
		ID:             uuid.New(),
		Email:          req.Email,
		Name:           req.Name,
		WhatsappNumber: req.WhatsappNumber,
		AuthMethods: datatypes.JSONSlice[models.AuthMethod]{
			{Provider: models.ProviderLocal, PasswordHash: hash},
		},
		Profile: datatypes.NewJSONType(req.Profile()),
		Role:    models.RoleUser,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		// Lost a race with a concurrent sign-up for the same email or number.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, apperr.Internal(err, "failed to create user")
	}
	slog.Info("user signed up", "user_id", user.ID)

	return s.SignIn(ctx, user, client)
}

// ValidateUser checks a local password. It returns nil, nil when the email
// is unknown or the password does not match.
func (s *AuthService) ValidateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.Users().FindByEmail(ctx, dto.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to look up user")
	}
	if !s.hasher.Verify(password, user.PasswordHash()) {
		return nil, nil
	}
	return user, nil
}

// Authenticate validates the credentials and opens a new session.
func (s *AuthService) Authenticate(ctx context.Context, req *dto.SignInRequest, client ClientInfo) (*dto.TokenResponse, error) {
	req.Email = dto.NormalizeEmail(req.Email)
	if err := dto.Invalid(req.Validate()); err != nil {
		return nil, err
	}
	user, err := s.ValidateUser(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return s.SignIn(ctx, user, client)
}

// SignIn opens a new session for an already authenticated user. Existing
// sessions are left alone, so one user can hold many.
func (s *AuthService) SignIn(ctx context.Context, user *models.User, client ClientInfo) (*dto.TokenResponse, error) {
	session := &models.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.codec.RefreshTTL()),
		UserAgent: truncate(client.UserAgent, 512),
		IP:        truncate(client.IP, 64),
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, apperr.Internal(err, "failed to create session")
	}

	resp, err := s.activate(ctx, user, session)
	if err != nil {
		if delErr := s.store.Sessions().Delete(ctx, session.ID); delErr != nil {
			slog.Warn("failed to drop pending session", "session_id", session.ID, "error", delErr)
		}
		return nil, err
	}
	slog.Info("session created", "user_id", user.ID, "session_id", session.ID)
	return resp, nil
}

// activate issues the first token pair of a pending session and stores the
// refresh digest.
func (s *AuthService) activate(ctx context.Context, user *models.User, session *models.Session) (*dto.TokenResponse, error) {
	payload := payloadFor(user, session.ID)
	refresh, err := s.codec.IssueRefreshToken(payload)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue refresh token")
	}
	if err := s.store.Sessions().SetRefreshDigest(ctx, session.ID, token.Digest(refresh)); err != nil {
		return nil, apperr.Internal(err, "failed to store refresh digest")
	}
	access, err := s.codec.IssueAccessToken(payload)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue access token")
	}
	return s.tokenResponse(access, refresh), nil
}

// Refresh rotates the session named by a verified refresh token. The
// presented token must match the stored digest; the old token stops working
// once the new one is issued.
func (s *AuthService) Refresh(ctx context.Context, claims *token.Claims, presented string) (*dto.TokenResponse, error) {
	userID, sessionID, err := claimIDs(claims)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to look up user")
	}

	session, err := s.store.Sessions().FindByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to look up session")
	}
	if session.UserID != user.ID || !token.DigestEqual(presented, session.RefreshTokenHash) {
		slog.Warn("refresh token rejected", "user_id", user.ID, "session_id", session.ID)
		return nil, ErrInvalidRefresh
	}

	payload := payloadFor(user, session.ID)
	access, refresh, err := s.codec.IssuePair(payload)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue tokens")
	}
	expiresAt := s.now().Add(s.codec.RefreshTTL())
	err = s.store.Sessions().Rotate(ctx, session.ID, session.RefreshTokenHash, token.Digest(refresh), expiresAt)
	if errors.Is(err, repository.ErrStale) {
		// A concurrent refresh already consumed this token.
		return nil, ErrInvalidRefresh
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to rotate session")
	}
	slog.Info("session rotated", "user_id", user.ID, "session_id", session.ID)

	return s.tokenResponse(access, refresh), nil
}

// SignOut deletes the session the access token belongs to. The access token
// itself stays valid until it expires.
func (s *AuthService) SignOut(ctx context.Context, claims *token.Claims) error {
	userID, sessionID, err := claimIDs(claims)
	if err != nil {
		return ErrSessionNotFound
	}
	session, err := s.store.Sessions().FindByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return apperr.Internal(err, "failed to look up session")
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}

	err = s.store.Sessions().Delete(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return apperr.Internal(err, "failed to delete session")
	}
	slog.Info("session deleted", "user_id", userID, "session_id", sessionID)
	return nil
}

// SignOutAll deletes every session of the user, expired ones included.
func (s *AuthService) SignOutAll(ctx context.Context, claims *token.Claims) (int64, error) {
	userID, _, err := claimIDs(claims)
	if err != nil {
		return 0, ErrSessionNotFound
	}
	n, err := s.store.Sessions().DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(err, "failed to delete sessions")
	}
	slog.Info("all sessions deleted", "user_id", userID, "count", n)
	return n, nil
}

func (s *AuthService) ListSessions(ctx context.Context, claims *token.Claims) ([]dto.SessionResponse, error) {
	userID, current, err := claimIDs(claims)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	sessions, err := s.store.Sessions().FindValidByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list sessions")
	}
	out := make([]dto.SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, dto.SessionResponse{
			ID:        sess.ID,
			UserAgent: sess.UserAgent,
			IP:        sess.IP,
			Current:   sess.ID == current,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		})
	}
	return out, nil
}

func (s *AuthService) Profile(ctx context.Context, claims *token.Claims) (*dto.UserResponse, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user, err := s.store.Users().FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to look up user")
	}
	resp := dto.NewUserResponse(user)
	resp.SessionID = claims.SessionID
	return &resp, nil
}

func (s *AuthService) tokenResponse(access, refresh string) *dto.TokenResponse {
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.codec.AccessTTL() / time.Second),
	}
}

func payloadFor(user *models.User, sessionID uuid.UUID) token.Payload {
	return token.Payload{
		UserID:    user.ID.String(),
		Email:     user.Email,
		SessionID: sessionID.String(),
	}
}

func claimIDs(claims *token.Claims) (userID, sessionID uuid.UUID, err error) {
	if claims == nil {
		return uuid.Nil, uuid.Nil, token.ErrInvalidToken
	}
	if userID, err = uuid.Parse(claims.UserID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if sessionID, err = uuid.Parse(claims.SessionID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, sessionID, nil
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

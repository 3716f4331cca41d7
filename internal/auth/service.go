package auth

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/identity"
)

// Service issues and revokes principal tokens.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService constructs an auth service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues tokens for an already authenticated principal.
func (s *Service) Login(p identity.Principal) (TokenPair, error) {
	now := s.now()
	access, _, err := SignToken(p.ID, p.TokenVersion, []byte(s.cfg.JWTSecret), s.cfg.AccessTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := SignToken(p.ID, p.TokenVersion, []byte(s.cfg.RefreshSecret), s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := ParseToken(refreshToken, []byte(s.cfg.RefreshSecret))
	if err != nil {
		return "", 0, errors.New("invalid refresh token")
	}

	p, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return "", 0, errors.New("principal not found")
	}
	if p.TokenVersion != claims.Version {
		return "", 0, errors.New("token version invalidated")
	}

	signed, _, err := SignToken(p.ID, p.TokenVersion, []byte(s.cfg.JWTSecret), s.cfg.AccessTokenTTL, s.now())
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	p, err := s.idRepo.FindByID(ctx, principalID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, p.ID, p.TokenVersion+1)
}

// Verify checks an access token against the principal's current token version.
func (s *Service) Verify(ctx context.Context, accessToken string) (Claims, error) {
	claims, err := ParseToken(accessToken, []byte(s.cfg.JWTSecret))
	if err != nil {
		return Claims{}, err
	}
	p, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil || p.TokenVersion != claims.Version {
		return Claims{}, errors.New("token invalidated")
	}
	return claims, nil
}

package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPINLength = 4

// Service manages principal lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates a principal and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (Principal, error) {
	handle := strings.TrimSpace(creds.Handle)
	if handle == "" {
		return Principal{}, errors.New("handle is required")
	}
	if len(creds.PIN) < minPINLength {
		return Principal{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, err
	}

	p := Principal{
		ID:        uuid.New().String(),
		Handle:    handle,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Principal, error) {
	p, err := s.repo.FindByHandle(ctx, strings.TrimSpace(creds.Handle))
	if err != nil {
		return Principal{}, err
	}

	if err := bcrypt.CompareHashAndPassword(p.PINHash, []byte(creds.PIN)); err != nil {
		return Principal{}, errors.New("invalid PIN")
	}

	if p.DeviceID == "" {
		if creds.DeviceID == "" {
			return Principal{}, errors.New("device binding required")
		}
		if err := s.repo.UpdateDevice(ctx, p.ID, creds.DeviceID); err != nil {
			return Principal{}, err
		}
		p.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && p.DeviceID != creds.DeviceID {
		return Principal{}, errors.New("device mismatch")
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, p.ID, now); err != nil {
		return Principal{}, err
	}
	p.LastLogin = &now
	return p, nil
}

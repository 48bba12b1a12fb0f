package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/taskbounty/marketplace/internal/domain"
	"github.com/taskbounty/marketplace/internal/mailer"
	"github.com/taskbounty/marketplace/internal/repo/postgres"
	"github.com/taskbounty/marketplace/pkg/auth"
	"github.com/taskbounty/marketplace/pkg/config"
	"github.com/taskbounty/marketplace/pkg/events"
	"github.com/taskbounty/marketplace/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Identity, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	Verify(ctx context.Context, username string, code int64) (*domain.Identity, error)
	ResendCode(ctx context.Context, username string) error
	ChangeEmail(ctx context.Context, username, newEmail string) error
}

const lockStripes = 64

type service struct {
	identities postgres.IdentityRepository
	mailer     mailer.Service
	eventBus   events.Publisher
	config     *config.Config
	now        func() time.Time
	locks      [lockStripes]sync.Mutex
}

func NewService(
	identities postgres.IdentityRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	config *config.Config,
) Service {
	return &service{
		identities: identities,
		mailer:     mailer,
		eventBus:   eventBus,
		config:     config,
		now:        time.Now,
	}
}

// lockFor serializes verification-state mutations per identity so that two
// near-simultaneous resends cannot both pass the cooldown gate.
func (s *service) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *service) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Identity, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.Disabled {
		return nil, domain.ErrAccountDisabled
	}
	if !domain.IsValidEmail(req.Email) {
		return nil, domain.ErrInvalidEmailSyntax
	}

	existing, err := s.identities.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	existing, err = s.identities.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing username: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateUsername
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}
	codeHash, err := hashCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash verification code: %w", err)
	}

	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Verified:     false,
		CodeHash:     codeHash,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	if err := s.mailer.SendVerificationCode(identity.Email, formatCode(code)); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification code", "error", err, "identity_id", identity.ID)
		// Don't fail registration if email fails
	}

	s.publish(ctx, events.IdentityRegistered, events.IdentityRegisteredEvent{
		IdentityID: identity.ID,
		Email:      identity.Email,
		Username:   identity.Username,
		CreatedAt:  identity.CreatedAt,
	})

	return identity, nil
}

func (s *service) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	identity, err := s.identities.FindByUsernameOrEmail(ctx, req.Identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, domain.ErrInvalidCredentials
	}

	accessToken, err := auth.NewAccessToken(
		identity.ID,
		identity.Username,
		identity.Email,
		"member",
		s.config.Auth.JWTSecret,
		s.config.Auth.AccessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := auth.NewAccessToken(
		identity.ID,
		identity.Username,
		identity.Email,
		"refresh",
		s.config.Auth.JWTSecret,
		s.config.Auth.RefreshTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		Identity:     identity.ToInfo(),
	}, nil
}

func (s *service) Verify(ctx context.Context, username string, code int64) (*domain.Identity, error) {
	mu := s.lockFor(username)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.identities.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, domain.ErrNotFound
	}

	if identity.Verified {
		return nil, domain.ErrAlreadyVerified
	}

	if code < domain.MinVerificationCode || code > domain.MaxVerificationCode {
		return nil, domain.ErrInvalidCodeFormat
	}

	// Any 8-digit number passes unless strict checking is enabled. The
	// permissive branch mirrors the long-standing upstream behavior; flip
	// VERIFY_STRICT_CODE to require the dispatched code.
	if s.config.Verification.StrictCodeCheck {
		if err := bcrypt.CompareHashAndPassword([]byte(identity.CodeHash), []byte(formatCode(code))); err != nil {
			return nil, domain.ErrCodeMismatch
		}
	}

	identity.Verified = true
	identity.ResendAttempts = 0
	identity.LastCodeSentAt = 0
	identity.CodeHash = ""

	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to mark identity verified: %w", err)
	}

	s.publish(ctx, events.IdentityVerified, events.IdentityVerifiedEvent{
		IdentityID: identity.ID,
		Email:      identity.Email,
		VerifiedAt: s.now(),
	})

	return identity, nil
}

func (s *service) ResendCode(ctx context.Context, username string) error {
	mu := s.lockFor(username)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.identities.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return domain.ErrNotFound
	}

	if identity.Verified {
		return domain.ErrAlreadyVerified
	}

	now := s.now()
	elapsed := (now.UnixMilli() - identity.LastCodeSentAt) / 1000
	required := ResendWaitSeconds(identity.ResendAttempts, s.config.Verification.ResendCooldownBase)
	if elapsed < required {
		return &domain.CooldownActiveError{
			RequiredSeconds:  required,
			RemainingSeconds: required - elapsed,
		}
	}

	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	if err := s.mailer.SendVerificationCode(identity.Email, formatCode(code)); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}

	codeHash, err := hashCode(code)
	if err != nil {
		return fmt.Errorf("failed to hash verification code: %w", err)
	}

	identity.CodeHash = codeHash
	identity.LastCodeSentAt = now.UnixMilli()
	identity.ResendAttempts++

	if err := s.identities.Update(ctx, identity); err != nil {
		return fmt.Errorf("failed to persist resend state: %w", err)
	}

	return nil
}

func (s *service) ChangeEmail(ctx context.Context, username, newEmail string) error {
	mu := s.lockFor(username)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.identities.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return domain.ErrNotFound
	}

	now := s.now()
	elapsed := (now.UnixMilli() - identity.LastCodeSentAt) / 1000
	required := EmailChangeWaitSeconds(identity.ResendAttempts, s.config.Verification.EmailChangeCooldownBase)
	if elapsed < required {
		return &domain.CooldownActiveError{
			RequiredSeconds:  required,
			RemainingSeconds: required - elapsed,
		}
	}

	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	// The code goes to the address on record before it is overwritten; the
	// new address is unproven until verified.
	if err := s.mailer.SendVerificationCode(identity.Email, formatCode(code)); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}

	codeHash, err := hashCode(code)
	if err != nil {
		return fmt.Errorf("failed to hash verification code: %w", err)
	}

	oldEmail := identity.Email
	identity.Email = newEmail
	identity.Verified = false
	identity.CodeHash = codeHash
	identity.LastCodeSentAt = now.UnixMilli()
	identity.ResendAttempts++

	if err := s.identities.Update(ctx, identity); err != nil {
		return fmt.Errorf("failed to persist email change: %w", err)
	}

	s.publish(ctx, events.IdentityEmailChange, events.IdentityEmailChangedEvent{
		IdentityID: identity.ID,
		OldEmail:   oldEmail,
		NewEmail:   newEmail,
		ChangedAt:  now,
	})

	return nil
}

func (s *service) publish(ctx context.Context, subject string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

func generateVerificationCode() (int64, error) {
	span := big.NewInt(domain.MaxVerificationCode - domain.MinVerificationCode + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return domain.MinVerificationCode + n.Int64(), nil
}

func formatCode(code int64) string {
	return strconv.FormatInt(code, 10)
}

func hashCode(code int64) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(formatCode(code)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

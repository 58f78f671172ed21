package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/repository"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// AttemptRecorder counts login outcomes
type AttemptRecorder interface {
	RecordAuthAttempt(status string)
}

// Service implements PIN login, sessions and user administration
type Service struct {
	users     repository.UserRepositoryInterface
	tokens    repository.TokenRepositoryInterface
	issuer    *TokenManager
	pins      PINManager
	pinLength int
	metrics   AttemptRecorder
	logger    *logger.Logger
}

// NewService creates a new auth service. metrics may be nil.
func NewService(
	users repository.UserRepositoryInterface,
	tokens repository.TokenRepositoryInterface,
	issuer *TokenManager,
	pins PINManager,
	pinLength int,
	metrics AttemptRecorder,
	log *logger.Logger,
) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		issuer:    issuer,
		pins:      pins,
		pinLength: pinLength,
		metrics:   metrics,
		logger:    log,
	}
}

// Authenticate checks a username and PIN and opens a session. Unknown
// users, inactive users, wrong PINs and malformed PINs are indistinguishable
// to the caller.
func (s *Service) Authenticate(ctx context.Context, username, pin string) (*types.LoginResult, error) {
	username = strings.TrimSpace(username)

	user, reason, err := s.checkCredentials(ctx, username, pin)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		s.recordAttempt("failed")
		s.logger.Security("login_failed", "", map[string]interface{}{
			"username": username,
			"reason":   reason,
		})
		return nil, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, types.InvalidCredentialsMessage)
	}

	token, claims, err := s.issuer.Issue(user)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to issue session", err)
	}

	s.recordAttempt("success")
	s.logger.Audit(user.ID, "login", "session", true, map[string]interface{}{
		"role": user.Role,
	})

	return &types.LoginResult{
		Token:   token,
		User:    claims,
		Landing: user.Role.LandingPath(),
	}, nil
}

// checkCredentials returns the user, or a non-empty failure reason for logs
func (s *Service) checkCredentials(ctx context.Context, username, pin string) (*types.User, string, error) {
	if username == "" || !s.wellFormedPIN(pin) {
		return nil, "malformed", nil
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "unknown_user", nil
	}
	if err != nil {
		return nil, "", types.NewInternalError(types.ErrCodeInternalError, "failed to load user", err)
	}
	if !user.IsActive {
		return nil, "inactive", nil
	}
	if !s.pins.Verify(user.PIN, pin) {
		return nil, "wrong_pin", nil
	}
	return user, "", nil
}

// ValidateSession resolves a bearer token to its identity. Logged out and
// expired tokens are rejected.
func (s *Service) ValidateSession(ctx context.Context, token string) (*types.UserClaims, error) {
	claims, err := s.issuer.Validate(token)
	if err != nil {
		return nil, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Session is invalid or has expired")
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to check session", err)
	}
	if revoked {
		return nil, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Session has ended")
	}
	return claims, nil
}

// Logout ends the session. Expired revocations are purged on the way.
func (s *Service) Logout(ctx context.Context, claims *types.UserClaims) error {
	if err := Authorize(claims, types.RoleDoctor, types.RoleLabTechnician, types.RoleAdmin); err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to end session", err)
	}
	if _, err := s.tokens.PurgeExpired(ctx, time.Now()); err != nil {
		s.logger.WithError(err).Warn("Failed to purge expired sessions")
	}

	s.logger.Audit(claims.UserID, "logout", "session", true, nil)
	return nil
}

// ListLoginOptions feeds the login user picker
func (s *Service) ListLoginOptions(ctx context.Context) ([]types.LoginOption, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to list users", err)
	}

	return lo.Map(users, func(u *types.User, _ int) types.LoginOption {
		return types.LoginOption{
			Username: u.Username,
			Label:    fmt.Sprintf("%s (%s)", displayName(u), u.Role.DisplayName()),
		}
	}), nil
}

// CreateUser registers a new portal user. Admin only.
func (s *Service) CreateUser(ctx context.Context, caller *types.UserClaims, req *types.UserRegistrationRequest) (*types.User, error) {
	if err := Authorize(caller, types.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validateRegistration(req); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Audit(caller.UserID, "create_user", user.ID, true, map[string]interface{}{
		"username": user.Username,
		"role":     user.Role,
	})
	return user, nil
}

func (s *Service) createUser(ctx context.Context, req *types.UserRegistrationRequest) (*types.User, error) {
	stored, err := s.pins.Hash(req.PIN)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to store pin", err)
	}

	user := &types.User{
		Username:          strings.TrimSpace(req.Username),
		FullName:          strings.TrimSpace(req.FullName),
		Role:              req.Role,
		PIN:               stored,
		IsActive:          true,
		ReadingCentreCode: strings.TrimSpace(req.ReadingCentreCode),
	}

	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, types.NewConflictError(types.ErrCodeUsernameTaken, "Username is already taken")
	}
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to create user", err)
	}
	return user, nil
}

// DeactivateUser stops a user from logging in. Admin only; admins cannot
// deactivate themselves.
func (s *Service) DeactivateUser(ctx context.Context, caller *types.UserClaims, userID string) error {
	if err := Authorize(caller, types.RoleAdmin); err != nil {
		return err
	}
	if userID == caller.UserID {
		return types.NewValidationError(types.ErrCodeInvalidInput, "You cannot deactivate your own account", nil)
	}
	if _, err := uuid.Parse(userID); err != nil || len(userID) != 36 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "User not found")
	}

	err := s.users.SetActive(ctx, userID, false)
	if errors.Is(err, repository.ErrNotFound) {
		return types.NewNotFoundError(types.ErrCodeNotFound, "User not found")
	}
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to deactivate user", err)
	}

	s.logger.Audit(caller.UserID, "deactivate_user", userID, true, nil)
	return nil
}

// ListUsers lists users, optionally of one role. Admin only.
func (s *Service) ListUsers(ctx context.Context, caller *types.UserClaims, role types.UserRole) ([]*types.User, error) {
	if err := Authorize(caller, types.RoleAdmin); err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "Unknown role",
			map[string]interface{}{"role": string(role)})
	}

	users, err := s.users.List(ctx, role)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to list users", err)
	}
	return users, nil
}

// BootstrapAdmin creates the first admin when the users table is empty.
// It reports whether a user was created.
func (s *Service) BootstrapAdmin(ctx context.Context, username, pin string) (bool, error) {
	if username == "" || pin == "" {
		return false, nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	req := &types.UserRegistrationRequest{
		Username: username,
		FullName: "Administrator",
		Role:     types.RoleAdmin,
		PIN:      pin,
	}
	if err := s.validateRegistration(req); err != nil {
		return false, fmt.Errorf("invalid bootstrap admin: %w", err)
	}
	if _, err := s.createUser(ctx, req); err != nil {
		return false, err
	}

	s.logger.WithField("username", username).Info("Bootstrap admin created")
	return true, nil
}

func (s *Service) validateRegistration(req *types.UserRegistrationRequest) error {
	fields := map[string]interface{}{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = "Username is required"
	} else if strings.ContainsFunc(req.Username, unicode.IsSpace) {
		fields["username"] = "Username cannot contain spaces"
	}
	if strings.TrimSpace(req.FullName) == "" {
		fields["full_name"] = "Full name is required"
	}
	if !req.Role.Valid() {
		fields["role"] = "Role must be doctor, lab_technician or admin"
	}
	if !s.wellFormedPIN(req.PIN) {
		fields["pin"] = fmt.Sprintf("PIN must be exactly %d digits", s.pinLength)
	}

	if len(fields) > 0 {
		return types.NewValidationError(types.ErrCodeValidationFailed, "Invalid user details", fields)
	}
	return nil
}

func (s *Service) wellFormedPIN(pin string) bool {
	if len(pin) != s.pinLength {
		return false
	}
	return lo.EveryBy([]rune(pin), unicode.IsDigit)
}

func (s *Service) recordAttempt(status string) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(status)
	}
}

func displayName(u *types.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/google/uuid"
	"github.com/nanorand/nanorand"
	"go.uber.org/zap"
)

const (
	minPasswordLength = 6
	resetCodeLength   = 6
)

// PasswordHasher hashes and checks passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// TokenIssuer signs bearer tokens for authenticated users
type TokenIssuer interface {
	Issue(userID uuid.UUID, role models.Role) (string, time.Time, error)
}

// ResetCodeStore keeps one short-lived password reset code per email
type ResetCodeStore interface {
	SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error
	// ConsumeResetCode deletes the stored code if it matches and reports
	// whether it did
	ConsumeResetCode(ctx context.Context, email, code string) (bool, error)
}

// EmailPublisher queues outbound mail
type EmailPublisher interface {
	PublishEmail(ctx context.Context, msg *models.EmailMessage) error
}

// RegisterRequest is a sign-up submitted for admin approval
type RegisterRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult carries a signed bearer token
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccountService handles sign-up approval, login and password resets
type AccountService struct {
	db           store.Database
	hasher       PasswordHasher
	tokens       TokenIssuer
	codes        ResetCodeStore
	mail         EmailPublisher
	resetCodeTTL time.Duration
	logger       *zap.Logger
}

// NewAccountService creates a new account service. Without a code store
// password resets are unavailable.
func NewAccountService(
	db store.Database,
	hasher PasswordHasher,
	tokens TokenIssuer,
	codes ResetCodeStore,
	emails EmailPublisher,
	resetCodeTTL time.Duration,
) *AccountService {
	if resetCodeTTL <= 0 {
		resetCodeTTL = 15 * time.Minute
	}
	return &AccountService{
		db:           db,
		hasher:       hasher,
		tokens:       tokens,
		codes:        codes,
		mail:         emails,
		resetCodeTTL: resetCodeTTL,
		logger:       util.GetLogger(),
	}
}

// Register records a pending account request
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.AccountRequest, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer span.End()

	name, surname := strings.TrimSpace(req.Name), strings.TrimSpace(req.Surname)
	if name == "" || surname == "" {
		return nil, ValidationError(CodeValidation, "name and surname required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ar := &models.AccountRequest{
		ID:           uuid.New(),
		Name:         name,
		Surname:      surname,
		Email:        email,
		PasswordHash: hash,
		Status:       models.AccountRequestPending,
	}
	if err := s.db.CreateAccountRequest(ctx, ar); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, emailTakenError(email)
		}
		return nil, fmt.Errorf("failed to create account request: %w", err)
	}

	s.logger.Info("Account request created", zap.String("request_id", ar.ID.String()))
	return ar, nil
}

// CreateAdmin creates an administrator directly, skipping the approval queue
func (s *AccountService) CreateAdmin(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.CreateAdmin")
	defer span.End()

	name, surname := strings.TrimSpace(req.Name), strings.TrimSpace(req.Surname)
	if name == "" || surname == "" {
		return nil, ValidationError(CodeValidation, "name and surname required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Surname:      surname,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, emailTakenError(email)
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("Admin created", zap.String("user_id", user.ID.String()))
	return user, nil
}

// ListAccountRequests lists sign-up requests, newest first. An empty status
// lists all of them.
func (s *AccountService) ListAccountRequests(ctx context.Context, status string) ([]models.AccountRequest, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ListAccountRequests")
	defer span.End()

	st := models.AccountRequestStatus(status)
	switch st {
	case "", models.AccountRequestPending, models.AccountRequestApproved, models.AccountRequestRejected:
	default:
		return nil, ValidationError(CodeValidation, "status must be one of pending, approved, rejected").
			With("status", status)
	}

	requests, err := s.db.ListAccountRequests(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("failed to list account requests: %w", err)
	}
	return requests, nil
}

// ApproveAccountRequest turns a pending request into a user account
func (s *AccountService) ApproveAccountRequest(ctx context.Context, id string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ApproveAccountRequest")
	defer span.End()

	requestID, err := parseEntityID("account request", id)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.db.WithTx(ctx, func(repo store.Repository) error {
		ar, err := pendingRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}

		user = &models.User{
			ID:           uuid.New(),
			Name:         ar.Name,
			Surname:      ar.Surname,
			Email:        ar.Email,
			PasswordHash: ar.PasswordHash,
			Role:         models.RoleUser,
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return emailTakenError(ar.Email)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return repo.UpdateAccountRequestStatus(ctx, requestID, models.AccountRequestApproved)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account request approved",
		zap.String("request_id", requestID.String()),
		zap.String("user_id", user.ID.String()))

	s.notify(ctx, user.Email, "Your account has been approved",
		fmt.Sprintf("Hello %s,\n\nYour back-office account has been approved. You can now sign in with %s.\n",
			user.Name, user.Email))
	return user, nil
}

// RejectAccountRequest declines a pending request
func (s *AccountService) RejectAccountRequest(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.RejectAccountRequest")
	defer span.End()

	requestID, err := parseEntityID("account request", id)
	if err != nil {
		return err
	}

	var ar *models.AccountRequest
	err = s.db.WithTx(ctx, func(repo store.Repository) error {
		ar, err = pendingRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}
		return repo.UpdateAccountRequestStatus(ctx, requestID, models.AccountRequestRejected)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Account request rejected", zap.String("request_id", requestID.String()))

	s.notify(ctx, ar.Email, "Your account request was declined",
		fmt.Sprintf("Hello %s,\n\nYour back-office account request has been declined.\n", ar.Name))
	return nil
}

// Login checks the credentials and returns a bearer token
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ValidationError(CodeValidation, "email and password required")
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !s.hasher.Compare(user.PasswordHash, password) {
		util.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
		s.logger.Info("Login rejected", zap.String("email", email))
		return nil, UnauthorizedError(CodeInvalidCredentials, "Invalid email or password")
	}

	token, exp, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	util.LoginAttemptsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("User logged in", zap.String("user_id", user.ID.String()))
	return &LoginResult{Token: token, ExpiresAt: exp}, nil
}

// Me returns the account of the caller
func (s *AccountService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Me")
	defer span.End()

	u, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, userLookupError(userID, err)
	}
	return u, nil
}

// ListUsers lists every account
func (s *AccountService) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ListUsers")
	defer span.End()

	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes an account. Callers cannot remove their own.
func (s *AccountService) DeleteUser(ctx context.Context, callerID uuid.UUID, id string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.DeleteUser")
	defer span.End()

	userID, err := parseEntityID("user", id)
	if err != nil {
		return err
	}
	if userID == callerID {
		return BusinessRuleError(CodeValidation, "you cannot delete your own account")
	}
	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return userLookupError(userID, err)
	}

	s.logger.Info("User deleted", zap.String("user_id", userID.String()))
	return nil
}

// ForgotPassword mails a reset code to the account owner. Unknown emails
// succeed silently.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.ForgotPassword")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if s.codes == nil || s.mail == nil {
		return UnexpectedError(errors.New("password reset is not configured"))
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("Password reset requested for unknown email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	code, err := nanorand.Gen(resetCodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	if err := s.codes.SetResetCode(ctx, email, code, s.resetCodeTTL); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	msg := &models.EmailMessage{
		BaseEvent: models.NewBaseEvent(models.EventTypeEmailRequested),
		To:        email,
		Subject:   "Password reset code",
		Body: fmt.Sprintf("Hello %s,\n\nYour password reset code: %s\nIt expires in %s.\n",
			user.Name, code, s.resetCodeTTL),
	}
	if err := s.mail.PublishEmail(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue reset email: %w", err)
	}

	s.logger.Info("Password reset code issued", zap.String("user_id", user.ID.String()))
	return nil
}

// ResetPassword replaces the password of the account that received code
func (s *AccountService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.ResetPassword")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return ValidationError(CodeValidation, "code is required")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	if s.codes == nil {
		return UnexpectedError(errors.New("password reset is not configured"))
	}

	ok, err := s.codes.ConsumeResetCode(ctx, email, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("failed to check reset code: %w", err)
	}
	if !ok {
		return ValidationError(CodeInvalidResetCode, "invalid or expired reset code")
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ValidationError(CodeInvalidResetCode, "invalid or expired reset code")
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return userLookupError(user.ID, err)
	}

	s.logger.Info("Password reset", zap.String("user_id", user.ID.String()))
	return nil
}

// ensureEmailFree fails when a user or an account request already uses email
func (s *AccountService) ensureEmailFree(ctx context.Context, email string) error {
	if _, err := s.db.GetUserByEmail(ctx, email); err == nil {
		return emailTakenError(email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if _, err := s.db.GetAccountRequestByEmail(ctx, email); err == nil {
		return emailTakenError(email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load account request: %w", err)
	}
	return nil
}

// notify queues a courtesy email. Failures are logged only.
func (s *AccountService) notify(ctx context.Context, to, subject, body string) {
	if s.mail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := &models.EmailMessage{
		BaseEvent: models.NewBaseEvent(models.EventTypeEmailRequested),
		To:        to,
		Subject:   subject,
		Body:      body,
	}
	if err := s.mail.PublishEmail(ctx, msg); err != nil {
		s.logger.Warn("Failed to queue email", zap.String("subject", subject), zap.Error(err))
	}
}

func pendingRequest(ctx context.Context, repo store.AccountStore, id uuid.UUID) (*models.AccountRequest, error) {
	ar, err := repo.GetAccountRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(CodeRequestNotFound, "account request %s not found", id)
		}
		return nil, fmt.Errorf("failed to load account request: %w", err)
	}
	if ar.Status != models.AccountRequestPending {
		return nil, BusinessRuleError(CodeRequestProcessed, "account request was already %s", ar.Status).
			With("status", ar.Status)
	}
	return ar, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ValidationError(CodeValidation, "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", ValidationError(CodeValidation, "email is not valid").With("email", email)
	}
	return email, nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return ValidationError(CodeValidation, "password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func emailTakenError(email string) error {
	return BusinessRuleError(CodeEmailTaken, "email %s is already registered", email).With("email", email)
}

func userLookupError(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(CodeUserNotFound, "user %s not found", id)
	}
	return fmt.Errorf("failed to load user: %w", err)
}

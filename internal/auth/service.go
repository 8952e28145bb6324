// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourbook/tourbook/pkg/errutil"
)

// Session carrier configuration.
const (
	DefaultSessionTTL = 90 * 24 * time.Hour
	DefaultCookieTTL  = 90 * 24 * time.Hour

	// LogoutCarrierValue replaces the session carrier on logout.
	LogoutCarrierValue = "loggedout"
	LogoutCarrierTTL   = 10 * time.Second
)

// dummyPasswordHash is verified when no account matches so that unknown
// emails cost the same as wrong passwords. It never matches any password.
//
//nolint:gosec // G101: fake hash for timing equalisation, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Carrier is the value a client should store to present its session, and
// when the client should discard it.
type Carrier struct {
	Value     string
	ExpiresAt time.Time
}

// Result is returned by every operation that starts a session.
type Result struct {
	Token   string
	Session Session
	Carrier Carrier
	Account AccountView
}

// ResetRequest describes an issued password reset.
// RawToken is for the delivery channel only; Delivered reports whether the
// Mailer accepted it.
type ResetRequest struct {
	AccountID ulid.ULID
	Email     string
	RawToken  string
	ExpiresAt time.Time
	Delivered bool
}

// Service orchestrates login, signup, password changes, password resets and
// session validation over one account at a time. It holds no mutable state
// and is safe for concurrent use.
type Service struct {
	accounts   AccountRepository
	hasher     PasswordHasher
	signer     *TokenSigner
	resets     *ResetTokenIssuer
	mailer     Mailer
	recorder   Recorder
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	sessionTTL time.Duration
	cookieTTL  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithMailer sets the delivery collaborator for welcome and reset mail.
func WithMailer(m Mailer) Option { return func(s *Service) { s.mailer = m } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSessionTTL sets how long issued session tokens stay valid.
func WithSessionTTL(d time.Duration) Option { return func(s *Service) { s.sessionTTL = d } }

// WithCookieTTL sets how long clients should keep the session carrier.
func WithCookieTTL(d time.Duration) Option { return func(s *Service) { s.cookieTTL = d } }

// NewService creates a Service.
func NewService(accounts AccountRepository, hasher PasswordHasher, signer *TokenSigner, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("password hasher is required")
	}
	if signer == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("token signer is required")
	}

	s := &Service{
		accounts:   accounts,
		hasher:     hasher,
		signer:     signer,
		mailer:     nopMailer{},
		recorder:   nopRecorder{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("github.com/tourbook/tourbook/internal/auth"),
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
		cookieTTL:  DefaultCookieTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case s.mailer == nil:
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("mailer cannot be nil")
	case s.recorder == nil:
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("recorder cannot be nil")
	case s.logger == nil:
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("logger cannot be nil")
	case s.now == nil:
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("clock cannot be nil")
	case s.sessionTTL <= 0 || s.cookieTTL <= 0:
		return nil, oops.Code("AUTH_SERVICE_CONFIG").
			With("session_ttl", s.sessionTTL).
			With("cookie_ttl", s.cookieTTL).
			Errorf("session and cookie ttl must be positive")
	}

	s.resets = NewResetTokenIssuer(s.now)
	return s, nil
}

// Signup registers a new account with the user role and starts a session.
func (s *Service) Signup(ctx context.Context, in SignupInput) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Signup")
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	now := s.now()
	account, err := NewAccount(in.Name, in.Email, hash, RoleUser, now)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code(CodeEmailTaken).
				With("email", account.Email).
				Wrapf(err, "an account with this email already exists")
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "create account").Wrap(err)
	}

	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String())

	if err := s.mailer.SendWelcome(ctx, recipientOf(account)); err != nil {
		s.recorder.DeliveryFailure("welcome")
		errutil.LogError(s.logger, "welcome mail delivery failed", err)
	}

	return s.startSession(account, now)
}

// Login authenticates by email and password.
// Unknown emails and wrong passwords both yield AUTH_INVALID_CREDENTIALS.
func (s *Service) Login(ctx context.Context, email, password string) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	now := s.now()

	account, err := s.accounts.FindActiveByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.recorder.LoginAttempt(OutcomeError)
			return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "find account").Wrap(err)
		}
		s.hasher.Verify(password, dummyPasswordHash)
		s.recorder.LoginAttempt(OutcomeUnknownAccount)
		return nil, invalidCredentials()
	}

	if IsLocked(account.Lockout(), now) {
		s.recorder.LoginAttempt(OutcomeLocked)
		return nil, accountLocked(*account.LockedUntil)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		state := OnFailedAttempt(account.Lockout(), now)
		account.ApplyLockout(state, now)
		if err := s.accounts.Save(ctx, account); err != nil {
			errutil.LogError(s.logger, "failed to record failed login", err)
		}
		if IsLocked(state, now) {
			s.recorder.AccountLocked()
			s.logger.WarnContext(ctx, "account locked",
				"account_id", account.ID.String(),
				"failed_login_count", state.FailedLoginCount,
				"locked_until", *state.LockedUntil,
			)
		}
		s.recorder.LoginAttempt(OutcomeWrongPassword)
		return nil, invalidCredentials()
	}

	account.ApplyLockout(OnSuccessfulLogin(account.Lockout()), now)

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		upgraded, hashErr := s.hasher.Hash(password)
		if hashErr != nil {
			errutil.LogError(s.logger, "password hash upgrade failed", hashErr)
		} else {
			account.PasswordHash = upgraded
		}
	}

	// The session is still issued if the reset cannot be stored.
	if err := s.accounts.Save(ctx, account); err != nil {
		errutil.LogError(s.logger, "failed to record successful login", err)
	}

	s.recorder.LoginAttempt(OutcomeSuccess)
	return s.startSession(account, now)
}

// Logout returns the carrier that replaces the client's session. Sessions are
// stateless, so nothing is persisted.
func (s *Service) Logout() Carrier {
	return Carrier{
		Value:     LogoutCarrierValue,
		ExpiresAt: s.now().Add(LogoutCarrierTTL),
	}
}

// ChangePassword replaces the password of an authenticated account after
// re-verifying the current one. Sessions issued earlier become stale.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword string, in PasswordInput) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ChangePassword")
	defer func() { endSpan(span, err) }()

	account, err := s.findByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(currentPassword, account.PasswordHash) {
		return nil, oops.Code(CodeIncorrectPassword).
			With("account_id", accountID.String()).
			Errorf("your current password is incorrect")
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.replacePassword(ctx, account, in.Password, now); err != nil {
		return nil, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "account_id", accountID.String())
	return s.startSession(account, now)
}

// RequestPasswordReset issues a reset token for the account with email and
// hands it to the Mailer. A delivery failure does not revoke the token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (req *ResetRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	account, err := s.accounts.FindActiveByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).Wrapf(err, "there is no account with that email address")
		}
		return nil, oops.Code("RESET_REQUEST_FAILED").With("operation", "find account").Wrap(err)
	}

	token, err := s.resets.Issue()
	if err != nil {
		return nil, oops.Code("RESET_REQUEST_FAILED").With("operation", "issue token").Wrap(err)
	}

	account.SetResetToken(token.Hash, token.ExpiresAt)
	account.UpdatedAt = s.now()
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "save account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	s.recorder.PasswordReset("requested")

	req = &ResetRequest{
		AccountID: account.ID,
		Email:     account.Email,
		RawToken:  token.Raw,
		ExpiresAt: token.ExpiresAt,
		Delivered: true,
	}
	if err := s.mailer.SendPasswordReset(ctx, recipientOf(account), token.Raw, token.ExpiresAt); err != nil {
		req.Delivered = false
		s.recorder.DeliveryFailure("password_reset")
		errutil.LogError(s.logger, "password reset mail delivery failed", err)
	}

	return req, nil
}

// ConsumeReset sets a new password using an unexpired reset token and starts
// a session. The token is cleared so it cannot be used again.
func (s *Service) ConsumeReset(ctx context.Context, rawToken string, in PasswordInput) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ConsumeReset")
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if rawToken == "" {
		return nil, resetTokenInvalid()
	}

	now := s.now()
	account, err := s.accounts.FindByResetTokenHash(ctx, HashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recorder.PasswordReset("rejected")
			return nil, resetTokenInvalid()
		}
		return nil, oops.Code("RESET_CONSUME_FAILED").With("operation", "find account").Wrap(err)
	}
	if !account.ResetTokenValidAt(now) || !VerifyResetToken(rawToken, *account.PasswordResetTokenHash) {
		s.recorder.PasswordReset("rejected")
		return nil, resetTokenInvalid()
	}

	account.ClearResetToken()
	if err := s.replacePassword(ctx, account, in.Password, now); err != nil {
		return nil, oops.Code("RESET_CONSUME_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	s.recorder.PasswordReset("consumed")

	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID.String())
	return s.startSession(account, now)
}

// Validate verifies a session token and returns the account it belongs to.
// Tokens issued before the last password change are rejected as stale.
func (s *Service) Validate(ctx context.Context, token string) (view AccountView, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Validate")
	defer func() {
		endSpan(span, err)
		outcome := ErrorCode(err)
		if err == nil {
			outcome = OutcomeSuccess
		} else if outcome == "" {
			outcome = OutcomeError
		}
		s.recorder.SessionValidation(outcome)
	}()

	if token == "" {
		return AccountView{}, oops.Code(CodeTokenMalformed).Errorf("you are not logged in, please log in to get access")
	}

	session, err := s.signer.Verify(token)
	if err != nil {
		return AccountView{}, err
	}

	id, err := ulid.Parse(session.SubjectID)
	if err != nil {
		return AccountView{}, oops.Code(CodeTokenMalformed).
			With("subject", session.SubjectID).
			Wrapf(err, "token subject is not an account id")
	}

	account, err := s.findByID(ctx, id)
	if err != nil {
		return AccountView{}, err
	}

	if account.ChangedPasswordAfter(session.IssuedAt) {
		return AccountView{}, oops.Code(CodeStalePassword).
			With("account_id", id.String()).
			With("issued_at", session.IssuedAt).
			Errorf("password was changed recently, please log in again")
	}

	return account.View(), nil
}

// Account returns the sanitized view of an active account.
func (s *Service) Account(ctx context.Context, id ulid.ULID) (AccountView, error) {
	account, err := s.findByID(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	return account.View(), nil
}

// Deactivate marks an account inactive. It disappears from every lookup and
// its sessions stop validating.
func (s *Service) Deactivate(ctx context.Context, id ulid.ULID) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Deactivate")
	defer func() { endSpan(span, err) }()

	account, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}
	account.Active = false
	account.UpdatedAt = s.now()
	if err := s.accounts.Save(ctx, account); err != nil {
		return oops.Code("AUTH_DEACTIVATE_FAILED").With("account_id", id.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "account deactivated", "account_id", id.String())
	return nil
}

// UpdateProfile changes the name and email of an active account.
func (s *Service) UpdateProfile(ctx context.Context, id ulid.ULID, in ProfileInput) (view AccountView, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.UpdateProfile")
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return AccountView{}, err
	}
	account, err := s.findByID(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		account.Name = name
	}
	if email := NormalizeEmail(in.Email); email != "" {
		account.Email = email
	}
	account.UpdatedAt = s.now()

	if err := s.accounts.Save(ctx, account); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			return AccountView{}, oops.Code(CodeEmailTaken).
				With("email", account.Email).
				Wrapf(err, "an account with this email already exists")
		case errors.Is(err, ErrNotFound):
			return AccountView{}, oops.Code(CodeNotFound).
				With("account_id", id.String()).
				Wrapf(err, "the account no longer exists")
		}
		return AccountView{}, oops.Code("AUTH_UPDATE_FAILED").With("account_id", id.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "account profile updated", "account_id", id.String())
	return account.View(), nil
}

// Delete permanently removes an account.
func (s *Service) Delete(ctx context.Context, id ulid.ULID) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Delete")
	defer func() { endSpan(span, err) }()

	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).
				With("account_id", id.String()).
				Wrapf(err, "the account no longer exists")
		}
		return oops.Code("AUTH_DELETE_FAILED").With("account_id", id.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "account deleted", "account_id", id.String())
	return nil
}

func (s *Service) findByID(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.FindActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).
				With("account_id", id.String()).
				Wrapf(err, "the account no longer exists")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}
	return account, nil
}

func (s *Service) replacePassword(ctx context.Context, account *Account, password string, now time.Time) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}
	account.SetPassword(hash, now)
	if err := s.accounts.Save(ctx, account); err != nil {
		return oops.With("operation", "save account").Wrap(err)
	}
	return nil
}

func (s *Service) startSession(account *Account, now time.Time) (*Result, error) {
	token, err := s.signer.Issue(account.ID.String(), now, s.sessionTTL)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	issuedAt := now.Truncate(time.Second)
	return &Result{
		Token: token,
		Session: Session{
			SubjectID: account.ID.String(),
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt.Add(s.sessionTTL),
		},
		Carrier: Carrier{Value: token, ExpiresAt: now.Add(s.cookieTTL)},
		Account: account.View(),
	}, nil
}

func resetTokenInvalid() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("token is invalid or has expired")
}

func recipientOf(a *Account) Recipient {
	return Recipient{Name: a.Name, Email: a.Email}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
	}
	span.End()
}

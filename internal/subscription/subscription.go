// Package subscription handles the email-first signup flow: a visitor
// subscribes with an email, then completes registration with a name and
// password.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/database"
	"github.com/bryan-buckman/letterbox/internal/metrics"
	"github.com/bryan-buckman/letterbox/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidInput is returned for a malformed email, a missing name or a
	// short password.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyRegistered is returned when the email already has a login.
	ErrAlreadyRegistered = errors.New("email already registered")
)

// Next is the step a subscriber is sent to.
type Next string

const (
	NextLogin    Next = "login"
	NextRegister Next = "register"
)

// Service runs subscribe and registration against the store and the auth provider.
type Service struct {
	store    database.Store
	users    auth.Provider
	metrics  *metrics.Metrics
	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService returns a subscription service. m may be nil.
func NewService(store database.Store, users auth.Provider, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		users:    users,
		metrics:  m,
		log:      log.With().Str("component", "subscription").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Subscribe records interest for email and reports where to send the visitor.
// An active account goes to login and no subscription row is written.
// Otherwise the subscription and a subscribed account are created if
// missing, and the visitor goes to registration. Repeating the call is safe.
func (s *Service) Subscribe(ctx context.Context, email string) (Next, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", fmt.Errorf("%w: email", ErrInvalidInput)
	}

	acct, err := s.store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil && acct.IsActive():
		s.metrics.Subscribed(string(NextLogin))
		return NextLogin, nil
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return "", fmt.Errorf("lookup account: %w", err)
	}

	now := s.now().UTC()
	if _, err := s.store.GetSubscriptionByEmail(ctx, email); errors.Is(err, database.ErrNotFound) {
		err = s.store.CreateSubscription(ctx, &model.Subscription{ID: uuid.NewString(), Email: email, CreatedAt: now})
		if err != nil && !errors.Is(err, database.ErrConflict) {
			return "", fmt.Errorf("create subscription: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("lookup subscription: %w", err)
	}

	if acct == nil {
		err := s.store.CreateAccount(ctx, &model.Account{
			ID:        uuid.NewString(),
			Email:     email,
			Status:    model.AccountSubscribed,
			CreatedAt: now,
		})
		if err != nil && !errors.Is(err, database.ErrConflict) {
			return "", fmt.Errorf("create account: %w", err)
		}
	}

	s.log.Info().Str("email", email).Msg("subscribed")
	s.metrics.Subscribed(string(NextRegister))
	return NextRegister, nil
}

// Registration is the input of CompleteRegistration.
type Registration struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required,max=200"`
	Password string `validate:"required"`
}

// CompleteRegistration creates the login and makes the account active under
// the auth-issued id. A subscribed account holding the email is promoted.
func (s *Service) CompleteRegistration(ctx context.Context, reg Registration) (*model.Account, error) {
	reg.Email = normalizeEmail(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	if err := s.validate.Struct(reg); err != nil {
		s.metrics.Registered("invalid")
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, fieldList(err))
	}

	user, err := s.users.CreateUser(ctx, reg.Email, reg.Password, reg.Name)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		s.metrics.Registered("conflict")
		return nil, ErrAlreadyRegistered
	case errors.Is(err, auth.ErrWeakPassword):
		s.metrics.Registered("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil:
		s.metrics.Registered("error")
		return nil, fmt.Errorf("create user: %w", err)
	}

	acct := &model.Account{
		ID:        user.ID,
		Email:     reg.Email,
		Name:      reg.Name,
		Status:    model.AccountActive,
		CreatedAt: s.now().UTC(),
	}
	err = s.store.PromoteAccount(ctx, reg.Email, acct)
	if errors.Is(err, database.ErrNotFound) {
		err = s.store.CreateAccount(ctx, acct)
	}
	if err != nil {
		// The login exists now, so retries will conflict until it is removed.
		s.log.Error().Err(err).
			Str("user_id", user.ID).
			Str("email", reg.Email).
			Msg("auth user created without an active account")
		s.metrics.Registered("error")
		return nil, fmt.Errorf("activate account: %w", err)
	}

	s.log.Info().Str("account_id", acct.ID).Msg("registration completed")
	s.metrics.Registered("created")
	return acct, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func fieldList(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, strings.ToLower(fe.Field()))
	}
	return strings.Join(names, ", ")
}

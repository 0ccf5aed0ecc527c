// Package auth couples the account endpoints with the session store and the
// navigation that follows each step of the login and recovery flows.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"
)

const (
	HomePath          = "/"
	LoginPath         = "/login"
	VerifyOTPPath     = "/verify-otp"
	ResetPasswordPath = "/reset-password"
)

// AccountsClient is the remote account API
type AccountsClient interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, v domain.OTPVerification) error
	ResetPassword(ctx context.Context, r domain.PasswordReset) error
	ResendOTP(ctx context.Context, email string) error
}

// SessionStore is the part of the session store the facade mutates
type SessionStore interface {
	SetAuth(ctx context.Context, token, userName, email string) error
	Logout(ctx context.Context) error
}

// Navigator performs the redirect that follows a successful step
type Navigator interface {
	Navigate(path string)
}

type Facade struct {
	accounts AccountsClient
	store    SessionStore
	nav      Navigator
}

func NewFacade(accounts AccountsClient, store SessionStore, nav Navigator) *Facade {
	return &Facade{
		accounts: accounts,
		store:    store,
		nav:      nav,
	}
}

// Login authenticates against the API, stores the returned session and
// navigates home. On failure the session is left untouched and the error,
// already normalized by the API client, is returned.
func (f *Facade) Login(ctx context.Context, creds domain.Credentials) error {
	if err := validateCredentials(creds); err != nil {
		return err
	}

	result, err := f.accounts.Login(ctx, creds)
	if err != nil {
		observability.FromContext(ctx).Info("login rejected", slog.String("error", err.Error()))
		return err
	}

	return f.establish(ctx, result)
}

// Register creates an account and signs the shopper in, like Login
func (f *Facade) Register(ctx context.Context, reg domain.Registration) error {
	if err := validateRegistration(reg); err != nil {
		return err
	}

	result, err := f.accounts.Register(ctx, reg)
	if err != nil {
		observability.FromContext(ctx).Info("registration rejected", slog.String("error", err.Error()))
		return err
	}

	return f.establish(ctx, result)
}

func (f *Facade) establish(ctx context.Context, result *domain.AuthResult) error {
	if err := f.store.SetAuth(ctx, result.Token, result.UserName, result.Email); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	observability.FromContext(ctx).Info("shopper signed in", slog.String("user_name", result.UserName))
	f.nav.Navigate(HomePath)
	return nil
}

// Logout clears the session and navigates to the login page. Navigation
// happens even if the cleared session could not be persisted.
func (f *Facade) Logout(ctx context.Context) error {
	err := f.store.Logout(ctx)
	f.nav.Navigate(LoginPath)
	if err != nil {
		return fmt.Errorf("failed to persist logout: %w", err)
	}
	return nil
}

// ForgotPassword asks the API to mail a one-time code, then moves on to
// the verification page.
func (f *Facade) ForgotPassword(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := f.accounts.ForgotPassword(ctx, email); err != nil {
		return err
	}
	f.nav.Navigate(VerifyOTPPath)
	return nil
}

func (f *Facade) VerifyOTP(ctx context.Context, v domain.OTPVerification) error {
	if err := validateOTP(v); err != nil {
		return err
	}
	if err := f.accounts.VerifyOTP(ctx, v); err != nil {
		return err
	}
	f.nav.Navigate(ResetPasswordPath)
	return nil
}

func (f *Facade) ResetPassword(ctx context.Context, r domain.PasswordReset) error {
	if err := validateReset(r); err != nil {
		return err
	}
	if err := f.accounts.ResetPassword(ctx, r); err != nil {
		return err
	}
	f.nav.Navigate(LoginPath)
	return nil
}

// ResendOTP mails a new code without navigating
func (f *Facade) ResendOTP(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	return f.accounts.ResendOTP(ctx, email)
}

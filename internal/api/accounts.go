package api

import (
	"context"
	"net/http"

	"tophome-storefront/internal/domain"
)

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	return c.authenticate(ctx, "login", "/Account/Login", creds)
}

func (c *Client) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	return c.authenticate(ctx, "register", "/Account/register", reg)
}

func (c *Client) authenticate(ctx context.Context, operation, path string, body any) (*domain.AuthResult, error) {
	data, err := c.send(ctx, operation, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}

	var result domain.AuthResult
	if err := decode(operation, data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ForgotPassword asks the API to mail a one-time code to email
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.send(ctx, "forgot_password", http.MethodPost, "/Account/forgot-password", nil, map[string]string{"email": email})
	return err
}

func (c *Client) VerifyOTP(ctx context.Context, v domain.OTPVerification) error {
	_, err := c.send(ctx, "verify_otp", http.MethodPost, "/Account/verify-otp", nil, v)
	return err
}

func (c *Client) ResetPassword(ctx context.Context, r domain.PasswordReset) error {
	_, err := c.send(ctx, "reset_password", http.MethodPost, "/Account/reset-password", nil, r)
	return err
}

func (c *Client) ResendOTP(ctx context.Context, email string) error {
	_, err := c.send(ctx, "resend_otp", http.MethodPost, "/Account/resend-otp", nil, map[string]string{"email": email})
	return err
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fjod/qrorder/internal/domain"
)

type adminResponseDTO struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Admin   *domain.AdminProfile `json:"admin"`
}

type ProfileInput struct {
	Name   string
	Mobile string
	Image  *Upload
}

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/login", "", body, &resp); err != nil {
		return "", fmt.Errorf("admin login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("admin login: %w", rejected(resp.Message, "login failed"))
	}
	return resp.Token, nil
}

// VerifyToken reports whether the backend still accepts token.
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/admin/verify-token", token, nil, &resp)
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify token: %w", err)
	}
	return resp.Valid, nil
}

func (c *Client) Profile(ctx context.Context, token string) (domain.AdminProfile, error) {
	var resp adminResponseDTO
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/profile", token, nil, &resp); err != nil {
		return domain.AdminProfile{}, fmt.Errorf("admin profile: %w", err)
	}
	return resp.profile("failed to fetch profile")
}

func (c *Client) UpdateProfile(ctx context.Context, token string, in ProfileInput) (domain.AdminProfile, error) {
	fields := []formField{
		{"name", strings.TrimSpace(in.Name)},
		{"mobile", strings.TrimSpace(in.Mobile)},
	}
	var resp adminResponseDTO
	if err := c.doMultipart(ctx, http.MethodPut, "/api/admin/update-profile", token, fields, in.Image, &resp); err != nil {
		return domain.AdminProfile{}, fmt.Errorf("update profile: %w", err)
	}
	return resp.profile("failed to update profile")
}

// RequestEmailChange makes the backend send an OTP to newEmail.
func (c *Client) RequestEmailChange(ctx context.Context, token, newEmail string) error {
	body := map[string]string{"newEmail": newEmail}
	return c.successCall(ctx, "/api/admin/request-email-change", token, body, "failed to send OTP")
}

func (c *Client) VerifyEmailChange(ctx context.Context, token, otp string) error {
	body := map[string]string{"otp": otp}
	return c.successCall(ctx, "/api/admin/verify-email-change", token, body, "failed to verify OTP")
}

func (c *Client) successCall(ctx context.Context, path, token string, body interface{}, fallback string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, token, body, &resp); err != nil {
		return fmt.Errorf("%s: %w", fallback, err)
	}
	if !resp.Success {
		return rejected(resp.Message, fallback)
	}
	return nil
}

func (r adminResponseDTO) profile(fallback string) (domain.AdminProfile, error) {
	if !r.Success {
		return domain.AdminProfile{}, rejected(r.Message, fallback)
	}
	if r.Admin == nil {
		return domain.AdminProfile{}, fmt.Errorf("%w: missing admin", ErrMalformedResponse)
	}
	return *r.Admin, nil
}

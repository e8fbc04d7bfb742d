package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// AuthClient exposes the hosted auth (GoTrue) surface.
type AuthClient struct {
	client *Client
}

// SignUp registers a user with email and password.
func (a *AuthClient) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	return a.sessionRequest(ctx, a.client.authURL+"/signup", body)
}

// SignInWithPassword exchanges email/password credentials for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	return a.sessionRequest(ctx, a.client.authURL+"/token?grant_type=password", body)
}

// RefreshSession exchanges a refresh token for a fresh session.
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body, err := jsonBody(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	return a.sessionRequest(ctx, a.client.authURL+"/token?grant_type=refresh_token", body)
}

func (a *AuthClient) sessionRequest(ctx context.Context, endpoint string, body io.Reader) (*Session, error) {
	resp, err := a.client.request(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("supabase: decode session: %w", err)
	}
	return &session, nil
}

// GetUser resolves the user behind an access token. Invalid or expired
// tokens surface as a 401 *Error.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	resp, err := a.client.requestWithToken(ctx, accessToken, http.MethodGet, a.client.authURL+"/user", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("supabase: decode user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session behind an access token.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	resp, err := a.client.requestWithToken(ctx, accessToken, http.MethodPost, a.client.authURL+"/logout", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	return nil
}

// RecoverPassword sends a password recovery email.
func (a *AuthClient) RecoverPassword(ctx context.Context, email string) error {
	body, err := jsonBody(map[string]string{"email": email})
	if err != nil {
		return err
	}
	resp, err := a.client.request(ctx, http.MethodPost, a.client.authURL+"/recover", body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	return nil
}

// =============================================================================
// Admin operations (service key)
// =============================================================================

// AdminCreateUserRequest provisions a user without the signup flow.
type AdminCreateUserRequest struct {
	Email        string         `json:"email"`
	Password     string         `json:"password,omitempty"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// AdminCreateUser provisions a confirmed user with the service key.
func (a *AuthClient) AdminCreateUser(ctx context.Context, req AdminCreateUserRequest) (*User, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.requestWithServiceKey(ctx, http.MethodPost, a.client.authURL+"/admin/users", body, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("supabase: decode created user: %w", err)
	}
	return &user, nil
}

// AdminUpdateUser patches a user record with the service key.
func (a *AuthClient) AdminUpdateUser(ctx context.Context, userID string, fields map[string]any) (*User, error) {
	body, err := jsonBody(fields)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/admin/users/%s", a.client.authURL, url.PathEscape(userID))
	resp, err := a.client.requestWithServiceKey(ctx, http.MethodPut, endpoint, body, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("supabase: decode updated user: %w", err)
	}
	return &user, nil
}

// AdminDeleteUser removes a user with the service key.
func (a *AuthClient) AdminDeleteUser(ctx context.Context, userID string) error {
	endpoint := fmt.Sprintf("%s/admin/users/%s", a.client.authURL, url.PathEscape(userID))
	resp, err := a.client.requestWithServiceKey(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	return nil
}

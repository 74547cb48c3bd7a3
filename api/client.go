// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/mute"
)

// Error is a non-2xx API response. It matches the domain error named by
// its code, so errors.Is(err, mute.ErrAlreadyMuted) works on the client
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

func (e *Error) Unwrap() error {
	for _, ec := range errorCodes {
		if ec.code == e.Code {
			return ec.err
		}
	}
	return nil
}

// Client calls a warden API server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL. A nil httpClient
// uses a client with a 30 second timeout
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return &Error{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return &Error{
			Code:       errResp.Code,
			Message:    errResp.Message,
			StatusCode: resp.StatusCode,
		}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func guildPath(guildID types.Snowflake, parts ...string) string {
	return "/v1/guilds/" + guildID.String() + strings.Join(parts, "")
}

func memberPath(guildID, userID types.Snowflake, suffix string) string {
	return guildPath(guildID, "/members/", userID.String(), suffix)
}

func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return err
	}
	if !resp.IsHealthy {
		return errors.New("server reports unhealthy")
	}
	return nil
}

// Mute issues a mute. When the mute was recorded but the role could not be
// applied, the response carries a warning and the error is nil
func (c *Client) Mute(ctx context.Context, guildID types.Snowflake, req MuteRequest) (*MuteResponse, error) {
	var resp MuteResponse
	if err := c.do(ctx, http.MethodPost, guildPath(guildID, "/mutes"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Unmute(ctx context.Context, guildID, userID types.Snowflake) (*MuteResponse, error) {
	var resp MuteResponse
	if err := c.do(ctx, http.MethodDelete, memberPath(guildID, userID, "/mute"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ActiveMute(ctx context.Context, guildID, userID types.Snowflake) (*models.Mute, error) {
	var resp models.Mute
	if err := c.do(ctx, http.MethodGet, memberPath(guildID, userID, "/mute"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteMute(ctx context.Context, id uint) (*models.Mute, error) {
	var resp models.Mute
	path := "/v1/mutes/" + strconv.FormatUint(uint64(id), 10)
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListMutes(ctx context.Context, guildID types.Snowflake, opts ListMutesOptions) ([]models.Mute, error) {
	query := url.Values{}
	if opts.UserID != nil {
		query.Set("user", opts.UserID.String())
	}
	if opts.ActiveOnly {
		query.Set("active", "true")
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Descending {
		query.Set("order", "desc")
	}
	path := guildPath(guildID, "/mutes")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp []models.Mute
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UserMutes returns the latest mutes of a user, newest first
func (c *Client) UserMutes(ctx context.Context, guildID, userID types.Snowflake) ([]models.Mute, error) {
	return c.ListMutes(ctx, guildID, ListMutesOptions{
		UserID:     &userID,
		Limit:      mute.HistoryLimit,
		Descending: true,
	})
}

func (c *Client) Warn(ctx context.Context, guildID types.Snowflake, req WarnRequest) (*models.Warn, error) {
	var resp models.Warn
	if err := c.do(ctx, http.MethodPost, guildPath(guildID, "/warns"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Warns(ctx context.Context, guildID, userID types.Snowflake) ([]models.Warn, error) {
	var resp []models.Warn
	if err := c.do(ctx, http.MethodGet, memberPath(guildID, userID, "/warns"), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) MuteRole(ctx context.Context, guildID types.Snowflake) (*RoleResponse, error) {
	return c.getRole(ctx, guildPath(guildID, "/mute-role"))
}

// SetMuteRole sets the guild's mute role. A nil role clears it
func (c *Client) SetMuteRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error {
	return c.setRole(ctx, guildPath(guildID, "/mute-role"), roleID)
}

func (c *Client) ModRole(ctx context.Context, guildID types.Snowflake) (*RoleResponse, error) {
	return c.getRole(ctx, guildPath(guildID, "/mod-role"))
}

// SetModRole sets the guild's moderator role. A nil role clears it
func (c *Client) SetModRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error {
	return c.setRole(ctx, guildPath(guildID, "/mod-role"), roleID)
}

func (c *Client) getRole(ctx context.Context, path string) (*RoleResponse, error) {
	var resp RoleResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) setRole(ctx context.Context, path string, roleID *types.Snowflake) error {
	if roleID == nil {
		return c.do(ctx, http.MethodDelete, path, nil, nil)
	}
	return c.do(ctx, http.MethodPut, path, RoleRequest{RoleID: *roleID}, nil)
}

package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/navigation"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httpclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/logger"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// refresh obtains a new access token, sharing one call between concurrent
// callers when single-flight is on.
func (c *Client) refresh(ctx context.Context) error {
	if c.flight == nil {
		return c.refreshOnce(ctx)
	}
	_, err, shared := c.flight.Do("refresh", func() (any, error) {
		return nil, c.refreshOnce(ctx)
	})
	if shared {
		logger.WithContext(ctx, c.logger).DebugContext(ctx, "joined in-flight token refresh")
	}
	return err
}

// refreshOnce posts the stored refresh token to the refresh endpoint and
// stores the new access token. The refresh token itself is never rewritten.
// The call bypasses the pipeline, so it carries no bearer token and is
// never retried on 401.
func (c *Client) refreshOnce(ctx context.Context) error {
	log := logger.WithContext(ctx, c.logger)

	token, ok, err := c.creds.Get(ctx, credential.Refresh)
	if err != nil {
		refreshAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("read refresh token: %w", err)
	}
	if !ok {
		refreshAttempts.WithLabelValues("no_token").Inc()
		return apperrors.ErrNoRefreshToken
	}

	body, err := json.Marshal(refreshRequest{Refresh: token})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, RefreshPath, nil, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		refreshAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("call refresh endpoint: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		refreshAttempts.WithLabelValues("rejected").Inc()
		return fmt.Errorf("refresh endpoint: %w", httpclient.ParseResponseError(resp))
	}
	defer func() { _ = resp.Body.Close() }()

	var out refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		refreshAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if out.Access == "" {
		refreshAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh response carried no access token")
	}

	if err := c.creds.SetAccess(ctx, out.Access); err != nil {
		refreshAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("store refreshed access token: %w", err)
	}

	refreshAttempts.WithLabelValues("success").Inc()
	log.InfoContext(ctx, "access token refreshed")
	return nil
}

// forceLogout clears the session and sends the user to the login page
// unless they are already there.
func (c *Client) forceLogout(ctx context.Context, cause error) {
	log := logger.WithContext(ctx, c.logger)
	forcedLogouts.Inc()

	log.WarnContext(ctx, "token refresh failed, signing out",
		slog.String("error", cause.Error()),
	)
	if err := c.session.Clear(ctx); err != nil {
		log.ErrorContext(ctx, "clear session after refresh failure", slog.String("error", err.Error()))
	}

	if c.nav == nil {
		return
	}
	if strings.Contains(c.nav.CurrentPath(ctx), navigation.LoginPath) {
		return
	}
	c.nav.Navigate(ctx, navigation.LoginPath)
}

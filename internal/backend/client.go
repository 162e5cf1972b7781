// Package backend is the REST client for the advisory backend that owns
// diagnostics, engagements and report generation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// Sentinel errors mapped from backend responses.
var (
	ErrUnauthorized = errors.New("backend: not authenticated")
	ErrNotFound     = errors.New("backend: not found")
	ErrValidation   = errors.New("backend: request rejected")
	ErrUnavailable  = errors.New("backend: unavailable")
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx. Requests made with
// ctx are authenticated as that caller.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached to ctx.
func TokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

type requestIDKey struct{}

// WithRequestID attaches the gateway request id to ctx so backend logs can be
// correlated with ours.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id attached to ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Client calls the backend over HTTP.
type Client struct {
	baseURL      string
	serviceToken string
	http         *http.Client
	log          zerolog.Logger
}

// NewClient creates a Client. serviceToken is used when the context carries
// no caller token (background polling).
func NewClient(baseURL, serviceToken string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		http:         &http.Client{Timeout: timeout},
		log:          log.With().Str("component", "backend_client").Logger(),
	}
}

// GetDiagnosticForEngagement returns the engagement's diagnostic, or
// ErrNotFound when none exists.
func (c *Client) GetDiagnosticForEngagement(ctx context.Context, engagementID string) (*model.Diagnostic, error) {
	var d model.Diagnostic
	if err := c.do(ctx, http.MethodGet, "/engagements/"+url.PathEscape(engagementID)+"/diagnostic", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDiagnostic fetches a diagnostic with all server-computed fields.
func (c *Client) GetDiagnostic(ctx context.Context, diagnosticID string) (*model.Diagnostic, error) {
	var d model.Diagnostic
	if err := c.do(ctx, http.MethodGet, "/diagnostics/"+url.PathEscape(diagnosticID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PatchResponses persists a partial response map and returns the updated
// diagnostic.
func (c *Client) PatchResponses(ctx context.Context, diagnosticID string, responses map[string]any, status model.DiagnosticStatus) (*model.Diagnostic, error) {
	body := model.PatchDiagnosticRequest{Responses: responses, Status: status}
	var d model.Diagnostic
	if err := c.do(ctx, http.MethodPatch, "/diagnostics/"+url.PathEscape(diagnosticID), body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Submit hands the diagnostic off for asynchronous processing.
func (c *Client) Submit(ctx context.Context, diagnosticID, completedBy string) (*model.Diagnostic, error) {
	body := model.SubmitDiagnosticRequest{CompletedBy: completedBy}
	var d model.Diagnostic
	if err := c.do(ctx, http.MethodPost, "/diagnostics/"+url.PathEscape(diagnosticID)+"/submit", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetStatus is the lightweight status check used while polling.
func (c *Client) GetStatus(ctx context.Context, diagnosticID string) (*model.DiagnosticStatusInfo, error) {
	var s model.DiagnosticStatusInfo
	if err := c.do(ctx, http.MethodGet, "/diagnostics/"+url.PathEscape(diagnosticID)+"/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateEngagementStatus changes an engagement's lifecycle status.
func (c *Client) UpdateEngagementStatus(ctx context.Context, engagementID string, status model.EngagementStatus) error {
	body := model.UpdateEngagementStatusRequest{Status: status}
	return c.do(ctx, http.MethodPatch, "/engagements/"+url.PathEscape(engagementID), body, nil)
}

// GetEngagementSummary fetches an engagement overview.
func (c *Client) GetEngagementSummary(ctx context.Context, engagementID string) (*model.EngagementSummary, error) {
	var s model.EngagementSummary
	if err := c.do(ctx, http.MethodGet, "/engagements/"+url.PathEscape(engagementID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DownloadReport fetches the rendered diagnostic report. The filename comes
// from Content-Disposition, falling back to diagnostic-report-{id}.pdf.
func (c *Client) DownloadReport(ctx context.Context, diagnosticID string) (*model.Report, error) {
	resp, err := c.send(ctx, http.MethodGet, "/diagnostics/"+url.PathEscape(diagnosticID)+"/report", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &model.Report{
		Filename:    ReportFilename(resp.Header.Get("Content-Disposition"), diagnosticID),
		ContentType: contentType,
		Body:        body,
	}, nil
}

// ReportFilename extracts the filename parameter of a Content-Disposition
// header.
func ReportFilename(disposition, diagnosticID string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return fmt.Sprintf("diagnostic-report-%s.pdf", diagnosticID)
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	token := TokenFrom(ctx)
	if token == "" {
		token = c.serviceToken
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if id := RequestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("Backend request failed")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %d %s", ErrValidation, resp.StatusCode, bytes.TrimSpace(detail))
	default:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	}
}

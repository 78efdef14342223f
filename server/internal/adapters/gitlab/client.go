package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/visioncontrol/visioncontrol/server/internal/config"
)

const (
	apiPrefix = "/api/v4"
	perPage   = 100
	// maxPages bounds a listing; 100 pages of 100 items is far beyond what a
	// dashboard table can show.
	maxPages = 100
)

// apiError is the error body returned by the GitLab API.
type apiError struct {
	Status  int `json:"-"`
	Message any `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gitlab api: %d: %v", e.Status, e.Message)
}

// Client is a minimal GitLab REST v4 client.
type Client struct {
	rc *resty.Client
}

// NewClient builds a client for the configured GitLab instance.
func NewClient(cfg config.GitLabConfig) *Client {
	rc := resty.New()
	rc.SetBaseURL(strings.TrimRight(cfg.URL, "/") + apiPrefix)
	rc.SetTimeout(cfg.Timeout)
	rc.SetLogger(slogLogger{})
	rc.SetHeader("Accept", "application/json")
	if token := cfg.Token(); token != "" {
		rc.SetHeader("PRIVATE-TOKEN", token)
	}
	rc.SetError(&apiError{})
	rc.OnAfterResponse(catchAPIError)

	return &Client{rc: rc}
}

func catchAPIError(_ *resty.Client, res *resty.Response) error {
	if !res.IsError() {
		return nil
	}
	apiErr, ok := res.Error().(*apiError)
	if !ok || apiErr == nil {
		apiErr = &apiError{}
	}
	apiErr.Status = res.StatusCode()
	if apiErr.Message == nil {
		apiErr.Message = res.Status()
	}
	return apiErr
}

// get fetches a single object into out.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	_, err := c.rc.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(out).
		Get(path)
	return err
}

// getAll follows X-Next-Page until the listing is exhausted.
func getAll[T any](ctx context.Context, c *Client, path string, params map[string]string, query url.Values) ([]T, error) {
	var all []T
	page := 1
	for i := 0; i < maxPages; i++ {
		var batch []T
		res, err := c.rc.R().
			SetContext(ctx).
			SetPathParams(params).
			SetQueryParamsFromValues(query).
			SetQueryParam("per_page", strconv.Itoa(perPage)).
			SetQueryParam("page", strconv.Itoa(page)).
			SetResult(&batch).
			Get(path)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		next, err := strconv.Atoi(res.Header().Get("X-Next-Page"))
		if err != nil || next <= page {
			return all, nil
		}
		page = next
	}
	slog.Warn("gitlab: listing truncated", "path", path, "pages", maxPages)
	return all, nil
}

// statusOf returns the HTTP status of a GitLab API error, or 0.
func statusOf(err error) int {
	if e, ok := asAPIError(err); ok {
		return e.Status
	}
	return 0
}

func isNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// slogLogger routes resty's internal messages to slog.
type slogLogger struct{}

func (slogLogger) Errorf(format string, v ...any) {
	slog.Error("gitlab: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (slogLogger) Warnf(format string, v ...any) {
	slog.Warn("gitlab: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (slogLogger) Debugf(format string, v ...any) {
	slog.Debug("gitlab: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Package testops implements the client for the test-management backend:
// reading launches and test results (Source) and managing comments (Sink).
package testops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vpetrenko/failtriage/pkg/models"
)

// Source is the read-only collaborator for test results.
type Source interface {
	GetLaunch(ctx context.Context, launchID int64) (*models.Launch, error)
	ListTestResults(ctx context.Context, launchID int64) ([]models.TestResult, error)
	GetTestResult(ctx context.Context, testResultID int64) (*models.TestResult, error)
	GetExecutionSteps(ctx context.Context, testResultID int64) (*models.StepNode, error)
}

// Sink is the write collaborator for comments on test cases.
type Sink interface {
	UpsertComment(ctx context.Context, testCaseID int64, body string) error
	ListComments(ctx context.Context, testCaseID int64) ([]models.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
}

// Client talks to an Allure-TestOps-style REST API. It implements both
// Source and Sink against one server.
type Client struct {
	endpoint string
	auth     *AuthManager
	client   *http.Client
	pageSize int
	maxPages int
}

// Options configures a Client.
type Options struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	PageSize int
	MaxPages int
}

// NewClient creates a Client with its own auth manager.
func NewClient(opts Options) *Client {
	return &Client{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		auth:     NewAuthManager(opts.Endpoint, opts.Token, opts.Timeout),
		client:   &http.Client{Timeout: opts.Timeout},
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
	}
}

func (c *Client) GetLaunch(ctx context.Context, launchID int64) (*models.Launch, error) {
	var launch models.Launch
	path := fmt.Sprintf("/api/launch/%d", launchID)
	if err := c.get(ctx, path, nil, &launch); err != nil {
		return nil, err
	}
	return &launch, nil
}

// ListTestResults fetches every page of test results for a launch. The
// maxPages bound is a safety valve: breaching it aborts the run because a
// truncated listing cannot produce a meaningful partial result.
func (c *Client) ListTestResults(ctx context.Context, launchID int64) ([]models.TestResult, error) {
	var all []models.TestResult
	page := 0

	for {
		params := url.Values{
			"launchId": {strconv.FormatInt(launchID, 10)},
			"page":     {strconv.Itoa(page)},
			"size":     {strconv.Itoa(c.pageSize)},
		}
		var resp pageResponse[models.TestResult]
		if err := c.get(ctx, "/api/testresult", params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Content...)

		if page+1 >= resp.TotalPages {
			break
		}
		page++
		if page >= c.maxPages {
			return nil, fmt.Errorf("%w: fetched %d/%d results in %d pages",
				ErrPaginationLimit, len(all), resp.TotalElements, page)
		}
	}

	slog.Debug("fetched test results", "launch_id", launchID, "count", len(all), "pages", page+1)
	return all, nil
}

func (c *Client) GetTestResult(ctx context.Context, testResultID int64) (*models.TestResult, error) {
	var result models.TestResult
	path := fmt.Sprintf("/api/testresult/%d", testResultID)
	if err := c.get(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetExecutionSteps(ctx context.Context, testResultID int64) (*models.StepNode, error) {
	var root models.StepNode
	path := fmt.Sprintf("/api/testresult/%d/execution", testResultID)
	if err := c.get(ctx, path, nil, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (c *Client) UpsertComment(ctx context.Context, testCaseID int64, body string) error {
	payload := map[string]any{"testCaseId": testCaseID, "body": body}
	return c.do(ctx, http.MethodPost, "/api/comment", nil, payload, nil)
}

func (c *Client) ListComments(ctx context.Context, testCaseID int64) ([]models.Comment, error) {
	params := url.Values{"testCaseId": {strconv.FormatInt(testCaseID, 10)}}
	var resp pageResponse[models.Comment]
	if err := c.get(ctx, "/api/comment", params, &resp); err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	path := fmt.Sprintf("/api/comment/%d", commentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// --- Internal HTTP ---

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// do executes one authenticated request, re-authenticating once on 401.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	resp, err := c.send(ctx, method, path, params, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		slog.Debug("got 401, re-authenticating", "endpoint", path)
		c.auth.Invalidate()
		resp, err = c.send(ctx, method, path, params, payload)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return fmt.Errorf("%w: still unauthorized after token refresh", ErrAuthentication)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return &APIError{Status: resp.StatusCode, Endpoint: path, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values, payload any) (*http.Response, error) {
	u := c.endpoint + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	header, err := c.auth.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

// pageResponse is the Spring-style pagination envelope the API uses.
type pageResponse[T any] struct {
	Content       []T `json:"content"`
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
}

// Compile-time checks that Client implements both collaborator interfaces.
var (
	_ Source = (*Client)(nil)
	_ Sink   = (*Client)(nil)
)

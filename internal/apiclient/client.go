// Package apiclient talks to the focus service REST API on behalf of
// focusctl.
package apiclient

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

	"github.com/jonboulle/clockwork"

	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/reliability"
	"github.com/ownmi/focussync/internal/stats"
)

const maxRetries = 3

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	clock   clockwork.Clock
}

func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("a token is required (set FOCUS_TOKEN or --token)")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient, clock: clockwork.NewRealClock()}, nil
}

type ListOptions struct {
	From     time.Time
	To       time.Time
	Manual   string
	MinHours float64
	MaxHours float64
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if !o.From.IsZero() {
		q.Set("from", o.From.UTC().Format(time.RFC3339))
	}
	if !o.To.IsZero() {
		q.Set("to", o.To.UTC().Format(time.RFC3339))
	}
	if o.Manual != "" {
		q.Set("manual", o.Manual)
	}
	if o.MinHours > 0 {
		q.Set("min_hours", strconv.FormatFloat(o.MinHours, 'f', -1, 64))
	}
	if o.MaxHours > 0 {
		q.Set("max_hours", strconv.FormatFloat(o.MaxHours, 'f', -1, 64))
	}
	return q
}

type rangeBody struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// StatsReport mirrors GET /v1/focus/stats.
type StatsReport struct {
	Summary stats.Summary      `json:"summary" yaml:"summary"`
	Buckets stats.ChartBuckets `json:"buckets" yaml:"buckets"`
}

func (c *Client) List(ctx context.Context, opts ListOptions) ([]records.Record, error) {
	var out struct {
		Sessions []records.Record `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/focus/sessions", opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) Add(ctx context.Context, start, end time.Time) (records.Record, error) {
	var rec records.Record
	err := c.do(ctx, http.MethodPost, "/v1/focus/sessions", nil, rangeBody{StartTime: start, EndTime: end}, &rec)
	return rec, err
}

func (c *Client) Edit(ctx context.Context, id string, start, end time.Time) (records.Record, error) {
	var rec records.Record
	err := c.do(ctx, http.MethodPut, "/v1/focus/sessions/"+url.PathEscape(id), nil, rangeBody{StartTime: start, EndTime: end}, &rec)
	return rec, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/focus/sessions/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Stats(ctx context.Context, tz string) (StatsReport, error) {
	q := url.Values{}
	if tz != "" {
		q.Set("tz", tz)
	}
	var out StatsReport
	err := c.do(ctx, http.MethodGet, "/v1/focus/stats", q, nil, &out)
	return out, err
}

// do performs one API call. Idempotent methods are retried on transport
// errors and retryable statuses with capped backoff; POST is sent once.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	backoff := reliability.Backoff{Base: 200 * time.Millisecond, Cap: 2 * time.Second, Clock: c.clock}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.Wait(ctx); err != nil {
				return err
			}
		}
		retry, err := c.once(ctx, method, target, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || !idempotent(method) {
			return err
		}
	}
	return lastErr
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte, out any) (retry bool, err error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return true, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		se := &StatusError{Status: res.StatusCode, Message: strings.TrimSpace(string(raw))}
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			se.Code = apiErr.Code
			se.Message = apiErr.Error
		}
		return reliability.IsRetryableHTTPStatus(res.StatusCode), se
	}
	if out == nil || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

// Package client talks to a running petal server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/okian/petal/internal/domain/types"
)

const defaultTimeout = 30 * time.Second

// Row is one prediction as returned by the API.
type Row struct {
	Probabilities  map[string]float64 `json:"probabilities"`
	PredictedClass string             `json:"predicted_class"`
}

// Result is the JSON answer of POST /api/v1/predict.
type Result struct {
	File        string         `json:"file"`
	Rows        int            `json:"rows"`
	Cached      bool           `json:"cached"`
	Classes     []string       `json:"classes"`
	Counts      map[string]int `json:"counts"`
	Predictions []Row          `json:"predictions"`
}

// Client wraps http.Client with the server's base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL, e.g. "http://localhost:9080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks that the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", "", nil)
	if err != nil {
		return err
	}
	_, err = readBody(resp)
	return err
}

// Schema fetches the upload contract.
func (c *Client) Schema(ctx context.Context) (*types.Schema, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/schema", "", nil)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var s types.Schema
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponse, err)
	}
	return &s, nil
}

// Sample downloads the upload template.
func (c *Client) Sample(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/sample", "", nil)
	if err != nil {
		return nil, err
	}
	return readBody(resp)
}

// Predict uploads a CSV and returns the decoded predictions. A rejected
// upload returns an *APIError matching ErrInvalid.
func (c *Client) Predict(ctx context.Context, name string, r io.Reader) (*Result, error) {
	resp, err := c.upload(ctx, "/api/v1/predict", name, r)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponse, err)
	}
	return &res, nil
}

// PredictCSV uploads a CSV and returns the prediction table as CSV.
func (c *Client) PredictCSV(ctx context.Context, name string, r io.Reader) ([]byte, error) {
	resp, err := c.upload(ctx, "/api/v1/predict?format=csv", name, r)
	if err != nil {
		return nil, err
	}
	return readBody(resp)
}

func (c *Client) upload(ctx context.Context, path, name string, r io.Reader) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrRequest, name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	return c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequest, method, path, err)
	}
	return resp, nil
}

// readBody reads and closes the response body, turning non-2xx answers
// into *APIError.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponse, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var payload struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Code != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		apiErr.Errors = payload.Errors
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return nil, apiErr
}

// Package aiclient talks to the external AI product service. The service is
// a black box behind one endpoint: POST /analyze-product takes the job id,
// the price and public image URLs and answers with drafted product copy.
package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

type AnalyzeRequest struct {
	JobID     uuid.UUID `json:"jobId"`
	Price     float64   `json:"price"`
	ImageURLs []string  `json:"imageUrls"`
}

type TagValue struct {
	Value string `json:"value"`
}

type AnalyzeResponse struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        []TagValue `json:"tags"`
}

type Client interface {
	AnalyzeProduct(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

type HTTPClient struct {
	rest *resty.Client
}

// NewHTTPClient builds the real client. The timeout bounds the worst-case
// duration of a processing attempt; there is no mid-flight cancellation.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPClient{rest: rest}
}

func (c *HTTPClient) AnalyzeProduct(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/analyze-product")
	if err != nil {
		return nil, fmt.Errorf("call ai service: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ai service returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

// MockClient returns canned copy without leaving the process. Used when the
// server runs with AI_USE_REAL_SERVICE=false.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) AnalyzeProduct(_ context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	return &AnalyzeResponse{
		Title:       "Vintage Sample Shirt",
		Description: "A comfortable everyday shirt in a timeless cut. The soft cotton fabric keeps its shape wash after wash.",
		Tags:        []TagValue{{Value: "shirt"}, {Value: "cotton"}, {Value: "vintage"}},
	}, nil
}

// New picks the real or mock client by configuration.
func New(baseURL string, timeout time.Duration, useReal bool) Client {
	if useReal {
		return NewHTTPClient(baseURL, timeout)
	}
	return NewMockClient()
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
)

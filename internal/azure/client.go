package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joescharf/ado/internal/models"
)

// Client sends built requests to Azure DevOps.
type Client struct {
	http *http.Client
}

// NewClient returns a Client. A nil http.Client means http.DefaultClient.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc}
}

type workItemResponse struct {
	ID     int            `json:"id"`
	URL    string         `json:"url"`
	Fields map[string]any `json:"fields"`
	Links  struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

// Create sends req and decodes the created work item.
func (c *Client) Create(ctx context.Context, req Request) (*models.CreationResult, error) {
	body, err := json.Marshal(req.Document)
	if err != nil {
		return nil, fmt.Errorf("encode patch document: %w", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", ContentTypePatch)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", req.Authorization)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var wi workItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&wi); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &models.CreationResult{
		ID:      wi.ID,
		URL:     wi.Links.HTML.Href,
		Fields:  map[string]string{},
		Success: true,
	}
	if result.URL == "" {
		result.URL = wi.URL
	}
	for _, f := range []string{FieldTitle, FieldDescription, FieldState} {
		if v, ok := wi.Fields[f].(string); ok {
			result.Fields[f] = v
		}
	}
	return result, nil
}

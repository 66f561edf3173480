// Package fetch pulls Microsoft.Consumption usageDetails exports from
// the Azure management API.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL = "https://management.azure.com"
	apiVersion     = "2019-11-01"
)

// Credentials identify a service principal with Cost Management reader
// access.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Client fetches usage-details pages for one subscription.
type Client struct {
	subscriptionID string
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient builds a client that authenticates with the OAuth2 client
// credentials flow against Azure AD.
func NewClient(subscriptionID string, creds Credentials, logger *slog.Logger) *Client {
	config := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", creds.TenantID),
		Scopes:       []string{"https://management.azure.com/.default"},
	}
	return &Client{
		subscriptionID: subscriptionID,
		baseURL:        defaultBaseURL,
		httpClient:     config.Client(context.Background()),
		logger:         logger,
	}
}

// NewClientWithHTTP builds a client against an arbitrary endpoint with a
// caller-supplied HTTP client. Used against local stand-ins for the API.
func NewClientWithHTTP(subscriptionID, baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		subscriptionID: subscriptionID,
		baseURL:        baseURL,
		httpClient:     httpClient,
		logger:         logger,
	}
}

// page is one usageDetails response. Value entries stay raw; the merged
// export is re-emitted byte for byte.
type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"nextLink"`
	Error    *apiError         `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mergedExport is the document shape written to disk: all pages'
// records under a single value array.
type mergedExport struct {
	Value []json.RawMessage `json:"value"`
}

// UsageDetails walks the usageDetails endpoint from the given date range
// through every nextLink and returns the merged export document.
func (c *Client) UsageDetails(ctx context.Context, from, to time.Time) ([]byte, error) {
	next := fmt.Sprintf(
		"%s/subscriptions/%s/providers/Microsoft.Consumption/usageDetails?startDate=%s&endDate=%s&api-version=%s",
		c.baseURL, url.PathEscape(c.subscriptionID),
		from.Format("2006-01-02"), to.Format("2006-01-02"), apiVersion,
	)

	var merged mergedExport
	pages := 0
	for next != "" {
		p, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		pages++
		merged.Value = append(merged.Value, p.Value...)
		c.logger.Debug("fetched usage page", "page", pages, "records", len(p.Value))
		next = p.NextLink
	}
	c.logger.Info("usage details fetched", "pages", pages, "records", len(merged.Value))

	if merged.Value == nil {
		merged.Value = []json.RawMessage{}
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged export: %w", err)
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage details: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage details request failed: %d %s", resp.StatusCode, string(body))
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode usage page: %w", err)
	}
	if p.Error != nil {
		return nil, fmt.Errorf("usage details API error %s: %s", p.Error.Code, p.Error.Message)
	}
	return &p, nil
}

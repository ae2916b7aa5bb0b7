package geolocation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the subset of the ipstack payload FormLoc consumes. Every
// other provider field is dropped at decode time.
type Response struct {
	CountryName   string         `json:"country_name"`
	CountryCode   string         `json:"country_code"`
	City          string         `json:"city"`
	RegionName    string         `json:"region_name"`
	ContinentName string         `json:"continent_name"`
	Zip           string         `json:"zip"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	Error         *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error object ipstack embeds in an otherwise 200
// response when the request itself failed (bad key, quota, ...).
type ResponseError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

// Client calls the ipstack lookup endpoint. One GET per lookup, no retries:
// transient failures are cached as short-lived error records and retried
// naturally after expiry.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates an ipstack client. HTTPS requires a paid ipstack plan,
// so the scheme is configurable.
func NewClient(useHTTPS bool) *Client {
	scheme := "http"
	if useHTTPS {
		scheme = "https"
	}

	return &Client{
		BaseURL: scheme + "://api.ipstack.com",
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Lookup fetches location data for an IP address.
func (c *Client) Lookup(ctx context.Context, ip, accessKey string) (*Response, error) {
	url := fmt.Sprintf("%s/%s?access_key=%s", c.BaseURL, ip, accessKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ipstack request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ipstack response: %w", err)
	}

	var data Response
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode ipstack response: %w", err)
	}

	return &data, nil
}

// MaskKey shortens an access key for logging so the full key never lands in
// log output.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

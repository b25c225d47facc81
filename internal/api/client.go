// Package api is a small JSON client for the marketplace REST API resources
// the submitter reconciles: shipping methods and variants.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"storefront/internal/session"
)

// ErrMissingID is returned when a create response carries no identifier.
var ErrMissingID = errors.New("response carried no id")

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client calls the REST API. Outgoing requests share one token bucket.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api: empty base url")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.WithField("component", "api")
	}
	return &Client{
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		log:     opts.Logger,
	}, nil
}

type shippingRequest struct {
	ListingID string `json:"listing_id,omitempty"`
	session.ShippingMethod
}

type variantRequest struct {
	ListingID string   `json:"listing_id,omitempty"`
	Name      string   `json:"name"`
	Options   []string `json:"options"`
}

type idResponse struct {
	ID string `json:"id"`
}

// CreateShippingMethod posts m and returns it with the server-assigned ID.
func (c *Client) CreateShippingMethod(ctx context.Context, listingID string, m session.ShippingMethod) (session.ShippingMethod, error) {
	m.ID = ""
	var out session.ShippingMethod
	if err := c.do(ctx, http.MethodPost, "/shippingMethods", shippingRequest{ListingID: listingID, ShippingMethod: m}, &out); err != nil {
		return session.ShippingMethod{}, err
	}
	if out.ID == "" {
		return session.ShippingMethod{}, fmt.Errorf("create shipping method: %w", ErrMissingID)
	}
	return out, nil
}

// UpdateShippingMethod patches the method identified by m.ID.
func (c *Client) UpdateShippingMethod(ctx context.Context, listingID string, m session.ShippingMethod) (session.ShippingMethod, error) {
	if m.ID == "" {
		return session.ShippingMethod{}, fmt.Errorf("update shipping method: %w", ErrMissingID)
	}
	var out session.ShippingMethod
	path := "/shippingMethods/" + url.PathEscape(m.ID)
	if err := c.do(ctx, http.MethodPatch, path, shippingRequest{ListingID: listingID, ShippingMethod: m}, &out); err != nil {
		return session.ShippingMethod{}, err
	}
	if out.ID == "" {
		out = m
	}
	return out, nil
}

// DeleteShippingMethod removes the method id.
func (c *Client) DeleteShippingMethod(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete shipping method: %w", ErrMissingID)
	}
	return c.do(ctx, http.MethodDelete, "/shippingMethods/"+url.PathEscape(id), nil, nil)
}

// CreateVariant posts one option group and returns its ID.
func (c *Client) CreateVariant(ctx context.Context, listingID string, g session.VariantGroup) (string, error) {
	var out idResponse
	req := variantRequest{ListingID: listingID, Name: g.Name, Options: g.Options}
	if err := c.do(ctx, http.MethodPost, "/variants", req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create variant: %w", ErrMissingID)
	}
	return out.ID, nil
}

// do sends one request. path is already escaped; IDs in it go through
// url.PathEscape.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("api %s %s: rate limit: %w", method, path, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u, err := c.resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("API: request finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("api %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) resolve(escaped string) (string, error) {
	raw := strings.TrimRight(c.base.EscapedPath(), "/") + escaped
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("api: bad path %q: %w", escaped, err)
	}
	u := *c.base
	u.Path, u.RawPath = decoded, raw
	return u.String(), nil
}

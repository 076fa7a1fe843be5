// Package tenantdir talks to the Collections Monitor tenant directory.
// Both calls are best-effort enrichment: callers swallow errors and treat
// every failure as "no match"/"not updated". The client carries its own
// retry policy for transient directory faults and a circuit breaker so a
// down directory cannot slow message ingestion.
package tenantdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/StantonManagement/sms-foundation-agent/internal/retry"
)

// UpdateResult classifies a profile language push.
type UpdateResult string

const (
	UpdateOK      UpdateResult = "ok"      // directory accepted the language
	UpdateNoop    UpdateResult = "noop"    // tenant unknown to the directory
	UpdateSkipped UpdateResult = "skipped" // nothing to push (unknown lang or unconfigured client)
)

// ErrUnavailable wraps transient directory failures after retries ran out.
var ErrUnavailable = errors.New("tenant directory unavailable")

type transientErr struct{ err error }

func (e transientErr) Error() string { return e.err.Error() }
func (e transientErr) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te transientErr
	return errors.As(err, &te)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Retry   retry.Policy
	Breaker *gobreaker.CircuitBreaker
}

// New builds a client with the breaker the service uses everywhere: trip
// after 5 consecutive failures, probe again after 30s.
func New(baseURL string, timeout time.Duration, policy retry.Policy) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Retry:   policy,
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "tenant-directory",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			Timeout: 30 * time.Second,
		}),
	}
}

// Lookup tries each phone variant in order and returns the first tenant the
// directory knows. 404/204 mean "no match" and stop nothing; transient
// faults abort the whole pass and are retried per the client's policy.
func (c *Client) Lookup(ctx context.Context, variants []string) (string, bool, error) {
	if c.BaseURL == "" || len(variants) == 0 {
		return "", false, nil
	}

	tenantID, err := retry.Do(ctx, c.Retry, isTransient, func(ctx context.Context) (string, error) {
		for _, v := range variants {
			if v == "" {
				continue
			}
			id, err := c.lookupOne(ctx, v)
			if err != nil {
				return "", err
			}
			if id != "" {
				return id, nil
			}
		}
		return "", nil
	})
	if err != nil {
		if isTransient(err) {
			return "", false, fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
		return "", false, err
	}
	return tenantID, tenantID != "", nil
}

func (c *Client) lookupOne(ctx context.Context, phone string) (string, error) {
	out, err := c.execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.BaseURL+"/tenants/lookup?phone="+url.QueryEscape(phone), nil)
		if err != nil {
			return "", err
		}
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return "", transientErr{err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			b, _ := io.ReadAll(resp.Body)
			var body struct {
				TenantID string `json:"tenant_id"`
			}
			_ = json.Unmarshal(b, &body)
			return body.TenantID, nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
			return "", nil
		default:
			return "", transientErr{fmt.Errorf("lookup status %d", resp.StatusCode)}
		}
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// UpdateLanguage pushes the merged conversation language onto the tenant
// profile. Unknown languages and an unconfigured client are skipped, not
// errors.
func (c *Client) UpdateLanguage(ctx context.Context, tenantID, lang string) (UpdateResult, error) {
	if c.BaseURL == "" || tenantID == "" || lang == "" || lang == "unknown" {
		return UpdateSkipped, nil
	}

	res, err := retry.Do(ctx, c.Retry, isTransient, func(ctx context.Context) (UpdateResult, error) {
		out, err := c.execute(func() (any, error) {
			payload := strings.NewReader(`{"language":"` + lang + `"}`)
			req, err := http.NewRequestWithContext(ctx, http.MethodPut,
				c.BaseURL+"/tenants/"+url.PathEscape(tenantID)+"/language", payload)
			if err != nil {
				return UpdateSkipped, err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := c.httpClient().Do(req)
			if err != nil {
				return UpdateSkipped, transientErr{err}
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch {
			case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
				return UpdateOK, nil
			case resp.StatusCode == http.StatusNotFound:
				return UpdateNoop, nil
			default:
				return UpdateSkipped, transientErr{fmt.Errorf("update status %d", resp.StatusCode)}
			}
		})
		if err != nil {
			return UpdateSkipped, err
		}
		return out.(UpdateResult), nil
	})
	if err != nil {
		if isTransient(err) {
			return UpdateSkipped, fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
		return UpdateSkipped, err
	}
	return res, nil
}

// execute routes a call through the breaker when one is configured. An open
// breaker reads as a transient directory fault.
func (c *Client) execute(fn func() (any, error)) (any, error) {
	if c.Breaker == nil {
		return fn()
	}
	out, err := c.Breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, transientErr{err}
	}
	return out, err
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Package twilio is a minimal Messages API client. It intentionally avoids
// the full SDK so tests can stub the HTTP surface directly; failures are
// classified into transient/permanent categories for the retry engine.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Category string

const (
	CategoryTransient Category = "transient"
	CategoryPermanent Category = "permanent"
)

// SendError is a classified provider failure. RetryAfter carries the 429
// Retry-After hint when the provider supplied one.
type SendError struct {
	Category      Category
	StatusCode    int
	CorrelationID string
	RetryAfter    time.Duration
	Message       string
}

func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("twilio: %s (status %d)", e.Message, e.StatusCode)
	}
	return "twilio: " + e.Message
}

// RetryAfterHint implements the retry engine's delay-hint contract.
func (e *SendError) RetryAfterHint() time.Duration { return e.RetryAfter }

// IsTransient reports whether err is a provider failure worth retrying.
func IsTransient(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Category == CategoryTransient
}

type Client struct {
	AccountSID string
	AuthToken  string
	HTTP       *http.Client

	MessagingServiceSID string
	FromNumber          string
	BaseURL             string
}

type sendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

// SendSMS posts one message and returns the provider-issued message sid.
// Network errors and 5xx/429/408 responses come back transient; other 4xx
// responses are permanent.
func (c *Client) SendSMS(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	if c.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", c.MessagingServiceSID)
	} else {
		form.Set("From", c.FromNumber)
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	endpoint := baseURL + "/2010-04-01/Accounts/" + c.AccountSID + "/Messages.json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.AccountSID, c.AuthToken)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", classifyNetworkError(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out sendResponse
	_ = json.Unmarshal(b, &out)

	corr := resp.Header.Get("Twilio-Request-Id")
	if corr == "" {
		corr = resp.Header.Get("X-Request-Id")
	}

	// Twilio returns 201 for created; treat any 2xx as success.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out.Sid == "" {
			return "", &SendError{
				Category:      CategoryTransient,
				StatusCode:    resp.StatusCode,
				CorrelationID: corr,
				Message:       "missing sid in response",
			}
		}
		return out.Sid, nil
	}

	se := &SendError{
		StatusCode:    resp.StatusCode,
		CorrelationID: corr,
		Message:       out.Message,
	}
	if se.Message == "" {
		se.Message = "send failed"
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		se.Category = CategoryTransient
		se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusRequestTimeout:
		se.Category = CategoryTransient
	case resp.StatusCode >= 500:
		se.Category = CategoryTransient
	default:
		se.Category = CategoryPermanent
	}
	return "", se
}

func classifyNetworkError(err error) *SendError {
	se := &SendError{Category: CategoryTransient, Message: err.Error()}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		se.Message = "network timeout"
	}
	return se
}

// parseRetryAfter handles the delta-seconds form only; an HTTP-date (or
// garbage) yields no hint.
func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

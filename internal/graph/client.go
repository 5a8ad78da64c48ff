// Package graph implements the Microsoft Graph directory and presence
// client: application-identity token acquisition, paginated member
// listing, and per-member or batched presence fetches.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"presencelog/internal/config"
	"presencelog/internal/httpclient"
	"presencelog/internal/logutil"
	"presencelog/internal/presence"
)

// tokenExpirySkew is subtracted from the token lifetime so a token is
// refreshed before the upstream considers it expired.
const tokenExpirySkew = 60 * time.Second

// presenceBatchMax is Graph's cap on ids per getPresencesByUserId call.
const presenceBatchMax = 100

// Client talks to Microsoft Graph. Safe for concurrent use.
type Client struct {
	cfg    *config.GraphConfig
	http   httpclient.Doer
	logger *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a Graph client. The token is acquired lazily on the
// first request.
func NewClient(cfg *config.GraphConfig, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   doer,
		logger: logutil.NoopIfNil(logger),
	}
}

func (c *Client) tokenURL() string {
	if c.cfg.TokenURL != "" {
		return c.cfg.TokenURL
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.cfg.TenantID)
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return strings.TrimSuffix(c.cfg.BaseURL, "/")
	}
	return "https://graph.microsoft.com/v1.0"
}

func (c *Client) maxTries() uint {
	if c.cfg.MaxRetries > 0 {
		return uint(c.cfg.MaxRetries)
	}
	return 4
}

// token returns a valid bearer token, requesting a new one via the
// client-credentials grant when the cached token is missing or close to
// expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	body, err := c.http.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("token response read failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrUnauthorized, resp.StatusCode)
	default:
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew)
	c.logger.Debug("acquired graph token", "expires_in", tok.ExpiresIn)

	return c.accessToken, nil
}

// invalidateToken drops the cached token so the next call re-acquires.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// call performs one authenticated Graph request with bounded exponential
// backoff. Throttling (429) and 5xx responses are retried, honouring
// Retry-After when present; 401/403 are permanent.
func (c *Client) call(ctx context.Context, method, urlStr string, payload []byte) ([]byte, error) {
	op := func() ([]byte, error) {
		token, err := c.token(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		var reqBody *strings.Reader
		if payload != nil {
			reqBody = strings.NewReader(string(payload))
		} else {
			reqBody = strings.NewReader("")
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return nil, err // transport error, retryable
		}
		body, err := c.http.ReadBody(resp)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			// Possibly an expired cached token; invalidate so the next
			// attempt re-acquires, but do not retry here.
			c.invalidateToken()
			return nil, backoff.Permanent(fmt.Errorf("%w: %s returned %d", ErrUnauthorized, urlStr, resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil && secs >= 0 {
					c.logger.Warn("graph throttled", "url", urlStr, "status", resp.StatusCode, "retry_after_s", secs)
					return nil, backoff.RetryAfter(secs)
				}
			}
			return nil, fmt.Errorf("graph returned %d for %s", resp.StatusCode, urlStr)
		default:
			return nil, backoff.Permanent(fmt.Errorf("graph returned %d for %s", resp.StatusCode, urlStr))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries()),
	)
}

// memberPage mirrors one page of a directory listing.
type memberPage struct {
	Value []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Mail        string `json:"mail"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// ListMembers fetches the full membership list, following
// @odata.nextLink until the provider signals end-of-list. Directory
// objects without an id (service principals and the like) are skipped.
// Fails with ErrDirectoryUnavailable after exhausting retries.
func (c *Client) ListMembers(ctx context.Context) ([]presence.Member, error) {
	next := c.listURL()

	var members []presence.Member
	for next != "" {
		body, err := c.call(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
		}

		var page memberPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("%w: invalid listing page: %w", ErrDirectoryUnavailable, err)
		}

		for _, m := range page.Value {
			if m.ID == "" {
				continue
			}
			members = append(members, presence.Member{
				ID:          m.ID,
				DisplayName: m.DisplayName,
				Email:       m.Mail,
			})
		}
		next = page.NextLink
	}

	return members, nil
}

func (c *Client) listURL() string {
	selectParam := "$select=" + url.QueryEscape("id,displayName,mail")
	if c.cfg.GroupID != "" {
		return fmt.Sprintf("%s/groups/%s/members?%s", c.baseURL(), c.cfg.GroupID, selectParam)
	}
	return fmt.Sprintf("%s/users?%s", c.baseURL(), selectParam)
}

// FetchPresence fetches one member's current presence. Failures are
// wrapped in *FetchError; the caller treats them as per-member soft
// failures that must not abort the batch.
func (c *Client) FetchPresence(ctx context.Context, memberID string) (presence.RawPresence, error) {
	urlStr := fmt.Sprintf("%s/users/%s/presence", c.baseURL(), memberID)

	body, err := c.call(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return presence.RawPresence{}, &FetchError{MemberID: memberID, Err: err}
	}

	var raw presence.RawPresence
	if err := json.Unmarshal(body, &raw); err != nil {
		return presence.RawPresence{}, &FetchError{MemberID: memberID, Err: err}
	}
	return raw, nil
}

// FetchPresenceBatch fetches presence for many members through
// getPresencesByUserId, chunked to the Graph limit of 100 ids per call.
// Members missing from the response are absent from the result map.
func (c *Client) FetchPresenceBatch(ctx context.Context, ids []string) (map[string]presence.RawPresence, error) {
	urlStr := c.baseURL() + "/communications/getPresencesByUserId"
	out := make(map[string]presence.RawPresence, len(ids))

	for start := 0; start < len(ids); start += presenceBatchMax {
		end := start + presenceBatchMax
		if end > len(ids) {
			end = len(ids)
		}

		payload, err := json.Marshal(map[string][]string{"ids": ids[start:end]})
		if err != nil {
			return nil, err
		}

		body, err := c.call(ctx, http.MethodPost, urlStr, payload)
		if err != nil {
			return nil, err
		}

		var page struct {
			Value []struct {
				ID           string `json:"id"`
				Availability string `json:"availability"`
				Activity     string `json:"activity"`
			} `json:"value"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("invalid presence batch response: %w", err)
		}

		for _, p := range page.Value {
			if p.ID == "" {
				continue
			}
			out[p.ID] = presence.RawPresence{
				Availability: p.Availability,
				Activity:     p.Activity,
			}
		}
	}

	return out, nil
}

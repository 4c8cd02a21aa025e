// Package upstream is the JSON-over-HTTP client shared by the market data integrations.
// Non-2xx responses come back as *gateway.StatusError so the gateway can spot 429s.
package upstream

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-price-bot/internal/gateway"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultTimeout = 15 * time.Second

type Client struct {
	name string
	http *resty.Client
}

func New(name, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		name: name,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "crypto-price-bot"),
	}
}

func (c *Client) SetHeader(key, value string) *Client {
	c.http.SetHeader(key, value)
	return c
}

func (c *Client) Name() string { return c.name }

// GetJSON performs one GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return errors.Wrapf(err, "%s: GET %s", c.name, path)
	}

	if resp.IsError() {
		se := gateway.NewStatusError(resp.StatusCode(), redactURL(resp.Request.URL), resp.Body())
		if s, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
			se.RetryAfter = time.Duration(s) * time.Second
		}
		log.Debugf("%s: %v", c.name, se)
		return se
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "%s: decode %s", c.name, path)
	}
	return nil
}

// redactURL drops the query string, which may carry API keys.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

package etherscan

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/upstream"

	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.etherscan.io"

// Gas prices in gwei.
type Gas struct {
	Safe    float64
	Propose float64
	Fast    float64
	BaseFee float64
}

type Client struct {
	api    *upstream.Client
	gw     *gateway.Gateway
	apiKey string
}

func New(gw *gateway.Gateway, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: upstream.New("etherscan", baseURL, 0), gw: gw, apiKey: apiKey}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// resultText returns the result when it is a plain string, as on errors.
func (e envelope) resultText() string {
	var s string
	if err := json.Unmarshal(e.Result, &s); err == nil {
		return s
	}
	return string(e.Result)
}

// GasOracle returns current Ethereum mainnet gas prices.
func (c *Client) GasOracle(ctx context.Context, opts ...gateway.Option) (*Gas, error) {
	gas, err := gateway.Do(ctx, c.gw, "etherscan:gasoracle", func(ctx context.Context) (*Gas, error) {
		var out envelope
		err := c.api.GetJSON(ctx, "/v2/api", map[string]string{
			"chainid": "1",
			"module":  "gastracker",
			"action":  "gasoracle",
			"apikey":  c.apiKey,
		}, &out)
		if err != nil {
			return nil, err
		}
		return parseGas(out)
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "etherscan gas oracle")
	}
	return gas, nil
}

// Etherscan answers rate limiting with HTTP 200 and status "0".
func parseGas(env envelope) (*Gas, error) {
	if env.Status != "1" {
		msg := env.resultText()
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return nil, errors.Wrap(gateway.ErrRateLimited, msg)
		}
		return nil, errors.Errorf("etherscan: %s: %s", env.Message, msg)
	}

	var r struct {
		SafeGasPrice    string `json:"SafeGasPrice"`
		ProposeGasPrice string `json:"ProposeGasPrice"`
		FastGasPrice    string `json:"FastGasPrice"`
		SuggestBaseFee  string `json:"suggestBaseFee"`
	}
	if err := json.Unmarshal(env.Result, &r); err != nil {
		return nil, errors.Wrap(err, "etherscan: decode gas oracle")
	}

	g := &Gas{}
	for _, f := range []struct {
		raw string
		dst *float64
	}{
		{r.SafeGasPrice, &g.Safe},
		{r.ProposeGasPrice, &g.Propose},
		{r.FastGasPrice, &g.Fast},
		{r.SuggestBaseFee, &g.BaseFee},
	} {
		if f.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "etherscan: parse gas price %q", f.raw)
		}
		*f.dst = v
	}
	return g, nil
}

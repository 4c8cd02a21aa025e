package dexscreener

import (
	"context"
	"strconv"
	"strings"

	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/upstream"

	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.dexscreener.com"

var ErrNoPairs = errors.New("no trading pairs found")

type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type Liquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

type Window struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type Pair struct {
	ChainID       string     `json:"chainId"`
	DexID         string     `json:"dexId"`
	URL           string     `json:"url"`
	PairAddress   string     `json:"pairAddress"`
	BaseToken     Token      `json:"baseToken"`
	QuoteToken    Token      `json:"quoteToken"`
	PriceNative   string     `json:"priceNative"`
	PriceUSD      string     `json:"priceUsd"`
	Volume        Window     `json:"volume"`
	PriceChange   Window     `json:"priceChange"`
	Liquidity     *Liquidity `json:"liquidity"`
	FDV           float64    `json:"fdv"`
	MarketCap     float64    `json:"marketCap"`
	PairCreatedAt int64      `json:"pairCreatedAt"`
}

// Price parses PriceUSD; pairs without a USD price report 0.
func (p Pair) Price() float64 {
	v, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		return 0
	}
	return v
}

func (p Pair) LiquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

type Client struct {
	api *upstream.Client
	gw  *gateway.Gateway
}

func New(gw *gateway.Gateway, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: upstream.New("dexscreener", baseURL, 0), gw: gw}
}

// TokenPairs returns every pair trading the token address.
func (c *Client) TokenPairs(ctx context.Context, address string) ([]Pair, error) {
	address = strings.TrimSpace(address)
	pairs, err := gateway.Do(ctx, c.gw, "dex:"+strings.ToLower(address), func(ctx context.Context) ([]Pair, error) {
		var out struct {
			Pairs []Pair `json:"pairs"`
		}
		err := c.api.GetJSON(ctx, "/latest/dex/tokens/"+address, nil, &out)
		return out.Pairs, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "dexscreener token pairs")
	}
	return pairs, nil
}

// BestPair returns the most liquid pair where the token is the base token.
func (c *Client) BestPair(ctx context.Context, address string) (*Pair, error) {
	pairs, err := c.TokenPairs(ctx, address)
	if err != nil {
		return nil, err
	}
	best := SelectBest(pairs, address)
	if best == nil {
		return nil, ErrNoPairs
	}
	return best, nil
}

func SelectBest(pairs []Pair, address string) *Pair {
	var best *Pair
	for i := range pairs {
		p := &pairs[i]
		if !strings.EqualFold(p.BaseToken.Address, address) {
			continue
		}
		if best == nil || p.LiquidityUSD() > best.LiquidityUSD() {
			best = p
		}
	}
	if best == nil && len(pairs) > 0 {
		best = &pairs[0]
	}
	return best
}

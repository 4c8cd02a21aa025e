package coingecko

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/upstream"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL     = "https://pro-api.coingecko.com/api/v3"
)

var ErrNotFound = errors.New("coin not found")

// Quote is the USD price of a coin.
type Quote struct {
	USD       float64
	Change24h float64
	MarketCap float64
	Volume24h float64
}

// Coin is a search hit.
type Coin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"`
}

// Point is one sample of a price history.
type Point struct {
	Time  time.Time
	Price float64
}

type Client struct {
	api *upstream.Client
	gw  *gateway.Gateway
}

// New builds a client. With a pro key requests go to the pro host; a demo key keeps the public host.
func New(gw *gateway.Gateway, baseURL, apiKey string, pro bool) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
		if pro {
			baseURL = ProBaseURL
		}
	}
	api := upstream.New("coingecko", baseURL, 0)
	if apiKey != "" {
		if pro {
			api.SetHeader("x-cg-pro-api-key", apiKey)
		} else {
			api.SetHeader("x-cg-demo-api-key", apiKey)
		}
	}
	return &Client{api: api, gw: gw}
}

// SimplePrice fetches USD quotes for coin ids. Ids missing upstream are absent from the result.
func (c *Client) SimplePrice(ctx context.Context, ids []string, opts ...gateway.Option) (map[string]Quote, error) {
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	joined := strings.Join(sorted, ",")

	raw, err := gateway.Do(ctx, c.gw, "cg:price:"+joined, func(ctx context.Context) (map[string]map[string]float64, error) {
		var out map[string]map[string]float64
		err := c.api.GetJSON(ctx, "/simple/price", map[string]string{
			"ids":                 joined,
			"vs_currencies":       "usd",
			"include_24hr_change": "true",
			"include_market_cap":  "true",
			"include_24hr_vol":    "true",
		}, &out)
		return out, err
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "coingecko simple price")
	}

	quotes := make(map[string]Quote, len(raw))
	for id, v := range raw {
		usd, ok := v["usd"]
		if !ok {
			continue
		}
		quotes[id] = Quote{
			USD:       usd,
			Change24h: v["usd_24h_change"],
			MarketCap: v["usd_market_cap"],
			Volume24h: v["usd_24h_vol"],
		}
	}
	return quotes, nil
}

// Search returns coins matching query, best match first. An exact symbol match with the
// best market cap rank is moved to the front.
func (c *Client) Search(ctx context.Context, query string) ([]Coin, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, ErrNotFound
	}

	res, err := gateway.Do(ctx, c.gw, "cg:search:"+q, func(ctx context.Context) ([]Coin, error) {
		var out struct {
			Coins []Coin `json:"coins"`
		}
		err := c.api.GetJSON(ctx, "/search", map[string]string{"query": q}, &out)
		return out.Coins, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "coingecko search")
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}

	// deduplicated callers share res
	res = append([]Coin(nil), res...)
	best := -1
	for i, coin := range res {
		if !strings.EqualFold(coin.Symbol, q) && !strings.EqualFold(coin.ID, q) {
			continue
		}
		if best == -1 || rankLess(coin.MarketCapRank, res[best].MarketCapRank) {
			best = i
		}
	}
	if best > 0 {
		res[0], res[best] = res[best], res[0]
	}
	log.Debugf("coingecko search %q best match: %s", q, res[0].ID)
	return res, nil
}

// rank 0 means unranked
func rankLess(a, b int) bool {
	if a == 0 {
		return false
	}
	return b == 0 || a < b
}

// MarketChart returns the USD price history of a coin over the last days.
func (c *Client) MarketChart(ctx context.Context, id string, days int) ([]Point, error) {
	d := strconv.Itoa(days)
	raw, err := gateway.Do(ctx, c.gw, fmt.Sprintf("cg:chart:%s:%s", id, d), func(ctx context.Context) ([][2]float64, error) {
		var out struct {
			Prices [][2]float64 `json:"prices"`
		}
		err := c.api.GetJSON(ctx, "/coins/"+id+"/market_chart", map[string]string{
			"vs_currency": "usd",
			"days":        d,
		}, &out)
		return out.Prices, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "coingecko market chart")
	}

	points := make([]Point, 0, len(raw))
	for _, p := range raw {
		points = append(points, Point{Time: time.UnixMilli(int64(p[0])), Price: p[1]})
	}
	return points, nil
}

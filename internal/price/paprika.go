package price

import (
	"context"
	"net/http"
	"strings"

	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/upstream"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Paprika looks coins up on CoinPaprika. Every SDK call is its own gateway submission.
type Paprika struct {
	client *coinpaprika.Client
	gw     *gateway.Gateway
	opts   []gateway.Option
}

func NewPaprika(gw *gateway.Gateway, apiProKey string) *Paprika {
	return newPaprika(gw, &http.Client{Timeout: upstream.DefaultTimeout}, apiProKey)
}

func newPaprika(gw *gateway.Gateway, httpClient *http.Client, apiProKey string, opts ...gateway.Option) *Paprika {
	var clientOpts []coinpaprika.ClientOptions
	if apiProKey != "" {
		clientOpts = append(clientOpts, coinpaprika.WithAPIKey(apiProKey))
	}
	return &Paprika{client: coinpaprika.NewClient(httpClient, clientOpts...), gw: gw, opts: opts}
}

func (p *Paprika) Lookup(ctx context.Context, query string) (*Quote, error) {
	q := normalize(query)
	if q == "" {
		return nil, ErrNotFound
	}

	coin, err := p.searchCoin(ctx, q)
	if err != nil {
		return nil, err
	}

	ticker, err := gateway.Do(ctx, p.gw, "paprika:ticker:"+*coin.ID, func(ctx context.Context) (*coinpaprika.Ticker, error) {
		return gateway.Await(ctx, func() (*coinpaprika.Ticker, error) {
			t, err := p.client.Tickers.GetByID(*coin.ID, &coinpaprika.TickersOptions{Quotes: "USD"})
			return t, mapError(err)
		})
	}, p.opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "coinpaprika ticker %s", *coin.ID)
	}
	return quoteFromTicker(coin, ticker)
}

// searchCoin tries a symbol search first and falls back to a name search when it finds nothing.
func (p *Paprika) searchCoin(ctx context.Context, query string) (*coinpaprika.Coin, error) {
	coins, err := p.search(ctx, query, "symbol_search")
	if err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		log.Debugf("No results for symbol search, trying name search for '%s'", query)
		if coins, err = p.search(ctx, query, ""); err != nil {
			return nil, err
		}
	}
	if len(coins) == 0 || coins[0].ID == nil {
		return nil, ErrNotFound
	}
	return coins[0], nil
}

func (p *Paprika) search(ctx context.Context, query, modifier string) ([]*coinpaprika.Coin, error) {
	key := "paprika:search:" + modifier + ":" + query
	coins, err := gateway.Do(ctx, p.gw, key, func(ctx context.Context) ([]*coinpaprika.Coin, error) {
		return gateway.Await(ctx, func() ([]*coinpaprika.Coin, error) {
			result, err := p.client.Search.Search(&coinpaprika.SearchOptions{
				Query:      query,
				Categories: "currencies",
				Modifier:   modifier,
			})
			if err != nil {
				return nil, mapError(err)
			}
			return result.Currencies, nil
		})
	}, p.opts...)
	return coins, errors.Wrap(err, "coinpaprika search")
}

// mapError marks CoinPaprika rate limiting for the gateway. The SDK reports HTTP failures
// only as "status code: N" text.
func mapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "status code: 429") {
		return errors.Wrap(gateway.ErrRateLimited, err.Error())
	}
	return err
}

func quoteFromTicker(coin *coinpaprika.Coin, ticker *coinpaprika.Ticker) (*Quote, error) {
	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return nil, errors.Wrapf(ErrNotFound, "no USD quote for %s", *coin.ID)
	}
	q := &Quote{
		ID:     *coin.ID,
		USD:    *usd.Price,
		Source: SourceCoinPaprika,
	}
	if coin.Name != nil {
		q.Name = *coin.Name
	}
	if coin.Symbol != nil {
		q.Symbol = strings.ToUpper(*coin.Symbol)
	}
	if usd.PercentChange24h != nil {
		q.Change24h = *usd.PercentChange24h
	}
	if usd.MarketCap != nil {
		q.MarketCap = *usd.MarketCap
	}
	if usd.Volume24h != nil {
		q.Volume24h = *usd.Volume24h
	}
	return q, nil
}

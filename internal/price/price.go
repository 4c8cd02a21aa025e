package price

import (
	"context"
	"strings"
	"sync"
	"time"

	"crypto-price-bot/internal/coingecko"
	"crypto-price-bot/internal/gateway"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	SourceCoinGecko   = "coingecko"
	SourceCoinPaprika = "coinpaprika"

	DefaultResolveTTL = 10 * time.Minute
)

var ErrNotFound = errors.New("coin not found")

// Quote represents the pricing details of a cryptocurrency
type Quote struct {
	ID        string
	Name      string
	Symbol    string
	USD       float64
	Change24h float64
	MarketCap float64
	Volume24h float64
	Source    string
}

// Fallback answers lookups when CoinGecko cannot.
type Fallback interface {
	Lookup(ctx context.Context, query string) (*Quote, error)
}

type resolved struct {
	coin    coingecko.Coin
	expires time.Time
}

type Service struct {
	cg       *coingecko.Client
	fallback Fallback
	ttl      time.Duration

	mu    sync.RWMutex
	coins map[string]resolved
}

func NewService(cg *coingecko.Client, fallback Fallback, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultResolveTTL
	}
	return &Service{
		cg:       cg,
		fallback: fallback,
		ttl:      ttl,
		coins:    make(map[string]resolved),
	}
}

// Resolve maps a symbol, name or id to a CoinGecko coin. Hits are cached for the resolve TTL.
func (s *Service) Resolve(ctx context.Context, query string) (coingecko.Coin, error) {
	q := normalize(query)
	if q == "" {
		return coingecko.Coin{}, ErrNotFound
	}

	s.mu.RLock()
	r, ok := s.coins[q]
	s.mu.RUnlock()
	if ok && time.Now().Before(r.expires) {
		return r.coin, nil
	}

	coins, err := s.cg.Search(ctx, q)
	if errors.Is(err, coingecko.ErrNotFound) {
		return coingecko.Coin{}, ErrNotFound
	}
	if err != nil {
		return coingecko.Coin{}, err
	}

	s.mu.Lock()
	s.coins[q] = resolved{coin: coins[0], expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return coins[0], nil
}

// Lookup resolves query and returns its USD quote. When CoinGecko fails or does not know the
// coin the fallback source is asked.
func (s *Service) Lookup(ctx context.Context, query string) (*Quote, error) {
	q, err := s.lookupCoinGecko(ctx, query)
	if err == nil {
		return q, nil
	}
	if s.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	log.Warnf("⚠️ CoinGecko lookup for %q failed, trying fallback: %v", query, err)
	fq, ferr := s.fallback.Lookup(ctx, query)
	if ferr != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "fallback also failed: %v", ferr)
	}
	return fq, nil
}

func (s *Service) lookupCoinGecko(ctx context.Context, query string) (*Quote, error) {
	coin, err := s.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	quotes, err := s.cg.SimplePrice(ctx, []string{coin.ID})
	if err != nil {
		return nil, err
	}
	cq, ok := quotes[coin.ID]
	if !ok {
		return nil, ErrNotFound
	}
	return &Quote{
		ID:        coin.ID,
		Name:      coin.Name,
		Symbol:    strings.ToUpper(coin.Symbol),
		USD:       cq.USD,
		Change24h: cq.Change24h,
		MarketCap: cq.MarketCap,
		Volume24h: cq.Volume24h,
		Source:    SourceCoinGecko,
	}, nil
}

// Prices returns USD prices for CoinGecko ids in one request.
func (s *Service) Prices(ctx context.Context, ids []string, opts ...gateway.Option) (map[string]float64, error) {
	quotes, err := s.cg.SimplePrice(ctx, ids, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(quotes))
	for id, q := range quotes {
		out[id] = q.USD
	}
	return out, nil
}

// History resolves query and returns its price history over the last days.
func (s *Service) History(ctx context.Context, query string, days int) (coingecko.Coin, []coingecko.Point, error) {
	coin, err := s.Resolve(ctx, query)
	if err != nil {
		return coingecko.Coin{}, nil, err
	}
	points, err := s.cg.MarketChart(ctx, coin.ID, days)
	if err != nil {
		return coin, nil, err
	}
	return coin, points, nil
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "$")))
}

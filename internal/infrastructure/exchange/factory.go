package exchange

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/config"
	"github.com/vitos/coinbot/internal/domain"
)

var (
	_ domain.Exchange = (*CoinbaseAdapter)(nil)
	_ domain.Exchange = (*PaperExchange)(nil)
)

// CoinbaseConfigFrom maps the exchange section of cfg onto the adapter config.
func CoinbaseConfigFrom(cfg *config.Config) CoinbaseConfig {
	return CoinbaseConfig{
		BaseURL:       cfg.Exchange.RESTEndpoint,
		APIKey:        cfg.Exchange.APIKey,
		APISecret:     cfg.Exchange.APISecret,
		Passphrase:    cfg.Exchange.APIPassphrase,
		ProductID:     cfg.Exchange.ProductID,
		BaseCurrency:  cfg.Exchange.BaseCurrency,
		QuoteCurrency: cfg.Exchange.QuoteCurrency,
		Timeout:       cfg.Timeout(),
		RetryCount:    cfg.Exchange.RetryCount,
	}
}

// New builds the exchange named by cfg.Exchange.Name.
func New(cfg *config.Config) (domain.Exchange, error) {
	switch cfg.Exchange.Name {
	case "coinbase":
		return NewCoinbaseAdapter(CoinbaseConfigFrom(cfg))
	case "paper":
		price, err := decimal.NewFromString(cfg.Paper.StartPrice)
		if err != nil {
			return nil, errors.Wrap(err, "paper start price")
		}
		base, err := decimal.NewFromString(cfg.Paper.InitialBase)
		if err != nil {
			return nil, errors.Wrap(err, "paper initial base")
		}
		quote, err := decimal.NewFromString(cfg.Paper.InitialQuote)
		if err != nil {
			return nil, errors.Wrap(err, "paper initial quote")
		}
		return NewPaperExchange(cfg.Exchange.ProductID, price, base, quote), nil
	default:
		return nil, errors.Errorf("unknown exchange %q", cfg.Exchange.Name)
	}
}

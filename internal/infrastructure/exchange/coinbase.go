package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vitos/coinbot/internal/domain"
)

const CoinbaseBaseURL = "https://api.exchange.coinbase.com"

type CoinbaseConfig struct {
	BaseURL       string
	APIKey        string
	APISecret     string // base64, as issued by the exchange
	Passphrase    string
	ProductID     string
	BaseCurrency  string
	QuoteCurrency string
	Timeout       time.Duration
	RetryCount    int
}

// CoinbaseAdapter talks to the Coinbase Exchange (formerly GDAX) REST API.
// Reads are retried on 429 and 5xx; order placement is never retried so a
// timeout cannot produce a duplicate order.
type CoinbaseAdapter struct {
	cfg     CoinbaseConfig
	secret  []byte
	reads   *resty.Client
	writes  *resty.Client
	timeNow func() time.Time
}

func NewCoinbaseAdapter(cfg CoinbaseConfig) (*CoinbaseAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = CoinbaseBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ProductID == "" {
		return nil, errors.New("coinbase: product id is required")
	}
	if cfg.BaseCurrency == "" || cfg.QuoteCurrency == "" {
		parts := strings.SplitN(cfg.ProductID, "-", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("coinbase: cannot derive currencies from product %q", cfg.ProductID)
		}
		cfg.BaseCurrency, cfg.QuoteCurrency = parts[0], parts[1]
	}

	var secret []byte
	if cfg.APISecret != "" {
		var err error
		secret, err = base64.StdEncoding.DecodeString(cfg.APISecret)
		if err != nil {
			return nil, errors.Wrap(err, "coinbase: api secret is not valid base64")
		}
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	reads := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil {
				return err != nil
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if s := resp.Header().Get("Retry-After"); s != "" {
					if secs, err := strconv.Atoi(s); err == nil {
						return time.Duration(secs) * time.Second, nil
					}
				}
			}
			return 0, nil
		})
	writes := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout)

	return &CoinbaseAdapter{
		cfg:     cfg,
		secret:  secret,
		reads:   reads,
		writes:  writes,
		timeNow: time.Now,
	}, nil
}

func (c *CoinbaseAdapter) ProductID() string {
	return c.cfg.ProductID
}

// --- REST API ---

// sign sets the CB-ACCESS headers: base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func (c *CoinbaseAdapter) sign(req *resty.Request, method, path string, body []byte) {
	timestamp := strconv.FormatInt(c.timeNow().Unix(), 10)
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)

	req.SetHeader("CB-ACCESS-KEY", c.cfg.APIKey)
	req.SetHeader("CB-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.SetHeader("CB-ACCESS-TIMESTAMP", timestamp)
	req.SetHeader("CB-ACCESS-PASSPHRASE", c.cfg.Passphrase)
}

type apiCall struct {
	op     string
	method string
	path   string // including query string; signed as is
	body   any
	out    any
	// orderLookup maps 404 / "NotFound" to domain.ErrOrderNotFound
	orderLookup bool
}

func (c *CoinbaseAdapter) do(ctx context.Context, call apiCall) error {
	client := c.reads
	if call.method != http.MethodGet {
		client = c.writes
	}

	req := client.R().SetContext(ctx).SetHeader("Accept", "application/json")

	var payload []byte
	if call.body != nil {
		var err error
		payload, err = json.Marshal(call.body)
		if err != nil {
			return &domain.ExchangeError{Op: call.op, Err: errors.Wrap(err, "marshal request")}
		}
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	if c.cfg.APIKey != "" {
		c.sign(req, call.method, call.path, payload)
	}

	resp, err := req.Execute(call.method, call.path)
	if err != nil {
		return &domain.ExchangeError{Op: call.op, Err: errors.Wrap(err, "request failed")}
	}

	message := apiMessage(resp.Body())
	if call.orderLookup && (resp.StatusCode() == http.StatusNotFound || message == "NotFound") {
		return &domain.ExchangeError{Op: call.op, StatusCode: resp.StatusCode(), Message: message, Err: domain.ErrOrderNotFound}
	}
	if !resp.IsSuccess() {
		if message == "" {
			message = strings.TrimSpace(string(resp.Body()))
		}
		return &domain.ExchangeError{
			Op:         call.op,
			StatusCode: resp.StatusCode(),
			Message:    message,
			Err:        errors.Errorf("http %s", resp.Status()),
		}
	}

	if call.out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), call.out); err != nil {
			return &domain.ExchangeError{Op: call.op, StatusCode: resp.StatusCode(), Err: errors.Wrap(err, "decode response")}
		}
	}
	return nil
}

// apiMessage extracts the "message" field of an error body, if any.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if len(body) == 0 || body[0] != '{' {
		return ""
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Message
}

// --- domain.Exchange ---

func (c *CoinbaseAdapter) GetTicker(ctx context.Context) (*domain.Ticker, error) {
	var raw struct {
		Price decimal.Decimal `json:"price"`
		Bid   decimal.Decimal `json:"bid"`
		Ask   decimal.Decimal `json:"ask"`
		Time  time.Time       `json:"time"`
	}
	err := c.do(ctx, apiCall{
		op:     "get ticker",
		method: http.MethodGet,
		path:   "/products/" + url.PathEscape(c.cfg.ProductID) + "/ticker",
		out:    &raw,
	})
	if err != nil {
		return nil, err
	}
	if !raw.Bid.IsPositive() || !raw.Ask.IsPositive() {
		return nil, &domain.ExchangeError{Op: "get ticker", Message: "ticker without bid/ask"}
	}
	return &domain.Ticker{
		ProductID: c.cfg.ProductID,
		Bid:       raw.Bid,
		Ask:       raw.Ask,
		Price:     raw.Price,
		Time:      raw.Time,
	}, nil
}

// GetAccountBalances returns the total balances of the pair's currencies.
// A currency without an account reads as zero.
func (c *CoinbaseAdapter) GetAccountBalances(ctx context.Context) (*domain.Balances, error) {
	var accounts []struct {
		Currency  string          `json:"currency"`
		Balance   decimal.Decimal `json:"balance"`
		Available decimal.Decimal `json:"available"`
	}
	err := c.do(ctx, apiCall{
		op:     "get accounts",
		method: http.MethodGet,
		path:   "/accounts",
		out:    &accounts,
	})
	if err != nil {
		return nil, err
	}

	var b domain.Balances
	for _, a := range accounts {
		switch a.Currency {
		case c.cfg.BaseCurrency:
			b.Base = a.Balance
		case c.cfg.QuoteCurrency:
			b.Quote = a.Balance
		}
	}
	return &b, nil
}

// PlaceOrder submits a market order: buys spend amount of quote funds,
// sells sell amount of base. price is only recorded on the ref.
func (c *CoinbaseAdapter) PlaceOrder(ctx context.Context, side domain.Side, amount, price decimal.Decimal) (*domain.OrderRef, error) {
	if !side.Valid() {
		return nil, errors.Errorf("invalid side %q", side)
	}
	clientOID := uuid.NewString()
	body := map[string]string{
		"client_oid": clientOID,
		"product_id": c.cfg.ProductID,
		"type":       "market",
		"side":       string(side),
	}
	if side == domain.SideBuy {
		body["funds"] = amount.String()
	} else {
		body["size"] = amount.String()
	}

	var out struct {
		ID     string             `json:"id"`
		Status domain.OrderStatus `json:"status"`
	}
	err := c.do(ctx, apiCall{
		op:     "place " + string(side) + " order",
		method: http.MethodPost,
		path:   "/orders",
		body:   body,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &domain.ExchangeError{Op: "place order", Message: "response without order id"}
	}

	return &domain.OrderRef{
		ID:              out.ID,
		ClientOrderID:   clientOID,
		Side:            side,
		RequestedAmount: amount,
		RequestedPrice:  price,
		PlacedAt:        c.timeNow(),
	}, nil
}

func (c *CoinbaseAdapter) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, apiCall{
		op:          "cancel order",
		method:      http.MethodDelete,
		path:        "/orders/" + url.PathEscape(orderID),
		orderLookup: true,
	})
}

func (c *CoinbaseAdapter) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderStatusReport, error) {
	var report domain.OrderStatusReport
	err := c.do(ctx, apiCall{
		op:          "get order",
		method:      http.MethodGet,
		path:        "/orders/" + url.PathEscape(orderID),
		out:         &report,
		orderLookup: true,
	})
	if err != nil {
		return nil, err
	}
	if report.ID == "" {
		return nil, &domain.ExchangeError{Op: "get order", Message: "order " + orderID + " without id", Err: domain.ErrOrderNotFound}
	}
	return &report, nil
}

// ListOpenOrders returns the open orders of the configured product, newest first.
func (c *CoinbaseAdapter) ListOpenOrders(ctx context.Context) ([]*domain.OrderStatusReport, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("product_id", c.cfg.ProductID)

	var orders []*domain.OrderStatusReport
	err := c.do(ctx, apiCall{
		op:     "list orders",
		method: http.MethodGet,
		path:   "/orders?" + q.Encode(),
		out:    &orders,
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

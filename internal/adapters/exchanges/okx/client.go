package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/ratelimit"
	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/retry"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

const (
	defaultBaseURL = "https://www.okx.com"
	defaultTimeout = 15 * time.Second

	pathCandles       = "/api/v5/market/candles"
	pathBooks         = "/api/v5/market/books"
	pathInstruments   = "/api/v5/public/instruments"
	pathBalance       = "/api/v5/account/balance"
	pathPositions     = "/api/v5/account/positions"
	pathSetLeverage   = "/api/v5/account/set-leverage"
	pathPlaceOrder    = "/api/v5/trade/order"
	pathCancelOrder   = "/api/v5/trade/cancel-order"
	pathOrdersPending = "/api/v5/trade/orders-pending"
	pathOrdersHistory = "/api/v5/trade/orders-history"
)

// Config configures the OKX client.
type Config struct {
	APIKey       string
	SecretKey    string
	Passphrase   string
	BaseURL      string
	UseSimulated bool

	HTTPClient *http.Client
	Retry      retry.Config
	Limiter    *ratelimit.Limiter
}

// Client is a minimal signed client for the OKX v5 REST API. Responses are
// returned as the envelope's raw data payload; callers shape them.
type Client struct {
	cfg     Config
	retrier *retry.Middleware
	log     *logger.Logger
}

// NewClient constructs a new OKX client.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Client{
		cfg:     cfg,
		retrier: retry.New(cfg.Retry),
		log:     logger.Get().With("component", "okx"),
	}
}

// Name returns the exchange identifier.
func (c *Client) Name() string { return "okx" }

// GetCandles fetches raw candle rows, newest first, in OKX positional form
// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func (c *Client) GetCandles(ctx context.Context, instID, bar string, limit int) ([][]string, error) {
	if bar == "" {
		bar = "1m"
	}
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{
		"instId": []string{instID},
		"bar":    []string{bar},
		"limit":  []string{strconv.Itoa(limit)},
	}
	var rows [][]string
	if err := c.request(ctx, http.MethodGet, pathCandles, params, nil, false, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetOrderBook fetches order book depth.
func (c *Client) GetOrderBook(ctx context.Context, instID string, depth int) (json.RawMessage, error) {
	if depth <= 0 {
		depth = 5
	}
	params := url.Values{
		"instId": []string{instID},
		"sz":     []string{strconv.Itoa(depth)},
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, pathBooks, params, nil, false, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetInstruments fetches instrument specifications such as lot size and
// tick size. instType is required by the exchange.
func (c *Client) GetInstruments(ctx context.Context, instType, instID string) (json.RawMessage, error) {
	params := url.Values{
		"instType": []string{instType},
	}
	if instID != "" {
		params.Set("instId", instID)
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, pathInstruments, params, nil, false, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetBalance fetches account balance.
func (c *Client) GetBalance(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, pathBalance, nil, nil, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetPositions fetches current positions, optionally filtered.
func (c *Client) GetPositions(ctx context.Context, instType, instID string) (json.RawMessage, error) {
	params := url.Values{}
	if instType != "" {
		params.Set("instType", instType)
	}
	if instID != "" {
		params.Set("instId", instID)
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, pathPositions, params, nil, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetOpenOrders fetches unfilled orders.
func (c *Client) GetOpenOrders(ctx context.Context, instType string) (json.RawMessage, error) {
	params := url.Values{}
	if instType != "" {
		params.Set("instType", instType)
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, pathOrdersPending, params, nil, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// OrderHistoryQuery filters historical order lookups.
type OrderHistoryQuery struct {
	InstType string
	InstID   string
	State    string
	Limit    int
}

// GetOrderHistory fetches historical orders.
func (c *Client) GetOrderHistory(ctx context.Context, q OrderHistoryQuery) (json.RawMessage, error) {
	params := url.Values{}
	if q.InstType != "" {
		params.Set("instType", q.InstType)
	}
	if q.InstID != "" {
		params.Set("instId", q.InstID)
	}
	if q.State != "" {
		params.Set("state", q.State)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, pathOrdersHistory, params, nil, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// PlaceOrder submits an order payload to OKX.
func (c *Client) PlaceOrder(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodPost, pathPlaceOrder, nil, payload, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CancelOrder cancels an existing order by exchange or client order ID.
func (c *Client) CancelOrder(ctx context.Context, instID, orderID, clientOrderID string) (json.RawMessage, error) {
	if orderID == "" && clientOrderID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "either ordId or clOrdId must be provided")
	}
	payload := map[string]interface{}{
		"instId": instID,
	}
	if orderID != "" {
		payload["ordId"] = orderID
	}
	if clientOrderID != "" {
		payload["clOrdId"] = clientOrderID
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodPost, pathCancelOrder, nil, payload, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SetLeverage configures leverage for a contract, scoped to a margin mode.
func (c *Client) SetLeverage(ctx context.Context, lever, mgnMode, instID, posSide string) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"lever":   lever,
		"mgnMode": mgnMode,
	}
	if instID != "" {
		payload["instId"] = instID
	}
	if posSide != "" {
		payload["posSide"] = posSide
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodPost, pathSetLeverage, nil, payload, true, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// request performs one signed or public call with rate limiting and
// transient-failure retry, then decodes the envelope data into target.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, payload interface{}, auth bool, target interface{}) error {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var bodyStr string
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshal okx payload")
		}
		bodyStr = string(raw)
	}

	requestPath := path
	if len(params) > 0 {
		requestPath += "?" + params.Encode()
	}

	var respBody []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+requestPath, strings.NewReader(bodyStr))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		if auth {
			if c.cfg.APIKey == "" || c.cfg.SecretKey == "" || c.cfg.Passphrase == "" {
				return errors.Wrap(errors.ErrConfiguration, "okx credentials are required for signed requests")
			}
			timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
			prehash := timestamp + strings.ToUpper(method) + requestPath + bodyStr

			req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
			req.Header.Set("OK-ACCESS-SIGN", sign(prehash, c.cfg.SecretKey))
			req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
			req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
			if c.cfg.UseSimulated {
				req.Header.Set("x-simulated-trading", "1")
			}
		}

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.Wrapf(errors.ErrRateLimited, "okx: %s", strings.TrimSpace(string(respBody)))
		}
		if resp.StatusCode >= 400 {
			return errors.Wrapf(errors.ErrExternalService, "okx http %d: %s", resp.StatusCode, string(respBody))
		}
		return nil
	}

	if err := c.retrier.Do(ctx, call); err != nil {
		if errors.Is(err, errors.ErrExternalService) || errors.Is(err, errors.ErrConfiguration) || errors.Is(err, errors.ErrValidation) {
			return err
		}
		c.log.Warnw("okx request failed after retries", "method", method, "path", path, "error", err)
		return errors.Wrapf(errors.ErrExternalService, "okx request failed: %v", err)
	}

	return decodeEnvelope(respBody, target)
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// decodeEnvelope unwraps the OKX response envelope. A non-zero code is a
// business error even on HTTP 200.
func decodeEnvelope(body []byte, target interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrapf(errors.ErrExternalService, "okx: unparseable response: %v", err)
	}
	if env.Code != "0" && env.Code != "" {
		return errors.Wrapf(errors.ErrExternalService, "okx business error %s: %s", env.Code, env.Msg)
	}
	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return errors.Wrapf(errors.ErrExternalService, "okx: unexpected data payload: %v", err)
	}
	return nil
}

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Package trading validates and submits order intents against the exchange.
package trading

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/okx"
	"github.com/Tengfei-Z/AiTrader/internal/marketdata"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

// ExchangeClient is the slice of the exchange API this adapter consumes.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error)
	CancelOrder(ctx context.Context, instID, orderID, clientOrderID string) (json.RawMessage, error)
	SetLeverage(ctx context.Context, lever, mgnMode, instID, posSide string) (json.RawMessage, error)
	GetOrderHistory(ctx context.Context, q okx.OrderHistoryQuery) (json.RawMessage, error)
	GetOpenOrders(ctx context.Context, instType string) (json.RawMessage, error)
	GetBalance(ctx context.Context) (json.RawMessage, error)
	GetPositions(ctx context.Context, instType, instID string) (json.RawMessage, error)
}

// PriceSource supplies the current price for trigger derivation.
type PriceSource interface {
	GetTicker(ctx context.Context, instID string) (*marketdata.Ticker, error)
}

// Config holds the trigger band policy. Percentages apply to the last price:
// a buy gets stop-loss at last*(1-SL%) and take-profit at last*(1+TP%),
// mirrored for a sell.
type Config struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// DefaultConfig returns the standard ±1.5% trigger bands.
func DefaultConfig() Config {
	return Config{StopLossPct: 1.5, TakeProfitPct: 1.5}
}

// Adapter validates order intents, fills in derived defaults, and submits
// them to the exchange.
type Adapter struct {
	client ExchangeClient
	prices PriceSource
	cfg    Config
	log    *logger.Logger
}

// NewAdapter constructs a trading adapter.
func NewAdapter(client ExchangeClient, prices PriceSource, cfg Config) *Adapter {
	if cfg.StopLossPct <= 0 {
		cfg.StopLossPct = DefaultConfig().StopLossPct
	}
	if cfg.TakeProfitPct <= 0 {
		cfg.TakeProfitPct = DefaultConfig().TakeProfitPct
	}
	return &Adapter{
		client: client,
		prices: prices,
		cfg:    cfg,
		log:    logger.Get().With("component", "trading"),
	}
}

// OrderIntent is a structured trading instruction. String-typed numeric
// fields follow the exchange wire format.
type OrderIntent struct {
	InstID        string `json:"instId"`
	TdMode        string `json:"tdMode"`
	Side          string `json:"side"`
	PosSide       string `json:"posSide,omitempty"`
	OrdType       string `json:"ordType"`
	Size          string `json:"sz"`
	Price         string `json:"px,omitempty"`
	Leverage      string `json:"lever,omitempty"`
	SLTriggerPx   string `json:"slTriggerPx,omitempty"`
	TPTriggerPx   string `json:"tpTriggerPx,omitempty"`
	ClientOrderID string `json:"clOrdId,omitempty"`
	ReduceOnly    bool   `json:"reduceOnly,omitempty"`
}

func (o *OrderIntent) validate() error {
	var missing []string
	if o.InstID == "" {
		missing = append(missing, "instId")
	}
	if o.TdMode == "" {
		missing = append(missing, "tdMode")
	}
	if o.Side == "" {
		missing = append(missing, "side")
	}
	if o.OrdType == "" {
		missing = append(missing, "ordType")
	}
	if o.Size == "" {
		missing = append(missing, "sz")
	}
	if len(missing) > 0 {
		return errors.Wrapf(errors.ErrValidation, "missing required order fields: %s", strings.Join(missing, ", "))
	}
	if o.Side != "buy" && o.Side != "sell" {
		return errors.Wrapf(errors.ErrValidation, "side must be buy or sell, got %q", o.Side)
	}
	if strings.HasSuffix(strings.ToUpper(o.InstID), "-SWAP") && o.PosSide == "" {
		return errors.Wrapf(errors.ErrValidation, "posSide is required for swap instrument %s", o.InstID)
	}
	return nil
}

// PlaceOrder validates an intent, auto-derives stop-loss/take-profit when
// both triggers are absent, sets leverage if requested, and submits the
// order with its conditional child orders attached.
func (a *Adapter) PlaceOrder(ctx context.Context, intent OrderIntent) (json.RawMessage, error) {
	if err := intent.validate(); err != nil {
		return nil, err
	}

	if intent.SLTriggerPx == "" && intent.TPTriggerPx == "" {
		a.applyDefaultTriggers(ctx, &intent)
	}

	if intent.Leverage != "" {
		if _, err := a.client.SetLeverage(ctx, intent.Leverage, intent.TdMode, intent.InstID, intent.PosSide); err != nil {
			return nil, errors.Wrap(err, "set leverage")
		}
	}

	payload := map[string]interface{}{
		"instId":  intent.InstID,
		"tdMode":  intent.TdMode,
		"side":    intent.Side,
		"ordType": intent.OrdType,
		"sz":      intent.Size,
	}
	if intent.PosSide != "" {
		payload["posSide"] = intent.PosSide
	}
	if intent.Price != "" {
		payload["px"] = intent.Price
	}
	if intent.ClientOrderID != "" {
		payload["clOrdId"] = intent.ClientOrderID
	}
	if intent.ReduceOnly {
		payload["reduceOnly"] = true
	}
	if intent.SLTriggerPx != "" {
		payload["slTriggerPx"] = intent.SLTriggerPx
	}
	if intent.TPTriggerPx != "" {
		payload["tpTriggerPx"] = intent.TPTriggerPx
	}
	if attach := buildAttachAlgoOrders(intent); len(attach) > 0 {
		payload["attachAlgoOrds"] = attach
	}

	return a.client.PlaceOrder(ctx, payload)
}

// applyDefaultTriggers fills both trigger prices from the current last
// price, quantized to its observed decimal precision. A price that cannot be
// fetched or parsed leaves the intent untouched.
func (a *Adapter) applyDefaultTriggers(ctx context.Context, intent *OrderIntent) {
	ticker, err := a.prices.GetTicker(ctx, intent.InstID)
	if err != nil {
		a.log.Warnw("skipping trigger derivation, price unavailable", "instId", intent.InstID, "error", err)
		return
	}

	last, err := decimal.NewFromString(ticker.Last)
	if err != nil {
		a.log.Warnw("skipping trigger derivation, unparseable last price", "instId", intent.InstID, "last", ticker.Last)
		return
	}

	places := -last.Exponent()
	if places < 0 {
		places = 0
	}

	hundred := decimal.NewFromInt(100)
	slBand := decimal.NewFromFloat(a.cfg.StopLossPct).Div(hundred)
	tpBand := decimal.NewFromFloat(a.cfg.TakeProfitPct).Div(hundred)

	one := decimal.NewFromInt(1)
	slFactor := one.Sub(slBand)
	tpFactor := one.Add(tpBand)
	if intent.Side == "sell" {
		slFactor = one.Add(slBand)
		tpFactor = one.Sub(tpBand)
	}

	intent.SLTriggerPx = last.Mul(slFactor).Round(places).StringFixed(places)
	intent.TPTriggerPx = last.Mul(tpFactor).Round(places).StringFixed(places)
}

// buildAttachAlgoOrders turns trigger prices into conditional child orders
// submitted together with the parent.
func buildAttachAlgoOrders(intent OrderIntent) []map[string]string {
	var attach []map[string]string
	algo := func(side, trigger string) map[string]string {
		return map[string]string{
			"algoSide":    side,
			"algoOrdType": "conditional",
			"triggerPx":   trigger,
			"px":          trigger,
			"ordType":     "limit",
			"sz":          intent.Size,
		}
	}
	if intent.SLTriggerPx != "" {
		attach = append(attach, algo("sl", intent.SLTriggerPx))
	}
	if intent.TPTriggerPx != "" {
		attach = append(attach, algo("tp", intent.TPTriggerPx))
	}
	return attach
}

// CancelIntent identifies an order to cancel.
type CancelIntent struct {
	InstID        string `json:"instId"`
	OrderID       string `json:"ordId,omitempty"`
	ClientOrderID string `json:"clOrdId,omitempty"`
}

// CancelOrder cancels an order by exchange or client order ID.
func (a *Adapter) CancelOrder(ctx context.Context, intent CancelIntent) (json.RawMessage, error) {
	if intent.InstID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "instId is required")
	}
	if intent.OrderID == "" && intent.ClientOrderID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "either ordId or clOrdId must be provided")
	}
	return a.client.CancelOrder(ctx, intent.InstID, intent.OrderID, intent.ClientOrderID)
}

// HistoryFilter narrows order history lookups. All fields optional.
type HistoryFilter struct {
	InstType string `json:"instType,omitempty"`
	InstID   string `json:"instId,omitempty"`
	State    string `json:"state,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// GetOrderHistory fetches historical orders, most recent first.
func (a *Adapter) GetOrderHistory(ctx context.Context, filter HistoryFilter) (json.RawMessage, error) {
	if filter.Limit < 0 || filter.Limit > 100 {
		return nil, errors.Wrapf(errors.ErrValidation, "limit must be between 1 and 100, got %d", filter.Limit)
	}
	instType := filter.InstType
	if instType == "" && filter.InstID != "" {
		if inferred, err := marketdata.InferInstrumentType(filter.InstID); err == nil {
			instType = inferred
		}
	}
	return a.client.GetOrderHistory(ctx, okx.OrderHistoryQuery{
		InstType: instType,
		InstID:   filter.InstID,
		State:    filter.State,
		Limit:    filter.Limit,
	})
}

// GetOpenOrders fetches unfilled orders.
func (a *Adapter) GetOpenOrders(ctx context.Context, instType string) (json.RawMessage, error) {
	return a.client.GetOpenOrders(ctx, instType)
}

// GetBalance fetches account balances.
func (a *Adapter) GetBalance(ctx context.Context) (json.RawMessage, error) {
	return a.client.GetBalance(ctx)
}

// GetPositions fetches current positions.
func (a *Adapter) GetPositions(ctx context.Context, instType, instID string) (json.RawMessage, error) {
	return a.client.GetPositions(ctx, instType, instID)
}

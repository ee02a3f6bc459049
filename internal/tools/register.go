package tools

import (
	"context"
	"encoding/json"

	"github.com/Tengfei-Z/AiTrader/internal/marketdata"
	"github.com/Tengfei-Z/AiTrader/internal/trading"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

// Deps carries the adapters the tools execute against.
type Deps struct {
	Market  *marketdata.Adapter
	Trading *trading.Adapter
	Log     *logger.Logger
}

// RegisterAll registers the full tool surface: market data, account state,
// and order management.
func RegisterAll(registry *Registry, deps Deps) {
	log := deps.Log
	if log == nil {
		log = logger.Get()
	}
	log = log.With("component", "tool_registration")

	registerMarketTools(registry, deps)
	registerAccountTools(registry, deps)
	registerTradeTools(registry, deps)

	log.Debugw("registered tools", "count", len(registry.List()), "names", registry.List())
}

func registerMarketTools(registry *Registry, deps Deps) {
	registry.Register(New(
		"get_ticker",
		"Get the latest market snapshot for one instrument, enriched with EMA20, MACD and RSI7 computed over recent 3m candles.",
		objectSchema(map[string]interface{}{
			"instId": stringProp("Instrument ID, e.g. BTC-USDT or BTC-USDT-SWAP"),
		}, "instId"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstID string `json:"instId"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Market.GetTicker(ctx, in.InstID)
		},
	))

	registry.Register(New(
		"get_tickers",
		"Get indicator-enriched snapshots for several instruments at once. Failed instruments are reported next to the successes.",
		objectSchema(map[string]interface{}{
			"instIds": stringArrayProp("Instrument IDs to query"),
		}, "instIds"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstIDs []string `json:"instIds"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Market.GetTickers(ctx, in.InstIDs)
		},
	))

	registry.Register(New(
		"get_candles",
		"Fetch raw OHLCV candles for an instrument. Rows are newest first: [ts, open, high, low, close, volume, ...].",
		objectSchema(map[string]interface{}{
			"instId": stringProp("Instrument ID"),
			"bar":    stringProp("Candle interval, e.g. 1m, 3m, 1H, 1D (default 1m)"),
			"limit":  integerProp("Number of candles to return (default 100)"),
		}, "instId"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstID string `json:"instId"`
				Bar    string `json:"bar"`
				Limit  int    `json:"limit"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Market.GetCandles(ctx, in.InstID, in.Bar, in.Limit)
		},
	))

	registry.Register(New(
		"get_order_book",
		"Fetch the current order book depth for an instrument.",
		objectSchema(map[string]interface{}{
			"instId": stringProp("Instrument ID"),
			"depth":  integerProp("Depth levels per side (default 5)"),
		}, "instId"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstID string `json:"instId"`
				Depth  int    `json:"depth"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Market.GetOrderBook(ctx, in.InstID, in.Depth)
		},
	))

	registry.Register(New(
		"get_instruments",
		"Fetch instrument specifications such as tick size and lot size. instType is inferred from the ID when omitted.",
		objectSchema(map[string]interface{}{
			"instId":   stringProp("Instrument ID"),
			"instType": enumProp("Instrument type", "SPOT", "SWAP", "FUTURES", "OPTION", "MARGIN"),
		}, "instId"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstID   string `json:"instId"`
				InstType string `json:"instType"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Market.GetInstrumentSpecs(ctx, in.InstID, in.InstType)
		},
	))
}

func registerAccountTools(registry *Registry, deps Deps) {
	registry.Register(New(
		"get_balance",
		"Fetch account balances across currencies.",
		nil,
		func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return deps.Trading.GetBalance(ctx)
		},
	))

	registry.Register(New(
		"get_positions",
		"Fetch current open positions, optionally filtered by type or instrument.",
		objectSchema(map[string]interface{}{
			"instType": enumProp("Instrument type filter", "SPOT", "SWAP", "FUTURES", "OPTION", "MARGIN"),
			"instId":   stringProp("Instrument ID filter"),
		}),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstType string `json:"instType"`
				InstID   string `json:"instId"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Trading.GetPositions(ctx, in.InstType, in.InstID)
		},
	))

	registry.Register(New(
		"get_open_orders",
		"Fetch orders that are still unfilled or partially filled.",
		objectSchema(map[string]interface{}{
			"instType": enumProp("Instrument type filter", "SPOT", "SWAP", "FUTURES", "OPTION", "MARGIN"),
		}),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				InstType string `json:"instType"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return deps.Trading.GetOpenOrders(ctx, in.InstType)
		},
	))
}

func registerTradeTools(registry *Registry, deps Deps) {
	registry.Register(New(
		"place_order",
		"Submit a trading order. When both trigger prices are omitted, stop-loss and take-profit are derived from the current price and attached automatically.",
		objectSchema(map[string]interface{}{
			"instId":      stringProp("Instrument ID, e.g. BTC-USDT-SWAP"),
			"tdMode":      enumProp("Trade mode", "cash", "cross", "isolated"),
			"side":        enumProp("Order side", "buy", "sell"),
			"posSide":     enumProp("Position side, required for swaps", "long", "short"),
			"ordType":     enumProp("Order type", "market", "limit", "post_only", "fok", "ioc"),
			"sz":          stringProp("Order size"),
			"px":          stringProp("Limit price, limit orders only"),
			"lever":       stringProp("Leverage to set before submitting, e.g. \"10\""),
			"slTriggerPx": stringProp("Stop-loss trigger price"),
			"tpTriggerPx": stringProp("Take-profit trigger price"),
			"clOrdId":     stringProp("Client-assigned order ID"),
			"reduceOnly":  booleanProp("Reduce-only flag"),
		}, "instId", "tdMode", "side", "ordType", "sz"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var intent trading.OrderIntent
			if err := decodeArgs(args, &intent); err != nil {
				return nil, err
			}
			return deps.Trading.PlaceOrder(ctx, intent)
		},
	))

	registry.Register(New(
		"cancel_order",
		"Cancel an existing order. Provide ordId or clOrdId to locate it.",
		objectSchema(map[string]interface{}{
			"instId":  stringProp("Instrument ID"),
			"ordId":   stringProp("Exchange order ID"),
			"clOrdId": stringProp("Client-assigned order ID"),
		}, "instId"),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var intent trading.CancelIntent
			if err := decodeArgs(args, &intent); err != nil {
				return nil, err
			}
			return deps.Trading.CancelOrder(ctx, intent)
		},
	))

	registry.Register(New(
		"get_order_history",
		"Query historical orders with optional filters. Without filters the most recent orders are returned.",
		objectSchema(map[string]interface{}{
			"instType": enumProp("Instrument type filter", "SPOT", "SWAP", "FUTURES", "OPTION", "MARGIN"),
			"instId":   stringProp("Instrument ID filter"),
			"state":    enumProp("Order state filter", "filled", "canceled"),
			"limit":    integerProp("Number of records, 1-100"),
		}),
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var filter trading.HistoryFilter
			if err := decodeArgs(args, &filter); err != nil {
				return nil, err
			}
			return deps.Trading.GetOrderHistory(ctx, filter)
		},
	))
}

// decodeArgs unmarshals tool arguments into a typed struct. Shape mismatches
// are validation errors: the LLM sent arguments the schema does not permit.
func decodeArgs(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errors.Wrapf(errors.ErrValidation, "decode tool arguments: %v", err)
	}
	return nil
}

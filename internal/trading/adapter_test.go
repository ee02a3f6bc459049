package trading

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/exchanges/okx"
	"github.com/Tengfei-Z/AiTrader/internal/marketdata"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

type fakeExchange struct {
	placedPayload  map[string]interface{}
	leverageCalls  []string
	historyQuery   okx.OrderHistoryQuery
	cancelInstID   string
	cancelOrderID  string
	cancelClientID string

	placeErr    error
	leverageErr error
}

func (f *fakeExchange) PlaceOrder(_ context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placedPayload = payload
	return json.RawMessage(`[{"ordId":"98765","sCode":"0"}]`), nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, instID, orderID, clientOrderID string) (json.RawMessage, error) {
	f.cancelInstID = instID
	f.cancelOrderID = orderID
	f.cancelClientID = clientOrderID
	return json.RawMessage(`[{"ordId":"98765"}]`), nil
}

func (f *fakeExchange) SetLeverage(_ context.Context, lever, mgnMode, instID, posSide string) (json.RawMessage, error) {
	if f.leverageErr != nil {
		return nil, f.leverageErr
	}
	f.leverageCalls = append(f.leverageCalls, lever+"/"+mgnMode+"/"+instID+"/"+posSide)
	return json.RawMessage(`[{"lever":"` + lever + `"}]`), nil
}

func (f *fakeExchange) GetOrderHistory(_ context.Context, q okx.OrderHistoryQuery) (json.RawMessage, error) {
	f.historyQuery = q
	return json.RawMessage(`[]`), nil
}

func (f *fakeExchange) GetOpenOrders(_ context.Context, instType string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeExchange) GetBalance(_ context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeExchange) GetPositions(_ context.Context, instType, instID string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

type fakePrices struct {
	last string
	err  error
}

func (f *fakePrices) GetTicker(_ context.Context, instID string) (*marketdata.Ticker, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &marketdata.Ticker{InstID: instID, Last: f.last}, nil
}

func newAdapter(ex *fakeExchange, last string) *Adapter {
	return NewAdapter(ex, &fakePrices{last: last}, DefaultConfig())
}

func TestPlaceOrderDerivedTriggers(t *testing.T) {
	ex := &fakeExchange{}
	adapter := newAdapter(ex, "100.00")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:  "BTC-USDT",
		TdMode:  "cash",
		Side:    "buy",
		OrdType: "market",
		Size:    "0.5",
	})
	require.NoError(t, err)

	assert.Equal(t, "98.50", ex.placedPayload["slTriggerPx"])
	assert.Equal(t, "101.50", ex.placedPayload["tpTriggerPx"])

	attach, ok := ex.placedPayload["attachAlgoOrds"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, attach, 2)
	assert.Equal(t, "sl", attach[0]["algoSide"])
	assert.Equal(t, "98.50", attach[0]["triggerPx"])
	assert.Equal(t, "98.50", attach[0]["px"])
	assert.Equal(t, "conditional", attach[0]["algoOrdType"])
	assert.Equal(t, "0.5", attach[0]["sz"])
	assert.Equal(t, "tp", attach[1]["algoSide"])
	assert.Equal(t, "101.50", attach[1]["triggerPx"])
}

func TestPlaceOrderDerivedTriggersSell(t *testing.T) {
	ex := &fakeExchange{}
	adapter := newAdapter(ex, "200.0")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:  "ETH-USDT",
		TdMode:  "cash",
		Side:    "sell",
		OrdType: "market",
		Size:    "1",
	})
	require.NoError(t, err)

	// Bands mirror for a short: stop above, target below
	assert.Equal(t, "203.0", ex.placedPayload["slTriggerPx"])
	assert.Equal(t, "197.0", ex.placedPayload["tpTriggerPx"])
}

func TestPlaceOrderExplicitTriggersKept(t *testing.T) {
	ex := &fakeExchange{}
	adapter := newAdapter(ex, "100.00")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:      "BTC-USDT",
		TdMode:      "cash",
		Side:        "buy",
		OrdType:     "limit",
		Size:        "0.5",
		Price:       "99.00",
		SLTriggerPx: "95.00",
	})
	require.NoError(t, err)

	assert.Equal(t, "95.00", ex.placedPayload["slTriggerPx"])
	_, hasTP := ex.placedPayload["tpTriggerPx"]
	assert.False(t, hasTP)

	attach := ex.placedPayload["attachAlgoOrds"].([]map[string]string)
	require.Len(t, attach, 1)
	assert.Equal(t, "sl", attach[0]["algoSide"])
}

func TestPlaceOrderPriceUnavailable(t *testing.T) {
	ex := &fakeExchange{}
	adapter := NewAdapter(ex, &fakePrices{err: errors.Wrap(errors.ErrExternalService, "exchange down")}, DefaultConfig())

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:  "BTC-USDT",
		TdMode:  "cash",
		Side:    "buy",
		OrdType: "market",
		Size:    "0.5",
	})
	require.NoError(t, err)

	// Order still goes out, just without derived triggers
	_, hasSL := ex.placedPayload["slTriggerPx"]
	assert.False(t, hasSL)
	_, hasAttach := ex.placedPayload["attachAlgoOrds"]
	assert.False(t, hasAttach)
}

func TestPlaceOrderMissingFields(t *testing.T) {
	adapter := newAdapter(&fakeExchange{}, "100")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{InstID: "BTC-USDT"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "tdMode")
	assert.Contains(t, err.Error(), "sz")
}

func TestPlaceOrderSwapRequiresPosSide(t *testing.T) {
	adapter := newAdapter(&fakeExchange{}, "100")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:  "BTC-USDT-SWAP",
		TdMode:  "cross",
		Side:    "buy",
		OrdType: "market",
		Size:    "1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "posSide")
}

func TestPlaceOrderSetsLeverageFirst(t *testing.T) {
	ex := &fakeExchange{}
	adapter := newAdapter(ex, "50000.5")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:   "BTC-USDT-SWAP",
		TdMode:   "cross",
		Side:     "buy",
		PosSide:  "long",
		OrdType:  "market",
		Size:     "1",
		Leverage: "10",
	})
	require.NoError(t, err)

	require.Len(t, ex.leverageCalls, 1)
	assert.Equal(t, "10/cross/BTC-USDT-SWAP/long", ex.leverageCalls[0])
	assert.NotNil(t, ex.placedPayload)
}

func TestPlaceOrderLeverageFailureAborts(t *testing.T) {
	ex := &fakeExchange{leverageErr: errors.Wrap(errors.ErrExternalService, "lever rejected")}
	adapter := newAdapter(ex, "50000")

	_, err := adapter.PlaceOrder(context.Background(), OrderIntent{
		InstID:   "BTC-USDT-SWAP",
		TdMode:   "cross",
		Side:     "buy",
		PosSide:  "long",
		OrdType:  "market",
		Size:     "1",
		Leverage: "10",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalService))
	assert.Nil(t, ex.placedPayload)
}

func TestCancelOrderValidation(t *testing.T) {
	adapter := newAdapter(&fakeExchange{}, "100")

	_, err := adapter.CancelOrder(context.Background(), CancelIntent{InstID: "BTC-USDT"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = adapter.CancelOrder(context.Background(), CancelIntent{OrderID: "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCancelOrderByClientID(t *testing.T) {
	ex := &fakeExchange{}
	adapter := newAdapter(ex, "100")

	_, err := adapter.CancelOrder(context.Background(), CancelIntent{
		InstID:        "BTC-USDT",
		ClientOrderID: "my-order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", ex.cancelInstID)
	assert.Equal(t, "my-order-1", ex.cancelClientID)
}

func TestOrderHistoryLimitBounds(t *testing.T) {
	adapter := newAdapter(&fakeExchange{}, "100")

	_, err := adapter.GetOrderHistory(context.Background(), HistoryFilter{Limit: 101})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestOrderHistoryInfersInstType(t *testing.T) {
	ex := &fakeExchange{}
	adapter := newAdapter(ex, "100")

	_, err := adapter.GetOrderHistory(context.Background(), HistoryFilter{InstID: "BTC-USDT-SWAP", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "SWAP", ex.historyQuery.InstType)
	assert.Equal(t, "BTC-USDT-SWAP", ex.historyQuery.InstID)
	assert.Equal(t, 10, ex.historyQuery.Limit)
}

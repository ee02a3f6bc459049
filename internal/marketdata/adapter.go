// Package marketdata normalizes exchange market queries and enriches the
// ticker view with technical indicators.
package marketdata

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/Tengfei-Z/AiTrader/internal/indicators"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

const (
	// DefaultTickerBar is the candle interval backing the ticker view.
	DefaultTickerBar = "3m"

	// IndicatorCandleLimit is how many recent candles feed the indicator
	// pipeline. 60 gives every series room past its warm-up window.
	IndicatorCandleLimit = 60
)

// ExchangeClient is the slice of the exchange API this adapter consumes.
type ExchangeClient interface {
	GetCandles(ctx context.Context, instID, bar string, limit int) ([][]string, error)
	GetOrderBook(ctx context.Context, instID string, depth int) (json.RawMessage, error)
	GetInstruments(ctx context.Context, instType, instID string) (json.RawMessage, error)
}

// Adapter exposes market data operations over an exchange client.
type Adapter struct {
	client ExchangeClient
	log    *logger.Logger
}

// NewAdapter constructs a market data adapter.
func NewAdapter(client ExchangeClient) *Adapter {
	return &Adapter{
		client: client,
		log:    logger.Get().With("component", "marketdata"),
	}
}

// TickerSeries carries the full indicator series aligned with the candle
// window, warm-up entries null.
type TickerSeries struct {
	EMA20      indicators.Series `json:"ema20"`
	MACDDIF    indicators.Series `json:"macd_dif"`
	MACDSignal indicators.Series `json:"macd_signal"`
	MACD       indicators.Series `json:"macd"`
	RSI7       indicators.Series `json:"rsi7"`
}

// Ticker is the indicator-enriched market snapshot for one instrument. The
// OHLCV fields come from the most recent candle; the indicator fields carry
// the latest defined value of each series.
type Ticker struct {
	InstID    string `json:"instId"`
	Timestamp string `json:"ts"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Last      string `json:"last"`
	Volume    string `json:"vol"`

	EMA20      string `json:"ema20,omitempty"`
	MACD       string `json:"macd,omitempty"`
	MACDSignal string `json:"macd_signal,omitempty"`
	MACDDIF    string `json:"macd_dif,omitempty"`
	RSI7       string `json:"rsi7,omitempty"`

	Series TickerSeries `json:"series"`
}

// GetTicker fetches the recent candle window for an instrument, computes
// EMA/MACD/RSI over it, and folds everything into one snapshot.
func (a *Adapter) GetTicker(ctx context.Context, instID string) (*Ticker, error) {
	if instID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "instId is required")
	}

	rows, err := a.client.GetCandles(ctx, instID, DefaultTickerBar, IndicatorCandleLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(errors.ErrExternalService, "no candle data for %s", instID)
	}

	newest := rows[0]
	if len(newest) < 6 {
		return nil, errors.Wrapf(errors.ErrExternalService, "malformed candle row for %s", instID)
	}

	closes := indicators.ClosesFromCandles(rows)
	if len(closes) == 0 {
		return nil, errors.Wrapf(errors.ErrExternalService, "no usable closes for %s", instID)
	}

	ema20 := indicators.EMA(closes, 20)
	macd := indicators.MACD(closes)
	rsi7 := indicators.RSI(closes, 7)

	ticker := &Ticker{
		InstID:    instID,
		Timestamp: newest[0],
		Open:      newest[1],
		High:      newest[2],
		Low:       newest[3],
		Last:      newest[4],
		Volume:    newest[5],
		Series: TickerSeries{
			EMA20:      ema20,
			MACDDIF:    macd.DIF,
			MACDSignal: macd.DEA,
			MACD:       macd.Histogram,
			RSI7:       rsi7,
		},
	}

	if v := ema20.Last(); v != nil {
		ticker.EMA20 = indicators.FormatValue(*v)
	}
	if v := macd.Histogram.Last(); v != nil {
		ticker.MACD = indicators.FormatValue(*v)
	}
	if v := macd.DEA.Last(); v != nil {
		ticker.MACDSignal = indicators.FormatValue(*v)
	}
	if v := macd.DIF.Last(); v != nil {
		ticker.MACDDIF = indicators.FormatValue(*v)
	}
	if v := rsi7.Last(); v != nil {
		ticker.RSI7 = indicators.FormatValue(*v)
	}

	return ticker, nil
}

// BatchTickers is the result of a concurrent multi-instrument ticker query.
// Failed instruments are reported alongside successes instead of failing the
// whole batch.
type BatchTickers struct {
	Tickers map[string]*Ticker `json:"tickers"`
	Errors  map[string]string  `json:"errors,omitempty"`
}

// GetTickers fans out ticker queries concurrently and joins the results.
// Only a batch with zero successes is an error.
func (a *Adapter) GetTickers(ctx context.Context, instIDs []string) (*BatchTickers, error) {
	if len(instIDs) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "instIds must not be empty")
	}

	result := &BatchTickers{
		Tickers: make(map[string]*Ticker, len(instIDs)),
		Errors:  make(map[string]string),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range instIDs {
		wg.Add(1)
		go func(instID string) {
			defer wg.Done()
			ticker, err := a.GetTicker(ctx, instID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.log.Warnw("batch ticker query failed", "instId", instID, "error", err)
				result.Errors[instID] = err.Error()
				return
			}
			result.Tickers[instID] = ticker
		}(id)
	}
	wg.Wait()

	if len(result.Tickers) == 0 {
		return nil, errors.Wrapf(errors.ErrExternalService, "all %d ticker queries failed", len(instIDs))
	}
	return result, nil
}

// GetCandles is a pass-through candle query.
func (a *Adapter) GetCandles(ctx context.Context, instID, bar string, limit int) ([][]string, error) {
	if instID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "instId is required")
	}
	return a.client.GetCandles(ctx, instID, bar, limit)
}

// GetOrderBook is a pass-through order book query.
func (a *Adapter) GetOrderBook(ctx context.Context, instID string, depth int) (json.RawMessage, error) {
	if instID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "instId is required")
	}
	return a.client.GetOrderBook(ctx, instID, depth)
}

// GetInstrumentSpecs fetches instrument specifications. When instType is
// empty it is inferred from the instrument ID.
func (a *Adapter) GetInstrumentSpecs(ctx context.Context, instID, instType string) (json.RawMessage, error) {
	if instID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "instId is required")
	}
	if instType == "" {
		inferred, err := InferInstrumentType(instID)
		if err != nil {
			return nil, err
		}
		instType = inferred
	}
	return a.client.GetInstruments(ctx, instType, instID)
}

// InferInstrumentType derives the OKX instrument type from an instrument ID.
// A known trailing segment (SWAP, FUTURES, OPTION, MARGIN) wins; a plain
// BASE-QUOTE pair is SPOT; anything else cannot be inferred.
func InferInstrumentType(instID string) (string, error) {
	parts := strings.Split(instID, "-")
	if len(parts) >= 2 {
		switch strings.ToUpper(parts[len(parts)-1]) {
		case "SWAP":
			return "SWAP", nil
		case "FUTURES":
			return "FUTURES", nil
		case "OPTION":
			return "OPTION", nil
		case "MARGIN":
			return "MARGIN", nil
		}
	}
	if len(parts) == 2 {
		return "SPOT", nil
	}
	return "", errors.Wrapf(errors.ErrValidation, "cannot infer instrument type from %q", instID)
}

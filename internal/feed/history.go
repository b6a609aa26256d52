package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

const pathCandles = "/api/v5/market/candles"

var historyClient = &http.Client{Timeout: 10 * time.Second}

// FetchHistory retrieves recent candles for symbol from the OKX market
// REST API so a freshly started engine has indicator context before the
// first live candle completes. Candles are returned oldest first, ready
// for Builder.Seed. The endpoint is public; no credentials needed.
func FetchHistory(ctx context.Context, restURL, symbol string, interval time.Duration, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > maxCandles {
		limit = maxCandles
	}

	url := fmt.Sprintf("%s%s?instId=%s&bar=%s&limit=%d", restURL, pathCandles, symbol, okxBar(interval), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := historyClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "fetching candle history")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("candle history: status %d", resp.StatusCode)
	}

	var envelope struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, apperrors.Wrap(err, "decoding candle history")
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("candle history: %s (code %s)", envelope.Msg, envelope.Code)
	}

	// The wire order is newest first.
	out := make([]models.Candle, 0, len(envelope.Data))
	for i := len(envelope.Data) - 1; i >= 0; i-- {
		row := envelope.Data[i]
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(row[1], 64)
		high, err2 := strconv.ParseFloat(row[2], 64)
		low, err3 := strconv.ParseFloat(row[3], 64)
		cl, err4 := strconv.ParseFloat(row[4], 64)
		vol, err5 := strconv.ParseFloat(row[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		out = append(out, models.Candle{
			Timestamp: time.UnixMilli(ms),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cl,
			Volume:    vol,
		})
	}
	return out, nil
}

// okxBar maps a candle interval to the OKX bar parameter. Unsupported
// intervals fall back to one minute.
func okxBar(interval time.Duration) string {
	switch interval {
	case time.Minute:
		return "1m"
	case 3 * time.Minute:
		return "3m"
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case 30 * time.Minute:
		return "30m"
	case time.Hour:
		return "1H"
	case 4 * time.Hour:
		return "4H"
	case 24 * time.Hour:
		return "1D"
	default:
		return "1m"
	}
}

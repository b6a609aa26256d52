package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"okx-perp-trader/internal/config"
	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

// OKX v5 REST endpoints used by the gateway.
const (
	pathPlaceOrder  = "/api/v5/trade/order"
	pathCancelOrder = "/api/v5/trade/cancel-order"
	pathOrderDetail = "/api/v5/trade/order"
	pathPositions   = "/api/v5/account/positions"
	pathBalance     = "/api/v5/account/balance"
	pathSetLeverage = "/api/v5/account/set-leverage"
)

// OKXGateway submits orders to the OKX v5 REST API. Requests are signed
// per the OKX scheme (HMAC-SHA256 over timestamp+method+path+body,
// base64) and throttled by a client-side rate limiter so retries cannot
// hammer the endpoint.
type OKXGateway struct {
	restURL    string
	apiKey     string
	secretKey  string
	passphrase string
	simulated  bool

	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
	logger  zerolog.Logger
}

// NewOKX creates a gateway against the configured OKX environment.
func NewOKX(exch config.ExchangeConfig, gw config.GatewayConfig, logger zerolog.Logger) *OKXGateway {
	return &OKXGateway{
		restURL:    exch.RESTURL,
		apiKey:     exch.APIKey,
		secretKey:  exch.SecretKey,
		passphrase: exch.Passphrase,
		simulated:  exch.Simulated,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(gw.RateLimit), int(gw.RateLimit)),
		breaker:    NewBreaker(gw.BreakerMaxFailures, gw.BreakerProbes, gw.BreakerCooloff),
		logger:     logger.With().Str("component", "okx_gateway").Logger(),
	}
}

type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type okxOrderAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type okxOrderDetail struct {
	OrdID string `json:"ordId"`
	State string `json:"state"` // live, partially_filled, filled, canceled
	AvgPx string `json:"avgPx"`
}

type okxPosition struct {
	InstID  string `json:"instId"`
	PosSide string `json:"posSide"`
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	Lever   string `json:"lever"`
	CTime   string `json:"cTime"`
}

type okxBalanceDetail struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		AvailBal string `json:"availBal"`
		Ccy      string `json:"ccy"`
	} `json:"details"`
}

// Submit places the order with order.ClientID as clOrdId. OKX
// deduplicates on clOrdId, so a retry of an ambiguous failure cannot
// produce a second fill; a duplicate submission returns the original
// order's ack.
func (g *OKXGateway) Submit(ctx context.Context, order *models.Order) (*Result, error) {
	body := map[string]string{
		"instId":  order.Symbol,
		"tdMode":  "cross",
		"clOrdId": order.ClientID,
		"side":    okxSide(order.Side),
		"ordType": okxOrdType(order.Type),
		"sz":      strconv.FormatFloat(order.Size, 'f', -1, 64),
	}
	if order.Type == models.OrderTypeLimit {
		body["px"] = strconv.FormatFloat(order.Price, 'f', -1, 64)
	}

	order.Transition(models.OrderSubmitted)
	data, err := g.request(ctx, http.MethodPost, pathPlaceOrder, "", body)
	if err != nil {
		return nil, err
	}

	var acks []okxOrderAck
	if err := json.Unmarshal(data, &acks); err != nil || len(acks) == 0 {
		return nil, apperrors.NewGatewayError("BAD_RESPONSE", "unparseable order ack", true, err)
	}
	ack := acks[0]
	if ack.SCode != "0" {
		// Authoritative business rejection. Code 51016 is "clOrdId
		// duplicated": the previous attempt actually landed.
		if ack.SCode == "51016" {
			return g.confirm(ctx, order, ack.OrdID)
		}
		order.Transition(models.OrderRejected)
		return &Result{Status: models.OrderRejected, Message: ack.SMsg}, nil
	}

	return g.confirm(ctx, order, ack.OrdID)
}

// confirm polls the order detail once to resolve the fill. Market orders
// on OKX swaps fill effectively instantly; an order still live after the
// poll is reported as Submitted and left to the caller.
func (g *OKXGateway) confirm(ctx context.Context, order *models.Order, ordID string) (*Result, error) {
	query := fmt.Sprintf("?instId=%s&clOrdId=%s", order.Symbol, order.ClientID)
	data, err := g.request(ctx, http.MethodGet, pathOrderDetail, query, nil)
	if err != nil {
		return nil, err
	}

	var details []okxOrderDetail
	if err := json.Unmarshal(data, &details); err != nil || len(details) == 0 {
		return nil, apperrors.NewGatewayError("BAD_RESPONSE", "unparseable order detail", true, err)
	}
	d := details[0]

	switch d.State {
	case "filled":
		px, _ := strconv.ParseFloat(d.AvgPx, 64)
		order.Transition(models.OrderFilled)
		return &Result{OrderID: d.OrdID, Status: models.OrderFilled, Price: px}, nil
	case "canceled":
		order.Transition(models.OrderCancelled)
		return &Result{OrderID: d.OrdID, Status: models.OrderCancelled}, nil
	default:
		return &Result{OrderID: d.OrdID, Status: models.OrderSubmitted}, nil
	}
}

// Cancel cancels a resting order by clOrdId.
func (g *OKXGateway) Cancel(ctx context.Context, symbol, clientID string) error {
	body := map[string]string{"instId": symbol, "clOrdId": clientID}
	_, err := g.request(ctx, http.MethodPost, pathCancelOrder, "", body)
	return err
}

// Positions fetches open swap positions.
func (g *OKXGateway) Positions(ctx context.Context) ([]models.Position, error) {
	data, err := g.request(ctx, http.MethodGet, pathPositions, "?instType=SWAP", nil)
	if err != nil {
		return nil, err
	}

	var raw []okxPosition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewGatewayError("BAD_RESPONSE", "unparseable positions", true, err)
	}

	out := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		size, _ := strconv.ParseFloat(p.Pos, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPx, 64)
		lever, _ := strconv.Atoi(p.Lever)
		side := models.Long
		if p.PosSide == "short" || size < 0 {
			side = models.Short
			if size < 0 {
				size = -size
			}
		}
		pos := models.Position{
			Symbol:     p.InstID,
			Side:       side,
			Size:       size,
			EntryPrice: entry,
			Leverage:   lever,
		}
		if ms, err := strconv.ParseInt(p.CTime, 10, 64); err == nil {
			pos.OpenedAt = time.UnixMilli(ms)
		}
		out = append(out, pos)
	}
	return out, nil
}

// Balance fetches account equity in USDT terms.
func (g *OKXGateway) Balance(ctx context.Context) (models.Balance, error) {
	data, err := g.request(ctx, http.MethodGet, pathBalance, "", nil)
	if err != nil {
		return models.Balance{}, err
	}

	var raw []okxBalanceDetail
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return models.Balance{}, apperrors.NewGatewayError("BAD_RESPONSE", "unparseable balance", true, err)
	}

	equity, _ := strconv.ParseFloat(raw[0].TotalEq, 64)
	bal := models.Balance{Equity: equity}
	for _, d := range raw[0].Details {
		if d.Ccy == "USDT" {
			bal.Available, _ = strconv.ParseFloat(d.AvailBal, 64)
		}
	}
	return bal, nil
}

// SetLeverage configures leverage for a symbol before trading it.
func (g *OKXGateway) SetLeverage(ctx context.Context, symbol string, leverage int, mode models.MarginMode) error {
	if leverage <= 0 {
		return apperrors.ErrInvalidLeverage
	}
	body := map[string]string{
		"instId":  symbol,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": string(mode),
	}
	_, err := g.request(ctx, http.MethodPost, pathSetLeverage, "", body)
	return err
}

// request performs one signed, rate-limited API call and returns the
// data payload. Transport failures and 5xx/429 responses come back as
// retryable gateway errors; OKX business error codes do not.
func (g *OKXGateway) request(ctx context.Context, method, path, query string, body map[string]string) (json.RawMessage, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req, err := http.NewRequestWithContext(ctx, method, g.restURL+path+query, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", g.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", g.sign(timestamp, method, path+query, payload))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", g.passphrase)
	if g.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, apperrors.NewGatewayError("TRANSPORT", "request failed", true,
			apperrors.Wrap(err, "http"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, apperrors.NewGatewayError("TRANSPORT", "reading response", true, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		g.breaker.RecordFailure()
		return nil, apperrors.NewGatewayError("429", "rate limited", true, apperrors.ErrRateLimited)
	case resp.StatusCode >= 500:
		g.breaker.RecordFailure()
		return nil, apperrors.NewGatewayError(strconv.Itoa(resp.StatusCode),
			"server error", true, apperrors.ErrConnectionFailed)
	case resp.StatusCode >= 400:
		// The transport answered; a 4xx is the exchange's verdict, not
		// an outage.
		g.breaker.RecordSuccess()
		return nil, apperrors.NewGatewayError(strconv.Itoa(resp.StatusCode),
			string(raw), false, nil)
	}
	g.breaker.RecordSuccess()

	var envelope okxResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.NewGatewayError("BAD_RESPONSE", "unparseable envelope", true, err)
	}
	if envelope.Code != "0" && envelope.Code != "" {
		return envelope.Data, apperrors.NewGatewayError(envelope.Code, envelope.Msg, false, nil)
	}
	return envelope.Data, nil
}

// sign produces the OKX v5 request signature.
func (g *OKXGateway) sign(timestamp, method, requestPath string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secretKey))
	mac.Write([]byte(timestamp + method + requestPath))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func okxSide(s models.OrderSide) string {
	if s == models.OrderSideBuy {
		return "buy"
	}
	return "sell"
}

func okxOrdType(t models.OrderType) string {
	if t == models.OrderTypeLimit {
		return "limit"
	}
	return "market"
}

package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	phttp "copytrader/internal/platform/http"
	"copytrader/internal/secure"
	"copytrader/models"
)

// Bybit V5 API endpoints.
const (
	endpointWalletBalance   = "/v5/account/wallet-balance"
	endpointAccountInfo     = "/v5/account/info"
	endpointPlaceOrder      = "/v5/order/create"
	endpointCancelOrder     = "/v5/order/cancel"
	endpointCancelAllOrders = "/v5/order/cancel-all"
	endpointPositionList    = "/v5/position/list"
	endpointSetLeverage     = "/v5/position/set-leverage"
	endpointTradingStop     = "/v5/position/trading-stop"
	endpointOpenOrders      = "/v5/order/realtime"
	endpointOrderHistory    = "/v5/order/history"
	endpointExecutionList   = "/v5/execution/list"
	endpointInstrumentsInfo = "/v5/market/instruments-info"
)

const (
	recvWindow      = "5000"
	defaultCategory = "linear"
	settleCoin      = "USDT"

	instrumentCacheTTL = 5 * time.Minute
)

// Client is an authenticated Bybit V5 REST client for one account.
type Client struct {
	nickname   string
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *phttp.Client
	instrument *cache.Cache
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new Client.
type ClientOptions struct {
	RequestTimeout time.Duration
	RequestsPerSec int
}

// NewClient creates a client for the given account.
func NewClient(account *models.Account, opts ClientOptions) *Client {
	return &Client{
		nickname:  account.Nickname,
		apiKey:    account.APIKey,
		apiSecret: account.APISecret,
		baseURL:   account.URL,
		httpClient: phttp.NewClient(phttp.ClientOptions{
			Timeout:        opts.RequestTimeout,
			RequestsPerSec: opts.RequestsPerSec,
		}),
		instrument: cache.New(instrumentCacheTTL, 2*instrumentCacheTTL),
		logger: log.With().
			Str("component", "api").
			Str("account", account.Nickname).
			Str("account_type", account.AccountType).
			Logger(),
	}
}

// response is the Bybit V5 envelope.
type response struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	query := ""
	if params != nil {
		query = params.Encode() // sorted by key
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := c.sign(timestamp, query)

	reqURL := c.baseURL + endpoint
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, timestamp, signature)

	return c.do(req, endpoint, out)
}

func (c *Client) post(ctx context.Context, endpoint string, params map[string]any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := c.sign(timestamp, string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, timestamp, signature)

	return c.do(req, endpoint, out)
}

// sign builds the V5 request signature over
// timestamp + apiKey + recvWindow + payload.
func (c *Client) sign(timestamp, payload string) string {
	return secure.Sign(timestamp+c.apiKey+recvWindow+payload, c.apiSecret)
}

func (c *Client) setHeaders(req *http.Request, timestamp, signature string) {
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	c.logger.Debug().Str("endpoint", endpoint).Str("method", req.Method).Msg("API request")

	resp, err := c.httpClient.DoRequest(req.Context(), req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w (status %d)", endpoint, ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 400:
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: client error %d: %s", endpoint, resp.StatusCode, text)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response body: %w", endpoint, err)
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: parsing JSON: %w", endpoint, err)
	}

	if envelope.RetCode != 0 {
		switch {
		case authRetCodes[envelope.RetCode]:
			return fmt.Errorf("%s: %w: %s", endpoint, ErrAuth, envelope.RetMsg)
		case envelope.RetCode == rateLimitRetCode:
			return fmt.Errorf("%s: %w: %s", endpoint, ErrRateLimit, envelope.RetMsg)
		case isOrderRetCode(envelope.RetCode):
			// Order execution errors are not fatal for a sync cycle.
			c.logger.Warn().
				Int("ret_code", envelope.RetCode).
				Str("ret_msg", envelope.RetMsg).
				Msg("Order execution error")
		default:
			return fmt.Errorf("%s: %w", endpoint, &APIError{RetCode: envelope.RetCode, RetMsg: envelope.RetMsg})
		}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s: parsing result: %w", endpoint, err)
		}
	}
	return nil
}

// Nickname returns the account nickname the client is bound to.
func (c *Client) Nickname() string { return c.nickname }

// GetWalletBalance returns the unified wallet balance.
func (c *Client) GetWalletBalance(ctx context.Context) (*models.WalletBalance, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	var result struct {
		List []models.WalletBalance `json:"list"`
	}
	if err := c.get(ctx, endpointWalletBalance, params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("wallet balance: empty response")
	}
	return &result.List[0], nil
}

// GetPositions returns open positions. Pass an empty symbol for all
// USDT-settled positions.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	params := url.Values{}
	params.Set("category", defaultCategory)
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", settleCoin)
	}

	var result struct {
		List []models.Position `json:"list"`
	}
	if err := c.get(ctx, endpointPositionList, params, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// GetOpenOrders returns working orders.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	params := url.Values{}
	params.Set("category", defaultCategory)
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", settleCoin)
	}

	var result struct {
		List []models.Order `json:"list"`
	}
	if err := c.get(ctx, endpointOpenOrders, params, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// GetOrderHistory returns recent orders, newest first.
func (c *Client) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]models.Order, error) {
	params := url.Values{}
	params.Set("category", defaultCategory)
	params.Set("limit", strconv.Itoa(limit))
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var result struct {
		List []models.Order `json:"list"`
	}
	if err := c.get(ctx, endpointOrderHistory, params, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// Execution is a single fill from the execution list.
type Execution struct {
	ExecID   string          `json:"execId"`
	OrderID  string          `json:"orderId"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	ExecQty  decimal.Decimal `json:"execQty"`
	ExecFee  decimal.Decimal `json:"execFee"`
	ExecTime string          `json:"execTime"`
}

// GetExecutions returns recent fills.
func (c *Client) GetExecutions(ctx context.Context, symbol string, limit int) ([]Execution, error) {
	params := url.Values{}
	params.Set("category", defaultCategory)
	params.Set("limit", strconv.Itoa(limit))
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var result struct {
		List []Execution `json:"list"`
	}
	if err := c.get(ctx, endpointExecutionList, params, &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol      string
	Side        string
	OrderType   string
	Qty         decimal.Decimal
	Price       decimal.Decimal
	TimeInForce string
	ReduceOnly  bool
	PositionIdx int
}

// OrderResult identifies a placed or cancelled order.
type OrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// PlaceOrder places a new order. An order link ID is generated so the
// order can be traced back to this process.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	params := map[string]any{
		"category":    defaultCategory,
		"symbol":      req.Symbol,
		"side":        req.Side,
		"orderType":   req.OrderType,
		"qty":         req.Qty.String(),
		"orderLinkId": uuid.NewString(),
	}
	if req.TimeInForce != "" {
		params["timeInForce"] = req.TimeInForce
	}
	if !req.Price.IsZero() {
		params["price"] = req.Price.String()
	}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}
	if req.PositionIdx != 0 {
		params["positionIdx"] = req.PositionIdx
	}

	var result OrderResult
	if err := c.post(ctx, endpointPlaceOrder, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOrder cancels a single order by ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]any{
		"category": defaultCategory,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	return c.post(ctx, endpointCancelOrder, params, nil)
}

// CancelAllOrders cancels every working order, optionally for one symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := map[string]any{"category": defaultCategory}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = settleCoin
	}
	return c.post(ctx, endpointCancelAllOrders, params, nil)
}

// SetLeverage sets buy and sell leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol, buyLeverage, sellLeverage string) error {
	params := map[string]any{
		"category":     defaultCategory,
		"symbol":       symbol,
		"buyLeverage":  buyLeverage,
		"sellLeverage": sellLeverage,
	}
	return c.post(ctx, endpointSetLeverage, params, nil)
}

// SetTradingStop sets position stop loss and/or take profit.
func (c *Client) SetTradingStop(ctx context.Context, symbol string, positionIdx int, stopLoss, takeProfit decimal.Decimal) error {
	params := map[string]any{
		"category":    defaultCategory,
		"symbol":      symbol,
		"positionIdx": positionIdx,
		"tpslMode":    "Full",
	}
	if !stopLoss.IsZero() {
		params["stopLoss"] = stopLoss.String()
	}
	if !takeProfit.IsZero() {
		params["takeProfit"] = takeProfit.String()
	}
	return c.post(ctx, endpointTradingStop, params, nil)
}

// GetInstrument returns lot sizing metadata for a symbol, cached briefly
// since instrument filters rarely change.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	if cached, ok := c.instrument.Get(symbol); ok {
		return cached.(*models.Instrument), nil
	}

	params := url.Values{}
	params.Set("category", defaultCategory)
	params.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     decimal.Decimal `json:"qtyStep"`
				MinOrderQty decimal.Decimal `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := c.get(ctx, endpointInstrumentsInfo, params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("instrument %s not found", symbol)
	}

	inst := &models.Instrument{
		Symbol:      result.List[0].Symbol,
		QtyStep:     result.List[0].LotSizeFilter.QtyStep,
		MinOrderQty: result.List[0].LotSizeFilter.MinOrderQty,
	}
	c.instrument.Set(symbol, inst, cache.DefaultExpiration)
	return inst, nil
}

// HealthCheck verifies that authenticated requests succeed.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.get(ctx, endpointAccountInfo, nil, nil); err != nil {
		c.logger.Error().Err(err).Msg("API health check failed")
		return err
	}
	c.logger.Info().Msg("API health check passed")
	return nil
}

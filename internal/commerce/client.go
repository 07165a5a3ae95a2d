// Package commerce speaks to the remote commerce backend through its single
// query endpoint. Every call may rotate the opaque session token via a
// response header; callers must replay the latest token on subsequent calls.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taracart/api/internal/domain"
)

const defaultRequestTimeout = 30 * time.Second

var (
	// ErrSessionRequired indicates the server rejected or lacked a session token.
	ErrSessionRequired = errors.New("commerce: session required")
	// ErrCartRejected indicates the server refused a cart mutation.
	ErrCartRejected = errors.New("commerce: cart mutation rejected")
	// ErrOrderRejected indicates the server refused the order mutation.
	ErrOrderRejected = errors.New("commerce: order rejected")
	// ErrTransport wraps network and non-2xx failures.
	ErrTransport = errors.New("commerce: transport failure")
)

// OrderInput carries the billing/shipping block for the place-order mutation.
type OrderInput struct {
	FullName       string
	Phone          string
	Address        string
	City           string
	PaymentMethod  string
	ShippingMethod string
	CustomerNote   string
	Metadata       map[string]string
}

// ClientDeps wires the dependencies required by the commerce client.
type ClientDeps struct {
	Endpoint      string
	SessionHeader string
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client is the HTTP client for the commerce query endpoint.
type Client struct {
	endpoint      string
	sessionHeader string
	http          *http.Client
	logger        *zap.Logger
}

// NewClient constructs a Client validating required dependencies.
func NewClient(deps ClientDeps) (*Client, error) {
	endpoint := strings.TrimSpace(deps.Endpoint)
	if endpoint == "" {
		return nil, errors.New("commerce client: endpoint is required")
	}
	header := strings.TrimSpace(deps.SessionHeader)
	if header == "" {
		header = "woocommerce-session"
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:      endpoint,
		sessionHeader: header,
		http:          httpClient,
		logger:        logger,
	}, nil
}

type queryRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type queryError struct {
	Message string `json:"message"`
}

type queryResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []queryError    `json:"errors"`
}

// do posts one query, replaying token and capturing any rotated token from the
// response header. The returned token is empty when the server sent none.
func (c *Client) do(ctx context.Context, token, query string, variables map[string]any, out any) (string, error) {
	payload, err := json.Marshal(queryRequest{Query: query, Variables: variables})
	if err != nil {
		return "", fmt.Errorf("commerce: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("commerce: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(c.sessionHeader, "Session "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	rotated := parseSessionToken(resp.Header.Get(c.sessionHeader))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rotated, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var envelope queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return rotated, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	if len(envelope.Errors) > 0 {
		return rotated, classifyQueryError(envelope.Errors[0].Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return rotated, fmt.Errorf("%w: decode data: %v", ErrTransport, err)
		}
	}
	return rotated, nil
}

// EnsureSession issues a minimal no-op query purely to obtain a session token.
func (c *Client) EnsureSession(ctx context.Context) (string, error) {
	const query = `query EnsureSession { cart { isEmpty } }`
	token, err := c.do(ctx, "", query, nil, nil)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("%w: no session token issued", ErrSessionRequired)
	}
	return token, nil
}

type addToCartData struct {
	AddToCart struct {
		CartItem struct {
			Key string `json:"key"`
		} `json:"cartItem"`
	} `json:"addToCart"`
}

// AddCartLine pushes one local cart line into the remote session cart and
// returns any rotated session token.
func (c *Client) AddCartLine(ctx context.Context, token string, line domain.CartLine) (string, error) {
	const mutation = `mutation AddToCart($input: AddToCartInput!) {
  addToCart(input: $input) { cartItem { key } }
}`
	input := map[string]any{
		"productId": line.ProductID,
		"quantity":  line.Quantity,
	}
	if line.VariationID > 0 {
		input["variationId"] = line.VariationID
	}

	var data addToCartData
	rotated, err := c.do(ctx, token, mutation, map[string]any{"input": input}, &data)
	if err != nil {
		return rotated, err
	}
	if strings.TrimSpace(data.AddToCart.CartItem.Key) == "" {
		return rotated, fmt.Errorf("%w: empty cart item key for product %d", ErrCartRejected, line.ProductID)
	}
	return rotated, nil
}

type cartData struct {
	Cart struct {
		Contents struct {
			Nodes []struct {
				Key     string `json:"key"`
				Product struct {
					Node struct {
						DatabaseID int `json:"databaseId"`
					} `json:"node"`
				} `json:"product"`
				Quantity int `json:"quantity"`
			} `json:"nodes"`
		} `json:"contents"`
		Total string `json:"total"`
	} `json:"cart"`
}

// GetCart reads the remote session cart contents.
func (c *Client) GetCart(ctx context.Context, token string) (domain.RemoteCart, string, error) {
	const query = `query GetCart {
  cart {
    contents { nodes { key quantity product { node { databaseId } } } }
    total
  }
}`
	var data cartData
	rotated, err := c.do(ctx, token, query, nil, &data)
	if err != nil {
		return domain.RemoteCart{}, rotated, err
	}

	cart := domain.RemoteCart{}
	for _, node := range data.Cart.Contents.Nodes {
		cart.Lines = append(cart.Lines, domain.RemoteCartLine{
			Key:       node.Key,
			ProductID: node.Product.Node.DatabaseID,
			Quantity:  node.Quantity,
		})
	}
	if total, err := domain.ParseAmount(data.Cart.Total); err == nil {
		cart.Total = total
	}
	return cart, rotated, nil
}

type checkoutData struct {
	Checkout struct {
		Order struct {
			OrderNumber string `json:"orderNumber"`
			Total       string `json:"total"`
		} `json:"order"`
	} `json:"checkout"`
}

// PlaceOrder submits the checkout mutation against the current session cart.
// The response is provisional; callers must validate order number and total.
func (c *Client) PlaceOrder(ctx context.Context, token string, input OrderInput) (domain.PlacedOrder, string, error) {
	const mutation = `mutation Checkout($input: CheckoutInput!) {
  checkout(input: $input) { order { orderNumber total } }
}`
	billing := map[string]any{
		"firstName": input.FullName,
		"phone":     input.Phone,
		"address1":  input.Address,
		"city":      input.City,
		"country":   "BD",
	}
	metadata := make([]map[string]string, 0, len(input.Metadata))
	for key, value := range input.Metadata {
		metadata = append(metadata, map[string]string{"key": key, "value": value})
	}
	variables := map[string]any{
		"input": map[string]any{
			"billing":         billing,
			"shipping":        billing,
			"paymentMethod":   input.PaymentMethod,
			"shippingMethod":  input.ShippingMethod,
			"customerNote":    input.CustomerNote,
			"metaData":        metadata,
			"isPaid":          false,
			"shipToDifferent": false,
		},
	}

	var data checkoutData
	rotated, err := c.do(ctx, token, mutation, variables, &data)
	if err != nil {
		return domain.PlacedOrder{}, rotated, err
	}

	order := domain.PlacedOrder{OrderNumber: strings.TrimSpace(data.Checkout.Order.OrderNumber)}
	if total, err := domain.ParseAmount(data.Checkout.Order.Total); err == nil {
		order.Total = total
	}
	return order, rotated, nil
}

// parseSessionToken strips the "Session " scheme prefix the server applies.
func parseSessionToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Session "))
}

// classifyQueryError folds server-reported errors into the client's sentinel
// categories. The upstream wording is stable enough to match on.
func classifyQueryError(message string) error {
	lowered := strings.ToLower(message)
	switch {
	case strings.Contains(lowered, "session"), strings.Contains(lowered, "expired"):
		return fmt.Errorf("%w: %s", ErrSessionRequired, message)
	case strings.Contains(lowered, "cart"), strings.Contains(lowered, "stock"):
		return fmt.Errorf("%w: %s", ErrCartRejected, message)
	case strings.Contains(lowered, "order"), strings.Contains(lowered, "payment"), strings.Contains(lowered, "checkout"):
		return fmt.Errorf("%w: %s", ErrOrderRejected, message)
	default:
		return fmt.Errorf("%w: %s", ErrTransport, message)
	}
}

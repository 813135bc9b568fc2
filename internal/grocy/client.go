package grocy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reorder-service/internal/config"
	"reorder-service/internal/model"

	"go.uber.org/zap"
)

// Client talks to the Grocy REST API. It resolves the Amazon order
// identifier and units-per-package from product user fields and turns stock
// rows into StockItem snapshots.
type Client struct {
	baseURL         string
	apiKey          string
	asinField       string
	orderUnitsField string
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewClient creates a Grocy client from configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL:         strings.TrimRight(cfg.GrocyURL, "/"),
		apiKey:          cfg.GrocyAPIKey,
		asinField:       cfg.GrocyASINField,
		orderUnitsField: cfg.GrocyOrderUnitsField,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          logger,
	}
}

type stockRow struct {
	Amount  json.Number `json:"amount"`
	Product struct {
		ID             int         `json:"id"`
		Name           string      `json:"name"`
		MinStockAmount json.Number `json:"min_stock_amount"`
		QuIDStock      int         `json:"qu_id_stock"`
	} `json:"product"`
}

type quantityUnit struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TestConnection probes the Grocy API.
func (c *Client) TestConnection(ctx context.Context) error {
	var info map[string]interface{}
	if err := c.get(ctx, "/system/info", &info); err != nil {
		return fmt.Errorf("grocy connection failed: %w", err)
	}
	return nil
}

// Snapshot fetches the current stock, resolves user fields and quantity
// units, and returns one immutable StockItem per stock row. Items without an
// order identifier are included with an empty OrderID; the engine excludes
// them from ordering but they never carry dedup markers either.
func (c *Client) Snapshot(ctx context.Context) ([]model.StockItem, error) {
	var rows []stockRow
	if err := c.get(ctx, "/stock", &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch stock: %w", err)
	}

	units, err := c.QuantityUnits(ctx)
	if err != nil {
		c.logger.Warn("Failed to fetch quantity units, falling back to empty unit names", zap.Error(err))
		units = map[int]string{}
	}

	items := make([]model.StockItem, 0, len(rows))
	for _, row := range rows {
		if row.Product.ID == 0 {
			continue
		}

		amount, _ := row.Amount.Float64()
		minAmount, _ := row.Product.MinStockAmount.Float64()

		asin := ""
		orderUnits := 1
		fields, err := c.FetchUserFields(ctx, row.Product.ID)
		if err != nil {
			c.logger.Warn("Failed to fetch user fields, treating product as not orderable",
				zap.Int("product_id", row.Product.ID),
				zap.Error(err),
			)
		} else {
			asin = strings.TrimSpace(fields.Get(c.asinField))
			if raw := fields.Get(c.orderUnitsField); raw != "" {
				if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 1 {
					orderUnits = n
				}
			}
		}

		items = append(items, model.StockItem{
			ID:              row.Product.ID,
			Name:            row.Product.Name,
			Amount:          amount,
			MinAmount:       minAmount,
			Unit:            units[row.Product.QuIDStock],
			OrderID:         asin,
			UnitsPerPackage: orderUnits,
		})
	}

	c.logger.Debug("Stock snapshot fetched", zap.Int("items", len(items)))
	return items, nil
}

// UserFields is a typed accessor over the dynamic user-field object Grocy
// returns. Absent and null fields read as the empty string.
type UserFields map[string]interface{}

// Get returns the named field as a string, or "" when absent.
func (f UserFields) Get(name string) string {
	v, ok := f[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FetchUserFields loads the custom fields for one product.
func (c *Client) FetchUserFields(ctx context.Context, productID int) (UserFields, error) {
	var fields UserFields
	if err := c.get(ctx, fmt.Sprintf("/userfields/products/%d", productID), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = UserFields{}
	}
	return fields, nil
}

// QuantityUnits returns the unit id to name mapping.
func (c *Client) QuantityUnits(ctx context.Context) (map[int]string, error) {
	var units []quantityUnit
	if err := c.get(ctx, "/objects/quantity_units", &units); err != nil {
		return nil, err
	}
	out := make(map[int]string, len(units))
	for _, u := range units {
		out[u.ID] = u.Name
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api"+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("GROCY-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("grocy API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

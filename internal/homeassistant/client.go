package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reorder-service/internal/config"

	"go.uber.org/zap"
)

// Client talks to the Home Assistant REST API. It carries the fulfillment
// actions (Alexa shopping list insertion, voice orders) and plain
// notifications.
type Client struct {
	baseURL             string
	token               string
	alexaEntityID       string
	shoppingListEntity  string
	notificationService string
	httpClient          *http.Client
	logger              *zap.Logger
}

// NewClient creates a Home Assistant client from configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL:             strings.TrimRight(cfg.HassURL, "/"),
		token:               cfg.HassToken,
		alexaEntityID:       cfg.AlexaEntityID,
		shoppingListEntity:  cfg.ShoppingListEntity,
		notificationService: cfg.NotificationService,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
		logger:              logger,
	}
}

// TestConnection probes the Home Assistant API.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.request(ctx, http.MethodGet, "/", nil, nil); err != nil {
		return fmt.Errorf("home assistant connection failed: %w", err)
	}
	return nil
}

// CheckAlexaAvailable reports whether the configured Alexa media player
// entity exists and is not unavailable.
func (c *Client) CheckAlexaAvailable(ctx context.Context) bool {
	var state struct {
		State string `json:"state"`
	}
	if err := c.request(ctx, http.MethodGet, "/states/"+c.alexaEntityID, nil, &state); err != nil {
		c.logger.Warn("Alexa media player not reachable",
			zap.String("entity_id", c.alexaEntityID),
			zap.Error(err),
		)
		return false
	}
	return state.State != "unavailable"
}

// CheckShoppingListAvailable reports whether the Alexa shopping list entity exists.
func (c *Client) CheckShoppingListAvailable(ctx context.Context) bool {
	if err := c.request(ctx, http.MethodGet, "/states/"+c.shoppingListEntity, nil, nil); err != nil {
		c.logger.Warn("Alexa shopping list not reachable",
			zap.String("entity_id", c.shoppingListEntity),
			zap.Error(err),
		)
		return false
	}
	return true
}

// AddToShoppingList pushes one entry onto the Alexa shopping list via the
// todo integration.
func (c *Client) AddToShoppingList(ctx context.Context, item string) error {
	payload := map[string]interface{}{
		"entity_id": c.shoppingListEntity,
		"item":      item,
	}
	if err := c.CallService(ctx, "todo", "add_item", payload); err != nil {
		return fmt.Errorf("failed to add shopping list item: %w", err)
	}
	c.logger.Info("Added item to Alexa shopping list", zap.String("item", item))
	return nil
}

// OrderByASIN speaks an order command for an ASIN through the configured
// Alexa device. Voice purchasing must be enabled in the Alexa app.
func (c *Client) OrderByASIN(ctx context.Context, asin string, quantity int) error {
	command := fmt.Sprintf("order %d of asin %s", quantity, asin)
	if quantity <= 1 {
		command = "order asin " + asin
	}
	payload := map[string]interface{}{
		"entity_id": c.alexaEntityID,
		"message":   command,
		"data":      map[string]string{"type": "tts"},
	}
	if err := c.CallService(ctx, "notify", "alexa_media", payload); err != nil {
		return fmt.Errorf("failed to send voice order: %w", err)
	}
	c.logger.Info("Voice order sent",
		zap.String("asin", asin),
		zap.Int("quantity", quantity),
	)
	return nil
}

// SendNotification delivers a plain notification through the configured
// Home Assistant notify service.
func (c *Client) SendNotification(ctx context.Context, title, message string) error {
	parts := strings.SplitN(c.notificationService, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid notification service %q", c.notificationService)
	}
	payload := map[string]interface{}{
		"title":   title,
		"message": message,
	}
	if err := c.CallService(ctx, parts[0], parts[1], payload); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// CallService invokes one Home Assistant service.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/services/%s/%s", domain, service), data, nil)
}

func (c *Client) request(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("home assistant API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package telegram

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
	"reorder-service/internal/tracker"

	"go.uber.org/zap"
)

// Client talks to the Telegram Bot API. It implements tracker.Notifier: Send
// returns the message id that serves as the handle for later edits and
// deletes. A disabled client turns every call into a no-op so the engine can
// run without Telegram configured.
type Client struct {
	enabled    bool
	baseURL    string
	chatID     string
	httpClient *http.Client
	pollClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Telegram client from configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		enabled:    cfg.TelegramEnabled && cfg.TelegramBotToken != "" && cfg.TelegramChatID != "",
		baseURL:    "https://api.telegram.org/bot" + cfg.TelegramBotToken,
		chatID:     cfg.TelegramChatID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// The long-poll client must outlive the poll window itself
		pollClient: &http.Client{Timeout: time.Duration(cfg.TelegramPollTimeout+15) * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether the transport is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

// Update is one entry from the getUpdates long poll.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// CallbackQuery is an inline-button press.
type CallbackQuery struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Send delivers a new HTML message with optional inline buttons and returns
// its message id.
func (c *Client) Send(ctx context.Context, text string, buttons [][]tracker.Button) (int64, error) {
	if !c.enabled {
		return 0, nil
	}

	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if markup := inlineKeyboard(buttons); markup != nil {
		payload["reply_markup"] = markup
	}

	var msg message
	if err := c.call(ctx, c.httpClient, "sendMessage", payload, &msg); err != nil {
		return 0, fmt.Errorf("sendMessage failed: %w", err)
	}
	return msg.MessageID, nil
}

// Edit replaces the text and buttons of an existing message.
func (c *Client) Edit(ctx context.Context, messageID int64, text string, buttons [][]tracker.Button) error {
	if !c.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"message_id":               messageID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if markup := inlineKeyboard(buttons); markup != nil {
		payload["reply_markup"] = markup
	}

	if err := c.call(ctx, c.httpClient, "editMessageText", payload, nil); err != nil {
		return fmt.Errorf("editMessageText failed: %w", err)
	}
	return nil
}

// Delete removes a message.
func (c *Client) Delete(ctx context.Context, messageID int64) error {
	if !c.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    c.chatID,
		"message_id": messageID,
	}
	if err := c.call(ctx, c.httpClient, "deleteMessage", payload, nil); err != nil {
		return fmt.Errorf("deleteMessage failed: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges one inbound button press. Every event must be
// acknowledged, including unknown ones; text may be empty.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if !c.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"callback_query_id": callbackID,
	}
	if text != "" {
		payload["text"] = text
	}
	if err := c.call(ctx, c.httpClient, "answerCallbackQuery", payload, nil); err != nil {
		return fmt.Errorf("answerCallbackQuery failed: %w", err)
	}
	return nil
}

// GetUpdates long-polls for inbound events starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	if !c.enabled {
		// Nothing will ever arrive; behave like an idle poll
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(timeoutSec) * time.Second):
			return nil, nil
		}
	}

	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"callback_query"},
	}

	var updates []Update
	if err := c.call(ctx, c.pollClient, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// TestConnection probes the bot token via getMe.
func (c *Client) TestConnection(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	var me struct {
		Username string `json:"username"`
	}
	if err := c.call(ctx, c.httpClient, "getMe", map[string]interface{}{}, &me); err != nil {
		return fmt.Errorf("telegram connection failed: %w", err)
	}
	c.logger.Info("Telegram connection OK", zap.String("bot", "@"+me.Username))
	return nil
}

func (c *Client) call(ctx context.Context, httpClient *http.Client, method string, payload map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("invalid telegram response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram API error: %s", strings.TrimSpace(envelope.Description))
	}

	if out == nil || envelope.Result == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func inlineKeyboard(buttons [][]tracker.Button) map[string]interface{} {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]map[string]string, 0, len(buttons))
	for _, row := range buttons {
		r := make([]map[string]string, 0, len(row))
		for _, b := range row {
			r = append(r, map[string]string{
				"text":          b.Label,
				"callback_data": b.Data,
			})
		}
		rows = append(rows, r)
	}
	return map[string]interface{}{"inline_keyboard": rows}
}

package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dealwatch/internal/engine"
)

// TelegramNotifier pushes alert text through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram sink.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with a text rendering of the alert.
func (n *TelegramNotifier) Notify(ctx context.Context, alert engine.Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("key", alert.Key).Str("name", alert.Name).Int("drops", len(alert.Drops)).Msg("alert sent (Telegram)")
	return nil
}

func renderMessage(alert engine.Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Price Drop] %s\n", alert.Name))
	for _, drop := range alert.Drops {
		builder.WriteString(fmt.Sprintf("%s: %s -> %s %s\n", drop.Channel, drop.Old, drop.New, alert.Currency))
	}
	if alert.HistoricalLow != "" {
		builder.WriteString(fmt.Sprintf("Historical low (retail): %s %s\n", alert.HistoricalLow, alert.Currency))
	}
	if alert.URL != "" {
		builder.WriteString(alert.URL)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

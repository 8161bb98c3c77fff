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

const discordAlertColor = 0xE74C3C

const footerText = "Powered by GG.deals"

// DiscordNotifier posts alert embeds to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a Discord webhook sink.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	URL         string              `json:"url,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Notify posts one embed per alert.
func (n *DiscordNotifier) Notify(ctx context.Context, alert engine.Alert) error {
	embed := discordEmbed{
		Title:       fmt.Sprintf("Price Drop: %s", alert.Name),
		URL:         alert.URL,
		Description: renderDrops(alert),
		Color:       discordAlertColor,
		Footer:      &discordEmbedFooter{Text: footerText},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if alert.HistoricalLow != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   "Historical low (retail)",
			Value:  fmt.Sprintf("%s %s", alert.HistoricalLow, alert.Currency),
			Inline: true,
		})
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info().Str("key", alert.Key).Str("name", alert.Name).Int("drops", len(alert.Drops)).Msg("alert sent (Discord)")
	return nil
}

func renderDrops(alert engine.Alert) string {
	lines := make([]string, 0, len(alert.Drops))
	for _, drop := range alert.Drops {
		lines = append(lines, fmt.Sprintf("**%s**: ~~%s~~ -> **%s %s**",
			titleCase(drop.Channel), drop.Old, drop.New, alert.Currency))
	}
	return strings.Join(lines, "\n")
}

func titleCase(channel string) string {
	if channel == "" {
		return channel
	}
	return strings.ToUpper(channel[:1]) + channel[1:]
}

var _ Notifier = (*DiscordNotifier)(nil)

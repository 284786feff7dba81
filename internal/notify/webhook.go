// Package notify delivers pool events to Discord and Telegram webhooks.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/util"
)

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	Enabled      bool   `mapstructure:"enabled"`
	PoolName     string `mapstructure:"pool_name"`
}

// Retry configuration.
const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second
)

// Notifier turns pool events into Discord/Telegram webhook deliveries.
type Notifier struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewNotifier creates a new notifier.
func NewNotifier(cfg *WebhookConfig) *Notifier {
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify dispatches a webhook message for events worth surfacing to
// operators. Routine events (deposit, withdrawal) are not sent.
func (n *Notifier) Notify(ev events.Event) {
	if !n.cfg.Enabled {
		return
	}

	switch ev.Kind {
	case events.KindDrawCompleted:
		n.send(n.drawCompletedDiscord(ev), n.drawCompletedTelegram(ev), true)
	case events.KindInsolvencyDetected:
		n.send(n.insolvencyDiscord(ev), n.insolvencyTelegram(ev), true)
	case events.KindWithdrawalFailure:
		n.send(n.withdrawalFailureDiscord(ev), n.withdrawalFailureTelegram(ev), true)
	case events.KindEmergencyEntered:
		n.send(n.emergencyDiscord(ev), n.emergencyTelegram(ev), true)
	case events.KindEmergencyRecovered:
		n.send(n.recoveryDiscord(ev), n.recoveryTelegram(ev), false)
	}
}

func (n *Notifier) send(embed DiscordEmbed, text string, retry bool) {
	if n.cfg.DiscordURL != "" {
		msg := DiscordMessage{Embeds: []DiscordEmbed{embed}}
		if retry {
			go n.sendDiscordMessageWithRetry(msg)
		} else {
			go n.sendDiscordMessage(msg)
		}
	}
	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		if retry {
			go n.sendTelegramMessageWithRetry(text)
		} else {
			go n.sendTelegramMessage(text)
		}
	}
}

func (n *Notifier) drawCompletedDiscord(ev events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "Draw Completed",
		Description: fmt.Sprintf("**%s** completed round %d", n.cfg.PoolName, ev.RoundID),
		Color:       0x00FF00,
		Fields: []DiscordField{
			{Name: "Round", Value: fmt.Sprintf("%d", ev.RoundID), Inline: true},
			{Name: "Prize", Value: ev.Amount.String(), Inline: true},
			{Name: "Detail", Value: ev.Detail, Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
}

func (n *Notifier) drawCompletedTelegram(ev events.Event) string {
	return fmt.Sprintf("*Draw Completed*\n\nRound: `%d`\nPrize: `%s`\n%s", ev.RoundID, ev.Amount.String(), ev.Detail)
}

func (n *Notifier) insolvencyDiscord(ev events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "Insolvency Detected",
		Description: fmt.Sprintf("**%s** reconciliation found a shortfall", n.cfg.PoolName),
		Color:       0xFF0000,
		Fields: []DiscordField{
			{Name: "Round", Value: fmt.Sprintf("%d", ev.RoundID), Inline: true},
			{Name: "Shortfall", Value: ev.Amount.String(), Inline: true},
			{Name: "Detail", Value: ev.Detail, Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
}

func (n *Notifier) insolvencyTelegram(ev events.Event) string {
	return fmt.Sprintf("*Insolvency Detected*\n\nShortfall: `%s`\n%s", ev.Amount.String(), ev.Detail)
}

func (n *Notifier) withdrawalFailureDiscord(ev events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "Withdrawal Failed",
		Description: fmt.Sprintf("**%s** failed to send a withdrawal", n.cfg.PoolName),
		Color:       0xFFA500,
		Fields: []DiscordField{
			{Name: "Receiver", Value: fmt.Sprintf("%d", ev.Receiver), Inline: true},
			{Name: "Amount", Value: ev.Amount.String(), Inline: true},
			{Name: "Detail", Value: ev.Detail, Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
}

func (n *Notifier) withdrawalFailureTelegram(ev events.Event) string {
	return fmt.Sprintf("*Withdrawal Failed*\n\nAmount: `%s`\n%s", ev.Amount.String(), ev.Detail)
}

func (n *Notifier) emergencyDiscord(ev events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "Emergency State Entered",
		Description: fmt.Sprintf("**%s** entered emergency mode", n.cfg.PoolName),
		Color:       0xFF0000,
		Fields: []DiscordField{
			{Name: "Detail", Value: ev.Detail, Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
}

func (n *Notifier) emergencyTelegram(ev events.Event) string {
	return fmt.Sprintf("*Emergency State Entered*\n\n%s", ev.Detail)
}

func (n *Notifier) recoveryDiscord(ev events.Event) DiscordEmbed {
	return DiscordEmbed{
		Title:       "Recovered to Normal",
		Description: fmt.Sprintf("**%s** returned to normal operation", n.cfg.PoolName),
		Color:       0x0099FF,
		Fields: []DiscordField{
			{Name: "Detail", Value: ev.Detail, Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
}

func (n *Notifier) recoveryTelegram(ev events.Event) string {
	return fmt.Sprintf("*Recovered to Normal*\n\n%s", ev.Detail)
}

// DiscordEmbed represents a Discord embed object.
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField represents a field in a Discord embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter represents the footer of a Discord embed.
type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message.
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// sendDiscordMessage sends a message to Discord webhook (no retry).
func (n *Notifier) sendDiscordMessage(msg DiscordMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("notify: failed to marshal Discord message: %v", err)
		return
	}
	resp, err := n.client.Post(n.cfg.DiscordURL, "application/json", bytes.NewReader(body))
	if err != nil {
		util.Warnf("notify: failed to send Discord message: %v", err)
		return
	}
	resp.Body.Close()
}

// sendDiscordMessageWithRetry sends a message to Discord with exponential backoff retry.
func (n *Notifier) sendDiscordMessageWithRetry(msg DiscordMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("notify: failed to marshal Discord message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(n.cfg.DiscordURL, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return
		}
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("notify: failed to send Discord notification after %d retries: %v", MaxRetries, lastErr)
	}
}

// TelegramMessage represents a Telegram bot message.
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) sendTelegramMessage(text string) {
	n.postTelegram(text)
}

func (n *Notifier) sendTelegramMessageWithRetry(text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBot)

	msg := TelegramMessage{
		ChatID:    n.cfg.TelegramChat,
		Text:      text,
		ParseMode: "Markdown",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("notify: failed to marshal Telegram message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return
		}
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("notify: failed to send Telegram notification after %d retries: %v", MaxRetries, lastErr)
	}
}

func (n *Notifier) postTelegram(text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBot)
	msg := TelegramMessage{ChatID: n.cfg.TelegramChat, Text: text, ParseMode: "Markdown"}
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("notify: failed to marshal Telegram message: %v", err)
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		util.Warnf("notify: failed to send Telegram message: %v", err)
		return
	}
	resp.Body.Close()
}

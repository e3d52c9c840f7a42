// Package telegram sends operational notifications via the Telegram Bot API:
// volatility alerts for monitored markets, plus polling failure and recovery
// notices. Messages use MarkdownV2 and are delivered with linear-backoff retry.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Alert describes a market whose observed volatility crossed the configured
// threshold, together with the liquidity move recommended in response.
type Alert struct {
	EventID              string
	Title                string
	Volatility           float64
	TotalVolume          float64
	CurrentLiquidity     float64
	RecommendedLiquidity float64
	Reason               string
	DetectedAt           time.Time
}

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendAlerts sends a notification covering the given volatility alerts.
func (c *Client) SendAlerts(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return c.send(formatAlerts(alerts))
}

// SendError notifies about a polling failure.
func (c *Client) SendError(err error) error {
	msg := fmt.Sprintf("⚠️ *Market polling failed*\n\n%s", escapeMarkdownV2(err.Error()))
	return c.send(msg)
}

// SendRecovery notifies that polling recovered after n consecutive failures.
func (c *Client) SendRecovery(failures int) error {
	msg := fmt.Sprintf("✅ *Market polling recovered* after %d failed cycle\\(s\\)", failures)
	return c.send(msg)
}

// send delivers a MarkdownV2 message with retry.
func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatAlerts renders volatility alerts into a Telegram message
func formatAlerts(alerts []Alert) string {
	var b strings.Builder
	b.WriteString("🌊 *High Volatility Markets*\n\n")

	dateStr := escapeMarkdownV2(alerts[0].DetectedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(fmt.Sprintf("📅 Detected: %s\n\n", dateStr))

	for i, alert := range alerts {
		title := alert.Title
		if title == "" {
			title = alert.EventID
		}

		volStr := escapeMarkdownV2(fmt.Sprintf("%.3f", alert.Volatility))
		volumeStr := escapeMarkdownV2(fmt.Sprintf("%.0f USDC", alert.TotalVolume))
		liqStr := escapeMarkdownV2(fmt.Sprintf("%.1f → %.1f", alert.CurrentLiquidity, alert.RecommendedLiquidity))

		b.WriteString(fmt.Sprintf("%d\\. %s\n", i+1, escapeMarkdownV2(title)))
		b.WriteString(fmt.Sprintf("   📈 Volatility: *%s*\n", volStr))
		b.WriteString(fmt.Sprintf("   💰 Volume: %s\n", volumeStr))
		b.WriteString(fmt.Sprintf("   🧮 Liquidity: %s\n", liqStr))
		if alert.Reason != "" {
			b.WriteString(fmt.Sprintf("   ℹ️ %s\n", escapeMarkdownV2(alert.Reason)))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

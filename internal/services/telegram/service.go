// Package telegram sends batch summaries through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/opsdeck/dbackup/internal/models"
)

// Bot is the slice of the Telegram client this service needs; it allows
// substituting a fake in tests.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Service defines the interface for batch summary notifications.
type Service interface {
	SendSummary(ctx context.Context, summary *models.RunSummary) error
}

// Impl implements the telegram Service.
type Impl struct {
	bot    Bot
	chatID int64
	logger zerolog.Logger
}

// New creates a Telegram notifier. Constructing the underlying bot performs
// a getMe call against the Bot API, so this needs network access.
func New(logger zerolog.Logger, cfg models.TelegramSettings) (*Impl, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing telegram chat id: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Impl{bot: bot, chatID: chatID, logger: logger}, nil
}

// NewWithBot creates a Telegram notifier with a custom bot client (for
// testing).
func NewWithBot(logger zerolog.Logger, bot Bot, chatID int64) *Impl {
	return &Impl{bot: bot, chatID: chatID, logger: logger}
}

// SendSummary posts one HTML message describing the finished batch.
func (s *Impl) SendSummary(_ context.Context, summary *models.RunSummary) error {
	msg := tgbotapi.NewMessage(s.chatID, FormatSummary(summary))
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}

	s.logger.Info().Int64("chat_id", s.chatID).Msg("telegram summary sent")

	return nil
}

// FormatSummary renders the batch outcome as a Telegram HTML message.
func FormatSummary(summary *models.RunSummary) string {
	var b strings.Builder

	if summary.Ok() {
		b.WriteString("✅ <b>dbackup: all targets succeeded</b>\n\n")
	} else {
		b.WriteString("❌ <b>dbackup: batch finished with failures</b>\n\n")
	}

	b.WriteString(fmt.Sprintf("<b>Host:</b> %s\n", html.EscapeString(summary.Host)))
	b.WriteString(fmt.Sprintf("<b>Started:</b> %s\n", summary.StartTime.UTC().Format("2006-01-02 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("<b>Duration:</b> %s\n\n", summary.Duration.Round(time.Second)))

	for _, result := range summary.Results {
		if result.Succeeded {
			b.WriteString(fmt.Sprintf("• %s: ok (%s)\n",
				html.EscapeString(result.Target), formatBytes(result.SizeBytes)))
			continue
		}

		reason := "failed"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		b.WriteString(fmt.Sprintf("• %s: <code>%s</code>\n",
			html.EscapeString(result.Target), html.EscapeString(reason)))
	}

	b.WriteString(fmt.Sprintf("\n%d succeeded, %d failed", summary.Succeeded(), summary.Failed()))
	if summary.UploadsFailed > 0 {
		b.WriteString(fmt.Sprintf(", %d upload(s) failed", summary.UploadsFailed))
	}
	if summary.PruneRemoved > 0 {
		b.WriteString(fmt.Sprintf("; pruned %d expired dump(s)", summary.PruneRemoved))
	}

	return b.String()
}

// formatBytes renders a byte count in IEC units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Package telegram adapts the Telegram Bot API to platform.Client.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/platform"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client wraps a tgbotapi.BotAPI.
type Client struct {
	api         *tgbotapi.BotAPI
	logger      *slog.Logger
	pollTimeout int
}

// maxPollTimeout is the long-poll hold, in seconds, used when requests are unbounded.
const maxPollTimeout = 60

var _ platform.Client = (*Client)(nil)

// New authenticates with the Bot API. Every request is bounded by timeout.
func New(token string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect to bot api: %w", err)
	}
	return &Client{api: api, logger: logger, pollTimeout: pollTimeout(timeout)}, nil
}

// pollTimeout returns how long, in seconds, getUpdates may hold a request so
// that the server answers before the HTTP client gives up.
func pollTimeout(requestTimeout time.Duration) int {
	if requestTimeout <= 0 {
		return maxPollTimeout
	}
	secs := int((requestTimeout - 2*time.Second) / time.Second)
	switch {
	case secs < 1:
		return 1
	case secs > maxPollTimeout:
		return maxPollTimeout
	}
	return secs
}

// Username returns the bot's own username, used to build deep links.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// ChatMember returns the user's membership status in chatID.
func (c *Client) ChatMember(ctx context.Context, chatID, userID int64) (platform.MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("get chat member: %w", err)
	}
	status := platform.MemberStatus(member.Status)
	if status == platform.StatusRestricted && member.IsMember {
		status = platform.StatusMember
	}
	return status, nil
}

// CopyMessage copies messageID from chat from into chat to.
func (c *Client) CopyMessage(ctx context.Context, to, from int64, messageID int, opts platform.CopyOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewCopyMessage(to, from, messageID)
	if opts.Caption != nil {
		cfg.Caption = *opts.Caption
		cfg.ParseMode = tgbotapi.ModeHTML
	}
	cfg.ReplyToMessageID = opts.ReplyTo
	id, err := c.api.CopyMessage(cfg)
	if err != nil {
		return 0, fmt.Errorf("copy message %d from %d: %w", messageID, from, classify(err))
	}
	return id.MessageID, nil
}

// DeleteMessage removes a message the bot sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, classify(err))
	}
	return nil
}

// SendMessage sends a text message with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, msg platform.OutgoingMessage) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.HTML {
		out.ParseMode = tgbotapi.ModeHTML
	}
	out.ReplyToMessageID = msg.ReplyTo
	out.DisableWebPagePreview = true
	if len(msg.Keyboard) > 0 {
		out.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	}
	sent, err := c.api.Send(out)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// AnswerCallback acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Run long-polls for updates and hands each one to handle until ctx is done.
func (c *Client) Run(ctx context.Context, handle func(platform.Update)) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = c.pollTimeout
	updates := c.api.GetUpdatesChan(cfg)
	c.logger.Info("Polling for updates", "bot", c.api.Self.UserName, "poll_timeout_s", c.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			c.logger.Info("Stopped polling", "reason", ctx.Err())
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if converted, ok := convertUpdate(upd); ok {
				handle(converted)
			}
		}
	}
}

func inlineKeyboard(kb platform.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// classify maps Bot API "not found" answers onto platform.ErrMessageNotFound.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "not found") {
		return fmt.Errorf("%s: %w", apiErr.Message, platform.ErrMessageNotFound)
	}
	return err
}

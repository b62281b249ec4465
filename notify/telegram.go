package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snwatch/models"
)

const (
	telegramMaxMessage = 4096
	// telegramMaxRetryWait bounds how long a throttled send waits before
	// giving up until the next tick.
	telegramMaxRetryWait = 30 * time.Second
	telegramMaxRetries   = 2
)

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram builds the backend without contacting the API; apiURL is the
// Bot API root, e.g. https://api.telegram.org.
func NewTelegram(apiURL, token string) *Telegram {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: 15 * time.Second},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(strings.TrimRight(apiURL, "/") + "/bot%s/%s")
	return &Telegram{bot: bot}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Ready() bool { return t.bot.Token != "" }

// Legacy Markdown allows no escapes inside an entity: a delimiter in the text
// closes the entity, is written escaped, and the entity reopens after it.
func telegramEntity(delim, text string) string {
	var b strings.Builder
	for i, part := range strings.Split(text, delim) {
		if i > 0 {
			b.WriteString(`\` + delim)
		}
		if part != "" {
			b.WriteString(delim + part + delim)
		}
	}
	return b.String()
}

func (t *Telegram) FormatBold(text string) string { return telegramEntity("*", text) }

func (t *Telegram) FormatItalic(text string) string { return telegramEntity("_", text) }

var telegramEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

func (t *Telegram) Escape(text string) string { return telegramEscaper.Replace(text) }

func (t *Telegram) UserID(user *models.User) (string, bool) {
	if user == nil || user.TelegramID == nil {
		return "", false
	}
	return strconv.FormatInt(*user.TelegramID, 10), true
}

// contextClient ties the library's requests to the caller's context.
type contextClient struct {
	ctx  context.Context
	next tgbotapi.HTTPClient
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.next.Do(req.WithContext(c.ctx))
}

func (t *Telegram) SendReply(ctx context.Context, recipient, text string, opts SendOptions) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", recipient, err)
	}

	bot := *t.bot
	bot.Client = contextClient{ctx: ctx, next: t.bot.Client}

	chunks := SplitMessageFunc(text, telegramMaxMessage, UTF16Units)
	return sendChunks(t.Name(), chunks, func(i int, chunk string) error {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
		if i == len(chunks)-1 && len(opts.Links) > 0 {
			row := make([]tgbotapi.InlineKeyboardButton, 0, len(opts.Links))
			for _, l := range opts.Links {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(l.Text, l.URL))
			}
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
		}
		return t.send(ctx, &bot, msg)
	})
}

// send delivers one message, waiting out 429 replies that carry retry_after.
func (t *Telegram) send(ctx context.Context, bot *tgbotapi.BotAPI, msg tgbotapi.MessageConfig) error {
	for attempt := 0; ; attempt++ {
		_, err := bot.Send(msg)
		if err == nil {
			return nil
		}
		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) {
			return fmt.Errorf("telegram: %w", err)
		}
		if apiErr.Code == http.StatusForbidden && strings.Contains(apiErr.Message, "blocked") {
			return ErrBlocked
		}
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if apiErr.Code != http.StatusTooManyRequests || wait <= 0 || wait > telegramMaxRetryWait || attempt >= telegramMaxRetries {
			return fmt.Errorf("telegram: %d: %w", apiErr.Code, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

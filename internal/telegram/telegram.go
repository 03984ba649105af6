// Package telegram wraps the Bot API client behind the Messenger
// interface consumed by the conversation and job services.
package telegram

import (
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger is the messaging capability: send and edit chat messages,
// deliver files, acknowledge button presses and fetch uploads. Progress
// edits are best-effort; callers are expected to tolerate edit failures.
type Messenger interface {
	SendMessage(chatID int64, text string) (messageID int, err error)
	SendKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (messageID int, err error)
	EditMessage(chatID int64, messageID int, text string) error
	EditKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error
	SendDocument(chatID int64, path, caption string) error
	SendAudio(chatID int64, path, caption string) error
	AnswerCallback(callbackID, text string, alert bool) error
	DownloadFile(fileID string) ([]byte, error)
}

// Client implements Messenger on top of the Bot API.
type Client struct {
	bot  *tgbotapi.BotAPI
	http *http.Client
}

// NewClient authenticates against the Bot API with the supplied token.
func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Client{
		bot:  bot,
		http: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Username returns the authenticated bot's username, for startup logs.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// RegisterWebhook points Telegram at the service's public endpoint.
func (c *Client) RegisterWebhook(publicURL string) error {
	wh, err := tgbotapi.NewWebhook(publicURL)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// SendMessage posts text to a chat and returns the new message id.
func (c *Client) SendMessage(chatID int64, text string) (int, error) {
	msg, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendKeyboard posts text with an inline keyboard attached.
func (c *Client) SendKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	cfg := tgbotapi.NewMessage(chatID, text)
	cfg.ReplyMarkup = kb
	msg, err := c.bot.Send(cfg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage replaces the text of an existing bot message.
func (c *Client) EditMessage(chatID int64, messageID int, text string) error {
	_, err := c.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}

// EditKeyboard replaces text and keyboard of an existing bot message.
func (c *Client) EditKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	_, err := c.bot.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb))
	return err
}

// SendDocument uploads a local file to the chat as a document.
func (c *Client) SendDocument(chatID int64, path, caption string) error {
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	cfg.Caption = caption
	_, err := c.bot.Send(cfg)
	return err
}

// SendAudio uploads a local file to the chat as an audio attachment.
func (c *Client) SendAudio(chatID int64, path, caption string) error {
	cfg := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
	cfg.Caption = caption
	_, err := c.bot.Send(cfg)
	return err
}

// AnswerCallback acknowledges a button press so the client UI stops
// showing a loading indicator. With alert set, text pops up as a modal.
func (c *Client) AnswerCallback(callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	_, err := c.bot.Request(cb)
	return err
}

// DownloadFile fetches the bytes of a user-uploaded attachment.
func (c *Client) DownloadFile(fileID string) ([]byte, error) {
	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file %s: unexpected status %s", fileID, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

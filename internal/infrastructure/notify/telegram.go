package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const TelegramAPIURL = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *resty.Client
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return NewTelegramSenderWithURL(TelegramAPIURL, token, chatID)
}

func NewTelegramSenderWithURL(apiURL, token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(apiURL, "/")).
			SetTimeout(10 * time.Second),
	}
}

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": t.chatID,
			"text":    fmt.Sprintf("%s\n%s", title, message),
		}).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return errors.Wrap(err, "telegram: send request")
	}
	if !resp.IsSuccess() {
		return errors.Errorf("telegram: unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}

package notify

import (
	"fmt"
	"net/http"
	"net/url"

	"gexpipe/config"
	"gexpipe/logger"
)

type TelegramNotifier struct {
	config *config.TelegramConfig
	log    *logger.Logger
}

func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		config: cfg,
		log:    logger.L(),
	}
}

func (t *TelegramNotifier) SendMessage(message string) error {
	if t.config.BotToken == "" || t.config.ChatID == "" {
		return nil
	}

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.config.BotToken)

	resp, err := http.PostForm(apiURL, url.Values{
		"chat_id": {t.config.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	return nil
}

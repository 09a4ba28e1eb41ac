package bot

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/route-survey/internal/tracker"
)

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	_, err := b.api.Request(resp)
	return err
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func (b *Bot) editTextAndClear(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		chatID, messageID, text,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	b.send(edit)
}

// downloadTelegramFile скачивает файл по FileID через Telegram API.
func (b *Bot) downloadTelegramFile(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram returned status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func formatSummary(title string, cats []tracker.CategorySummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 %s\n", title)
	for _, c := range cats {
		fmt.Fprintf(&sb, "\n%s: %d/%d (осталось %d)\n", c.Category, c.TotalCompletions, c.TotalLimit, c.TotalRemaining)
		for _, r := range c.Routes {
			mark := ""
			if !r.Active {
				mark = " ⛔"
			}
			name := r.Name
			if name == "" {
				name = r.RouteID
			}
			fmt.Fprintf(&sb, "  • %s: %d/%d%s\n", name, r.CurrentCount, r.Limit, mark)
		}
	}
	return sb.String()
}

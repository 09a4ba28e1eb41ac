package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/route-survey/internal/admin"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
)

const (
	cbReconcileCounted = "rc:c:"
	cbReconcileRetry   = "rc:r:"
)

const helpText = `Команды:
/summary [анкета] — сводка по квотам
/unreconciled [анкета] — отчёты на ручной сверке
/reset <анкета> <маршрут> — обнулить счётчик
/limit <анкета> <маршрут> <N> — новый лимит
/on <анкета> <маршрут>, /off <анкета> <маршрут> — включить/выключить приём
Файл .xlsx — массовый импорт лимитов.`

func (b *Bot) sendHelp(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, helpText)
	msg.ReplyMarkup = adminReplyKeyboard()
	b.send(msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.sendHelp(chatID)
	case "summary":
		if len(args) > 0 {
			b.sendSummary(ctx, chatID, args[0])
			return
		}
		b.sendSummaries(ctx, chatID)
	case "unreconciled":
		qid := ""
		if len(args) > 0 {
			qid = args[0]
		}
		b.sendUnreconciled(ctx, chatID, qid)
	case "reset":
		key, ok := b.keyArgs(chatID, args, 2, "/reset <анкета> <маршрут>")
		if !ok {
			return
		}
		q, err := b.admin.ResetQuota(ctx, key)
		b.replyQuota(chatID, "Счётчик обнулён", q, err)
	case "limit":
		key, ok := b.keyArgs(chatID, args, 3, "/limit <анкета> <маршрут> <N>")
		if !ok {
			return
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Некорректный лимит %q.", args[2])))
			return
		}
		q, err := b.admin.SetLimit(ctx, key, n)
		b.replyQuota(chatID, "Лимит изменён", q, err)
	case "on", "off":
		key, ok := b.keyArgs(chatID, args, 2, "/"+msg.Command()+" <анкета> <маршрут>")
		if !ok {
			return
		}
		q, err := b.admin.SetActive(ctx, key, msg.Command() == "on")
		b.replyQuota(chatID, "Приём отчётов обновлён", q, err)
	default:
		b.sendHelp(chatID)
	}
}

func (b *Bot) keyArgs(chatID int64, args []string, want int, usage string) (quota.Key, bool) {
	if len(args) < want {
		b.send(tgbotapi.NewMessage(chatID, "Формат: "+usage))
		return quota.Key{}, false
	}
	return quota.Key{QuestionnaireID: args[0], RouteID: args[1]}, true
}

func (b *Bot) replyQuota(chatID int64, title string, q quota.RouteQuota, err error) {
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	state := "принимает отчёты"
	if !q.Active {
		state = "приём выключен"
	}
	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("%s: %s\nСчётчик %d/%d, %s.",
		title, q.Key, q.CurrentCount, q.Limit, state)))
}

func describeError(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUnknownQuestionnaire):
		return "Нет такой анкеты."
	case errors.Is(err, catalog.ErrUnknownRoute):
		return "Нет такого маршрута в анкете."
	case errors.Is(err, admin.ErrInvalidLimit):
		return "Лимит не может быть отрицательным."
	case errors.Is(err, admin.ErrBadSheet):
		return "Файл не принят: " + err.Error()
	case errors.Is(err, submissions.ErrAlreadyFinalized):
		return "Отчёт уже закрыт."
	case errors.Is(err, submissions.ErrNotFound):
		return "Отчёт не найден."
	default:
		return "Ошибка: " + err.Error()
	}
}

func (b *Bot) sendSummaries(ctx context.Context, chatID int64) {
	qs, err := b.catalog.Questionnaires(ctx)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	if len(qs) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Анкет нет."))
		return
	}
	for _, q := range qs {
		b.sendSummary(ctx, chatID, q.ID)
	}
}

func (b *Bot) sendSummary(ctx context.Context, chatID int64, questionnaireID string) {
	q, err := b.catalog.Questionnaire(ctx, questionnaireID)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	cats, err := b.summaries.Summary(ctx, questionnaireID)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	title := q.Title
	if title == "" {
		title = q.ID
	}
	b.send(tgbotapi.NewMessage(chatID, formatSummary(title, cats)))
}

// sendUnreconciled присылает по сообщению на каждый отчёт с кнопками решения.
func (b *Bot) sendUnreconciled(ctx context.Context, chatID int64, questionnaireID string) {
	list, err := b.admin.ListUnreconciled(ctx, questionnaireID)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Очередь сверки пуста."))
		return
	}
	for _, r := range list {
		text := fmt.Sprintf("Отчёт %s\nПользователь: %s\nМаршрут: %s/%s\nПричина: %s\nСоздан: %s",
			r.ID, r.UserID, r.QuestionnaireID, r.RouteID, r.Reason, r.CreatedAt.Format("02.01.2006 15:04"))
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = reconcileKeyboard(r.ID)
		b.send(msg)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	var (
		id      string
		counted bool
	)
	switch {
	case strings.HasPrefix(cb.Data, cbReconcileCounted):
		id, counted = strings.TrimPrefix(cb.Data, cbReconcileCounted), true
	case strings.HasPrefix(cb.Data, cbReconcileRetry):
		id = strings.TrimPrefix(cb.Data, cbReconcileRetry)
	default:
		_ = b.answerCallback(cb, "Неизвестная команда", false)
		return
	}

	res, err := b.admin.Reconcile(ctx, id, counted)
	if err != nil {
		_ = b.answerCallback(cb, describeError(err), true)
		return
	}
	_ = b.answerCallback(cb, "Готово", false)

	text := fmt.Sprintf("Отчёт %s принят.", id)
	if !res.Accepted {
		text = fmt.Sprintf("Отчёт %s отклонён: %s.", id, res.Reason)
	}
	b.editTextAndClear(chatID, cb.Message.MessageID, text)
}

// handleImportDocument применяет лимиты из присланного xlsx.
func (b *Bot) handleImportDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !strings.HasSuffix(strings.ToLower(msg.Document.FileName), ".xlsx") {
		b.send(tgbotapi.NewMessage(chatID, "Нужен файл .xlsx."))
		return
	}
	data, err := b.download(msg.Document.FileID)
	if err != nil {
		b.log.Error("download import file", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось скачать файл."))
		return
	}

	rep, err := b.admin.ImportLimits(ctx, bytes.NewReader(data))
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, describeError(err)))
		return
	}
	b.send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Импорт завершён: обновлено %d, пустых строк %d.", rep.Updated, rep.Skipped)))
}

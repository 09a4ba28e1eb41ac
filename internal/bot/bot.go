package bot

import (
	"context"
	"io"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/route-survey/internal/admin"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/recorder"
	"github.com/Spok95/route-survey/internal/tracker"
)

// API: часть tgbotapi.BotAPI, которой пользуется бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

type QuotaAdmin interface {
	ResetQuota(ctx context.Context, key quota.Key) (quota.RouteQuota, error)
	SetLimit(ctx context.Context, key quota.Key, limit int) (quota.RouteQuota, error)
	SetActive(ctx context.Context, key quota.Key, active bool) (quota.RouteQuota, error)
	ListUnreconciled(ctx context.Context, questionnaireID string) ([]submissions.Response, error)
	Reconcile(ctx context.Context, submissionID string, counted bool) (recorder.Result, error)
	ImportLimits(ctx context.Context, r io.Reader) (admin.ImportReport, error)
}

type Summaries interface {
	Summary(ctx context.Context, questionnaireID string) ([]tracker.CategorySummary, error)
}

// Bot отвечает только в админском чате.
type Bot struct {
	api       API
	log       *slog.Logger
	adminChat int64
	catalog   catalog.Provider
	summaries Summaries
	admin     QuotaAdmin
	download  func(fileID string) ([]byte, error)
}

func New(api API, log *slog.Logger, adminChatID int64, cat catalog.Provider, sum Summaries, adm QuotaAdmin) *Bot {
	if log == nil {
		log = slog.Default()
	}
	b := &Bot{
		api: api, log: log, adminChat: adminChatID,
		catalog: cat, summaries: sum, admin: adm,
	}
	b.download = b.downloadTelegramFile
	return b
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		b.onMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.onCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) allowed(chatID int64) bool {
	return b.adminChat != 0 && chatID == b.adminChat
}

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !b.allowed(msg.Chat.ID) {
		if msg.Chat != nil {
			b.send(tgbotapi.NewMessage(msg.Chat.ID, "Нет доступа."))
		}
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Document != nil {
		b.handleImportDocument(ctx, msg)
		return
	}

	switch msg.Text {
	case btnSummary:
		b.sendSummaries(ctx, msg.Chat.ID)
	case btnUnreconciled:
		b.sendUnreconciled(ctx, msg.Chat.ID, "")
	case btnImport:
		b.send(tgbotapi.NewMessage(msg.Chat.ID,
			"Пришлите .xlsx: questionnaire_id | route_id | limit | active (необязательно)."))
	default:
		b.sendHelp(msg.Chat.ID)
	}
}

func (b *Bot) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil || !b.allowed(cb.Message.Chat.ID) {
		_ = b.answerCallback(cb, "Нет доступа", true)
		return
	}
	b.handleCallback(ctx, cb)
}

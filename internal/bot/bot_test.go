package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/route-survey/internal/admin"
	"github.com/Spok95/route-survey/internal/availability"
	"github.com/Spok95/route-survey/internal/config"
	"github.com/Spok95/route-survey/internal/domain/catalog"
	"github.com/Spok95/route-survey/internal/domain/quota"
	"github.com/Spok95/route-survey/internal/domain/submissions"
	"github.com/Spok95/route-survey/internal/recorder"
	"github.com/Spok95/route-survey/internal/tracker"
)

const (
	adminChat = int64(100)
	qid       = "cycling-2025"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return "", nil }

// texts — тексты всех отправленных сообщений и правок.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) last(t *testing.T) string {
	t.Helper()
	texts := f.texts()
	require.NotEmpty(t, texts)
	return texts[len(texts)-1]
}

type env struct {
	bot    *Bot
	api    *fakeAPI
	quotas *quota.MemoryStore
	subs   *submissions.MemoryStore
}

func setup(t *testing.T) *env {
	t.Helper()
	cat, err := catalog.NewStatic(catalog.Questionnaire{
		ID:    qid,
		Title: "Велосипедные маршруты",
		Routes: []catalog.Route{
			{ID: "ring-north", Name: "Северное кольцо", Category: "main-loop"},
			{ID: "old-town", Name: "Старый город", Category: "diverse"},
		},
	})
	require.NoError(t, err)

	e := &env{
		api:    &fakeAPI{updates: make(chan tgbotapi.Update, 1)},
		quotas: quota.NewMemoryStore(),
		subs:   submissions.NewMemoryStore(),
	}
	tr := tracker.New(e.quotas, cat, tracker.CategoryLimits(config.DefaultCategoryLimits), time.Second, nil, nil)
	res := availability.NewResolver(cat, tr, e.subs, nil)
	rec := recorder.New(cat, res, tr, e.subs, nil, nil, nil, recorder.Options{Attempts: 1})
	adm := admin.New(e.quotas, tr, e.subs, rec, nil)
	e.bot = New(e.api, nil, adminChat, cat, tr, adm)
	return e
}

func command(chatID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

var north = quota.Key{RouteID: "ring-north", QuestionnaireID: qid}

func TestOnlyAdminChat(t *testing.T) {
	e := setup(t)
	e.bot.onMessage(context.Background(), command(7, "/limit "+qid+" ring-north 5"))

	require.Equal(t, "Нет доступа.", e.api.last(t))
	_, err := e.quotas.Get(context.Background(), north)
	require.ErrorIs(t, err, quota.ErrQuotaNotFound)
}

func TestQuotaCommands(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	e.bot.onMessage(ctx, command(adminChat, "/limit "+qid+" ring-north 5"))
	require.Contains(t, e.api.last(t), "0/5")
	q, err := e.quotas.Get(ctx, north)
	require.NoError(t, err)
	require.Equal(t, 5, q.Limit)

	e.bot.onMessage(ctx, command(adminChat, "/off "+qid+" ring-north"))
	require.Contains(t, e.api.last(t), "приём выключен")
	q, err = e.quotas.Get(ctx, north)
	require.NoError(t, err)
	require.False(t, q.Active)

	e.bot.onMessage(ctx, command(adminChat, "/reset "+qid+" ring-north"))
	require.Contains(t, e.api.last(t), "Счётчик обнулён")

	e.bot.onMessage(ctx, command(adminChat, "/limit "+qid+" ring-north -1"))
	require.Equal(t, "Лимит не может быть отрицательным.", e.api.last(t))

	e.bot.onMessage(ctx, command(adminChat, "/reset "+qid+" nowhere"))
	require.Equal(t, "Нет такого маршрута в анкете.", e.api.last(t))

	e.bot.onMessage(ctx, command(adminChat, "/reset "+qid))
	require.True(t, strings.HasPrefix(e.api.last(t), "Формат:"))
}

func TestSummary(t *testing.T) {
	e := setup(t)
	e.bot.onMessage(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: adminChat}, Text: btnSummary})

	text := e.api.last(t)
	require.Contains(t, text, "Велосипедные маршруты")
	require.Contains(t, text, "main-loop: 0/70")
	require.Contains(t, text, "Старый город: 0/40")
}

func TestReconcileCallback(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	r, err := e.subs.CreatePending(ctx, submissions.Response{UserID: "u1", QuestionnaireID: qid, RouteID: "ring-north"})
	require.NoError(t, err)
	require.NoError(t, e.subs.MarkUnreconciled(ctx, r.ID, "admission unresolved"))

	e.bot.onMessage(ctx, command(adminChat, "/unreconciled"))
	require.Contains(t, e.api.last(t), r.ID)

	e.bot.onCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    cbReconcileRetry + r.ID,
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: adminChat}},
	})
	require.Equal(t, "Отчёт "+r.ID+" принят.", e.api.last(t))
	require.Len(t, e.api.requests, 1)

	got, err := e.subs.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, submissions.StatusAccepted, got.Status)
	q, err := e.quotas.Get(ctx, north)
	require.NoError(t, err)
	require.Equal(t, 1, q.CurrentCount)

	e.bot.onMessage(ctx, command(adminChat, "/unreconciled"))
	require.Equal(t, "Очередь сверки пуста.", e.api.last(t))
}

func TestImportDocument(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"questionnaire_id", "route_id", "limit", "active"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{qid, "old-town", 9, "0"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	e.bot.download = func(string) ([]byte, error) { return buf.Bytes(), nil }

	e.bot.onMessage(ctx, &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: adminChat},
		Document: &tgbotapi.Document{FileID: "f1", FileName: "limits.xlsx"},
	})
	require.Contains(t, e.api.last(t), "обновлено 1")

	q, err := e.quotas.Get(ctx, quota.Key{RouteID: "old-town", QuestionnaireID: qid})
	require.NoError(t, err)
	require.Equal(t, 9, q.Limit)
	require.False(t, q.Active)

	e.bot.onMessage(ctx, &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: adminChat},
		Document: &tgbotapi.Document{FileID: "f2", FileName: "limits.csv"},
	})
	require.Equal(t, "Нужен файл .xlsx.", e.api.last(t))
}

func TestRunStopsOnCancel(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.bot.Run(ctx, 1) }()

	e.api.updates <- tgbotapi.Update{Message: command(adminChat, "/help")}
	require.Eventually(t, func() bool { return len(e.api.texts()) > 0 }, time.Second, 5*time.Millisecond)
	require.False(t, e.api.isStopped())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	require.True(t, e.api.isStopped())
}

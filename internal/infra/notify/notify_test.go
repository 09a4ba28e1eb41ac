package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got []tgbotapi.Chattable
	err error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.got = append(f.got, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegram_Notify(t *testing.T) {
	s := &fakeSender{}
	tg := &Telegram{api: s, chatID: 42}

	require.NoError(t, tg.Notify(context.Background(), "check submission"))
	require.Len(t, s.got, 1)
	msg, ok := s.got[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.EqualValues(t, 42, msg.ChatID)
	require.Equal(t, "check submission", msg.Text)
}

func TestTelegram_NotifyErrors(t *testing.T) {
	s := &fakeSender{err: errors.New("bad gateway")}
	tg := &Telegram{api: s, chatID: 42}
	require.Error(t, tg.Notify(context.Background(), "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, tg.Notify(ctx, "x"), context.Canceled)
	require.Len(t, s.got, 1)
}

// stalledSender висит, пока тест не отпустит release.
type stalledSender struct{ release chan struct{} }

func (s stalledSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	<-s.release
	return tgbotapi.Message{}, nil
}

func TestTelegram_NotifyRespectsDeadline(t *testing.T) {
	s := stalledSender{release: make(chan struct{})}
	defer close(s.release)
	tg := &Telegram{api: s, chatID: 42}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tg.Notify(ctx, "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

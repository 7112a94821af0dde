package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []*bot.SendMessageParams
	failOn map[int64]error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("send without deadline")
	}
	if err := f.failOn[params.ChatID.(int64)]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, params)
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

func TestTelegramNotificationService_NotifyUser(t *testing.T) {
	sender := &fakeSender{}
	svc := NewTelegramNotificationService(sender, nil, 0)

	require.NoError(t, svc.NotifyUser(context.Background(), 777, "<b>hi</b>"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(777), sender.sent[0].ChatID)
	assert.Equal(t, "<b>hi</b>", sender.sent[0].Text)
	assert.Equal(t, tgmodels.ParseModeHTML, sender.sent[0].ParseMode)

	assert.Error(t, svc.NotifyUser(context.Background(), 0, "nobody"))
	assert.Len(t, sender.sent, 1)
}

func TestTelegramNotificationService_NotifyAdmins(t *testing.T) {
	errBlocked := errors.New("bot was blocked by the user")
	sender := &fakeSender{failOn: map[int64]error{2: errBlocked}}
	svc := NewTelegramNotificationService(sender, []int64{1, 2, 3}, 0)

	err := svc.NotifyAdmins(context.Background(), "top-up")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBlocked)

	// a failing admin chat does not stop delivery to the others
	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(1), sender.sent[0].ChatID)
	assert.Equal(t, int64(3), sender.sent[1].ChatID)
}

func TestMockNotificationService(t *testing.T) {
	mock := NewMockNotificationService()
	require.NoError(t, mock.NotifyUser(context.Background(), 5, "user"))
	require.NoError(t, mock.NotifyAdmins(context.Background(), "admin"))

	msgs := mock.GetSentMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, SentMessage{ChatID: 5, Message: "user"}, msgs[0])
	assert.Equal(t, SentMessage{Admin: true, Message: "admin"}, msgs[1])

	mock.ClearSentMessages()
	assert.Empty(t, mock.GetSentMessages())

	mock.Err = errors.New("down")
	assert.Error(t, mock.NotifyUser(context.Background(), 5, "user"))
}

func TestNewTelegramBot_RequiresToken(t *testing.T) {
	_, err := NewTelegramBot("")
	assert.Error(t, err)
}

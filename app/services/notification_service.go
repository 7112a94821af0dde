// Package services provides external service integrations: payment providers, retries and notifications
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// NotificationService delivers chat messages to users and admins
type NotificationService interface {
	NotifyUser(ctx context.Context, telegramID int64, text string) error
	NotifyAdmins(ctx context.Context, text string) error
}

// MessageSender is the subset of *bot.Bot used for delivery
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramNotificationService sends HTML messages through the Bot API
type TelegramNotificationService struct {
	sender       MessageSender
	adminChatIDs []int64
	sendTimeout  time.Duration
}

// NewTelegramBot creates a send-only bot client; getMe is skipped so startup never blocks on Telegram
func NewTelegramBot(token string) (*bot.Bot, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	return bot.New(token, bot.WithSkipGetMe())
}

// NewTelegramNotificationService creates a notification service backed by sender
func NewTelegramNotificationService(sender MessageSender, adminChatIDs []int64, sendTimeout time.Duration) NotificationService {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &TelegramNotificationService{
		sender:       sender,
		adminChatIDs: adminChatIDs,
		sendTimeout:  sendTimeout,
	}
}

// NotifyUser sends text to one chat
func (s *TelegramNotificationService) NotifyUser(ctx context.Context, telegramID int64, text string) error {
	if telegramID == 0 {
		return fmt.Errorf("invalid telegram chat id")
	}
	return s.send(ctx, telegramID, text)
}

// NotifyAdmins sends text to every admin chat and joins the failures
func (s *TelegramNotificationService) NotifyAdmins(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range s.adminChatIDs {
		if err := s.send(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("admin %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *TelegramNotificationService) send(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	_, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// SentMessage is a message recorded by MockNotificationService
type SentMessage struct {
	ChatID  int64
	Admin   bool
	Message string
}

// MockNotificationService records messages instead of sending them
type MockNotificationService struct {
	mu       sync.Mutex
	messages []SentMessage
	Err      error
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) NotifyUser(ctx context.Context, telegramID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, SentMessage{ChatID: telegramID, Message: text})
	return nil
}

func (m *MockNotificationService) NotifyAdmins(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, SentMessage{Admin: true, Message: text})
	return nil
}

// GetSentMessages returns a copy of every recorded message
func (m *MockNotificationService) GetSentMessages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// ClearSentMessages drops every recorded message
func (m *MockNotificationService) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

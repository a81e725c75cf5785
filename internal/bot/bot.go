package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/production"
)

// API — часть *tgbotapi.BotAPI, которой пользуется бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

type UserStore interface {
	GetByTelegramID(ctx context.Context, tgID int64) (*users.User, error)
	RegisterTelegram(ctx context.Context, tgID int64, name string) (*users.User, error)
	Approve(ctx context.Context, tgID int64, role users.Role) (*users.User, error)
	Reject(ctx context.Context, tgID int64) (*users.User, error)
	ListByRole(ctx context.Context, role users.Role, status users.Status) ([]users.User, error)
}

type StateStore interface {
	Get(ctx context.Context, chatID int64) (*dialog.Item, error)
	Set(ctx context.Context, chatID int64, state dialog.State, payload dialog.Payload) error
	Reset(ctx context.Context, chatID int64) error
}

type Bot struct {
	api       API
	log       *slog.Logger
	users     UserStore
	states    StateStore
	svc       *production.Service
	adminChat int64
	loc       *time.Location
	download  func(url string) ([]byte, error)
}

func New(api API, log *slog.Logger,
	usersRepo UserStore, statesRepo StateStore,
	svc *production.Service, adminChatID int64, loc *time.Location) *Bot {

	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		api: api, log: log, users: usersRepo, states: statesRepo,
		svc: svc, adminChat: adminChatID, loc: loc,
		download: httpGet,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
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
	if upd.Message != nil {
		b.onMessage(ctx, upd)
	} else if upd.CallbackQuery != nil {
		b.onCallback(ctx, upd)
	}
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery.Message == nil {
		return
	}
	b.handleCallback(ctx, upd.CallbackQuery)
}

// approvedUser — пользователь, которому разрешена работа с ботом, иначе nil.
func (b *Bot) approvedUser(ctx context.Context, tgID int64) *users.User {
	u, err := b.users.GetByTelegramID(ctx, tgID)
	if err != nil {
		b.log.Error("get user failed", "tg_id", tgID, "err", err)
		return nil
	}
	if !u.Approved() {
		return nil
	}
	return u
}

// notifyAdmins рассылает сообщение в админский чат и всем подтверждённым админам.
func (b *Bot) notifyAdmins(ctx context.Context, text string) {
	sent := map[int64]bool{}
	sendOnce := func(chatID int64) {
		if chatID == 0 || sent[chatID] {
			return
		}
		sent[chatID] = true
		b.send(tgbotapi.NewMessage(chatID, text))
	}

	sendOnce(b.adminChat)
	if list, err := b.users.ListByRole(ctx, users.RoleAdmin, users.StatusApproved); err == nil {
		for _, u := range list {
			sendOnce(u.TelegramID)
		}
	}
}

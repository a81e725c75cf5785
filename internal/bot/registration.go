package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/users"
)

func (b *Bot) askName(ctx context.Context, chatID int64) {
	b.sendStep(ctx, chatID, "Введите, пожалуйста, ФИО одной строкой.", navKeyboard(false, true), dialog.StateAwaitName, dialog.Payload{})
}

func (b *Bot) onNameEntered(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	name := strings.TrimSpace(msg.Text)
	if utf8.RuneCountInString(name) < 3 {
		b.send(tgbotapi.NewMessage(chatID, "ФИО выглядит пустым. Введите корректно."))
		return
	}
	p := st.Payload
	p["name"] = name
	text := fmt.Sprintf("Проверьте данные:\n— ФИО: %s\n\nОтправить заявку администратору?", name)
	b.sendStep(ctx, chatID, text, confirmKeyboard(), dialog.StateAwaitConfirm, p)
}

func (b *Bot) onRequestSend(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateAwaitConfirm {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	name, _ := dialog.GetString(st.Payload, "name")
	if _, err := b.users.RegisterTelegram(ctx, cb.From.ID, name); err != nil {
		b.log.Error("register user failed", "tg_id", cb.From.ID, "err", err)
		b.answerCallback(cb, "Ошибка, попробуйте позже", true)
		return
	}
	b.editTextAndClear(chatID, cb.Message.MessageID, "Заявка отправлена администратору. Ожидайте решения.")
	_ = b.states.Reset(ctx, chatID)

	text := fmt.Sprintf(
		"Новая заявка на доступ:\n— ФИО: %s\n— Telegram: @%s (id %d)\n\nОдобрить?",
		name, cb.From.UserName, cb.From.ID,
	)
	m := tgbotapi.NewMessage(b.adminChat, text)
	m.ReplyMarkup = approveKeyboard(cb.From.ID)
	b.send(m)
	b.answerCallback(cb, "Отправлено", false)
}

// canModerate — заявки разбирает админский чат или подтверждённый админ.
func (b *Bot) canModerate(ctx context.Context, cb *tgbotapi.CallbackQuery) bool {
	if cb.Message.Chat.ID == b.adminChat {
		return true
	}
	u := b.approvedUser(ctx, cb.From.ID)
	return u.IsAdmin()
}

func (b *Bot) onApprove(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	if !b.canModerate(ctx, cb) {
		b.answerCallback(cb, "Недостаточно прав", true)
		return
	}
	parts := strings.Split(strings.TrimPrefix(data, "approve:"), ":")
	if len(parts) != 2 {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	tgID, err := strconv.ParseInt(parts[0], 10, 64)
	role := users.Role(parts[1])
	if err != nil || (role != users.RoleOperator && role != users.RoleAdmin) {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	if _, err := b.users.Approve(ctx, tgID, role); err != nil {
		b.log.Error("approve user failed", "tg_id", tgID, "err", err)
		b.answerCallback(cb, "Ошибка при одобрении", true)
		return
	}
	b.editTextAndClear(cb.Message.Chat.ID, cb.Message.MessageID, cb.Message.Text+"\n\n✅ Заявка подтверждена")

	m := tgbotapi.NewMessage(tgID, "Доступ открыт. Пользуйтесь меню снизу.")
	if role == users.RoleAdmin {
		m.ReplyMarkup = adminReplyKeyboard()
	} else {
		m.ReplyMarkup = operatorReplyKeyboard()
	}
	b.send(m)
	b.answerCallback(cb, "Подтверждено", false)
}

func (b *Bot) onReject(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	if !b.canModerate(ctx, cb) {
		b.answerCallback(cb, "Недостаточно прав", true)
		return
	}
	tgID, err := strconv.ParseInt(strings.TrimPrefix(data, "reject:"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	if _, err := b.users.Reject(ctx, tgID); err != nil {
		b.log.Error("reject user failed", "tg_id", tgID, "err", err)
		b.answerCallback(cb, "Ошибка при отклонении", true)
		return
	}
	b.editTextAndClear(cb.Message.Chat.ID, cb.Message.MessageID, cb.Message.Text+"\n\n⛔ Заявка отклонена")
	b.send(tgbotapi.NewMessage(tgID, "Заявка отклонена. Введите ФИО, чтобы подать заявку ещё раз."))
	b.askName(ctx, tgID)
	b.answerCallback(cb, "Отклонено", false)
}

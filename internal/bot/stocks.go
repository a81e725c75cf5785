package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/importer"
	"github.com/Spok95/factory-bot/internal/production"
)

/*** Остатки ***/

func (b *Bot) showStocks(ctx context.Context, chatID int64) {
	list, err := b.svc.Materials(ctx)
	if err != nil {
		b.log.Error("list materials failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить остатки."))
		return
	}
	alerts, err := b.svc.Alerts(ctx)
	if err != nil {
		b.log.Error("list alerts failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить остатки."))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Позиций на складе: %d\n", len(list))
	if len(alerts) == 0 {
		sb.WriteString("Все позиции выше минимального остатка 🟢")
	} else {
		sb.WriteString("\nТребуют внимания:\n")
		for _, a := range alerts {
			m := a.Material
			fmt.Fprintf(&sb, "%s %s: %s %s (минимум %s)\n", a.Level.Badge(), m.Name, m.OnHand.String(), m.Unit, m.MinThreshold.String())
		}
	}
	m := tgbotapi.NewMessage(chatID, sb.String())
	m.ReplyMarkup = stocksKeyboard()
	b.send(m)
}

func (b *Bot) onStockExport(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	list, err := b.svc.Materials(ctx)
	if err != nil {
		b.log.Error("list materials failed", "err", err)
		b.answerCallback(cb, "Ошибка выгрузки", true)
		return
	}
	data, err := importer.StockXLSX(list, b.svc.LowStockFactor())
	if err != nil {
		b.log.Error("render stock xlsx failed", "err", err)
		b.answerCallback(cb, "Ошибка выгрузки", true)
		return
	}
	b.sendFile(cb.Message.Chat.ID, "estoque.xlsx", data, "Остатки сырья")
	b.answerCallback(cb, "Готово", false)
}

/*** Приход (админ) ***/

func (b *Bot) startReceive(ctx context.Context, chatID int64) {
	list, err := b.svc.Materials(ctx)
	if err != nil {
		b.log.Error("list materials failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить справочник сырья."))
		return
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Справочник сырья пуст. Загрузите его через «Импорт Excel»."))
		return
	}
	names := make([]string, 0, len(list))
	for _, m := range list {
		names = append(names, m.Name)
	}
	b.sendStep(ctx, chatID, "Приход: выберите сырьё.", listKeyboard("rcv:mat", names, false),
		dialog.StateReceivePick, dialog.Payload{"materials": names})
}

func (b *Bot) onReceiveMaterial(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateReceivePick {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	name, ok := pick(dialog.GetStrings(st.Payload, "materials"), strings.TrimPrefix(data, "rcv:mat:"))
	if !ok {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	p := st.Payload
	p["material"] = name
	b.editText(chatID, cb.Message.MessageID,
		fmt.Sprintf("Приход «%s»: введите количество.\nЕсли изменилась цена, укажите её через пробел: 25 3,80", name),
		navKeyboard(true, true))
	b.saveLastStep(ctx, chatID, dialog.StateReceiveQty, p, cb.Message.MessageID)
	b.answerCallback(cb, name, false)
}

func (b *Bot) onReceiveQty(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item, u *users.User) {
	chatID := msg.Chat.ID
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || len(fields) > 2 {
		b.send(tgbotapi.NewMessage(chatID, "Введите количество и, при необходимости, цену через пробел."))
		return
	}
	qty, err := parseQty(fields[0])
	if err != nil || !qty.IsPositive() {
		b.send(tgbotapi.NewMessage(chatID, "Количество должно быть числом больше нуля."))
		return
	}
	var cost *decimal.Decimal
	if len(fields) == 2 {
		c, err := parseQty(fields[1])
		if err != nil || c.IsNegative() {
			b.send(tgbotapi.NewMessage(chatID, "Цена должна быть числом не меньше нуля."))
			return
		}
		cost = &c
	}

	name, _ := dialog.GetString(st.Payload, "material")
	if err := b.svc.Receive(ctx, u.Name, name, qty, cost, "telegram"); err != nil {
		b.log.Error("receive failed", "material", name, "err", err)
		if production.IsValidation(err) {
			b.send(tgbotapi.NewMessage(chatID, "Приход не проведён: проверьте данные."))
		} else {
			b.send(tgbotapi.NewMessage(chatID, "Ошибка при проведении прихода."))
		}
		return
	}
	b.clearPrevStep(ctx, chatID)
	_ = b.states.Reset(ctx, chatID)

	text := fmt.Sprintf("✅ Приход проведён: %s +%s", name, qty.String())
	if m, err := b.svc.Material(ctx, name); err == nil && m != nil {
		text += fmt.Sprintf(" %s\nОстаток: %s %s", m.Unit, m.OnHand.String(), m.Unit)
		if cost != nil {
			text += "\nЦена: " + costing.Money(m.UnitCost)
		}
	}
	b.send(tgbotapi.NewMessage(chatID, text))
}

package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnProduction = "Производство"
	btnStocks     = "Остатки"
	btnHistory    = "История"
	btnReceive    = "Приход"
	btnImport     = "Импорт Excel"
	btnSafety     = "Паспорт безопасности"
)

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📨 Отправить", "rq:send"),
		),
		navKeyboard(false, true).InlineKeyboard[0],
	)
}

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// listKeyboard — по кнопке на элемент; в callback только индекс,
// сами названия лежат в payload (лимит callback data — 64 байта).
func listKeyboard(prefix string, items []string, back bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items)+1)
	for i, it := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(it, fmt.Sprintf("%s:%d", prefix, i)),
		))
	}
	rows = append(rows, navKeyboard(back, true).InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func batchReviewKeyboard(canFinalize bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Фактический расход", "batch:edit"),
		),
	}
	if canFinalize {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Провести партию", "batch:confirm"),
		))
	}
	rows = append(rows, navKeyboard(true, true).InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func stocksKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📥 Все остатки (Excel)", "stock:xlsx"),
		),
	)
}

func historyKeyboard(ids []int64) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	row := []tgbotapi.InlineKeyboardButton{}
	for _, id := range ids {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("PDF #%d", id), fmt.Sprintf("hist:pdf:%d", id)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = []tgbotapi.InlineKeyboardButton{}
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📥 Журнал (Excel)", "hist:xlsx"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func approveKeyboard(tgID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Оператор", fmt.Sprintf("approve:%d:operator", tgID)),
			tgbotapi.NewInlineKeyboardButtonData("👑 Админ", fmt.Sprintf("approve:%d:admin", tgID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⛔ Отклонить", fmt.Sprintf("reject:%d", tgID)),
		),
	)
}

// adminReplyKeyboard Нижняя панель (ReplyKeyboard) для админа
func adminReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]tgbotapi.KeyboardButton{
			{tgbotapi.NewKeyboardButton(btnProduction)},
			{tgbotapi.NewKeyboardButton(btnStocks), tgbotapi.NewKeyboardButton(btnHistory)},
			{tgbotapi.NewKeyboardButton(btnSafety)},
			{tgbotapi.NewKeyboardButton(btnReceive), tgbotapi.NewKeyboardButton(btnImport)},
		},
	}
}

func operatorReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]tgbotapi.KeyboardButton{
			{tgbotapi.NewKeyboardButton(btnProduction)},
			{tgbotapi.NewKeyboardButton(btnStocks), tgbotapi.NewKeyboardButton(btnHistory)},
			{tgbotapi.NewKeyboardButton(btnSafety)},
		},
	}
}

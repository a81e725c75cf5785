package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/importer"
	"github.com/Spok95/factory-bot/internal/report"
)

const (
	historyPageSize  = 10
	historyExportCap = 5000
)

func (b *Bot) showHistory(ctx context.Context, chatID int64) {
	list, err := b.svc.History(ctx, historyPageSize, 0)
	if err != nil {
		b.log.Error("list history failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить журнал."))
		return
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Журнал пуст: партий ещё не было."))
		return
	}

	var sb strings.Builder
	sb.WriteString("Последние партии:\n\n")
	ids := make([]int64, 0, len(list))
	for _, r := range list {
		fmt.Fprintf(&sb, "#%d %s · %s × %s · %s\n   план %s / факт %s (%s)\n",
			r.ID, r.CreatedAt.In(b.loc).Format("02.01 15:04"),
			r.Product, r.Multiplier.String(), r.Operator,
			costing.Money(r.PlannedCost), costing.Money(r.ActualCost), history.StatusLabel(r.Status))
		ids = append(ids, r.ID)
	}
	m := tgbotapi.NewMessage(chatID, sb.String())
	m.ReplyMarkup = historyKeyboard(ids)
	b.send(m)
}

func (b *Bot) onHistoryPDF(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, "hist:pdf:"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	rec, err := b.svc.Record(ctx, id)
	if err != nil {
		b.log.Error("get history record failed", "id", id, "err", err)
		b.answerCallback(cb, "Ошибка загрузки", true)
		return
	}
	if rec == nil {
		b.answerCallback(cb, "Партия не найдена", true)
		return
	}
	pdf, err := report.BatchPDF(rec, b.loc)
	if err != nil {
		b.log.Error("render batch pdf failed", "record_id", id, "err", err)
		b.answerCallback(cb, "Ошибка формирования отчёта", true)
		return
	}
	b.sendFile(cb.Message.Chat.ID, report.FileName(rec), pdf, fmt.Sprintf("Отчёт по партии #%d", rec.ID))
	b.answerCallback(cb, "Готово", false)
}

func (b *Bot) onHistoryExport(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	list, err := b.svc.History(ctx, historyExportCap, 0)
	if err != nil {
		b.log.Error("list history failed", "err", err)
		b.answerCallback(cb, "Ошибка выгрузки", true)
		return
	}
	data, err := importer.HistoryXLSX(list, b.loc)
	if err != nil {
		b.log.Error("render history xlsx failed", "err", err)
		b.answerCallback(cb, "Ошибка выгрузки", true)
		return
	}
	b.sendFile(cb.Message.Chat.ID, "historico.xlsx", data, "Журнал производства")
	b.answerCallback(cb, "Готово", false)
}

package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/importer"
)

func (b *Bot) startImport(ctx context.Context, chatID int64) {
	text := fmt.Sprintf("Пришлите файл .xlsx с листами «%s» и «%s».\n"+
		"Сырьё и строки рецептур из файла будут добавлены или обновлены; пустые ячейки не меняют карточку. "+
		"Для паспортов безопасности можно добавить листы «%s», «%s» и «%s».\n"+
		"При ошибке ничего не изменится.",
		importer.SheetMaterials, importer.SheetRecipes,
		importer.SheetProducts, importer.SheetHazards, importer.SheetPrecautions)
	b.sendStep(ctx, chatID, text, navKeyboard(false, true), dialog.StateImportFile, dialog.Payload{})
}

func (b *Bot) onImportDocument(ctx context.Context, msg *tgbotapi.Message, u *users.User) {
	chatID := msg.Chat.ID
	doc := msg.Document
	if doc == nil || !strings.HasSuffix(strings.ToLower(doc.FileName), ".xlsx") {
		b.send(tgbotapi.NewMessage(chatID, "Нужен файл Excel (.xlsx)."))
		return
	}
	data, err := b.downloadTelegramFile(doc.FileID)
	if err != nil {
		b.log.Error("download import file failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось скачать файл, попробуйте ещё раз."))
		return
	}

	sum, err := importer.Import(ctx, b.svc.Store(), bytes.NewReader(data), u.Name)
	if err != nil {
		var rowErr *importer.RowError
		switch {
		case errors.As(err, &rowErr):
			b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Ошибка в файле: лист «%s», строка %d: %v", rowErr.Sheet, rowErr.Row, rowErr.Err)))
		case errors.Is(err, importer.ErrMissingSheet), errors.Is(err, importer.ErrBadWorkbook):
			b.send(tgbotapi.NewMessage(chatID, "Файл не подходит: "+err.Error()))
		default:
			b.log.Error("import failed", "file", doc.FileName, "err", err)
			b.send(tgbotapi.NewMessage(chatID, "Ошибка импорта."))
		}
		return
	}

	b.clearPrevStep(ctx, chatID)
	_ = b.states.Reset(ctx, chatID)
	b.log.Info("workbook imported", "file", doc.FileName, "by", u.Name,
		"materials", sum.Materials, "lines", sum.Lines, "products", sum.Products, "adjusted", sum.Adjusted)
	text := fmt.Sprintf("✅ Импорт завершён\nСырьё: %d\nСтроки рецептур: %d\nПродукты: %d",
		sum.Materials, sum.Lines, sum.Products)
	if sum.Adjusted > 0 {
		text += fmt.Sprintf("\nОстатки изменены: %d", sum.Adjusted)
	}
	if sum.Sheets > 0 || sum.Phrases > 0 {
		text += fmt.Sprintf("\nПаспорта: %d, фразы H/P: %d", sum.Sheets, sum.Phrases)
	}
	b.send(tgbotapi.NewMessage(chatID, text))
}

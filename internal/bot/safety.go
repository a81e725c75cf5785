package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/report"
)

/*** Паспорт безопасности (ФДС) ***/

// лимит сообщения Telegram — 4096 символов
const phraseListLimit = 3500

func (b *Bot) startSafety(ctx context.Context, chatID int64) {
	products, err := b.svc.SafetyProducts(ctx)
	if err != nil {
		b.log.Error("list safety products failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить список продуктов."))
		return
	}
	if len(products) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Продуктов пока нет. Загрузите справочник через «Импорт Excel»."))
		return
	}
	b.sendStep(ctx, chatID, "Паспорт безопасности: выберите продукт.", listKeyboard("fds:prod", products, false),
		dialog.StateSafetyProduct, dialog.Payload{"products": products})
}

func (b *Bot) onSafetyProduct(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateSafetyProduct {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	product, ok := pick(dialog.GetStrings(st.Payload, "products"), strings.TrimPrefix(data, "fds:prod:"))
	if !ok {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	p := st.Payload
	p["product"] = product
	b.askPhrases(ctx, chatID, cb.Message.MessageID, p, safety.KindHazard)
	b.answerCallback(cb, product, false)
}

// askPhrases показывает справочник фраз и ждёт коды. messageID = 0 — новым сообщением.
func (b *Bot) askPhrases(ctx context.Context, chatID int64, messageID int, p dialog.Payload, kind safety.Kind) {
	list, err := b.svc.SafetyPhrases(ctx, kind)
	if err != nil {
		b.log.Error("list safety phrases failed", "kind", kind, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить справочник фраз."))
		return
	}
	next, title := dialog.StateSafetyHazards, "Фразы опасности (H)"
	if kind == safety.KindPrecaution {
		next, title = dialog.StateSafetyPrecautions, "Меры предосторожности (P)"
	}
	product, _ := dialog.GetString(p, "product")
	text := fmt.Sprintf("Продукт: %s\n%s:\n%s\n\nВведите коды через пробел или «-», если фразы не нужны.",
		product, title, phraseList(list))

	if messageID == 0 {
		b.sendStep(ctx, chatID, text, navKeyboard(true, true), next, p)
		return
	}
	b.editText(chatID, messageID, text, navKeyboard(true, true))
	b.saveLastStep(ctx, chatID, next, p, messageID)
}

func phraseList(list []safety.Phrase) string {
	if len(list) == 0 {
		return "справочник пуст"
	}
	var sb strings.Builder
	for i, ph := range list {
		line := ph.Code + " — " + ph.Text + "\n"
		if sb.Len()+len(line) > phraseListLimit {
			fmt.Fprintf(&sb, "…и ещё %d", len(list)-i)
			break
		}
		sb.WriteString(line)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) onHazardCodes(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	codes, ok := b.checkCodes(ctx, msg.Chat.ID, msg.Text, safety.KindHazard)
	if !ok {
		return
	}
	p := st.Payload
	p["hazards"] = strings.Join(codes, " ")
	b.askPhrases(ctx, msg.Chat.ID, 0, p, safety.KindPrecaution)
}

func (b *Bot) onPrecautionCodes(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	codes, ok := b.checkCodes(ctx, chatID, msg.Text, safety.KindPrecaution)
	if !ok {
		return
	}
	product, _ := dialog.GetString(st.Payload, "product")
	hazards, _ := dialog.GetString(st.Payload, "hazards")

	sheet, err := b.svc.SafetySheet(ctx, product, safety.ParseCodes(hazards), codes)
	if err != nil {
		b.log.Warn("safety sheet failed", "product", product, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось собрать паспорт: "+userError(err)))
		return
	}
	data, err := report.SafetySheetPDF(sheet, time.Now().In(b.loc))
	if err != nil {
		b.log.Error("render safety pdf failed", "product", product, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Ошибка при формировании PDF."))
		return
	}
	b.clearPrevStep(ctx, chatID)
	_ = b.states.Reset(ctx, chatID)
	b.sendFile(chatID, report.SafetySheetFileName(sheet.Product), data, "ФДС: "+sheet.Product)
}

// checkCodes разбирает ввод и сверяет коды со справочником; об ошибке сообщает сам.
func (b *Bot) checkCodes(ctx context.Context, chatID int64, text string, kind safety.Kind) ([]string, bool) {
	codes := safety.ParseCodes(text)
	all, err := b.svc.SafetyPhrases(ctx, kind)
	if err != nil {
		b.log.Error("list safety phrases failed", "kind", kind, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить справочник фраз."))
		return nil, false
	}
	if _, err := safety.Pick(all, codes); err != nil {
		var unknown *safety.UnknownPhraseError
		if errors.As(err, &unknown) {
			b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Кода %s нет в справочнике. Введите коды ещё раз.", unknown.Code)))
		} else {
			b.send(tgbotapi.NewMessage(chatID, userError(err)))
		}
		return nil, false
	}
	return codes, true
}

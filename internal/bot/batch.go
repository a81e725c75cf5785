package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/production"
	"github.com/Spok95/factory-bot/internal/report"
)

/*** Производство партии ***/

func (b *Bot) startBatch(ctx context.Context, chatID int64) {
	products, err := b.svc.Products(ctx)
	if err != nil {
		b.log.Error("list products failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось загрузить рецептуры."))
		return
	}
	if len(products) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Рецептуры ещё не загружены. Обратитесь к администратору."))
		return
	}
	p := dialog.Payload{"products": products}
	b.sendStep(ctx, chatID, "Выберите продукт:", listKeyboard("batch:prod", products, false), dialog.StateBatchProduct, p)
}

func (b *Bot) onBatchProduct(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateBatchProduct {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	product, ok := pick(dialog.GetStrings(st.Payload, "products"), strings.TrimPrefix(data, "batch:prod:"))
	if !ok {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	p := st.Payload
	p["product"] = product
	b.askMultiplier(ctx, chatID, cb.Message.MessageID, p)
	b.answerCallback(cb, product, false)
}

func (b *Bot) askMultiplier(ctx context.Context, chatID int64, messageID int, p dialog.Payload) {
	product, _ := dialog.GetString(p, "product")
	text := fmt.Sprintf("Продукт: %s\nВведите множитель партии (например 1 или 2,5).", product)
	b.editText(chatID, messageID, text, navKeyboard(true, true))
	b.saveLastStep(ctx, chatID, dialog.StateBatchMultiplier, p, messageID)
}

func (b *Bot) onMultiplierEntered(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	m, err := parseQty(msg.Text)
	if err != nil || !m.IsPositive() {
		b.send(tgbotapi.NewMessage(chatID, "Множитель должен быть числом больше нуля. Попробуйте ещё раз."))
		return
	}
	p := st.Payload
	p["multiplier"] = m.String()
	dialog.SetDecimalMap(p, "actual", map[string]decimal.Decimal{})
	// ключ подтверждения живёт, пока жив этот расчёт; повторное
	// нажатие «Провести» не спишет склад второй раз
	p["request_key"] = uuid.NewString()
	b.showReview(ctx, chatID, 0, p)
}

// showReview показывает расчёт партии. messageID = 0 — новым сообщением.
func (b *Bot) showReview(ctx context.Context, chatID int64, messageID int, p dialog.Payload) {
	product, _ := dialog.GetString(p, "product")
	mult, _ := dialog.GetDecimal(p, "multiplier")
	q, err := b.svc.Quote(ctx, production.QuoteRequest{
		Product:    product,
		Multiplier: mult,
		Actual:     dialog.GetDecimalMap(p, "actual"),
	})
	if err != nil {
		b.log.Warn("quote failed", "product", product, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось рассчитать партию: "+userError(err)))
		return
	}

	text := reviewText(q)
	kb := batchReviewKeyboard(q.CanFinalize())
	if messageID == 0 {
		b.sendStep(ctx, chatID, text, kb, dialog.StateBatchReview, p)
		return
	}
	b.editText(chatID, messageID, text, kb)
	b.saveLastStep(ctx, chatID, dialog.StateBatchReview, p, messageID)
}

func reviewText(q production.Quote) string {
	c := q.Costing
	var sb strings.Builder
	fmt.Fprintf(&sb, "Партия: %s × %s\n\n", c.Product, c.Multiplier.String())
	for _, it := range c.Items {
		fmt.Fprintf(&sb, "• %s: план %s %s, факт %s %s × %s = %s\n",
			it.Ingredient,
			it.PlannedQty.String(), it.Unit,
			it.ActualQty.String(), it.Unit,
			costing.Money(it.UnitCost), costing.Money(it.ActualCost),
		)
	}
	fmt.Fprintf(&sb, "\nПлан: %s\nФакт: %s\nОтклонение: %s (%s)",
		costing.Money(c.Planned), costing.Money(c.Actual), costing.Money(c.Variance), history.StatusLabel(c.Status))
	if len(q.Shortages) > 0 {
		sb.WriteString("\n\n⛔ Не хватает на складе:\n")
		sb.WriteString(shortageLines(q.Shortages))
	}
	return sb.String()
}

func shortageLines(list []costing.Shortage) string {
	var sb strings.Builder
	for _, s := range list {
		fmt.Fprintf(&sb, "• %s: нужно %s %s, есть %s %s (не хватает %s)\n",
			s.Ingredient, s.Required.String(), s.Unit, s.OnHand.String(), s.Unit, s.Missing().String())
	}
	return sb.String()
}

func (b *Bot) onBatchEdit(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateBatchReview {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	product, _ := dialog.GetString(st.Payload, "product")
	lines, err := b.svc.Recipe(ctx, product)
	if err != nil || len(lines) == 0 {
		b.answerCallback(cb, "Рецептура недоступна", true)
		return
	}
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, l.Ingredient)
	}
	p := st.Payload
	p["ingredients"] = names
	b.editText(chatID, cb.Message.MessageID, "Какой ингредиент поправить?", listKeyboard("batch:ing", names, true))
	b.saveLastStep(ctx, chatID, dialog.StateBatchActualPick, p, cb.Message.MessageID)
	b.answerCallback(cb, "", false)
}

func (b *Bot) onBatchIngredient(ctx context.Context, cb *tgbotapi.CallbackQuery, data string) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateBatchActualPick {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	name, ok := pick(dialog.GetStrings(st.Payload, "ingredients"), strings.TrimPrefix(data, "batch:ing:"))
	if !ok {
		b.answerCallback(cb, "Некорректные данные", true)
		return
	}
	p := st.Payload
	p["ingredient"] = name
	b.editText(chatID, cb.Message.MessageID,
		fmt.Sprintf("Введите фактический расход «%s» числом (0 — не расходовался).", name),
		navKeyboard(true, true))
	b.saveLastStep(ctx, chatID, dialog.StateBatchActualQty, p, cb.Message.MessageID)
	b.answerCallback(cb, name, false)
}

func (b *Bot) onActualEntered(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	qty, err := parseQty(msg.Text)
	if err != nil || qty.IsNegative() {
		b.send(tgbotapi.NewMessage(chatID, "Количество должно быть числом не меньше нуля. Попробуйте ещё раз."))
		return
	}
	p := st.Payload
	name, _ := dialog.GetString(p, "ingredient")
	actual := dialog.GetDecimalMap(p, "actual")
	actual[name] = qty
	dialog.SetDecimalMap(p, "actual", actual)
	delete(p, "ingredient")
	b.showReview(ctx, chatID, 0, p)
}

func (b *Bot) onBatchConfirm(ctx context.Context, cb *tgbotapi.CallbackQuery, u *users.User) {
	chatID := cb.Message.Chat.ID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil || st.State != dialog.StateBatchReview {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	p := st.Payload
	product, _ := dialog.GetString(p, "product")
	mult, _ := dialog.GetDecimal(p, "multiplier")
	key, _ := dialog.GetString(p, "request_key")

	res, err := b.svc.Finalize(ctx, production.FinalizeRequest{
		Operator:   u.Name,
		Product:    product,
		Multiplier: mult,
		Actual:     dialog.GetDecimalMap(p, "actual"),
		RequestKey: key,
	})
	if err != nil {
		var se *production.ShortageError
		switch {
		case errors.As(err, &se):
			// склад изменился после расчёта: показываем свежую картину
			b.showReview(ctx, chatID, cb.Message.MessageID, p)
			b.answerCallback(cb, "Недостаточно сырья на складе", true)
		case errors.Is(err, production.ErrRequestInFlight):
			b.answerCallback(cb, "Партия уже проводится", false)
		case production.IsValidation(err):
			b.answerCallback(cb, userError(err), true)
		default:
			b.log.Error("finalize failed", "product", product, "err", err)
			b.answerCallback(cb, "Ошибка при проведении партии", true)
		}
		return
	}

	rec := res.Record
	_ = b.states.Reset(ctx, chatID)
	b.editTextAndClear(chatID, cb.Message.MessageID, b.batchDoneText(rec))
	if res.Replayed {
		b.answerCallback(cb, "Эта партия уже проведена", false)
		return
	}
	b.answerCallback(cb, "Проведено", false)

	if pdf, err := report.BatchPDF(rec, b.loc); err != nil {
		b.log.Error("render batch pdf failed", "record_id", rec.ID, "err", err)
	} else {
		b.sendFile(chatID, report.FileName(rec), pdf, fmt.Sprintf("Отчёт по партии #%d", rec.ID))
	}
	b.alertAfterBatch(ctx, rec)
}

func (b *Bot) batchDoneText(rec *history.Record) string {
	return fmt.Sprintf("✅ Партия #%d проведена\n%s × %s\nОператор: %s\nДата: %s\nПлан: %s\nФакт: %s\nОтклонение: %s (%s)",
		rec.ID, rec.Product, rec.Multiplier.String(), rec.Operator,
		rec.CreatedAt.In(b.loc).Format("02.01.2006 15:04"),
		costing.Money(rec.PlannedCost), costing.Money(rec.ActualCost), costing.Money(rec.Variance),
		history.StatusLabel(rec.Status))
}

// alertAfterBatch сообщает админам о сырье партии, которое подошло к минимуму.
func (b *Bot) alertAfterBatch(ctx context.Context, rec *history.Record) {
	var sb strings.Builder
	for _, it := range rec.Items {
		m, err := b.svc.Material(ctx, it.Ingredient)
		if err != nil || m == nil {
			continue
		}
		lvl := b.svc.Classify(*m)
		if lvl == materials.LevelNormal {
			continue
		}
		fmt.Fprintf(&sb, "%s %s: %s %s (минимум %s)\n", lvl.Badge(), m.Name, m.OnHand.String(), m.Unit, m.MinThreshold.String())
	}
	if sb.Len() == 0 {
		return
	}
	b.notifyAdmins(ctx, fmt.Sprintf("После партии #%d (%s) заканчивается сырьё:\n%s", rec.ID, rec.Product, sb.String()))
}

func pick(list []string, idx string) (string, bool) {
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(list) {
		return "", false
	}
	return list[i], true
}

// userError — короткое описание ошибки ввода для пользователя.
func userError(err error) string {
	switch {
	case errors.Is(err, production.ErrEmptyRecipe):
		return "у продукта нет рецептуры"
	case errors.Is(err, production.ErrInvalidMultiplier):
		return "множитель должен быть больше нуля"
	case errors.Is(err, production.ErrNegativeQuantity):
		return "количество не может быть отрицательным"
	case errors.Is(err, production.ErrUnknownIngredient):
		return "ингредиента нет в рецептуре"
	case errors.Is(err, safety.ErrUnknownProduct):
		return "нет данных о продукте"
	case errors.Is(err, safety.ErrUnknownPhrase):
		return "неизвестный код фразы"
	default:
		return "ошибка сервиса"
	}
}

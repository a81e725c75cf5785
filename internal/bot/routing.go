package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/domain/users"
)

const helpText = "Команды:\n" +
	"/start — начать регистрацию/работу\n" +
	"/cancel — прервать текущую операцию\n" +
	"/help — помощь\n\n" +
	"«Производство» — расчёт и проведение партии\n" +
	"«Остатки» — сырьё ниже минимума и выгрузка в Excel\n" +
	"«История» — журнал партий и отчёты PDF\n" +
	"«Паспорт безопасности» — ФДС продукта в PDF"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	switch msg.Command() {
	case "start":
		existing, err := b.users.GetByTelegramID(ctx, tgID)
		if err != nil {
			b.log.Error("get user failed", "tg_id", tgID, "err", err)
			b.send(tgbotapi.NewMessage(chatID, "Ошибка: не удалось загрузить профиль"))
			return
		}
		// авто-админ
		if tgID == b.adminChat && !existing.IsAdmin() {
			if _, err := b.users.RegisterTelegram(ctx, tgID, displayName(msg.From)); err == nil {
				if u, err := b.users.Approve(ctx, tgID, users.RoleAdmin); err == nil {
					existing = u
				}
			}
		}
		_ = b.states.Reset(ctx, chatID)

		switch {
		case existing.IsAdmin():
			m := tgbotapi.NewMessage(chatID, "Привет, админ! Партии, остатки, приход и загрузка справочника доступны в меню снизу.")
			m.ReplyMarkup = adminReplyKeyboard()
			b.send(m)
		case existing.Approved():
			m := tgbotapi.NewMessage(chatID, "Готово! Для расчёта и проведения партии жми «Производство».")
			m.ReplyMarkup = operatorReplyKeyboard()
			b.send(m)
		case existing != nil && existing.Status == users.StatusPending:
			b.send(tgbotapi.NewMessage(chatID, "Ваша заявка ожидает решения администратора."))
		default:
			b.askName(ctx, chatID)
		}
		return

	case "help":
		b.send(tgbotapi.NewMessage(chatID, helpText))
		return

	case "cancel":
		b.clearPrevStep(ctx, chatID)
		_ = b.states.Reset(ctx, chatID)
		b.send(tgbotapi.NewMessage(chatID, "Операция отменена."))
		return

	default:
		b.send(tgbotapi.NewMessage(chatID, "Не знаю такую команду. Наберите /help"))
		return
	}
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID

	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		b.log.Error("get dialog state failed", "chat_id", chatID, "err", err)
		return
	}

	// регистрация доступна без подтверждения
	if st.State == dialog.StateAwaitName {
		b.onNameEntered(ctx, msg, st)
		return
	}

	u := b.approvedUser(ctx, tgID)
	if u == nil {
		b.send(tgbotapi.NewMessage(chatID, "Нет доступа. Наберите /start, чтобы подать заявку."))
		return
	}

	// Нижняя панель
	switch msg.Text {
	case btnProduction:
		b.startBatch(ctx, chatID)
		return
	case btnStocks:
		b.showStocks(ctx, chatID)
		return
	case btnHistory:
		b.showHistory(ctx, chatID)
		return
	case btnSafety:
		b.startSafety(ctx, chatID)
		return
	case btnReceive, btnImport:
		if !u.IsAdmin() {
			b.send(tgbotapi.NewMessage(chatID, "Доступ запрещён."))
			return
		}
		if msg.Text == btnReceive {
			b.startReceive(ctx, chatID)
		} else {
			b.startImport(ctx, chatID)
		}
		return
	}

	switch st.State {
	case dialog.StateBatchMultiplier:
		b.onMultiplierEntered(ctx, msg, st)
	case dialog.StateBatchActualQty:
		b.onActualEntered(ctx, msg, st)
	case dialog.StateSafetyHazards:
		b.onHazardCodes(ctx, msg, st)
	case dialog.StateSafetyPrecautions:
		b.onPrecautionCodes(ctx, msg, st)
	case dialog.StateReceiveQty:
		if u.IsAdmin() {
			b.onReceiveQty(ctx, msg, st, u)
		}
	case dialog.StateImportFile:
		if u.IsAdmin() {
			b.onImportDocument(ctx, msg, u)
		}
	case dialog.StateBatchProduct, dialog.StateBatchReview, dialog.StateBatchActualPick, dialog.StateReceivePick, dialog.StateSafetyProduct:
		b.send(tgbotapi.NewMessage(chatID, "Выберите вариант кнопкой выше или /cancel."))
	default:
		b.send(tgbotapi.NewMessage(chatID, "Воспользуйтесь меню снизу или /help."))
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	switch {
	case data == "nav:cancel":
		_ = b.states.Reset(ctx, chatID)
		b.editTextAndClear(chatID, cb.Message.MessageID, "Операция отменена.")
		b.answerCallback(cb, "Отменено", false)
		return
	case data == "nav:back":
		b.onBack(ctx, cb)
		return

	/* ===== Регистрация ===== */

	case data == "rq:send":
		b.onRequestSend(ctx, cb)
		return
	case strings.HasPrefix(data, "approve:"):
		b.onApprove(ctx, cb, data)
		return
	case strings.HasPrefix(data, "reject:"):
		b.onReject(ctx, cb, data)
		return
	}

	u := b.approvedUser(ctx, cb.From.ID)
	if u == nil {
		b.answerCallback(cb, "Нет доступа", true)
		return
	}

	switch {
	case strings.HasPrefix(data, "batch:prod:"):
		b.onBatchProduct(ctx, cb, data)
	case data == "batch:edit":
		b.onBatchEdit(ctx, cb)
	case strings.HasPrefix(data, "batch:ing:"):
		b.onBatchIngredient(ctx, cb, data)
	case data == "batch:confirm":
		b.onBatchConfirm(ctx, cb, u)
	case data == "stock:xlsx":
		b.onStockExport(ctx, cb)
	case strings.HasPrefix(data, "hist:pdf:"):
		b.onHistoryPDF(ctx, cb, data)
	case data == "hist:xlsx":
		b.onHistoryExport(ctx, cb)
	case strings.HasPrefix(data, "fds:prod:"):
		b.onSafetyProduct(ctx, cb, data)
	case strings.HasPrefix(data, "rcv:mat:"):
		if !u.IsAdmin() {
			b.answerCallback(cb, "Недостаточно прав", true)
			return
		}
		b.onReceiveMaterial(ctx, cb, data)
	default:
		b.answerCallback(cb, "Неизвестная команда", false)
	}
}

func (b *Bot) onBack(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	mid := cb.Message.MessageID
	st, _ := b.states.Get(ctx, chatID)
	if st == nil {
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	p := st.Payload

	switch st.State {
	case dialog.StateBatchMultiplier:
		b.editText(chatID, mid, "Выберите продукт:", listKeyboard("batch:prod", dialog.GetStrings(p, "products"), false))
		b.saveLastStep(ctx, chatID, dialog.StateBatchProduct, p, mid)
	case dialog.StateBatchReview:
		b.askMultiplier(ctx, chatID, mid, p)
	case dialog.StateBatchActualPick, dialog.StateBatchActualQty:
		delete(p, "ingredient")
		b.showReview(ctx, chatID, mid, p)
	case dialog.StateReceiveQty:
		b.editText(chatID, mid, "Приход: выберите сырьё.", listKeyboard("rcv:mat", dialog.GetStrings(p, "materials"), false))
		b.saveLastStep(ctx, chatID, dialog.StateReceivePick, p, mid)
	case dialog.StateSafetyHazards:
		b.editText(chatID, mid, "Паспорт безопасности: выберите продукт.", listKeyboard("fds:prod", dialog.GetStrings(p, "products"), false))
		b.saveLastStep(ctx, chatID, dialog.StateSafetyProduct, p, mid)
	case dialog.StateSafetyPrecautions:
		delete(p, "hazards")
		b.askPhrases(ctx, chatID, mid, p, safety.KindHazard)
	default:
		b.answerCallback(cb, "Неактуально", false)
		return
	}
	b.answerCallback(cb, "", false)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

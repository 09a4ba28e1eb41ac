package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnSummary      = "📊 Сводка по квотам"
	btnUnreconciled = "🧾 На сверке"
	btnImport       = "📥 Импорт лимитов"
)

// adminReplyKeyboard Нижняя панель для админского чата
func adminReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSummary),
			tgbotapi.NewKeyboardButton(btnUnreconciled),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnImport),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// reconcileKeyboard: кнопки под отчётом из очереди сверки.
func reconcileKeyboard(submissionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Слот засчитан", cbReconcileCounted+submissionID),
			tgbotapi.NewInlineKeyboardButtonData("🔁 Повторить допуск", cbReconcileRetry+submissionID),
		),
	)
}

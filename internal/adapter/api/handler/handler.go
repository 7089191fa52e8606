package handler

import (
	"pasarbekas/internal/usecase"
)

var (
	listingHandler     *ListingHandler
	moderationHandler  *ModerationHandler
	chatHandler        *ChatHandler
	transactionHandler *TransactionHandler
	auditHandler       *AuditHandler
)

func Setup(
	listingUseCase *usecase.ListingUseCase,
	moderationUseCase *usecase.ModerationUseCase,
	chatUseCase *usecase.ChatUseCase,
	transactionUseCase *usecase.TransactionUseCase,
	auditUseCase *usecase.AuditUseCase,
) {
	listingHandler = NewListingHandler(listingUseCase, moderationUseCase, transactionUseCase)
	moderationHandler = NewModerationHandler(moderationUseCase, listingUseCase)
	chatHandler = NewChatHandler(chatUseCase)
	transactionHandler = NewTransactionHandler(transactionUseCase)
	auditHandler = NewAuditHandler(auditUseCase)
}

func GetListingHandler() *ListingHandler {
	return listingHandler
}

func GetModerationHandler() *ModerationHandler {
	return moderationHandler
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetTransactionHandler() *TransactionHandler {
	return transactionHandler
}

func GetAuditHandler() *AuditHandler {
	return auditHandler
}

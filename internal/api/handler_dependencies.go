package api

import (
	"github.com/terraincognita07/tierly/internal/db"
	"github.com/terraincognita07/tierly/internal/services"
	"gorm.io/gorm"
)

func (handler *Handler) withDependencies(database *gorm.DB, webhookSecret string) *Handler {
	handler.repositories = db.NewRepositories(database)
	handler.referrals = services.NewReferralLedger(
		handler.repositories.Users,
		handler.repositories.Referrals,
		handler.repositories.Tx,
		handler.logger,
	)
	handler.billing = services.NewSubscriptionReconciler(
		handler.repositories.Users,
		handler.repositories.BillingEvents,
		webhookSecret,
		handler.logger,
	)
	return handler
}

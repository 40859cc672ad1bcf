package db

import "gorm.io/gorm"

type Repositories struct {
	Users         *UserRepository
	Referrals     *ReferralRepository
	BillingEvents *BillingEventRepository
	Tx            *TxManager
}

func NewRepositories(database *gorm.DB) *Repositories {
	return &Repositories{
		Users:         NewUserRepository(database),
		Referrals:     NewReferralRepository(database),
		BillingEvents: NewBillingEventRepository(database),
		Tx:            NewTxManager(database),
	}
}

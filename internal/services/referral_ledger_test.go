package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terraincognita07/tierly/internal/db"
	"github.com/terraincognita07/tierly/internal/models"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var ledgerTestNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func newLedgerForTest(t *testing.T) (*ReferralLedger, *db.Repositories) {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "tierly-ledger.db"))
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	repositories := db.NewRepositories(database)
	ledger := NewReferralLedger(repositories.Users, repositories.Referrals, repositories.Tx, zaptest.NewLogger(t))
	return ledger, repositories
}

func createLedgerUser(t *testing.T, repositories *db.Repositories, name string) models.User {
	t.Helper()

	user := models.User{Name: name, Username: strings.ToLower(name)}
	require.NoError(t, repositories.Users.Create(context.Background(), &user))
	return user
}

func reloadLedgerUser(t *testing.T, repositories *db.Repositories, userID uint) models.User {
	t.Helper()

	user, err := repositories.Users.FindByID(context.Background(), userID)
	require.NoError(t, err)
	return user
}

func TestFiveRedemptionsRewardReferrerAndEveryReferredUser(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	alice := createLedgerUser(t, repositories, "Alice")
	require.Equal(t, uint(1), alice.ID)

	initial, err := ledger.GetReferralData(ctx, alice.ID, ledgerTestNow)
	require.NoError(t, err)
	require.Equal(t, "ALIC00012025", initial.ReferralCode)
	assert.Equal(t, 0, initial.Stats.CompletedReferrals)
	require.NotNil(t, initial.NextTier)
	assert.Equal(t, 5, initial.NextTier.ReferralsNeeded)

	referred := make([]models.User, 0, 5)
	for _, name := range []string{"Bob", "Carol", "Dave", "Erin", "Frank"} {
		user := createLedgerUser(t, repositories, name)
		result, err := ledger.RedeemCode(ctx, user.ID, "alic00012025", ledgerTestNow)
		require.NoError(t, err, "redeem for %s", name)
		assert.Equal(t, "Alice", result.Reward.ReferrerName)
		assert.Equal(t, ReferredUserBonusDays, result.Reward.DaysEarned)
		assert.True(t, result.Reward.ExpiresAt.Equal(ledgerTestNow.AddDate(0, 0, 7)))
		referred = append(referred, user)
	}

	data, err := ledger.GetReferralData(ctx, alice.ID, ledgerTestNow)
	require.NoError(t, err)
	assert.Equal(t, "ALIC00012025", data.ReferralCode)
	assert.Equal(t, 5, data.Stats.CompletedReferrals)
	assert.Equal(t, 0, data.Stats.PendingReferrals)
	assert.Equal(t, 7, data.Stats.TotalDaysEarned)
	assert.True(t, data.Stats.IsPremiumFromReferrals)
	require.NotNil(t, data.NextTier)
	assert.Equal(t, 10, data.NextTier.Referrals)
	assert.Equal(t, 5, data.NextTier.ReferralsNeeded)
	assert.Len(t, data.RewardTiers, 6)
	require.Len(t, data.Referrals, 5)
	for _, entry := range data.Referrals {
		assert.Equal(t, models.ReferralStatusRewarded, entry.Status)
		assert.Equal(t, 7, entry.RewardDays)
		assert.NotNil(t, entry.RewardedAt)
		assert.NotNil(t, entry.CompletedAt)
	}

	reloadedAlice := reloadLedgerUser(t, repositories, alice.ID)
	assert.Equal(t, models.TierGold, reloadedAlice.SubscriptionTier)
	assert.Equal(t, models.SubscriptionStatusActive, reloadedAlice.SubscriptionStatus)
	assert.Equal(t, 7, reloadedAlice.ReferralPremiumDays)
	require.NotNil(t, reloadedAlice.ReferralPremiumExpiry)
	require.NotNil(t, reloadedAlice.SubscriptionExpiry)
	assert.True(t, reloadedAlice.ReferralPremiumExpiry.Equal(ledgerTestNow.AddDate(0, 0, 7)))
	assert.True(t, reloadedAlice.SubscriptionExpiry.Equal(*reloadedAlice.ReferralPremiumExpiry))

	for _, user := range referred {
		reloaded := reloadLedgerUser(t, repositories, user.ID)
		assert.Equal(t, models.TierGold, reloaded.SubscriptionTier, user.Name)
		assert.Equal(t, 7, reloaded.ReferralPremiumDays, user.Name)
		require.NotNil(t, reloaded.ReferredBy, user.Name)
		assert.Equal(t, alice.ID, *reloaded.ReferredBy, user.Name)
	}
}

func TestReferrerBelowFirstThresholdKeepsFreeTier(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	owner := createLedgerUser(t, repositories, "Owner")
	code, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)

	redeemer := createLedgerUser(t, repositories, "Redeemer")
	result, err := ledger.RedeemCode(ctx, redeemer.ID, code, ledgerTestNow)
	require.NoError(t, err)
	assert.False(t, result.ReferrerRewarded)
	assert.Equal(t, 1, result.ReferrerCompleted)

	reloadedOwner := reloadLedgerUser(t, repositories, owner.ID)
	assert.Equal(t, models.TierFree, reloadedOwner.SubscriptionTier)
	assert.Nil(t, reloadedOwner.ReferralPremiumExpiry)

	referrals, err := repositories.Referrals.ListByReferrer(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, referrals, 1)
	assert.Equal(t, models.ReferralStatusCompleted, referrals[0].Status)
	assert.Equal(t, code, referrals[0].ReferralCode)
}

func TestRedeemCodeTwiceCreditsOnce(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	owner := createLedgerUser(t, repositories, "Owner")
	code, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)
	redeemer := createLedgerUser(t, repositories, "Redeemer")

	_, err = ledger.RedeemCode(ctx, redeemer.ID, code, ledgerTestNow)
	require.NoError(t, err)
	_, err = ledger.RedeemCode(ctx, redeemer.ID, code, ledgerTestNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyReferred) || errors.Is(err, ErrDuplicateReferral), "got %v", err)

	count, err := repositories.Referrals.CountByReferrer(ctx, owner.ID, models.ReferralStatusCompleted, models.ReferralStatusRewarded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedeemCodeExtendsRunningPremiumFromCurrentExpiry(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	owner := createLedgerUser(t, repositories, "Owner")
	code, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)

	existingExpiry := ledgerTestNow.AddDate(0, 0, 20)
	require.NoError(t, repositories.Users.UpdateByID(ctx, owner.ID, map[string]any{
		"referral_premium_expiry": existingExpiry,
	}))
	for index := 0; index < 4; index++ {
		earlier := createLedgerUser(t, repositories, "Earlier")
		completedAt := ledgerTestNow.Add(-time.Duration(index+1) * time.Hour)
		require.NoError(t, repositories.Referrals.Create(ctx, &models.Referral{
			ReferrerID:     owner.ID,
			ReferredUserID: earlier.ID,
			ReferralCode:   code,
			Status:         models.ReferralStatusCompleted,
			CompletedAt:    &completedAt,
			CreatedAt:      completedAt,
		}))
	}

	fifth := createLedgerUser(t, repositories, "Fifth")
	result, err := ledger.RedeemCode(ctx, fifth.ID, code, ledgerTestNow)
	require.NoError(t, err)
	assert.True(t, result.ReferrerRewarded)
	assert.Equal(t, 5, result.ReferrerCompleted)

	reloadedOwner := reloadLedgerUser(t, repositories, owner.ID)
	require.NotNil(t, reloadedOwner.ReferralPremiumExpiry)
	assert.True(t, reloadedOwner.ReferralPremiumExpiry.Equal(existingExpiry.AddDate(0, 0, 7)),
		"expected %s, got %s", existingExpiry.AddDate(0, 0, 7), reloadedOwner.ReferralPremiumExpiry)
	assert.False(t, reloadedOwner.ReferralPremiumExpiry.Before(existingExpiry))
}

func TestExtendExpiryStartsFromLaterOfNowAndCurrent(t *testing.T) {
	past := ledgerTestNow.AddDate(0, 0, -3)
	future := ledgerTestNow.AddDate(0, 0, 20)

	assert.True(t, ExtendExpiry(nil, ledgerTestNow, 7).Equal(ledgerTestNow.AddDate(0, 0, 7)))
	assert.True(t, ExtendExpiry(&past, ledgerTestNow, 7).Equal(ledgerTestNow.AddDate(0, 0, 7)))
	assert.True(t, ExtendExpiry(&future, ledgerTestNow, 7).Equal(future.AddDate(0, 0, 7)))
}

func TestRedeemCodeRejectsInvalidRequestsWithoutWriting(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	owner := createLedgerUser(t, repositories, "Owner")
	ownerCode, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)

	_, err = ledger.RedeemCode(ctx, owner.ID, "   ", ledgerTestNow)
	assert.ErrorIs(t, err, ErrInvalidReferralCode)

	_, err = ledger.RedeemCode(ctx, owner.ID, strings.ToLower(ownerCode), ledgerTestNow)
	assert.ErrorIs(t, err, ErrSelfReferral)

	_, err = ledger.RedeemCode(ctx, owner.ID, "NOPE00002025", ledgerTestNow)
	assert.ErrorIs(t, err, ErrCodeNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = ledger.RedeemCode(ctx, 999, ownerCode, ledgerTestNow)
	assert.ErrorIs(t, err, ErrUserNotFound)

	reloadedOwner := reloadLedgerUser(t, repositories, owner.ID)
	assert.Nil(t, reloadedOwner.ReferredBy)
	assert.Equal(t, models.TierFree, reloadedOwner.SubscriptionTier)
	count, err := repositories.Referrals.CountByReferrer(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedeemCodeRejectsExistingPairBeforeInsert(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	owner := createLedgerUser(t, repositories, "Owner")
	code, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)
	redeemer := createLedgerUser(t, repositories, "Redeemer")
	require.NoError(t, repositories.Referrals.Create(ctx, &models.Referral{
		ReferrerID:     owner.ID,
		ReferredUserID: redeemer.ID,
		ReferralCode:   code,
		Status:         models.ReferralStatusPending,
	}))

	_, err = ledger.RedeemCode(ctx, redeemer.ID, code, ledgerTestNow)
	assert.ErrorIs(t, err, ErrDuplicateReferral)

	reloaded := reloadLedgerUser(t, repositories, redeemer.ID)
	assert.Nil(t, reloaded.ReferredBy)
	assert.Equal(t, 0, reloaded.ReferralPremiumDays)
}

func TestReverseReferralIsAllowed(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	userA := createLedgerUser(t, repositories, "Anna")
	userB := createLedgerUser(t, repositories, "Boris")
	codeA, err := ledger.InitCode(ctx, userA.ID, ledgerTestNow)
	require.NoError(t, err)
	codeB, err := ledger.InitCode(ctx, userB.ID, ledgerTestNow)
	require.NoError(t, err)

	_, err = ledger.RedeemCode(ctx, userA.ID, codeB, ledgerTestNow)
	require.NoError(t, err)
	_, err = ledger.RedeemCode(ctx, userB.ID, codeA, ledgerTestNow)
	require.NoError(t, err)

	reloadedA := reloadLedgerUser(t, repositories, userA.ID)
	reloadedB := reloadLedgerUser(t, repositories, userB.ID)
	require.NotNil(t, reloadedA.ReferredBy)
	require.NotNil(t, reloadedB.ReferredBy)
	assert.Equal(t, userB.ID, *reloadedA.ReferredBy)
	assert.Equal(t, userA.ID, *reloadedB.ReferredBy)
}

func TestReferralCodeIsStableAndRetriedOnCollision(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	alice := createLedgerUser(t, repositories, "Alice")
	squatter := createLedgerUser(t, repositories, "Squatter")
	assigned, err := repositories.Users.AssignReferralCode(ctx, squatter.ID, "ALIC00012025")
	require.NoError(t, err)
	require.True(t, assigned)

	code, err := ledger.InitCode(ctx, alice.ID, ledgerTestNow)
	require.NoError(t, err)
	assert.NotEqual(t, "ALIC00012025", code)
	assert.True(t, strings.HasPrefix(code, "ALIC00012025"), code)
	assert.Len(t, code, len("ALIC00012025")+2)

	again, err := ledger.InitCode(ctx, alice.ID, ledgerTestNow.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

func TestValidateCodeIsCaseInsensitive(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	owner := models.User{Username: "nameless"}
	require.NoError(t, repositories.Users.Create(ctx, &owner))
	code, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "NAME"), code)

	validation, err := ledger.ValidateCode(ctx, " "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.True(t, validation.Valid)
	require.NotNil(t, validation.Referrer)
	assert.Equal(t, owner.ID, validation.Referrer.ID)
	assert.Equal(t, "nameless", validation.Referrer.Name)

	missing, err := ledger.ValidateCode(ctx, "ZZZZ99992025")
	require.NoError(t, err)
	assert.False(t, missing.Valid)
	assert.Nil(t, missing.Referrer)
}

func TestGetReferralDataPremiumFlagIsStrict(t *testing.T) {
	ledger, repositories := newLedgerForTest(t)
	ctx := context.Background()

	user := createLedgerUser(t, repositories, "Edge")
	require.NoError(t, repositories.Users.UpdateByID(ctx, user.ID, map[string]any{
		"referral_premium_expiry": ledgerTestNow,
	}))

	data, err := ledger.GetReferralData(ctx, user.ID, ledgerTestNow)
	require.NoError(t, err)
	assert.False(t, data.Stats.IsPremiumFromReferrals)

	data, err = ledger.GetReferralData(ctx, user.ID, ledgerTestNow.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, data.Stats.IsPremiumFromReferrals)
}

func TestGetReferralDataUnknownUser(t *testing.T) {
	ledger, _ := newLedgerForTest(t)

	_, err := ledger.GetReferralData(context.Background(), 404, ledgerTestNow)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

type failingReferralUserRepository struct {
	err error
}

func (repo failingReferralUserRepository) FindByID(context.Context, uint) (models.User, error) {
	return models.User{}, repo.err
}

func (repo failingReferralUserRepository) FindByIDForUpdate(context.Context, uint) (models.User, error) {
	return models.User{}, repo.err
}

func (repo failingReferralUserRepository) FindByReferralCode(context.Context, string) (models.User, error) {
	return models.User{}, repo.err
}

func (repo failingReferralUserRepository) AssignReferralCode(context.Context, uint, string) (bool, error) {
	return false, repo.err
}

func (repo failingReferralUserRepository) UpdateByID(context.Context, uint, map[string]any) error {
	return repo.err
}

type passthroughTransactionRunner struct{}

func (passthroughTransactionRunner) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestStoreFailuresSurfaceAsInternal(t *testing.T) {
	storeErr := errors.New("connection reset")
	ledger := NewReferralLedger(failingReferralUserRepository{err: storeErr}, nil, passthroughTransactionRunner{}, nil)

	_, err := ledger.RedeemCode(context.Background(), 1, "ALIC00012025", ledgerTestNow)
	require.ErrorIs(t, err, storeErr)
	assert.Equal(t, KindInternal, KindOf(err))

	notFound := NewReferralLedger(failingReferralUserRepository{err: gorm.ErrRecordNotFound}, nil, passthroughTransactionRunner{}, nil)
	_, err = notFound.InitCode(context.Background(), 1, ledgerTestNow)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func redeemAgainstOwner(t *testing.T, ledger *ReferralLedger, repositories *db.Repositories, referredCount int, concurrent bool) models.User {
	t.Helper()

	ctx := context.Background()
	owner := createLedgerUser(t, repositories, "Olivia")
	code, err := ledger.InitCode(ctx, owner.ID, ledgerTestNow)
	require.NoError(t, err)

	referred := make([]models.User, 0, referredCount)
	for index := 0; index < referredCount; index++ {
		referred = append(referred, createLedgerUser(t, repositories, "Friend"))
	}

	errs := make([]error, len(referred))
	if concurrent {
		var wg sync.WaitGroup
		for index, user := range referred {
			wg.Add(1)
			go func(index int, userID uint) {
				defer wg.Done()
				_, errs[index] = ledger.RedeemCode(ctx, userID, code, ledgerTestNow)
			}(index, user.ID)
		}
		wg.Wait()
	} else {
		for index, user := range referred {
			_, errs[index] = ledger.RedeemCode(ctx, user.ID, code, ledgerTestNow)
		}
	}
	for index, err := range errs {
		require.NoError(t, err, "redemption %d", index)
	}

	return reloadLedgerUser(t, repositories, owner.ID)
}

func TestConcurrentRedemptionsAgainstOneOwnerMatchSequentialOutcome(t *testing.T) {
	const referredCount = 6

	sequentialLedger, sequentialRepositories := newLedgerForTest(t)
	sequentialOwner := redeemAgainstOwner(t, sequentialLedger, sequentialRepositories, referredCount, false)

	ledger, repositories := newLedgerForTest(t)
	owner := redeemAgainstOwner(t, ledger, repositories, referredCount, true)

	ctx := context.Background()
	total, err := repositories.Referrals.CountByReferrer(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(referredCount), total)

	rewarded, err := repositories.Referrals.CountByReferrer(ctx, owner.ID, models.ReferralStatusRewarded)
	require.NoError(t, err)
	assert.Equal(t, int64(referredCount), rewarded, "every referral must end rewarded")

	assert.Equal(t, sequentialOwner.SubscriptionTier, owner.SubscriptionTier)
	assert.Equal(t, models.TierGold, owner.SubscriptionTier)
	assert.Equal(t, sequentialOwner.ReferralPremiumDays, owner.ReferralPremiumDays)
	require.NotNil(t, owner.ReferralPremiumExpiry)
	require.NotNil(t, sequentialOwner.ReferralPremiumExpiry)
	assert.True(t, owner.ReferralPremiumExpiry.Equal(*sequentialOwner.ReferralPremiumExpiry),
		"expected expiry %s, got %s", sequentialOwner.ReferralPremiumExpiry, owner.ReferralPremiumExpiry)
	assert.True(t, owner.ReferralPremiumExpiry.Equal(ledgerTestNow.AddDate(0, 0, 14)),
		"rewards at the fifth and sixth referral must stack")
}

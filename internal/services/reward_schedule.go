package services

import "github.com/terraincognita07/tierly/internal/models"

// RewardTier is one step of the referral schedule: reaching Referrals completed
// referrals grants Days of premium at Tier.
type RewardTier struct {
	Referrals int         `json:"referrals"`
	Days      int         `json:"days"`
	Tier      models.Tier `json:"tier"`
}

// NextRewardTier is the closest schedule step the referrer has not reached yet.
type NextRewardTier struct {
	RewardTier
	ReferralsNeeded int `json:"referralsNeeded"`
}

var rewardSchedule = []RewardTier{
	{Referrals: 5, Days: 7, Tier: models.TierGold},
	{Referrals: 10, Days: 30, Tier: models.TierGold},
	{Referrals: 15, Days: 60, Tier: models.TierPlatinum},
	{Referrals: 20, Days: 90, Tier: models.TierPlatinum},
	{Referrals: 30, Days: 180, Tier: models.TierDiamond},
	{Referrals: 50, Days: 365, Tier: models.TierDiamond},
}

// RewardSchedule returns a copy of the schedule in ascending threshold order.
func RewardSchedule() []RewardTier {
	schedule := make([]RewardTier, len(rewardSchedule))
	copy(schedule, rewardSchedule)
	return schedule
}

// DaysForCount returns the premium days of the highest threshold not above count.
func DaysForCount(count int) int {
	days := 0
	for _, step := range rewardSchedule {
		if count >= step.Referrals {
			days = step.Days
		}
	}
	return days
}

// TierForCount returns the tier of the highest threshold not above count, or free.
func TierForCount(count int) models.Tier {
	tier := models.TierFree
	for _, step := range rewardSchedule {
		if count >= step.Referrals {
			tier = step.Tier
		}
	}
	return tier
}

// FindNextRewardTier reports the first step above count, or false past the last one.
func FindNextRewardTier(count int) (NextRewardTier, bool) {
	for _, step := range rewardSchedule {
		if step.Referrals > count {
			return NextRewardTier{RewardTier: step, ReferralsNeeded: step.Referrals - count}, true
		}
	}
	return NextRewardTier{}, false
}

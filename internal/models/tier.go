package models

type Tier string

const (
	TierFree     Tier = "free"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

var tierRanks = map[Tier]int{
	TierFree:     0,
	TierGold:     1,
	TierPlatinum: 2,
	TierDiamond:  3,
}

// Rank orders tiers free < gold < platinum < diamond. Unknown values rank as free.
func (tier Tier) Rank() int {
	return tierRanks[tier]
}

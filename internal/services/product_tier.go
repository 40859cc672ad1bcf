package services

import (
	"strings"

	"github.com/terraincognita07/tierly/internal/models"
)

var productTierMarkers = []struct {
	tier    models.Tier
	markers []string
}{
	{models.TierDiamond, []string{"diamond", "29.99", "premium_plus"}},
	{models.TierPlatinum, []string{"platinum", "19.99", "premium"}},
	{models.TierGold, []string{"gold", "9.99", "basic"}},
}

// MapProductTier maps a store product id to a tier. The checks run from the
// most to the least expensive tier; unrecognized paid products become gold.
func MapProductTier(productID string) models.Tier {
	normalized := strings.ToLower(productID)
	for _, candidate := range productTierMarkers {
		for _, marker := range candidate.markers {
			if strings.Contains(normalized, marker) {
				return candidate.tier
			}
		}
	}
	return models.TierGold
}

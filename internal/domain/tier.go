package domain

type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// TierPolicy is the provisioning policy derived from a tier. It is never stored.
type TierPolicy struct {
	Tier           Tier           `json:"tier"`
	RetentionDays  int            `json:"retention_days"`
	IsolationModel IsolationModel `json:"isolation_model"`
}

var TierPolicies = map[Tier]TierPolicy{
	TierFree: {
		Tier:           TierFree,
		RetentionDays:  30,
		IsolationModel: IsolationPooled,
	},
	TierPro: {
		Tier:           TierPro,
		RetentionDays:  90,
		IsolationModel: IsolationPooled,
	},
	TierEnterprise: {
		Tier:           TierEnterprise,
		RetentionDays:  365,
		IsolationModel: IsolationDedicated,
	},
}

// PolicyForTier returns the policy for a tier. Unknown tiers get the FREE policy.
func PolicyForTier(tier Tier) TierPolicy {
	if p, ok := TierPolicies[tier]; ok {
		return p
	}
	return TierPolicies[TierFree]
}

func AllTiers() []Tier {
	return []Tier{TierFree, TierPro, TierEnterprise}
}

func ValidTier(t string) bool {
	switch Tier(t) {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

package flow

import "fmt"

// Bucket keys for the token distribution vote. Percentages across all five
// must sum to exactly 100 unless the contributor defers the section.
var Buckets = []string{
	"core_team",
	"contributors",
	"network_rewards",
	"ecosystem_partners",
	"treasury",
}

// Vesting slider bounds, in months / percent.
const (
	CliffMonthsMax   = 24
	VestingMonthsMin = 12
	VestingMonthsMax = 60
	TGEPercentMax    = 25
)

// AllocationDraft is the autosaved working copy of a contributor's
// allocation preferences. Pointer fields distinguish "never set" from zero.
type AllocationDraft struct {
	Expertise            string         `json:"cap_table_expertise"`
	ExpertiseDescription string         `json:"cap_table_expertise_description"`
	BucketDeferred       bool           `json:"bucket_deferred"`
	BucketDelegatedTo    string         `json:"bucket_delegated_to"`
	BucketVotes          map[string]int `json:"bucket_votes"`
	BucketRationale      string         `json:"bucket_rationale"`
	LockupDeferred       bool           `json:"lockup_deferred"`
	LockupDelegatedTo    string         `json:"lockup_delegated_to"`
	CliffMonths          *int           `json:"lockup_cliff_months"`
	VestingMonths        *int           `json:"lockup_vesting_months"`
	TGEPercent           *int           `json:"lockup_tge_percent"`
	LockupRationale      string         `json:"lockup_rationale"`
}

// BucketTotal sums the five bucket percentages. Unknown keys are ignored so
// a stale draft cannot smuggle extra weight past validation.
func BucketTotal(votes map[string]int) int {
	total := 0
	for _, key := range Buckets {
		total += votes[key]
	}
	return total
}

// ValidateSubmission checks the draft against the submission invariants:
// bucket votes must sum to exactly 100 unless the bucket section is
// deferred, and vesting values must sit inside their slider bounds unless
// the lockup section is deferred.
func ValidateSubmission(d AllocationDraft) error {
	if !d.BucketDeferred {
		if total := BucketTotal(d.BucketVotes); total != 100 {
			return fmt.Errorf("bucket allocations must sum to 100%%, got %d%%", total)
		}
	}
	if !d.LockupDeferred {
		if d.CliffMonths != nil && (*d.CliffMonths < 0 || *d.CliffMonths > CliffMonthsMax) {
			return fmt.Errorf("cliff months out of range: %d", *d.CliffMonths)
		}
		if d.VestingMonths != nil && (*d.VestingMonths < VestingMonthsMin || *d.VestingMonths > VestingMonthsMax) {
			return fmt.Errorf("vesting months out of range: %d", *d.VestingMonths)
		}
		if d.TGEPercent != nil && (*d.TGEPercent < 0 || *d.TGEPercent > TGEPercentMax) {
			return fmt.Errorf("tge percent out of range: %d", *d.TGEPercent)
		}
	}
	return nil
}

// FinalizeSubmission returns the draft as it should be persisted at
// submission time. Deferred sections have their numeric answers cleared and
// keep only the optional delegate name; answered sections drop any stale
// delegate left over from a toggled-off defer.
func FinalizeSubmission(d AllocationDraft) AllocationDraft {
	out := d
	if d.BucketDeferred {
		out.BucketVotes = nil
	} else {
		out.BucketDelegatedTo = ""
	}
	if d.LockupDeferred {
		out.CliffMonths = nil
		out.VestingMonths = nil
		out.TGEPercent = nil
	} else {
		out.LockupDelegatedTo = ""
	}
	return out
}

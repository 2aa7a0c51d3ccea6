package matching

import "fmt"

// eligibilityRule is one deterministic gate applied before any oracle call.
// Rules run in order and short-circuit on the first failure.
type eligibilityRule struct {
	name string
	fail func(c *Candidate) (bool, string)
}

var eligibilityRules = []eligibilityRule{
	{
		name: "enrichment_complete",
		fail: func(c *Candidate) (bool, string) {
			if !c.ProfileCrawled || !c.PortfolioAnalyzed {
				return true, "profile crawl and/or portfolio analysis not finished"
			}
			return false, ""
		},
	},
	{
		name: "requires_revenue",
		fail: func(c *Candidate) (bool, string) {
			if c.RequiresRevenue == True {
				return true, "requires startup revenue"
			}
			return false, ""
		},
	},
	{
		name: "therapeutic_investor",
		fail: func(c *Candidate) (bool, string) {
			if c.TherapeuticInvestor != True {
				return true, "not a therapeutic investor"
			}
			return false, ""
		},
	},
	{
		name: "equity_investor",
		fail: func(c *Candidate) (bool, string) {
			// Only an explicit false excludes: unknown financiers stay in.
			if c.EquityInvestor == False {
				return true, "debt-only financier"
			}
			return false, ""
		},
	},
	{
		name: "field_group_coverage",
		fail: func(c *Candidate) (bool, string) {
			if groups := FieldGroupCoverage(c); groups < minFieldGroups {
				return true, fmt.Sprintf("only %d of %d field groups with data (need %d)",
					groups, totalFieldGroups, minFieldGroups)
			}
			return false, ""
		},
	},
}

const (
	minFieldGroups   = 3
	totalFieldGroups = 5
)

// IsEligible reports whether the candidate is worth sending to the oracles
// for the given subject. Pure and side-effect-free; the returned reason names
// the first failed rule for logging.
func IsEligible(_ *Subject, c *Candidate) (bool, string) {
	for _, rule := range eligibilityRules {
		if failed, reason := rule.fail(c); failed {
			return false, fmt.Sprintf("%s: %s", rule.name, reason)
		}
	}
	return true, ""
}

// FieldGroupCoverage counts dimension groups with non-empty data. Modality,
// disease and geography count when either the stated or the portfolio value
// is present; stage and amount have only a stated value.
func FieldGroupCoverage(c *Candidate) int {
	groups := 0
	if c.Stated.Modality != "" || c.PortfolioModality != "" {
		groups++
	}
	if c.Stated.Disease != "" || c.PortfolioDisease != "" {
		groups++
	}
	if c.Stated.Geography != "" || c.PortfolioGeography != "" {
		groups++
	}
	if c.Stated.Stage != "" {
		groups++
	}
	if c.Stated.Amount != "" {
		groups++
	}
	return groups
}

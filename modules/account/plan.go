package account

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrPlanNotFound   = errors.New("plan not found")
	ErrInvalidCatalog = errors.New("invalid plan catalog")
)

// Plan describes a sellable tier: what it costs on the provider side and what
// it entitles the account to.
type Plan struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Tier              Tier   `yaml:"tier"`
	PriceID           string `yaml:"price_id"`          // provider's recurring price ID
	LifetimePriceID   string `yaml:"lifetime_price_id"` // provider's one-time price ID, optional
	AIQueriesPerMonth int    `yaml:"ai_queries_per_month"`
	TrialDays         int    `yaml:"trial_days"`
}

// Catalog is the set of plans the application sells, keyed by tier. The free
// tier is always present even when the catalog file omits it.
type Catalog struct {
	plans map[Tier]Plan
}

// DefaultCatalog returns the built-in catalog used when no plans file is
// configured. Price IDs are empty, so checkout requires a real catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{plans: map[Tier]Plan{
		TierFree: {
			ID:   "free",
			Name: "Free",
			Tier: TierFree,
		},
		TierFlow: {
			ID:                "flow",
			Name:              "Flow",
			Tier:              TierFlow,
			AIQueriesPerMonth: 300,
			TrialDays:         14,
		},
	}}
}

// LoadCatalog reads a plan catalog from a YAML file. Missing free-tier entry
// is filled in from the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	var file struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	catalog := &Catalog{plans: make(map[Tier]Plan, len(file.Plans)+1)}
	for _, plan := range file.Plans {
		if !plan.Tier.Valid() {
			return nil, fmt.Errorf("%w: plan %q has unknown tier %q", ErrInvalidCatalog, plan.ID, plan.Tier)
		}
		if _, dup := catalog.plans[plan.Tier]; dup {
			return nil, fmt.Errorf("%w: duplicate plan for tier %q", ErrInvalidCatalog, plan.Tier)
		}
		if plan.Tier != TierFree && plan.AIQueriesPerMonth <= 0 {
			return nil, fmt.Errorf("%w: plan %q must set ai_queries_per_month", ErrInvalidCatalog, plan.ID)
		}
		catalog.plans[plan.Tier] = plan
	}

	if _, ok := catalog.plans[TierFree]; !ok {
		catalog.plans[TierFree] = DefaultCatalog().plans[TierFree]
	}
	if _, ok := catalog.plans[TierFlow]; !ok {
		return nil, fmt.Errorf("%w: missing plan for tier %q", ErrInvalidCatalog, TierFlow)
	}

	return catalog, nil
}

// Plan returns the plan for a tier.
func (c *Catalog) Plan(tier Tier) (Plan, error) {
	plan, ok := c.plans[tier]
	if !ok {
		return Plan{}, fmt.Errorf("%w: tier %q", ErrPlanNotFound, tier)
	}
	return plan, nil
}

// AIQueryLimit returns the monthly AI query allowance for a tier. Zero means
// the tier has no AI access at all.
func (c *Catalog) AIQueryLimit(tier Tier) int {
	return c.plans[tier].AIQueriesPerMonth
}

// TrialDays returns the trial length for the paid tier.
func (c *Catalog) TrialDays() int {
	return c.plans[TierFlow].TrialDays
}

// Package catalog holds the fixed set of purchasable subscription plans.
// The plans are embedded at build time and never change at runtime; prices
// and currencies used anywhere else in the backend must be read from here,
// never from client input.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed plans.json
var rawPlans []byte

// ErrPlanNotFound is returned when no plan matches the requested identifier.
var ErrPlanNotFound = fmt.Errorf("plan not found")

// Plan describes a single purchasable subscription plan.
type Plan struct {
	ID          string   `json:"id"`
	ServiceName string   `json:"service_name"`
	PlanName    string   `json:"plan_name"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Duration    string   `json:"duration"`
	Features    []string `json:"features"`
	ImageURL    string   `json:"image_url"`
	Active      bool     `json:"is_active"`
}

// Catalog is a read-only lookup over the embedded plan list.
type Catalog struct {
	plans []*Plan
	byID  map[string]*Plan
}

// New parses the embedded plan list and builds the lookup index.
func New() (*Catalog, error) {
	var plans []*Plan
	if err := json.Unmarshal(rawPlans, &plans); err != nil {
		return nil, fmt.Errorf("cannot parse embedded plans: %w", err)
	}
	c := &Catalog{byID: make(map[string]*Plan, len(plans))}
	for _, plan := range plans {
		if plan.ID == "" {
			return nil, fmt.Errorf("embedded plan with empty id")
		}
		if _, ok := c.byID[plan.ID]; ok {
			return nil, fmt.Errorf("duplicate embedded plan id %q", plan.ID)
		}
		c.plans = append(c.plans, plan)
		c.byID[plan.ID] = plan
	}
	return c, nil
}

// Plans returns all active plans, in the embedded order.
func (c *Catalog) Plans() []*Plan {
	active := make([]*Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		if plan.Active {
			active = append(active, plan)
		}
	}
	return active
}

// Plan returns the plan with the given ID, or ErrPlanNotFound.
func (c *Catalog) Plan(id string) (*Plan, error) {
	plan, ok := c.byID[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

package domain

import (
	"math"
	"strings"
	"time"
)

// Plan identifies a subscription product.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"

	// Currency of every price in the plan table.
	Currency = "RUB"
)

type planTerms struct {
	period time.Duration
	price  float64
	title  string
}

// plans is the authoritative price table.
var plans = map[Plan]planTerms{
	PlanMonthly: {period: 30 * 24 * time.Hour, price: 299.00, title: "Premium subscription, 1 month"},
	PlanYearly:  {period: 365 * 24 * time.Hour, price: 2990.00, title: "Premium subscription, 12 months"},
}

// ParsePlan accepts a plan identifier in any letter case.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := plans[p]; !ok {
		return "", ErrInvalidPlan
	}
	return p, nil
}

func (p Plan) Valid() bool {
	_, ok := plans[p]
	return ok
}

// Period returns the length of one billing term, zero for an unknown plan.
func (p Plan) Period() time.Duration { return plans[p].period }

// Price returns the fixed price in Currency.
func (p Plan) Price() float64 { return plans[p].price }

// Title is the human-readable purchase description shown by the gateway.
func (p Plan) Title() string { return plans[p].title }

// Subscription is one paid period. Validity is always derived from Active and EndsAt.
type Subscription struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"-"`
	Plan     Plan      `json:"plan_type"`
	Price    float64   `json:"price"`
	StartsAt time.Time `json:"start_date"`
	EndsAt   time.Time `json:"end_date"`
	Active   bool      `json:"is_active"`
}

// NewSubscription computes the term for plan starting at start.
func NewSubscription(userID int64, plan Plan, price float64, start time.Time) *Subscription {
	return &Subscription{
		UserID:   userID,
		Plan:     plan,
		Price:    price,
		StartsAt: start,
		EndsAt:   start.Add(plan.Period()),
	}
}

// ValidAt reports whether the subscription grants entitlement at now.
func (s *Subscription) ValidAt(now time.Time) bool {
	return s.Active && now.Before(s.EndsAt)
}

// DaysLeft rounds the remaining term up to whole days; zero once expired.
func (s *Subscription) DaysLeft(now time.Time) int {
	remaining := s.EndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// SubscriptionSummary is what clients see after a successful check or activation.
type SubscriptionSummary struct {
	Plan     Plan      `json:"plan_type"`
	EndsAt   time.Time `json:"end_date"`
	DaysLeft int       `json:"days_left"`
}

// Summary renders s as seen at now.
func (s *Subscription) Summary(now time.Time) SubscriptionSummary {
	return SubscriptionSummary{Plan: s.Plan, EndsAt: s.EndsAt, DaysLeft: s.DaysLeft(now)}
}

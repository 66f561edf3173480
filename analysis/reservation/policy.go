package reservation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// annualFactor converts a monthly reservation cost to its yearly waste.
var annualFactor = decimal.NewFromInt(12)

// RuleType defines the kind of governance check applied to a
// reservation analysis.
type RuleType string

const (
	RuleTypeGroupEfficiencyFloor   RuleType = "group_efficiency_floor"
	RuleTypeGroupEfficiencyCeiling RuleType = "group_efficiency_ceiling"
	RuleTypeUnusedReservation      RuleType = "unused_reservation"
	RuleTypeOverSubscription       RuleType = "over_subscription"
)

// Severity defines rule violation severity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Decision is the overall evaluation outcome.
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Rule defines a governance check with a threshold.
type Rule struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      RuleType `json:"type"`
	Severity  Severity `json:"severity"`
	Threshold float64  `json:"threshold"`
	Enabled   bool     `json:"enabled"`
}

// Violation is a failed rule.
type Violation struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Warning is advisory rule output.
type Warning struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// EvaluationResult is the governance outcome for one analysis run.
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	Warnings    []Warning   `json:"warnings"`
	RulesRan    int         `json:"rules_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Engine evaluates governance rules against utilization reports.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine preloaded with the default rules.
func NewEngine() *Engine {
	return &Engine{rules: defaultRules()}
}

// NewEngineWithThresholds overrides the efficiency floor and ceiling.
// Zero values keep the defaults.
func NewEngineWithThresholds(floor, ceiling float64) *Engine {
	e := NewEngine()
	for i := range e.rules {
		switch e.rules[i].Type {
		case RuleTypeGroupEfficiencyFloor:
			if floor > 0 {
				e.rules[i].Threshold = floor
			}
		case RuleTypeGroupEfficiencyCeiling:
			if ceiling > 0 {
				e.rules[i].Threshold = ceiling
			}
		}
	}
	return e
}

// AddRule appends a custom rule.
func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
}

func defaultRules() []Rule {
	return []Rule{
		{
			ID:        "group-efficiency-floor",
			Name:      "Group Efficiency Floor",
			Type:      RuleTypeGroupEfficiencyFloor,
			Severity:  SeverityWarning,
			Threshold: ConsolidationThreshold,
			Enabled:   true,
		},
		{
			ID:        "group-efficiency-ceiling",
			Name:      "Group Efficiency Ceiling",
			Type:      RuleTypeGroupEfficiencyCeiling,
			Severity:  SeverityWarning,
			Threshold: UpsizeThreshold,
			Enabled:   true,
		},
		{
			ID:       "unused-reservation",
			Name:     "Unused Reservation",
			Type:     RuleTypeUnusedReservation,
			Severity: SeverityError,
			Enabled:  true,
		},
		{
			ID:       "over-subscription",
			Name:     "Over-Subscribed Reservation",
			Type:     RuleTypeOverSubscription,
			Severity: SeverityWarning,
			Enabled:  true,
		},
	}
}

// Evaluate runs all enabled rules against the reports and their SKU/region
// groups.
func (e *Engine) Evaluate(reports []Report, groups []GroupEfficiency) *EvaluationResult {
	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		EvaluatedAt: time.Now(),
	}

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		result.RulesRan++

		for _, v := range e.evaluateRule(rule, reports, groups) {
			result.Violations = append(result.Violations, v)
			if rule.Severity == SeverityError {
				result.Decision = DecisionDeny
			} else if result.Decision != DecisionDeny {
				result.Decision = DecisionWarn
			}
		}
	}

	result.Warnings = advisoryWarnings(reports)
	return result
}

// advisoryWarnings covers conditions worth surfacing that no rule can
// judge. A hidden reservation with zero consumption has an unknown cost,
// so it cannot be flagged as waste; it still deserves a look.
func advisoryWarnings(reports []Report) []Warning {
	warnings := make([]Warning, 0)
	for _, r := range reports {
		if r.Status == StatusUnused && r.Hidden {
			warnings = append(warnings, Warning{
				RuleID: "unused-reservation",
				Message: fmt.Sprintf("reservation %s has no consumption and its purchase is outside the data window; cost unknown, verify it still exists",
					r.OrderID),
			})
		}
	}
	return warnings
}

func (e *Engine) evaluateRule(rule Rule, reports []Report, groups []GroupEfficiency) []Violation {
	var violations []Violation
	add := func(msg string) {
		violations = append(violations, Violation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Message:  msg,
			Severity: string(rule.Severity),
		})
	}

	switch rule.Type {
	case RuleTypeGroupEfficiencyFloor:
		for _, g := range groups {
			if g.Efficiency != nil && *g.Efficiency < rule.Threshold {
				add(fmt.Sprintf("%s/%s reservations at %.1f%% combined efficiency (floor %.0f%%); consider consolidating %d reservations",
					g.Family, regionOrUnknown(g.Region), *g.Efficiency, rule.Threshold, len(g.OrderIDs)))
			}
		}
	case RuleTypeGroupEfficiencyCeiling:
		for _, g := range groups {
			if g.Efficiency != nil && *g.Efficiency > rule.Threshold {
				add(fmt.Sprintf("%s/%s reservations at %.1f%% combined efficiency (ceiling %.0f%%); consider upsizing",
					g.Family, regionOrUnknown(g.Region), *g.Efficiency, rule.Threshold))
			}
		}
	case RuleTypeUnusedReservation:
		for _, r := range reports {
			if r.Status == StatusUnused && !r.Hidden {
				annual := r.Cost.Mul(annualFactor)
				add(fmt.Sprintf("reservation %s has no consumption records; wasting $%s/month ($%s/year)",
					r.OrderID, r.Cost.StringFixed(2), annual.StringFixed(2)))
			}
		}
	case RuleTypeOverSubscription:
		for _, r := range reports {
			if r.Status == StatusOver {
				add(fmt.Sprintf("reservation %s is over-subscribed: %d cores billed against %d reserved",
					r.OrderID, r.CoresUsed, r.ReservedCores))
			}
		}
	}

	return violations
}

func regionOrUnknown(region string) string {
	if region == "" {
		return "unknown-region"
	}
	return region
}

package statemachine

import (
	"math"
	"time"

	"github.com/kbralten/vxi-dash/internal/domain"
)

// epsilon is the equality tolerance for the sensor rule's "=" and "!="
// operators (§4.5 step 4: "equality uses |a-b| <= epsilon").
const epsilon = 1e-9

// evalContext carries everything a rule needs to decide, without any rule
// kind reaching back into the engine itself (§9 "a tagged variant plus a
// single evaluate(rule, ctx) function with one arm per kind").
type evalContext struct {
	latest      *domain.Reading
	timeInState time.Duration
	totalTime   time.Duration
}

// transitionHolds reports whether every rule in rules holds (conjunction).
// A transition with zero rules never fires (§4.5 "Edge cases").
func transitionHolds(rules []domain.Rule, ec evalContext) bool {
	if len(rules) == 0 {
		return false
	}
	for _, r := range rules {
		if !evaluateRule(r, ec) {
			return false
		}
	}
	return true
}

func evaluateRule(rule domain.Rule, ec evalContext) bool {
	switch rule.Type {
	case domain.RuleSensor:
		return evaluateSensor(rule, ec.latest)
	case domain.RuleTimeInState:
		return ec.timeInState.Seconds() >= rule.Seconds
	case domain.RuleTotalTime:
		return ec.totalTime.Seconds() >= rule.Seconds
	default:
		return false
	}
}

// evaluateSensor finds signalName in the latest sample's target blocks and
// compares its value against the threshold. Missing or null readings make
// the rule false, not an error (§4.5 step 4, §9 open question: "a sensor
// rule whose referenced signal is not measured in the current mode" is
// treated the same way).
func evaluateSensor(rule domain.Rule, latest *domain.Reading) bool {
	if latest == nil {
		return false
	}
	for _, block := range latest.Targets {
		sr, ok := block.Signals[rule.SignalName]
		if !ok {
			continue
		}
		if sr.Value == nil {
			return false
		}
		return compare(*sr.Value, rule.Operator, rule.Threshold)
	}
	return false
}

func compare(a float64, op domain.Operator, b float64) bool {
	switch op {
	case domain.OpGreater:
		return a > b
	case domain.OpGreaterOrEqual:
		return a >= b
	case domain.OpLess:
		return a < b
	case domain.OpLessOrEqual:
		return a <= b
	case domain.OpEqual:
		return math.Abs(a-b) <= epsilon
	case domain.OpNotEqual:
		return math.Abs(a-b) > epsilon
	default:
		return false
	}
}

package action

import (
	"time"

	"conductor/mapping"
)

// evalCondition evaluates a Condition tree at execution time (spec §4.4:
// "evaluates the condition at execution time, not at mapping time"),
// short-circuiting And/Or/Not.
func (e *Executor) evalCondition(c mapping.Condition) bool {
	switch c.Kind {
	case mapping.ConditionAlways:
		return true
	case mapping.ConditionNever:
		return false
	case mapping.ConditionTimeRange:
		return e.evalTimeRange(c.Start, c.End)
	case mapping.ConditionDayOfWeek:
		return e.evalDayOfWeek(c.Days)
	case mapping.ConditionAppRunning:
		return e.processes.IsRunning(c.Name)
	case mapping.ConditionAppFrontmost:
		return e.processes.IsFrontmost(c.Name)
	case mapping.ConditionModeIs:
		return e.currentModeName() == c.Name
	case mapping.ConditionAnd:
		for _, op := range c.Operands {
			if !e.evalCondition(op) {
				return false
			}
		}
		return true
	case mapping.ConditionOr:
		for _, op := range c.Operands {
			if e.evalCondition(op) {
				return true
			}
		}
		return false
	case mapping.ConditionNot:
		if c.Operand == nil {
			return true
		}
		return !e.evalCondition(*c.Operand)
	default:
		return false
	}
}

// evalTimeRange is crosses-midnight aware: if end < start, the range wraps
// through midnight (spec §3.4).
func (e *Executor) evalTimeRange(start, end time.Duration) bool {
	now := e.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sinceMidnight := now.Sub(midnight)

	if end >= start {
		return sinceMidnight >= start && sinceMidnight < end
	}
	// Wraps through midnight: e.g. 22:00-06:00.
	return sinceMidnight >= start || sinceMidnight < end
}

// evalDayOfWeek uses ISO-8601 numbering: Monday=1 .. Sunday=7 (spec §3.4).
func (e *Executor) evalDayOfWeek(days []int) bool {
	weekday := int(e.now().Weekday())
	if weekday == 0 {
		weekday = 7 // time.Sunday == 0; ISO Sunday == 7
	}
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

package dce

import (
	"fmt"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// validateTrigger runs every constraint check against an admitted trigger
// and returns the complete list of violations. It is pure: the daily
// completed-execution count is gathered by the caller. An empty result means
// the trigger is admissible.
func validateTrigger(plan domain.Plan, now time.Time, dailyCompleted int) []string {
	var reasons []string

	if hours := plan.Constraints.TradingHours; hours != nil {
		if ok, err := withinTradingHours(*hours, now); err != nil {
			reasons = append(reasons, err.Error())
		} else if !ok {
			reasons = append(reasons, fmt.Sprintf(
				"outside trading hours %s-%s UTC", hours.Start, hours.End))
		}
	}

	if max := plan.Constraints.MaxDailyExecutions; max > 0 && dailyCompleted >= max {
		reasons = append(reasons, fmt.Sprintf(
			"daily execution limit reached (%d/%d)", dailyCompleted, max))
	}

	if cd := plan.Constraints.CooldownMs; cd > 0 && plan.LastExecutedAt != nil {
		elapsed := now.Sub(*plan.LastExecutedAt)
		if elapsed < time.Duration(cd)*time.Millisecond {
			reasons = append(reasons, fmt.Sprintf(
				"cooldown active: %dms since last execution, need %dms",
				elapsed.Milliseconds(), cd))
		}
	}

	for i, action := range plan.Actions {
		if len(plan.Constraints.AllowedSymbols) > 0 && !contains(plan.Constraints.AllowedSymbols, action.Symbol) {
			reasons = append(reasons, fmt.Sprintf(
				"action %d: symbol %s not in allowed list", i, action.Symbol))
		}
		if len(plan.Constraints.AllowedVenues) > 0 && !contains(plan.Constraints.AllowedVenues, action.Venue) {
			reasons = append(reasons, fmt.Sprintf(
				"action %d: venue %s not in allowed list", i, action.Venue))
		}
	}

	return reasons
}

// withinTradingHours evaluates an HH:MM window in UTC. A window whose start
// is after its end wraps past midnight.
func withinTradingHours(hours domain.TradingHours, now time.Time) (bool, error) {
	start, err := parseClock(hours.Start)
	if err != nil {
		return false, fmt.Errorf("invalid trading hours start %q", hours.Start)
	}
	end, err := parseClock(hours.End)
	if err != nil {
		return false, fmt.Errorf("invalid trading hours end %q", hours.End)
	}

	utc := now.UTC()
	minute := utc.Hour()*60 + utc.Minute()

	if start <= end {
		return minute >= start && minute < end, nil
	}
	// Overnight window, e.g. 22:00-04:00.
	return minute >= start || minute < end, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// validateDefinition checks a plan definition for structural problems,
// collecting every violation.
func validateDefinition(def Definition) []string {
	var reasons []string

	if def.Owner == "" {
		reasons = append(reasons, "owner is required")
	}
	if def.Trigger.Type == "" {
		reasons = append(reasons, "trigger type is required")
	}
	if len(def.Actions) == 0 {
		reasons = append(reasons, "at least one action is required")
	}
	for i, action := range def.Actions {
		if action.Symbol == "" {
			reasons = append(reasons, fmt.Sprintf("action %d: symbol is required", i))
		}
		if action.Venue == "" {
			reasons = append(reasons, fmt.Sprintf("action %d: venue is required", i))
		}
		if action.Side != domain.SideBuy && action.Side != domain.SideSell {
			reasons = append(reasons, fmt.Sprintf("action %d: side must be buy or sell", i))
		}
		switch action.Pricing.Mode {
		case "", "market", "limit":
		default:
			reasons = append(reasons, fmt.Sprintf(
				"action %d: unknown pricing mode %q", i, action.Pricing.Mode))
		}
	}
	if def.Constraints.MaxDailyExecutions < 0 {
		reasons = append(reasons, "max daily executions must not be negative")
	}
	if def.Constraints.CooldownMs < 0 {
		reasons = append(reasons, "cooldown must not be negative")
	}
	if hours := def.Constraints.TradingHours; hours != nil {
		if _, err := parseClock(hours.Start); err != nil {
			reasons = append(reasons, fmt.Sprintf("invalid trading hours start %q", hours.Start))
		}
		if _, err := parseClock(hours.End); err != nil {
			reasons = append(reasons, fmt.Sprintf("invalid trading hours end %q", hours.End))
		}
	}

	return reasons
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

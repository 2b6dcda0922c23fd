package opportunity

import (
	"fmt"

	"github.com/fundingarb/core/internal/types"
)

// VerdictInputs bundles everything the Bot-Action rule table needs to
// classify one opportunity, independent of how UOS/spread/APR were
// computed.
type VerdictInputs struct {
	SystemRunning        bool
	CircuitBreakerActive bool
	Mode                 types.RiskMode

	LongVenueHasCreds  bool
	ShortVenueHasCreds bool
	SymbolBlacklisted  bool

	UOS          float64
	MinUOS       float64
	SpreadPct    float64
	MinSpreadPct float64
	NetAPRPct    float64
	MinNetAPRPct float64

	AutoExecute      bool
	AutoUOSThreshold float64

	ActiveCoinCount     int
	MaxConcurrentCoins  int
	SymbolAlreadyActive bool
	AvailableCapital    types.Money
	MinAllocationUSD    types.Money
}

// verdictRule is one row of spec §4.2's priority table: pass reports
// whether the rule's condition holds; class is the verdict assigned when
// it does not.
type verdictRule struct {
	name  string
	pass  func(VerdictInputs) bool
	class types.BotAction
}

// verdictRules is evaluated top-to-bottom; the first failing rule's class
// wins. Grounded on internal/score/composite/gates.go's HardEntryGates,
// which evaluates an ordered list of named predicates and records a
// reason per gate — adapted here from "AND every gate, reject on any
// failure" to "first failing gate sets the verdict, remaining gates are
// still evaluated only for their reason strings".
var verdictRules = []verdictRule{
	{
		name: "system operational",
		pass: func(in VerdictInputs) bool {
			if !in.SystemRunning || in.CircuitBreakerActive {
				return false
			}
			return in.Mode != types.ModeDiscovery && in.Mode != types.ModeEmergency
		},
		class: types.ActionBlocked,
	},
	{
		name: "venue credentials present",
		pass: func(in VerdictInputs) bool {
			return in.LongVenueHasCreds && in.ShortVenueHasCreds && !in.SymbolBlacklisted
		},
		class: types.ActionBlocked,
	},
	{
		name: "meets minimum quality thresholds",
		pass: func(in VerdictInputs) bool {
			return in.UOS >= in.MinUOS && in.SpreadPct >= in.MinSpreadPct && in.NetAPRPct >= in.MinNetAPRPct
		},
		class: types.ActionBlocked,
	},
	{
		name: "eligible for unattended execution",
		pass: func(in VerdictInputs) bool {
			return in.AutoExecute && in.UOS >= in.AutoUOSThreshold
		},
		class: types.ActionManualOnly,
	},
	{
		name: "capacity available for new position",
		pass: func(in VerdictInputs) bool {
			if in.ActiveCoinCount >= in.MaxConcurrentCoins {
				return false
			}
			if in.SymbolAlreadyActive {
				return false
			}
			return in.AvailableCapital.GreaterThanOrEqual(in.MinAllocationUSD)
		},
		class: types.ActionWaiting,
	},
}

// Classify evaluates the priority-ordered rule table and returns the
// verdict along with a human-readable detail line for every rule, in
// evaluation order, per spec §4.2 ("all triggered rules are attached as
// human-readable details").
func Classify(in VerdictInputs) (types.BotAction, []string) {
	var details []string
	verdict := types.ActionAutoTrade
	decided := false

	for _, rule := range verdictRules {
		ok := rule.pass(in)
		if ok {
			details = append(details, fmt.Sprintf("pass: %s", rule.name))
			continue
		}
		details = append(details, fmt.Sprintf("fail: %s -> %s", rule.name, rule.class))
		if !decided {
			verdict = rule.class
			decided = true
		}
	}

	if !decided {
		details = append(details, fmt.Sprintf("all rules passed -> %s", types.ActionAutoTrade))
	}

	return verdict, details
}

package opportunity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fundingarb/core/internal/types"
)

func baseVerdictInputs() VerdictInputs {
	return VerdictInputs{
		SystemRunning:        true,
		CircuitBreakerActive: false,
		Mode:                 types.ModeStandard,
		LongVenueHasCreds:    true,
		ShortVenueHasCreds:   true,
		SymbolBlacklisted:    false,
		UOS:                  80,
		MinUOS:               60,
		SpreadPct:            0.001,
		MinSpreadPct:         0.0002,
		NetAPRPct:            10,
		MinNetAPRPct:         5,
		AutoExecute:          true,
		AutoUOSThreshold:     75,
		ActiveCoinCount:      2,
		MaxConcurrentCoins:   10,
		SymbolAlreadyActive:  false,
		AvailableCapital:     decimal.NewFromInt(10_000),
		MinAllocationUSD:     decimal.NewFromInt(100),
	}
}

func TestClassify_DefaultsToAutoTrade(t *testing.T) {
	verdict, details := Classify(baseVerdictInputs())
	assert.Equal(t, types.ActionAutoTrade, verdict)
	assert.NotEmpty(t, details)
}

func TestClassify_BlockedWhenSystemNotRunning(t *testing.T) {
	in := baseVerdictInputs()
	in.SystemRunning = false
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionBlocked, verdict)
}

func TestClassify_BlockedWhenCircuitBreakerActive(t *testing.T) {
	in := baseVerdictInputs()
	in.CircuitBreakerActive = true
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionBlocked, verdict)
}

func TestClassify_BlockedInDiscoveryMode(t *testing.T) {
	in := baseVerdictInputs()
	in.Mode = types.ModeDiscovery
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionBlocked, verdict)
}

func TestClassify_BlockedWithoutCredentials(t *testing.T) {
	in := baseVerdictInputs()
	in.ShortVenueHasCreds = false
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionBlocked, verdict)
}

func TestClassify_BlockedWhenBelowQualityThresholds(t *testing.T) {
	in := baseVerdictInputs()
	in.UOS = 10
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionBlocked, verdict)
}

func TestClassify_ManualOnlyWhenAutoExecuteOffOrBelowThreshold(t *testing.T) {
	in := baseVerdictInputs()
	in.AutoExecute = false
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionManualOnly, verdict)

	in2 := baseVerdictInputs()
	in2.UOS = 74 // >= MinUOS(60) so rule 3 passes, but below AutoUOSThreshold(75)
	verdict2, _ := Classify(in2)
	assert.Equal(t, types.ActionManualOnly, verdict2)
}

func TestClassify_WaitingWhenNoCapacity(t *testing.T) {
	in := baseVerdictInputs()
	in.ActiveCoinCount = in.MaxConcurrentCoins
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionWaiting, verdict)
}

func TestClassify_WaitingWhenSymbolAlreadyActive(t *testing.T) {
	in := baseVerdictInputs()
	in.SymbolAlreadyActive = true
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionWaiting, verdict)
}

func TestClassify_WaitingWhenInsufficientCapital(t *testing.T) {
	in := baseVerdictInputs()
	in.AvailableCapital = decimal.NewFromInt(10)
	verdict, _ := Classify(in)
	assert.Equal(t, types.ActionWaiting, verdict)
}

func TestClassify_FirstFailingRuleWinsEvenIfLaterRulesAlsoFail(t *testing.T) {
	in := baseVerdictInputs()
	in.SystemRunning = false  // rule 1 fails -> BLOCKED
	in.ActiveCoinCount = in.MaxConcurrentCoins // rule 5 would also fail -> WAITING
	verdict, details := Classify(in)
	assert.Equal(t, types.ActionBlocked, verdict)
	assert.Len(t, details, len(verdictRules))
}

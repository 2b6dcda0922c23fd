package capital

import "sync"

// EdgeTracker accumulates realized trade outcomes per symbol so the
// Kelly sizing branch (spec §4.3 step 1) has a win-rate/avg-win/avg-loss
// sample to draw on, falling back to the overall cross-symbol sample
// when a symbol has none of its own yet.
type EdgeTracker struct {
	mu        sync.Mutex
	perSymbol map[string]*runningEdge
	overall   *runningEdge
}

type runningEdge struct {
	wins    int
	losses  int
	winSum  float64
	lossSum float64
}

func NewEdgeTracker() *EdgeTracker {
	return &EdgeTracker{
		perSymbol: make(map[string]*runningEdge),
		overall:   &runningEdge{},
	}
}

// Record adds one closed trade's realized PnL (in USD) to both the
// symbol's running sample and the overall fallback sample.
func (t *EdgeTracker) Record(symbol string, realizedPnL float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.perSymbol[symbol]
	if !ok {
		e = &runningEdge{}
		t.perSymbol[symbol] = e
	}
	e.add(realizedPnL)
	t.overall.add(realizedPnL)
}

func (e *runningEdge) add(pnl float64) {
	if pnl >= 0 {
		e.wins++
		e.winSum += pnl
	} else {
		e.losses++
		e.lossSum += -pnl
	}
}

func (e *runningEdge) stats() (EdgeStats, bool) {
	total := e.wins + e.losses
	if total == 0 {
		return EdgeStats{}, false
	}
	s := EdgeStats{
		WinRate: float64(e.wins) / float64(total),
		Samples: total,
	}
	if e.wins > 0 {
		s.AvgWin = e.winSum / float64(e.wins)
	}
	if e.losses > 0 {
		s.AvgLoss = e.lossSum / float64(e.losses)
	}
	return s, true
}

// EdgeFor returns the symbol's own sample, falling back to the overall
// cross-symbol sample per spec §4.3's "fallback: overall edge".
func (t *EdgeTracker) EdgeFor(symbol string) (EdgeStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.perSymbol[symbol]; ok {
		if s, ok := e.stats(); ok {
			return s, true
		}
	}
	return t.overall.stats()
}

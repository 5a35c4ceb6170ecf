package strategy

// Position mirrors the engine state: flat or holding one long unit.
type Position int

const (
	Flat Position = iota
	Long
)

func (p Position) String() string {
	if p == Long {
		return "LONG"
	}
	return "FLAT"
}

// ledger tracks the open position and cumulative realized profit.
// It is owned by Engine and only changed through open and close.
type ledger struct {
	position       Position
	entryPrice     float64
	realizedProfit float64
}

func (l *ledger) open(price float64) {
	l.position = Long
	l.entryPrice = price
}

// close realizes price-entry and returns the cumulative profit.
func (l *ledger) close(price float64) float64 {
	l.realizedProfit += price - l.entryPrice
	l.position = Flat
	l.entryPrice = 0
	return l.realizedProfit
}

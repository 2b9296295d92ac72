package book

// TickLevel is the aggregate queue state at one (pair, side, tick).
// Head/Tail are order ids, 0 when empty. TotalLiquidity is the sum of
// Remaining over the linked orders, in base units.
type TickLevel struct {
	Head           uint64
	Tail           uint64
	TotalLiquidity int64
}

func (l *TickLevel) IsEmpty() bool {
	return l.Head == 0
}

package kv

// Tx buffers all mutations of one engine operation. Nothing reaches the
// underlying store until Commit, which applies the whole buffer as one
// atomic batch; dropping the Tx discards everything.
//
// Every distinct key touched (read, written or deleted) counts against the
// budget. A budget of 0 or less means unlimited.
type Tx struct {
	base    Store
	writes  map[string][]byte
	deletes map[string]struct{}
	touched map[string]struct{}
	budget  int
}

func Begin(base Store, budget int) *Tx {
	return &Tx{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
		touched: make(map[string]struct{}),
		budget:  budget,
	}
}

func (t *Tx) Get(key string) ([]byte, error) {
	if err := t.touch(key); err != nil {
		return nil, err
	}
	if _, ok := t.deletes[key]; ok {
		return nil, ErrNotFound
	}
	if val, ok := t.writes[key]; ok {
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	}
	return t.base.Get(key)
}

func (t *Tx) Set(key string, val []byte) error {
	if err := t.touch(key); err != nil {
		return err
	}
	delete(t.deletes, key)
	t.writes[key] = val
	return nil
}

func (t *Tx) Delete(key string) error {
	if err := t.touch(key); err != nil {
		return err
	}
	delete(t.writes, key)
	t.deletes[key] = struct{}{}
	return nil
}

// Accesses reports how many distinct keys the transaction has touched.
func (t *Tx) Accesses() int {
	return len(t.touched)
}

// Commit atomically applies the buffered mutations.
func (t *Tx) Commit() error {
	return t.base.Apply(t.writes, t.deletes)
}

func (t *Tx) touch(key string) error {
	if _, ok := t.touched[key]; ok {
		return nil
	}
	if t.budget > 0 && len(t.touched) >= t.budget {
		return ErrBudgetExceeded
	}
	t.touched[key] = struct{}{}
	return nil
}

package engine

// RNG is the xorshift64 generator the acting peer uses to decide dice and
// content draws. It is never consulted while applying actions.
type RNG struct {
	state uint64
}

// NewRNG seeds a generator. A zero seed is corrected to 1 since xorshift
// cannot leave the zero state.
func NewRNG(seed uint64) *RNG {
	if seed == 0 {
		seed = 1
	}
	return &RNG{state: seed}
}

func (r *RNG) next() uint64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.state = x
	return x
}

// Intn returns a number in [0, n). n <= 0 yields 0.
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % uint64(n))
}

// Roll returns a die face in [1, 6].
func (r *RNG) Roll() uint8 {
	return uint8(r.Intn(DieFaces)) + 1
}

// weighted is one entry of a weighted outcome table.
type weighted struct {
	delta  int8
	weight uint8
}

// pick draws one delta from the table proportionally to the weights.
func (r *RNG) pick(table []weighted) int8 {
	total := 0
	for _, w := range table {
		total += int(w.weight)
	}
	n := r.Intn(total)
	for _, w := range table {
		n -= int(w.weight)
		if n < 0 {
			return w.delta
		}
	}
	return table[len(table)-1].delta
}

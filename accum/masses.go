package accum

// Masses is one accumulation cell per transcript.  During an accumulation
// phase any number of goroutines may call IncLoop/IncLoopLog on At(i); Reset
// and Snapshot may only be called once all of them have returned.
type Masses struct {
	cells []Float64
}

// NewMasses creates n cells, each holding init.
func NewMasses(n int, init float64) *Masses {
	m := &Masses{cells: make([]Float64, n)}
	m.Reset(init)
	return m
}

// Len returns the number of cells.
func (m *Masses) Len() int { return len(m.cells) }

// At returns the i'th cell.
func (m *Masses) At(i int) *Float64 { return &m.cells[i] }

// Reset sets every cell to init.
func (m *Masses) Reset(init float64) {
	for i := range m.cells {
		m.cells[i].Store(init)
	}
}

// Snapshot copies the current values into a new slice.
func (m *Masses) Snapshot() []float64 {
	out := make([]float64, len(m.cells))
	for i := range m.cells {
		out[i] = m.cells[i].Load()
	}
	return out
}

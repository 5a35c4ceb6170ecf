package strategy

// Average is a simple moving average that is only meaningful when OK is set.
type Average struct {
	Value float64
	OK    bool
}

// Window maintains the short and long rolling sums over a fixed ring of recent prices.
// Each Update is O(1); the retained history is never rescanned.
type Window struct {
	short    int
	long     int
	buf      []float64
	head     int // index of the newest price
	count    int
	shortSum float64
	longSum  float64
}

// NewWindow sizes the ring for max(short, long) prices, never fewer than two so the
// previous price stays addressable. Non-positive windows fall back to the defaults.
func NewWindow(short, long int) *Window {
	if short <= 0 {
		short = DefaultShortWindow
	}
	if long <= 0 {
		long = DefaultLongWindow
	}
	size := max(short, long, 2)
	return &Window{
		short: short,
		long:  long,
		buf:   make([]float64, size),
		head:  size - 1,
	}
}

// Update pushes price as the newest value and returns both averages.
func (w *Window) Update(price float64) (Average, Average) {
	if w.count >= w.short {
		w.shortSum -= w.At(w.short - 1)
	}
	if w.count >= w.long {
		w.longSum -= w.At(w.long - 1)
	}
	w.shortSum += price
	w.longSum += price

	w.head = (w.head + 1) % len(w.buf)
	w.buf[w.head] = price
	if w.count < len(w.buf) {
		w.count++
	}
	return w.Averages()
}

// Averages reports the current averages without mutating anything.
func (w *Window) Averages() (Average, Average) {
	var short, long Average
	if w.count >= w.short {
		short = Average{Value: w.shortSum / float64(w.short), OK: true}
	}
	if w.count >= w.long {
		long = Average{Value: w.longSum / float64(w.long), OK: true}
	}
	return short, long
}

// At returns the i-th most recent retained price; At(0) is the newest.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.count {
		return 0
	}
	return w.buf[(w.head-i+len(w.buf))%len(w.buf)]
}

// Len is the number of retained prices.
func (w *Window) Len() int { return w.count }

// ShortSum is the running sum of the most recent min(Len, short) prices.
func (w *Window) ShortSum() float64 { return w.shortSum }

// LongSum is the running sum of the most recent min(Len, long) prices.
func (w *Window) LongSum() float64 { return w.longSum }

// Values copies the retained prices, newest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

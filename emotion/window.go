package emotion

// window is a fixed-capacity FIFO of readings; the oldest is evicted on overflow.
type window struct {
	vals []float64
	size int
}

func newWindow(size int) *window {
	return &window{vals: make([]float64, 0, size), size: size}
}

func (w *window) push(v float64) {
	if len(w.vals) == w.size {
		copy(w.vals, w.vals[1:])
		w.vals = w.vals[:w.size-1]
	}
	w.vals = append(w.vals, v)
}

func (w *window) len() int { return len(w.vals) }

func (w *window) mean() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.vals {
		sum += v
	}
	return sum / float64(len(w.vals))
}

// slope of the least-squares line through (i, vals[i]).
func (w *window) slope() float64 {
	n := float64(len(w.vals))
	if n < 2 {
		return 0
	}
	xMean := (n - 1) / 2
	yMean := w.mean()
	var num, den float64
	for i, y := range w.vals {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	return num / den
}

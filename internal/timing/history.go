package timing

import (
	"gonum.org/v1/gonum/stat"
)

// LapHistoryCapacity is the number of completed lap times retained.
const LapHistoryCapacity = 10

// LapHistory maintains a sliding window of the most recent completed lap times.
type LapHistory struct {
	laps     []float64
	capacity int
	head     int // Points to next write position
	size     int // Current number of laps stored
}

// NewLapHistory creates a new lap history buffer with the specified capacity.
func NewLapHistory(capacity int) *LapHistory {
	if capacity < 1 {
		capacity = LapHistoryCapacity
	}
	return &LapHistory{
		laps:     make([]float64, capacity),
		capacity: capacity,
	}
}

// Push stores a lap time, overwriting the oldest once at capacity.
func (h *LapHistory) Push(lapTime float64) {
	h.laps[h.head] = lapTime
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Len returns the number of laps currently stored.
func (h *LapHistory) Len() int {
	return h.size
}

// Values returns the stored lap times, oldest first.
func (h *LapHistory) Values() []float64 {
	out := make([]float64, h.size)
	start := (h.head - h.size + h.capacity) % h.capacity
	for i := 0; i < h.size; i++ {
		out[i] = h.laps[(start+i)%h.capacity]
	}
	return out
}

// Clear drops every stored lap.
func (h *LapHistory) Clear() {
	h.head = 0
	h.size = 0
}

// Consistency is the population standard deviation of the stored lap times.
// Returns 0 with fewer than two laps.
func (h *LapHistory) Consistency() float64 {
	if h.size < 2 {
		return 0
	}
	return stat.PopStdDev(h.Values(), nil)
}

// PaceTrend is the newest lap time minus the oldest. Negative means the
// driver is getting faster. Returns 0 with fewer than two laps.
func (h *LapHistory) PaceTrend() float64 {
	if h.size < 2 {
		return 0
	}
	v := h.Values()
	return v[len(v)-1] - v[0]
}

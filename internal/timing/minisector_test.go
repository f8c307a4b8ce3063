package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiniSectorIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		lapDistance float64
		want        int
	}{
		{"start", 0, 0},
		{"inside first", 99.9, 0},
		{"second boundary", 100, 1},
		{"last", 899.99, 8},
		{"clamped at length", 900, 8},
		{"negative", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MiniSectorIndex(tt.lapDistance, 900))
		})
	}
}

func TestMiniSectorTracker_FirstTransitionNotTimed(t *testing.T) {
	t.Parallel()

	tr := NewMiniSectorTracker()
	assert.False(t, tr.Update(1, 10, 900))
	// Leaving the first observed mini-sector has no meaningful start.
	assert.False(t, tr.Update(5, 110, 900))
	assert.Equal(t, 1, tr.ActiveIndex())
	assert.False(t, tr.Best(0).Valid)

	assert.True(t, tr.Update(9, 205, 900))
	assert.Equal(t, Float(4), tr.Best(1))
}

func TestMiniSectorTracker_RecomputesOnlyOnIndexChange(t *testing.T) {
	t.Parallel()

	tr := NewMiniSectorTracker()
	tr.Reset(0)

	tr.Update(3, 101, 900)
	before := tr.DisplayInfo()

	for i := 0; i < 20; i++ {
		assert.False(t, tr.Update(3+float64(i)*0.1, 110+float64(i), 900))
	}
	assert.Equal(t, before, tr.DisplayInfo())
}

func TestMiniSectorTracker_PersonalBestsAndDeltas(t *testing.T) {
	t.Parallel()

	tr := NewMiniSectorTracker()
	tr.Reset(0)

	// Lap 1: every mini-sector takes 4s.
	for i := 1; i <= 8; i++ {
		tr.Update(float64(i)*4, float64(i)*100+1, 900)
	}
	tr.Close(36)

	info := tr.DisplayInfo()
	for i := 0; i < MiniSectorCount; i++ {
		require.Equal(t, Float(4), info[i].Best, "mini-sector %d", i)
		assert.Equal(t, 0.0, info[i].Delta)
	}

	// Lap 2: first mini-sector 1s slower, second 0.5s faster.
	tr.Reset(0)
	tr.Update(5, 101, 900)
	assert.Equal(t, 1.0, tr.SectorDelta(0))
	assert.Equal(t, Float(4), tr.Best(0))

	tr.Update(8.5, 201, 900)
	assert.Equal(t, Float(3.5), tr.Best(1))
	// A new PB is a zero delta against itself.
	assert.Equal(t, 0.0, tr.DisplayInfo()[1].Delta)
	assert.Equal(t, 1.0, tr.SectorDelta(0))

	tr.Update(13.5, 301, 900)
	assert.Equal(t, 2.0, tr.SectorDelta(0), "running sum over the sector's mini-sectors")
	assert.Equal(t, 0.0, tr.SectorDelta(1))
	assert.Equal(t, [SectorCount]float64{2, 0, 0}, tr.SectorDeltas())
}

func TestMiniSectorTracker_ResetKeepsBests(t *testing.T) {
	t.Parallel()

	tr := NewMiniSectorTracker()
	tr.Reset(10)
	tr.Update(14, 101, 900)
	require.Equal(t, Float(4), tr.Best(0))

	tr.Reset(40)
	assert.Equal(t, 0, tr.ActiveIndex())
	info := tr.DisplayInfo()
	assert.Equal(t, 0.0, info[0].Time)
	assert.Equal(t, 0.0, info[0].Delta)
	assert.Equal(t, Float(4), info[0].Best)
	assert.Equal(t, [SectorCount]float64{}, tr.SectorDeltas())
}

func TestMiniSectorTracker_IgnoresNonPositiveDuration(t *testing.T) {
	t.Parallel()

	tr := NewMiniSectorTracker()
	tr.Reset(50) // lap time had not rolled over yet
	tr.Update(3, 101, 900)

	assert.False(t, tr.Best(0).Valid)
	assert.Equal(t, 0.0, tr.DisplayInfo()[0].Delta)
	assert.Equal(t, 0.0, tr.DisplayInfo()[0].Time)
}

func TestMiniSectorTracker_OutOfRangeQueries(t *testing.T) {
	t.Parallel()

	tr := NewMiniSectorTracker()
	assert.False(t, tr.Best(-1).Valid)
	assert.False(t, tr.Best(MiniSectorCount).Valid)
	assert.Equal(t, 0.0, tr.SectorDelta(SectorCount))
}

package telemetry

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ShortBuffer(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 232, FRAME_SIZE - 1} {
		_, err := Decode(make([]byte, n))
		require.Error(t, err, "len=%d", n)
		assert.True(t, errors.Is(err, ErrMalformedFrame))
	}
}

func TestDecode_LongerBufferAccepted(t *testing.T) {
	t.Parallel()

	buf := make([]byte, FRAME_SIZE+16)
	binary.LittleEndian.PutUint32(buf[OFFSET_DISTANCE:], math.Float32bits(1234.5))
	for i := FRAME_SIZE; i < len(buf); i++ {
		buf[i] = 0xFF
	}

	s, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, float32(1234.5), s.Distance)
}

func TestDecode_FieldOffsets(t *testing.T) {
	t.Parallel()

	buf := make([]byte, FRAME_SIZE)
	binary.LittleEndian.PutUint32(buf[OFFSET_IS_RACE_ON:], 1)
	binary.LittleEndian.PutUint32(buf[OFFSET_TIMESTAMP_MS:], 987654)
	binary.LittleEndian.PutUint32(buf[OFFSET_CURRENT_RPM:], math.Float32bits(7250))
	binary.LittleEndian.PutUint32(buf[OFFSET_VELOCITY:], math.Float32bits(3))
	binary.LittleEndian.PutUint32(buf[OFFSET_VELOCITY+8:], math.Float32bits(4))
	binary.LittleEndian.PutUint32(buf[OFFSET_CAR_ORDINAL:], 3311)
	binary.LittleEndian.PutUint32(buf[OFFSET_DISTANCE:], math.Float32bits(-5600))
	binary.LittleEndian.PutUint32(buf[OFFSET_BEST_LAP:], math.Float32bits(92.5))
	binary.LittleEndian.PutUint32(buf[OFFSET_LAST_LAP:], math.Float32bits(93.25))
	binary.LittleEndian.PutUint32(buf[OFFSET_CURRENT_LAP:], math.Float32bits(12.75))
	binary.LittleEndian.PutUint16(buf[OFFSET_LAP_NUMBER:], 4)
	buf[OFFSET_RACE_POSITION] = 2
	buf[OFFSET_GEAR] = 5
	buf[OFFSET_STEER] = 0x81 // -127
	binary.LittleEndian.PutUint32(buf[OFFSET_TRACK_ORDINAL:], 0xFFFFFFFF) // int32(-1)

	s, err := Decode(buf)
	require.NoError(t, err)

	assert.True(t, s.IsRaceOn)
	assert.Equal(t, uint32(987654), s.TimestampMS)
	assert.Equal(t, float32(7250), s.CurrentRPM)
	assert.InDelta(t, 5.0, s.VelocityMagnitude(), 1e-9)
	assert.Equal(t, int32(3311), s.CarOrdinal)
	assert.Equal(t, float32(-5600), s.Distance)
	assert.Equal(t, float32(92.5), s.BestLapTime)
	assert.Equal(t, float32(93.25), s.LastLapTime)
	assert.Equal(t, float32(12.75), s.LapTime)
	assert.Equal(t, uint16(4), s.LapNumber)
	assert.Equal(t, uint8(2), s.RacePosition)
	assert.Equal(t, uint8(5), s.Gear)
	assert.Equal(t, int8(-127), s.Steer)
	assert.Equal(t, int32(-1), s.TrackOrdinal)
}

func TestSample_MarshalBinary(t *testing.T) {
	t.Parallel()

	want := &Sample{
		IsRaceOn:         true,
		TimestampMS:      42,
		EngineMaxRPM:     8000,
		EngineIdleRPM:    900,
		CurrentRPM:       6100,
		Acceleration:     Vec3{X: 0.5, Y: -9.8, Z: 1},
		Velocity:         Vec3{X: 10, Y: 0, Z: 40},
		AngularVelocity:  Vec3{Y: 0.1},
		Yaw:              1.5,
		CarOrdinal:       2400,
		CarClass:         5,
		PerformanceIndex: 800,
		Drivetrain:       1,
		NumCylinders:     8,
		Position:         Vec3{X: -100, Y: 3, Z: 250},
		Speed:            41.2,
		Power:            300000,
		Torque:           500,
		TireTemp:         Wheels{FrontLeft: 180, FrontRight: 182, RearLeft: 190, RearRight: 191},
		Fuel:             0.75,
		Distance:         10234.5,
		BestLapTime:      88.1,
		LastLapTime:      89.2,
		LapTime:          30.3,
		CurrentRaceTime:  210.4,
		LapNumber:        3,
		RacePosition:     1,
		Accel:            255,
		Brake:            12,
		Gear:             4,
		Steer:            -20,
		DrivingLine:      7,
		AIBrakeDiff:      -3,
		TireWear:         Wheels{FrontLeft: 0.1, FrontRight: 0.2, RearLeft: 0.3, RearRight: 0.4},
		TrackOrdinal:     110,
	}

	buf, err := want.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, FrameSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded sample mismatch (-want +got):\n%s", diff)
	}
}

func TestVec3_Magnitude(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Vec3{}.Magnitude())
	assert.InDelta(t, 13.0, Vec3{X: 3, Y: 4, Z: 12}.Magnitude(), 1e-9)
}

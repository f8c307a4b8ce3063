package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Forza Motorsport "Dash" Telemetry Frame

The game emits one UDP datagram per physics tick (~60 Hz) when Data Out is enabled.
All multi-byte fields are little-endian. Only the "Dash" layout (Motorsport 2023,
331 bytes) is decoded here; the shorter "Sled" layout carries none of the lap fields
the timing engine needs.

FRAME STRUCTURE (331 bytes total):
├── Sled block (0-231)
│   ├── 0-19    race-on flag, timestamp, engine rpm (max/idle/current)
│   ├── 20-67   acceleration, velocity, angular velocity, yaw/pitch/roll
│   ├── 68-211  suspension, tyre slip, wheel rotation, rumble, puddle (not decoded)
│   └── 212-231 car ordinal, class, performance index, drivetrain, cylinders
└── Dash block (232-330)
    ├── 232-279 world position, speed, power, torque, tyre temps, boost, fuel
    ├── 280-299 distance traveled, best/last/current lap, race time
    ├── 300-310 lap number, race position, driver inputs, gear, steer, line hints
    └── 311-330 tyre wear, track ordinal

Distance is cumulative and signed. Before the car reaches the start line on the first
lap the game reports a negative distance whose magnitude is the track length.
*/

// Dash frame layout constants
const (
	FRAME_SIZE = 331 // Dash datagram size in bytes

	OFFSET_IS_RACE_ON        = 0
	OFFSET_TIMESTAMP_MS      = 4
	OFFSET_ENGINE_MAX_RPM    = 8
	OFFSET_ENGINE_IDLE_RPM   = 12
	OFFSET_CURRENT_RPM       = 16
	OFFSET_ACCELERATION      = 20 // x, y, z f32
	OFFSET_VELOCITY          = 32 // x, y, z f32
	OFFSET_ANGULAR_VELOCITY  = 44 // x, y, z f32
	OFFSET_YAW               = 56
	OFFSET_PITCH             = 60
	OFFSET_ROLL              = 64
	OFFSET_CAR_ORDINAL       = 212
	OFFSET_CAR_CLASS         = 216
	OFFSET_PERFORMANCE_INDEX = 220
	OFFSET_DRIVETRAIN        = 224
	OFFSET_NUM_CYLINDERS     = 228
	OFFSET_POSITION          = 232 // x, y, z f32
	OFFSET_SPEED             = 244
	OFFSET_POWER             = 248
	OFFSET_TORQUE            = 252
	OFFSET_TIRE_TEMP         = 256 // FL, FR, RL, RR f32
	OFFSET_BOOST             = 272
	OFFSET_FUEL              = 276
	OFFSET_DISTANCE          = 280
	OFFSET_BEST_LAP          = 284
	OFFSET_LAST_LAP          = 288
	OFFSET_CURRENT_LAP       = 292
	OFFSET_CURRENT_RACE_TIME = 296
	OFFSET_LAP_NUMBER        = 300 // u16
	OFFSET_RACE_POSITION     = 302 // u8
	OFFSET_ACCEL             = 303 // u8
	OFFSET_BRAKE             = 304 // u8
	OFFSET_CLUTCH            = 305 // u8
	OFFSET_HANDBRAKE         = 306 // u8
	OFFSET_GEAR              = 307 // u8
	OFFSET_STEER             = 308 // s8
	OFFSET_DRIVING_LINE      = 309 // s8
	OFFSET_AI_BRAKE_DIFF     = 310 // s8
	OFFSET_TIRE_WEAR         = 311 // FL, FR, RL, RR f32
	OFFSET_TRACK_ORDINAL     = 327
)

// FrameSize is the number of bytes a datagram must carry to be decoded.
const FrameSize = FRAME_SIZE

// ErrMalformedFrame is returned when a datagram is too short to hold a Dash frame.
var ErrMalformedFrame = errors.New("malformed telemetry frame")

// Vec3 is a three-component vector in the game's world frame.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Magnitude returns the Euclidean length of the vector.
func (v Vec3) Magnitude() float64 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return math.Sqrt(x*x + y*y + z*z)
}

// Wheels holds one value per tyre.
type Wheels struct {
	FrontLeft  float32 `json:"front_left"`
	FrontRight float32 `json:"front_right"`
	RearLeft   float32 `json:"rear_left"`
	RearRight  float32 `json:"rear_right"`
}

// Sample is one decoded telemetry frame.
type Sample struct {
	IsRaceOn    bool   `json:"is_race_on"`
	TimestampMS uint32 `json:"timestamp_ms"`

	EngineMaxRPM  float32 `json:"engine_max_rpm"`
	EngineIdleRPM float32 `json:"engine_idle_rpm"`
	CurrentRPM    float32 `json:"current_rpm"`

	Acceleration    Vec3    `json:"acceleration"`
	Velocity        Vec3    `json:"velocity"`
	AngularVelocity Vec3    `json:"angular_velocity"`
	Yaw             float32 `json:"yaw"`
	Pitch           float32 `json:"pitch"`
	Roll            float32 `json:"roll"`

	CarOrdinal       int32 `json:"car_ordinal"`
	CarClass         int32 `json:"car_class"`
	PerformanceIndex int32 `json:"performance_index"`
	Drivetrain       int32 `json:"drivetrain"`
	NumCylinders     int32 `json:"num_cylinders"`

	Position Vec3    `json:"position"`
	Speed    float32 `json:"speed"`
	Power    float32 `json:"power"`
	Torque   float32 `json:"torque"`
	TireTemp Wheels  `json:"tire_temp"`
	Boost    float32 `json:"boost"`
	Fuel     float32 `json:"fuel"`

	// Distance is cumulative distance traveled in meters; negative before the
	// first crossing of the start line.
	Distance        float32 `json:"distance"`
	BestLapTime     float32 `json:"best_lap_time"`
	LastLapTime     float32 `json:"last_lap_time"`
	LapTime         float32 `json:"lap_time"`
	CurrentRaceTime float32 `json:"current_race_time"`
	LapNumber       uint16  `json:"lap_number"`
	RacePosition    uint8   `json:"race_position"`

	Accel       uint8 `json:"accel"`
	Brake       uint8 `json:"brake"`
	Clutch      uint8 `json:"clutch"`
	HandBrake   uint8 `json:"handbrake"`
	Gear        uint8 `json:"gear"`
	Steer       int8  `json:"steer"`
	DrivingLine int8  `json:"driving_line"`
	AIBrakeDiff int8  `json:"ai_brake_diff"`

	TireWear     Wheels `json:"tire_wear"`
	TrackOrdinal int32  `json:"track_ordinal"`
}

// VelocityMagnitude returns the vehicle speed in m/s derived from the velocity vector.
func (s *Sample) VelocityMagnitude() float64 {
	return s.Velocity.Magnitude()
}

// Decode parses a Dash datagram. Buffers longer than FrameSize are accepted and
// only the first FrameSize bytes are read.
func Decode(buf []byte) (*Sample, error) {
	if len(buf) < FRAME_SIZE {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d", ErrMalformedFrame, FRAME_SIZE, len(buf))
	}

	s := &Sample{
		IsRaceOn:      i32(buf, OFFSET_IS_RACE_ON) != 0,
		TimestampMS:   binary.LittleEndian.Uint32(buf[OFFSET_TIMESTAMP_MS:]),
		EngineMaxRPM:  f32(buf, OFFSET_ENGINE_MAX_RPM),
		EngineIdleRPM: f32(buf, OFFSET_ENGINE_IDLE_RPM),
		CurrentRPM:    f32(buf, OFFSET_CURRENT_RPM),

		Acceleration:    vec3(buf, OFFSET_ACCELERATION),
		Velocity:        vec3(buf, OFFSET_VELOCITY),
		AngularVelocity: vec3(buf, OFFSET_ANGULAR_VELOCITY),
		Yaw:             f32(buf, OFFSET_YAW),
		Pitch:           f32(buf, OFFSET_PITCH),
		Roll:            f32(buf, OFFSET_ROLL),

		CarOrdinal:       i32(buf, OFFSET_CAR_ORDINAL),
		CarClass:         i32(buf, OFFSET_CAR_CLASS),
		PerformanceIndex: i32(buf, OFFSET_PERFORMANCE_INDEX),
		Drivetrain:       i32(buf, OFFSET_DRIVETRAIN),
		NumCylinders:     i32(buf, OFFSET_NUM_CYLINDERS),

		Position: vec3(buf, OFFSET_POSITION),
		Speed:    f32(buf, OFFSET_SPEED),
		Power:    f32(buf, OFFSET_POWER),
		Torque:   f32(buf, OFFSET_TORQUE),
		TireTemp: wheels(buf, OFFSET_TIRE_TEMP),
		Boost:    f32(buf, OFFSET_BOOST),
		Fuel:     f32(buf, OFFSET_FUEL),

		Distance:        f32(buf, OFFSET_DISTANCE),
		BestLapTime:     f32(buf, OFFSET_BEST_LAP),
		LastLapTime:     f32(buf, OFFSET_LAST_LAP),
		LapTime:         f32(buf, OFFSET_CURRENT_LAP),
		CurrentRaceTime: f32(buf, OFFSET_CURRENT_RACE_TIME),
		LapNumber:       binary.LittleEndian.Uint16(buf[OFFSET_LAP_NUMBER:]),
		RacePosition:    buf[OFFSET_RACE_POSITION],

		Accel:       buf[OFFSET_ACCEL],
		Brake:       buf[OFFSET_BRAKE],
		Clutch:      buf[OFFSET_CLUTCH],
		HandBrake:   buf[OFFSET_HANDBRAKE],
		Gear:        buf[OFFSET_GEAR],
		Steer:       int8(buf[OFFSET_STEER]),
		DrivingLine: int8(buf[OFFSET_DRIVING_LINE]),
		AIBrakeDiff: int8(buf[OFFSET_AI_BRAKE_DIFF]),

		TireWear:     wheels(buf, OFFSET_TIRE_WEAR),
		TrackOrdinal: i32(buf, OFFSET_TRACK_ORDINAL),
	}
	return s, nil
}

// MarshalBinary encodes the sample into a FrameSize-byte Dash datagram.
// Regions of the frame that Decode does not read are left zeroed.
func (s *Sample) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FRAME_SIZE)

	var raceOn int32
	if s.IsRaceOn {
		raceOn = 1
	}
	putI32(buf, OFFSET_IS_RACE_ON, raceOn)
	binary.LittleEndian.PutUint32(buf[OFFSET_TIMESTAMP_MS:], s.TimestampMS)
	putF32(buf, OFFSET_ENGINE_MAX_RPM, s.EngineMaxRPM)
	putF32(buf, OFFSET_ENGINE_IDLE_RPM, s.EngineIdleRPM)
	putF32(buf, OFFSET_CURRENT_RPM, s.CurrentRPM)

	putVec3(buf, OFFSET_ACCELERATION, s.Acceleration)
	putVec3(buf, OFFSET_VELOCITY, s.Velocity)
	putVec3(buf, OFFSET_ANGULAR_VELOCITY, s.AngularVelocity)
	putF32(buf, OFFSET_YAW, s.Yaw)
	putF32(buf, OFFSET_PITCH, s.Pitch)
	putF32(buf, OFFSET_ROLL, s.Roll)

	putI32(buf, OFFSET_CAR_ORDINAL, s.CarOrdinal)
	putI32(buf, OFFSET_CAR_CLASS, s.CarClass)
	putI32(buf, OFFSET_PERFORMANCE_INDEX, s.PerformanceIndex)
	putI32(buf, OFFSET_DRIVETRAIN, s.Drivetrain)
	putI32(buf, OFFSET_NUM_CYLINDERS, s.NumCylinders)

	putVec3(buf, OFFSET_POSITION, s.Position)
	putF32(buf, OFFSET_SPEED, s.Speed)
	putF32(buf, OFFSET_POWER, s.Power)
	putF32(buf, OFFSET_TORQUE, s.Torque)
	putWheels(buf, OFFSET_TIRE_TEMP, s.TireTemp)
	putF32(buf, OFFSET_BOOST, s.Boost)
	putF32(buf, OFFSET_FUEL, s.Fuel)

	putF32(buf, OFFSET_DISTANCE, s.Distance)
	putF32(buf, OFFSET_BEST_LAP, s.BestLapTime)
	putF32(buf, OFFSET_LAST_LAP, s.LastLapTime)
	putF32(buf, OFFSET_CURRENT_LAP, s.LapTime)
	putF32(buf, OFFSET_CURRENT_RACE_TIME, s.CurrentRaceTime)
	binary.LittleEndian.PutUint16(buf[OFFSET_LAP_NUMBER:], s.LapNumber)
	buf[OFFSET_RACE_POSITION] = s.RacePosition

	buf[OFFSET_ACCEL] = s.Accel
	buf[OFFSET_BRAKE] = s.Brake
	buf[OFFSET_CLUTCH] = s.Clutch
	buf[OFFSET_HANDBRAKE] = s.HandBrake
	buf[OFFSET_GEAR] = s.Gear
	buf[OFFSET_STEER] = byte(s.Steer)
	buf[OFFSET_DRIVING_LINE] = byte(s.DrivingLine)
	buf[OFFSET_AI_BRAKE_DIFF] = byte(s.AIBrakeDiff)

	putWheels(buf, OFFSET_TIRE_WEAR, s.TireWear)
	putI32(buf, OFFSET_TRACK_ORDINAL, s.TrackOrdinal)

	return buf, nil
}

func f32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func i32(buf []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[off:]))
}

func vec3(buf []byte, off int) Vec3 {
	return Vec3{X: f32(buf, off), Y: f32(buf, off+4), Z: f32(buf, off+8)}
}

func wheels(buf []byte, off int) Wheels {
	return Wheels{
		FrontLeft:  f32(buf, off),
		FrontRight: f32(buf, off+4),
		RearLeft:   f32(buf, off+8),
		RearRight:  f32(buf, off+12),
	}
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func putI32(buf []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(buf[off:], uint32(v))
}

func putVec3(buf []byte, off int, v Vec3) {
	putF32(buf, off, v.X)
	putF32(buf, off+4, v.Y)
	putF32(buf, off+8, v.Z)
}

func putWheels(buf []byte, off int, w Wheels) {
	putF32(buf, off, w.FrontLeft)
	putF32(buf, off+4, w.FrontRight)
	putF32(buf, off+8, w.RearLeft)
	putF32(buf, off+12, w.RearRight)
}

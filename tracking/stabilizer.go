package tracking

import (
	"fmt"
	"math"

	"go.viam.com/rdk/spatialmath"
)

// StabilizerConfig weights the previous pose against a fresh one. A factor near 1 leans on
// history (smooth, laggy), near 0 follows the engine.
type StabilizerConfig struct {
	RotationSmoothFactor float64 `json:"rotation_smooth_factor"`
	PositionSmoothFactor float64 `json:"position_smooth_factor"`
}

var (
	// DesktopStabilizerConfig suits steady cameras with a fast engine.
	DesktopStabilizerConfig = StabilizerConfig{RotationSmoothFactor: 0.9, PositionSmoothFactor: 0.9}
	// MobileStabilizerConfig trades smoothness for less lag on handheld devices.
	MobileStabilizerConfig = StabilizerConfig{RotationSmoothFactor: 0.7, PositionSmoothFactor: 0.7}
)

// StabilizerProfile returns the config for "desktop" (also "") or "mobile".
func StabilizerProfile(name string) (StabilizerConfig, error) {
	switch name {
	case "", "desktop":
		return DesktopStabilizerConfig, nil
	case "mobile":
		return MobileStabilizerConfig, nil
	default:
		return StabilizerConfig{}, fmt.Errorf("unknown stabilizer profile %q", name)
	}
}

// Validate checks both factors are in [0, 1).
func (c StabilizerConfig) Validate() error {
	for name, v := range map[string]float64{
		"rotation_smooth_factor": c.RotationSmoothFactor,
		"position_smooth_factor": c.PositionSmoothFactor,
	} {
		if math.IsNaN(v) || v < 0 || v >= 1 {
			return fmt.Errorf("%s must be in [0, 1), got %v", name, v)
		}
	}
	return nil
}

// StabilizerState is what the stabilizer remembers between frames.
type StabilizerState struct {
	LastStatus Status
	LastPose   spatialmath.Pose
}

// NewStabilizerState is the state of a session that never tracked.
func NewStabilizerState() *StabilizerState {
	return &StabilizerState{
		LastStatus: StatusUndefined,
		LastPose:   spatialmath.NewZeroPose(),
	}
}

// Stabilizer smooths poses across consecutive tracked frames.
type Stabilizer struct {
	cfg StabilizerConfig
}

// NewStabilizer validates cfg.
func NewStabilizer(cfg StabilizerConfig) (*Stabilizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stabilizer{cfg: cfg}, nil
}

// Config returns the smoothing factors in use.
func (s *Stabilizer) Config() StabilizerConfig {
	return s.cfg
}

// Step advances state by one frame and returns the pose to apply, if any.
//
// Only a tracking frame produces output. When the previous frame was tracking too the raw
// pose is pulled towards the previous one (slerp for orientation, lerp for position). The
// first tracking frame after a loss re-emits the previous pose and drops the raw one, so
// every re-acquisition costs one frame of latency.
// TODO: the re-acquisition hold-over needs a product decision, it may not be intended.
func (s *Stabilizer) Step(state *StabilizerState, status Status, raw spatialmath.Pose) (spatialmath.Pose, bool) {
	if status == StatusTracking && raw == nil {
		status = StatusLost
	}

	previous := state.LastStatus
	state.LastStatus = status

	if status != StatusTracking {
		return nil, false
	}

	if previous != StatusTracking {
		return state.LastPose, true
	}

	rotated := spatialmath.Interpolate(raw, state.LastPose, s.cfg.RotationSmoothFactor)
	moved := spatialmath.Interpolate(raw, state.LastPose, s.cfg.PositionSmoothFactor)

	smoothed := spatialmath.NewPose(moved.Point(), rotated.Orientation())
	state.LastPose = smoothed
	return smoothed, true
}

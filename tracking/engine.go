// Package tracking turns the output of a visual tracking engine into a stable camera pose.
package tracking

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
)

// Status is what the engine reports for a frame.
type Status int

const (
	// StatusUndefined means the engine never produced a pose.
	StatusUndefined Status = iota
	// StatusTracking means a fresh pose is available for this frame.
	StatusTracking
	// StatusLost means the engine had no usable pose for this frame.
	StatusLost
)

// StatusFromCode maps the engine's integer status, anything unknown is undefined.
func StatusFromCode(code int) Status {
	switch Status(code) {
	case StatusTracking, StatusLost:
		return Status(code)
	default:
		return StatusUndefined
	}
}

func (s Status) String() string {
	switch s {
	case StatusTracking:
		return "tracking"
	case StatusLost:
		return "lost"
	default:
		return "undefined"
	}
}

// ModelMarkerSearching is the engine's marker based tracking system.
const ModelMarkerSearching = 1

// Engine is the external visual tracking engine. Implementations mirror the engine's C ABI and are
// not safe for concurrent use.
type Engine interface {
	// InitTracking sets up (or recreates) the tracking system for a pinhole camera.
	InitTracking(modelType, width, height int, fx, fy, cx, cy float64) bool
	// ProcessFrame submits one row-major, one byte per pixel frame and returns the status code.
	ProcessFrame(luminance []byte, width, height int) int
	// WorldPose fills the camera rotation (row-major) and position in world space.
	WorldPose(rotation *[9]float64, position *[3]float64) bool
	// LocalPose fills the engine's camera-from-target transform.
	LocalPose(rotation *[9]float64, position *[3]float64) bool
}

// RawPose is a pose as the engine reports it.
type RawPose struct {
	Rotation [9]float64
	Position r3.Vector
}

// Pose converts the rotation matrix and keeps the position.
func (rp RawPose) Pose() spatialmath.Pose {
	return spatialmath.NewPose(rp.Position, MatrixToOrientation(rp.Rotation))
}

// EngineFactory builds an engine from its attributes.
type EngineFactory func(attrs map[string]interface{}, logger logging.Logger) (Engine, error)

// ErrUnknownEngine is returned by NewEngine for names nothing registered.
var ErrUnknownEngine = errors.New("unknown tracking engine")

var (
	enginesLock sync.Mutex
	engines     = map[string]EngineFactory{}
)

// RegisterEngine makes an engine available by name, usually from an init function.
func RegisterEngine(name string, f EngineFactory) {
	enginesLock.Lock()
	defer enginesLock.Unlock()
	if _, ok := engines[name]; ok {
		panic(fmt.Sprintf("tracking engine %q registered twice", name))
	}
	engines[name] = f
}

// NewEngine creates a registered engine.
func NewEngine(name string, attrs map[string]interface{}, logger logging.Logger) (Engine, error) {
	enginesLock.Lock()
	f, ok := engines[name]
	enginesLock.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownEngine, name, RegisteredEngines())
	}
	return f(attrs, logger)
}

// RegisteredEngines lists engine names in order.
func RegisteredEngines() []string {
	enginesLock.Lock()
	defer enginesLock.Unlock()
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

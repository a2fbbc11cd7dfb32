package tracking

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage/transform"

	"github.com/erh/camtrack/intrinsics"
)

var (
	// ErrEngineInitFailed means the engine rejected the camera model. The session can't be used.
	ErrEngineInitFailed = errors.New("tracking engine initialization failed")
	// ErrInvalidFrameSize means the frame buffer doesn't match its resolution. The frame is dropped.
	ErrInvalidFrameSize = errors.New("invalid frame size")
	// ErrEngineQueryMismatch means a pose was asked for after a frame that wasn't tracking.
	ErrEngineQueryMismatch = errors.New("pose queried while not tracking")
	// ErrNotInitialized is returned for frames submitted before Initialize.
	ErrNotInitialized = errors.New("tracking session not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("tracking session already initialized")
)

// SessionConfig configures the engine side of a session.
type SessionConfig struct {
	// ModelType selects the engine's tracking system, 0 means ModelMarkerSearching.
	ModelType int
	// Strict turns pose queries after a non tracking frame into ErrEngineQueryMismatch
	// instead of an empty result.
	Strict bool
}

// Session is the only thing that talks to an Engine. It is driven by a single frame loop.
type Session struct {
	id     string
	engine Engine
	cfg    SessionConfig
	logger logging.Logger

	intrinsics *transform.PinholeCameraIntrinsics
	lastStatus Status
	frameReady bool
}

// NewSession wraps an engine. Initialize must be called before any frame.
func NewSession(engine Engine, cfg SessionConfig, logger logging.Logger) *Session {
	if cfg.ModelType == 0 {
		cfg.ModelType = ModelMarkerSearching
	}
	return &Session{
		id:     uuid.NewString(),
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// ID names the session in logs and status output.
func (s *Session) ID() string {
	return s.id
}

// Intrinsics is the camera model the engine was set up with, nil before Initialize.
func (s *Session) Intrinsics() *transform.PinholeCameraIntrinsics {
	return s.intrinsics
}

// Initialize hands the camera model to the engine, exactly once.
func (s *Session) Initialize(intr *transform.PinholeCameraIntrinsics) error {
	if s.intrinsics != nil {
		return ErrAlreadyInitialized
	}
	if err := intrinsics.Validate(intr); err != nil {
		return err
	}

	s.logger.Infof("session %s init model: %d %dx%d f: (%0.2f, %0.2f) c: (%0.2f, %0.2f)",
		s.id, s.cfg.ModelType, intr.Width, intr.Height, intr.Fx, intr.Fy, intr.Ppx, intr.Ppy)

	if !s.engine.InitTracking(s.cfg.ModelType, intr.Width, intr.Height, intr.Fx, intr.Fy, intr.Ppx, intr.Ppy) {
		return fmt.Errorf("%w: model %d rejected for %dx%d", ErrEngineInitFailed, s.cfg.ModelType, intr.Width, intr.Height)
	}

	copied := *intr
	s.intrinsics = &copied
	return nil
}

// ProcessFrame submits one luminance frame. A buffer that doesn't match width*height never
// reaches the engine.
func (s *Session) ProcessFrame(luminance []byte, width, height int) (Status, error) {
	s.frameReady = false

	if s.intrinsics == nil {
		return StatusUndefined, ErrNotInitialized
	}
	if width <= 0 || height <= 0 || len(luminance) != width*height {
		return s.lastStatus, fmt.Errorf("%w: got %d bytes for %dx%d", ErrInvalidFrameSize, len(luminance), width, height)
	}

	status := StatusFromCode(s.engine.ProcessFrame(luminance, width, height))
	if status != s.lastStatus {
		s.logger.Debugf("session %s status %v -> %v", s.id, s.lastStatus, status)
	}
	s.lastStatus = status
	s.frameReady = status == StatusTracking
	return status, nil
}

// LastStatus is the status of the most recent accepted frame.
func (s *Session) LastStatus() Status {
	return s.lastStatus
}

// QueryWorldPose returns the camera pose in the engine's world space. It is only meaningful
// right after ProcessFrame returned StatusTracking; otherwise it returns false, or
// ErrEngineQueryMismatch for strict sessions.
func (s *Session) QueryWorldPose() (RawPose, bool, error) {
	return s.query("world", s.engine.WorldPose)
}

// QueryLocalPose is QueryWorldPose for the engine's camera-from-target transform.
func (s *Session) QueryLocalPose() (RawPose, bool, error) {
	return s.query("local", s.engine.LocalPose)
}

func (s *Session) query(which string, f func(*[9]float64, *[3]float64) bool) (RawPose, bool, error) {
	if !s.frameReady {
		if s.cfg.Strict {
			return RawPose{}, false, fmt.Errorf("%w: %s pose after %v frame", ErrEngineQueryMismatch, which, s.lastStatus)
		}
		s.logger.Debugf("session %s ignoring %s pose query while %v", s.id, which, s.lastStatus)
		return RawPose{}, false, nil
	}

	var rotation [9]float64
	var position [3]float64
	if !f(&rotation, &position) {
		s.logger.Warnf("session %s engine has no %s pose for a tracking frame", s.id, which)
		return RawPose{}, false, nil
	}

	return RawPose{
		Rotation: rotation,
		Position: r3.Vector{X: position[0], Y: position[1], Z: position[2]},
	}, true, nil
}

// Close releases the engine when it holds resources.
func (s *Session) Close() error {
	if c, ok := s.engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Package posetracker exposes a tracking session as a generic service that follows a camera's pose.
package posetracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/robot/framesystem"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils"

	"github.com/erh/camtrack"
	"github.com/erh/camtrack/engines/replay"
	"github.com/erh/camtrack/imgutils"
	"github.com/erh/camtrack/intrinsics"
	"github.com/erh/camtrack/tracking"
)

var Model = camtrack.NamespaceFamily.WithModel("camera-pose-tracker")

func init() {
	resource.RegisterService(
		genericservice.API,
		Model,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newTracker,
		})
}

type Config struct {
	Camera           string                 `json:"camera"`
	Engine           string                 `json:"engine,omitempty"`
	EngineAttributes map[string]interface{} `json:"engine_attributes,omitempty"`
	ModelType        int                    `json:"model_type,omitempty"`
	Strict           bool                   `json:"strict,omitempty"`
	RecordFile       string                 `json:"record_file,omitempty"`

	Width              int     `json:"width"`
	Height             int     `json:"height"`
	VerticalFovDegrees float64 `json:"vertical_fov_degrees,omitempty"`
	AspectRatio        float64 `json:"aspect_ratio,omitempty"`

	Profile              string   `json:"profile,omitempty"` // desktop or mobile
	RotationSmoothFactor *float64 `json:"rotation_smooth_factor,omitempty"`
	PositionSmoothFactor *float64 `json:"position_smooth_factor,omitempty"`

	// ReferenceFrame is a frame system frame whose pose is read every tick.
	ReferenceFrame string `json:"reference_frame,omitempty"`
	// ReferencePoint and ReferenceOrientation describe a fixed reference instead.
	ReferencePoint       r3.Vector                             `json:"reference_point,omitzero"`
	ReferenceOrientation *spatialmath.OrientationVectorDegrees `json:"reference_orientation,omitempty"`

	UpdateRateHz float64 `json:"update_rate_hz,omitempty"`
}

func (c *Config) Validate(path string) ([]string, []string, error) {
	if c.Camera == "" {
		return nil, nil, errors.New("camera is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return nil, nil, fmt.Errorf("width and height must be greater than 0, got %dx%d", c.Width, c.Height)
	}
	if c.UpdateRateHz < 0 {
		return nil, nil, errors.New("update_rate_hz can't be negative")
	}
	if c.ReferenceFrame != "" && c.ReferenceOrientation != nil {
		return nil, nil, errors.New("use either reference_frame or reference_orientation, not both")
	}
	if _, err := c.stabilizerConfig(); err != nil {
		return nil, nil, err
	}
	if _, err := c.intrinsics(); err != nil {
		return nil, nil, err
	}

	deps := []string{c.Camera}
	if c.ReferenceFrame != "" {
		deps = append(deps, framesystem.PublicServiceName.String())
	}
	return deps, nil, nil
}

func (c *Config) engineName() string {
	if c.Engine == "" {
		return "sonar"
	}
	return c.Engine
}

func (c *Config) updateRate() float64 {
	if c.UpdateRateHz == 0 {
		return 30
	}
	return c.UpdateRateHz
}

func (c *Config) stabilizerConfig() (tracking.StabilizerConfig, error) {
	sc, err := tracking.StabilizerProfile(c.Profile)
	if err != nil {
		return sc, err
	}
	if c.RotationSmoothFactor != nil {
		sc.RotationSmoothFactor = *c.RotationSmoothFactor
	}
	if c.PositionSmoothFactor != nil {
		sc.PositionSmoothFactor = *c.PositionSmoothFactor
	}
	return sc, sc.Validate()
}

func (c *Config) intrinsics() (*transform.PinholeCameraIntrinsics, error) {
	return intrinsics.Build(intrinsics.Params{
		Width:              c.Width,
		Height:             c.Height,
		VerticalFovDegrees: c.VerticalFovDegrees,
		AspectRatio:        c.AspectRatio,
	})
}

func (c *Config) staticReference() spatialmath.Pose {
	if c.ReferenceOrientation == nil {
		return nil
	}
	return spatialmath.NewPose(c.ReferencePoint, c.ReferenceOrientation)
}

func newTracker(ctx context.Context, deps resource.Dependencies, config resource.Config, logger logging.Logger) (resource.Resource, error) {
	newConf, err := resource.NativeConfig[*Config](config)
	if err != nil {
		return nil, err
	}

	src, err := camera.FromProvider(deps, newConf.Camera)
	if err != nil {
		return nil, err
	}

	var fsSvc framesystem.Service
	if newConf.ReferenceFrame != "" {
		r, ok := deps[framesystem.PublicServiceName]
		if !ok {
			return nil, fmt.Errorf("reference_frame needs the frame system service")
		}
		fsSvc, ok = r.(framesystem.Service)
		if !ok {
			return nil, fmt.Errorf("frame system dependency is a %T", r)
		}
	}

	engine, err := tracking.NewEngine(newConf.engineName(), newConf.EngineAttributes, logger)
	if err != nil {
		return nil, err
	}
	if newConf.RecordFile != "" {
		engine, err = replay.NewFileRecorder(engine, newConf.RecordFile)
		if err != nil {
			return nil, err
		}
	}

	t, err := NewTracker(config.ResourceName(), newConf, engine, logger)
	if err != nil {
		return nil, err
	}
	t.src = src
	t.fsSvc = fsSvc
	t.attributes = config.Attributes

	t.start()
	return t, nil
}

// Tracker runs one tracking session against a camera.
type Tracker struct {
	resource.AlwaysRebuild

	name   resource.Name
	cfg    *Config
	logger logging.Logger

	src        camera.Camera
	fsSvc      framesystem.Service
	attributes utils.AttributeMap

	// owned by the frame loop
	session    *tracking.Session
	stabilizer *tracking.Stabilizer
	state      *tracking.StabilizerState

	cancelCtx  context.Context
	cancelFunc func()
	workers    sync.WaitGroup

	lock          sync.Mutex
	resetPending  bool
	status        tracking.Status
	lastPose      spatialmath.Pose
	lastPoseTime  time.Time
	lastWorldPose spatialmath.Pose
	// camera relative to the marker, unsmoothed
	lastLocalPose spatialmath.Pose
	frames        int
	trackedFrames int
	droppedFrames int
	meanLuminance float64
	lastErr       error
}

// NewTracker initializes a session on engine. The frame loop isn't started.
func NewTracker(name resource.Name, conf *Config, engine tracking.Engine, logger logging.Logger) (*Tracker, error) {
	intr, err := conf.intrinsics()
	if err != nil {
		return nil, err
	}
	sc, err := conf.stabilizerConfig()
	if err != nil {
		return nil, err
	}
	stabilizer, err := tracking.NewStabilizer(sc)
	if err != nil {
		return nil, err
	}

	session := tracking.NewSession(engine, tracking.SessionConfig{ModelType: conf.ModelType, Strict: conf.Strict}, logger)
	if err := session.Initialize(intr); err != nil {
		return nil, errors.Join(err, session.Close())
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	return &Tracker{
		name:       name,
		cfg:        conf,
		logger:     logger,
		session:    session,
		stabilizer: stabilizer,
		state:      tracking.NewStabilizerState(),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}, nil
}

func (t *Tracker) Name() resource.Name {
	return t.name
}

func (t *Tracker) start() {
	t.workers.Add(1)
	go func() {
		defer t.workers.Done()
		t.run(t.cancelCtx)
	}()
}

func (t *Tracker) run(ctx context.Context) {
	period := time.Duration(float64(time.Second) / t.cfg.updateRate())
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	t.logger.Infof("tracking %s at %0.1f hz with engine %s, session %s", t.cfg.Camera, t.cfg.updateRate(), t.cfg.engineName(), t.session.ID())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := t.tick(ctx)
		t.lock.Lock()
		t.lastErr = err
		t.lock.Unlock()
		if err != nil && ctx.Err() == nil {
			t.logger.Warnf("tracking tick failed: %v", err)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) error {
	start := time.Now()

	ref, err := t.reference(ctx)
	if err != nil {
		return err
	}

	imgs, _, err := t.src.Images(ctx, nil, nil)
	if err != nil {
		return err
	}
	if len(imgs) == 0 {
		return fmt.Errorf("camera %s returned no images", t.cfg.Camera)
	}
	img, err := imgs[0].Image(ctx)
	if err != nil {
		return err
	}

	if err := t.processImage(img, ref); err != nil {
		return err
	}

	if elapsed := time.Since(start); elapsed > time.Second/2 {
		t.logger.Infof("tracking tick took %v", elapsed)
	}
	return nil
}

// reference is the configured reference pose for this tick, nil when there is none.
func (t *Tracker) reference(ctx context.Context) (spatialmath.Pose, error) {
	if t.fsSvc == nil {
		return t.cfg.staticReference(), nil
	}
	pif, err := t.fsSvc.GetPose(ctx, t.cfg.ReferenceFrame, referenceframe.World, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot get reference frame %s: %w", t.cfg.ReferenceFrame, err)
	}
	return pif.Pose(), nil
}

// processImage runs one frame through the pipeline.
func (t *Tracker) processImage(img image.Image, ref spatialmath.Pose) error {
	t.lock.Lock()
	if t.resetPending {
		t.state = tracking.NewStabilizerState()
		t.resetPending = false
	}
	t.lock.Unlock()

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	intr := t.session.Intrinsics()
	if width != intr.Width || height != intr.Height {
		t.lock.Lock()
		t.droppedFrames++
		t.lock.Unlock()
		return fmt.Errorf("%w: camera gave %dx%d, configured for %dx%d", tracking.ErrInvalidFrameSize, width, height, intr.Width, intr.Height)
	}

	lum := imgutils.Luminance(img)

	status, err := t.session.ProcessFrame(lum, width, height)
	if err != nil {
		t.lock.Lock()
		t.droppedFrames++
		t.lock.Unlock()
		return err
	}

	var world, referenced, marker spatialmath.Pose
	if status == tracking.StatusTracking {
		raw, ok, err := t.session.QueryWorldPose()
		if err != nil {
			return err
		}
		if ok {
			world = raw.Pose()
			referenced = tracking.ToReferenceSpace(world, ref)
		}

		raw, ok, err = t.session.QueryLocalPose()
		if err != nil {
			return err
		}
		if ok {
			marker = raw.Pose()
		}
	}

	out, emitted := t.stabilizer.Step(t.state, status, referenced)
	t.logger.Debugf("frame status: %s emitted: %v", status, emitted)

	t.lock.Lock()
	defer t.lock.Unlock()
	t.frames++
	t.status = status
	t.meanLuminance = imgutils.AverageLuminance(lum)
	if world != nil {
		t.trackedFrames++
		t.lastWorldPose = world
	}
	if marker != nil {
		t.lastLocalPose = marker
	}
	if emitted {
		t.lastPose = out
		t.lastPoseTime = time.Now()
	}
	return nil
}

// Pose is the last stabilized pose and when it was produced, nil before the first one.
func (t *Tracker) Pose() (spatialmath.Pose, time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.lastPose, t.lastPoseTime
}

func (t *Tracker) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if cmd["pose"] == true {
		t.lock.Lock()
		defer t.lock.Unlock()
		res := map[string]interface{}{
			"pose":       poseToMap(t.lastPose),
			"local_pose": poseToMap(t.lastLocalPose),
			"status":     t.status.String(),
		}
		if t.lastPose != nil {
			res["time_ms"] = t.lastPoseTime.UnixMilli()
		}
		return res, nil
	}

	if cmd["status"] == true {
		return t.statusMap(), nil
	}

	if cmd["reset"] == true {
		t.lock.Lock()
		t.resetPending = true
		t.lock.Unlock()
		return map[string]interface{}{"reset": true}, nil
	}

	if cmd["save_reference"] == true {
		return t.saveReference(ctx)
	}

	return nil, fmt.Errorf("unknown command %v", cmd)
}

func (t *Tracker) statusMap() map[string]interface{} {
	t.lock.Lock()
	defer t.lock.Unlock()

	intr := t.session.Intrinsics()
	sc := t.stabilizer.Config()
	m := map[string]interface{}{
		"session":                t.session.ID(),
		"engine":                 t.cfg.engineName(),
		"status":                 t.status.String(),
		"frames":                 t.frames,
		"tracked_frames":         t.trackedFrames,
		"dropped_frames":         t.droppedFrames,
		"mean_luminance":         t.meanLuminance,
		"rotation_smooth_factor": sc.RotationSmoothFactor,
		"position_smooth_factor": sc.PositionSmoothFactor,
		"intrinsics": map[string]interface{}{
			"width":  intr.Width,
			"height": intr.Height,
			"fx":     intr.Fx,
			"fy":     intr.Fy,
			"ppx":    intr.Ppx,
			"ppy":    intr.Ppy,
		},
	}
	if t.lastErr != nil {
		m["error"] = t.lastErr.Error()
	}
	return m
}

// referenceFromWorld is the reference that makes world the origin of the output space.
func referenceFromWorld(world spatialmath.Pose) (r3.Vector, *spatialmath.OrientationVectorDegrees) {
	inv := spatialmath.PoseInverse(spatialmath.NewPoseFromOrientation(world.Orientation()))
	return world.Point(), inv.Orientation().OrientationVectorDegrees()
}

// saveReference stores the last world pose as the fixed reference in the machine's config. The
// module gets rebuilt with it.
func (t *Tracker) saveReference(ctx context.Context) (map[string]interface{}, error) {
	if t.cfg.ReferenceFrame != "" {
		return nil, errors.New("reference comes from reference_frame, not saving one")
	}

	t.lock.Lock()
	world := t.lastWorldPose
	t.lock.Unlock()
	if world == nil {
		return nil, errors.New("no tracked pose to save yet")
	}

	point, orientation := referenceFromWorld(world)
	newAttr := camtrack.MergeAttributes(t.attributes, map[string]interface{}{
		"reference_point":       point,
		"reference_orientation": orientation,
	})

	if err := camtrack.UpdateComponentCloudAttributesFromModuleEnv(ctx, t.name, newAttr, t.logger); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"reference_point":       poseToMap(spatialmath.NewPoseFromPoint(point))["translation"],
		"reference_orientation": orientation,
	}, nil
}

func poseToMap(pose spatialmath.Pose) map[string]interface{} {
	if pose == nil {
		return nil
	}
	pos := pose.Point()
	ori := pose.Orientation().Quaternion()
	return map[string]interface{}{
		"translation": map[string]float64{
			"x": pos.X,
			"y": pos.Y,
			"z": pos.Z,
		},
		"orientation": map[string]float64{
			"real": ori.Real,
			"imag": ori.Imag,
			"jmag": ori.Jmag,
			"kmag": ori.Kmag,
		},
	}
}

func (t *Tracker) Close(ctx context.Context) error {
	t.cancelFunc()
	t.workers.Wait()
	return t.session.Close()
}

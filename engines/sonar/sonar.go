//go:build cgo && sonar

// Package sonar binds the sonar visual tracking library through its C ABI.
package sonar

/*
#cgo LDFLAGS: -lsonar
#include <stdbool.h>

bool sonar_initialize_tracking_system_for_pinhole(int trackingSystemType,
                                                  int imageWidth, int imageHeight,
                                                  float fx, float fy, float cx, float cy);
int sonar_process_frame(const void * grayFrameData, int frameWidth, int frameHeight);
bool sonar_get_camera_local_pose(float * localCameraRotationMatrixData, float * localCameraTranslationData);
bool sonar_get_camera_world_pose(float * worldCameraRotationMatrixData, float * worldCameraPostionData);
*/
import "C"

import (
	"sync"
	"unsafe"

	"go.viam.com/rdk/logging"

	"github.com/erh/camtrack/tracking"
)

// the library keeps a single global tracking system
var libLock sync.Mutex

func init() {
	tracking.RegisterEngine(EngineName, func(attrs map[string]interface{}, logger logging.Logger) (tracking.Engine, error) {
		return &Engine{logger: logger}, nil
	})
}

// Engine calls into libsonar.
type Engine struct {
	logger logging.Logger
}

// InitTracking recreates the library's tracking system.
func (e *Engine) InitTracking(modelType, width, height int, fx, fy, cx, cy float64) bool {
	libLock.Lock()
	defer libLock.Unlock()
	return bool(C.sonar_initialize_tracking_system_for_pinhole(
		C.int(modelType), C.int(width), C.int(height),
		C.float(fx), C.float(fy), C.float(cx), C.float(cy)))
}

// ProcessFrame hands the buffer to the library, which doesn't keep it past the call.
func (e *Engine) ProcessFrame(luminance []byte, width, height int) int {
	if len(luminance) == 0 {
		return int(tracking.StatusUndefined)
	}
	libLock.Lock()
	defer libLock.Unlock()
	return int(C.sonar_process_frame(unsafe.Pointer(&luminance[0]), C.int(width), C.int(height)))
}

// WorldPose reads the camera pose in world space.
func (e *Engine) WorldPose(rotation *[9]float64, position *[3]float64) bool {
	return e.pose(rotation, position, func(r, p *C.float) C.bool {
		return C.sonar_get_camera_world_pose(r, p)
	})
}

// LocalPose reads the camera-from-marker transform.
func (e *Engine) LocalPose(rotation *[9]float64, position *[3]float64) bool {
	return e.pose(rotation, position, func(r, p *C.float) C.bool {
		return C.sonar_get_camera_local_pose(r, p)
	})
}

func (e *Engine) pose(rotation *[9]float64, position *[3]float64, f func(r, p *C.float) C.bool) bool {
	var r [9]C.float
	var p [3]C.float

	libLock.Lock()
	ok := bool(f(&r[0], &p[0]))
	libLock.Unlock()

	for i := range r {
		rotation[i] = float64(r[i])
	}
	for i := range p {
		position[i] = float64(p[i])
	}
	return ok
}

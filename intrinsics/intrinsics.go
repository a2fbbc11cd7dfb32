// Package intrinsics derives pinhole camera models from a sensor resolution and field of view.
//
// Focal lengths are always expressed in pixels when they leave this package. The unit
// convention (focal length of a sensor one unit wide) is only available through
// ReciprocalFocalLength so the two are never mixed by accident.
package intrinsics

import (
	"errors"
	"fmt"
	"math"

	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/utils"
)

// ErrInvalidIntrinsics is returned for resolutions or fields of view that can't describe a camera.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Params describes the camera a model is built for.
type Params struct {
	Width  int
	Height int

	// VerticalFovDegrees is the vertical field of view of the render camera, 0 when unknown.
	VerticalFovDegrees float64
	// AspectRatio is width / height of the view the vertical fov belongs to, 0 means Width/Height.
	AspectRatio float64
}

// Build returns a square-pixel pinhole model with the optical center at the image center.
// Without a field of view the focal length falls back to the image width, which is what an
// uncalibrated device gets.
func Build(p Params) (*transform.PinholeCameraIntrinsics, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: resolution %dx%d", ErrInvalidIntrinsics, p.Width, p.Height)
	}
	if math.IsNaN(p.AspectRatio) || math.IsInf(p.AspectRatio, 0) || p.AspectRatio < 0 {
		return nil, fmt.Errorf("%w: aspect ratio %v", ErrInvalidIntrinsics, p.AspectRatio)
	}

	focal := float64(p.Width)

	if p.VerticalFovDegrees != 0 {
		if err := checkFov(p.VerticalFovDegrees); err != nil {
			return nil, err
		}
		aspect := p.AspectRatio
		if aspect == 0 {
			aspect = float64(p.Width) / float64(p.Height)
		}
		h := VerticalToHorizontalFov(p.VerticalFovDegrees, aspect)
		if err := checkFov(h); err != nil {
			return nil, err
		}
		focal = FovToFocalLengthPx(h, p.Width)
	}

	return &transform.PinholeCameraIntrinsics{
		Width:  p.Width,
		Height: p.Height,
		Fx:     focal,
		Fy:     focal,
		Ppx:    float64(p.Width) * 0.5,
		Ppy:    float64(p.Height) * 0.5,
	}, nil
}

// Validate checks a model before it is handed to a tracking engine.
func Validate(intr *transform.PinholeCameraIntrinsics) error {
	if intr == nil {
		return fmt.Errorf("%w: intrinsics cannot be null", ErrInvalidIntrinsics)
	}
	if intr.Width <= 0 || intr.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidIntrinsics, intr.Width, intr.Height)
	}
	for _, v := range []float64{intr.Fx, intr.Fy} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: focal length %v", ErrInvalidIntrinsics, v)
		}
	}
	for _, v := range []float64{intr.Ppx, intr.Ppy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: optical center %v", ErrInvalidIntrinsics, v)
		}
	}
	return nil
}

func checkFov(deg float64) error {
	if math.IsNaN(deg) || deg <= 0 || deg >= 180 {
		return fmt.Errorf("%w: field of view %v outside (0, 180)", ErrInvalidIntrinsics, deg)
	}
	return nil
}

// VerticalToHorizontalFov uses tan(h/2) = aspect * tan(v/2).
func VerticalToHorizontalFov(vFovDeg, aspect float64) float64 {
	v := utils.DegToRad(vFovDeg)
	return utils.RadToDeg(2 * math.Atan(aspect*math.Tan(v/2)))
}

// HorizontalToVerticalFov is the inverse of VerticalToHorizontalFov.
func HorizontalToVerticalFov(hFovDeg, aspect float64) float64 {
	h := utils.DegToRad(hFovDeg)
	return utils.RadToDeg(2 * math.Atan(math.Tan(h/2)/aspect))
}

// ReciprocalFocalLength is the focal length of a sensor one unit wide.
func ReciprocalFocalLength(hFovDeg float64) float64 {
	return 1 / (2 * math.Tan(utils.DegToRad(hFovDeg)/2))
}

// FovToFocalLengthPx scales ReciprocalFocalLength to an image imageWidth pixels wide.
func FovToFocalLengthPx(hFovDeg float64, imageWidth int) float64 {
	return float64(imageWidth) * ReciprocalFocalLength(hFovDeg)
}

// HorizontalViewAngle is the horizontal field of view, in degrees, that a model covers.
func HorizontalViewAngle(intr *transform.PinholeCameraIntrinsics) float64 {
	return utils.RadToDeg(2 * math.Atan(float64(intr.Width)/(2*intr.Fx)))
}

// RenderVerticalFov returns the vertical field of view a render camera needs so virtual content lines
// up with the camera image shown full screen on a display of screenAspect.
// A screen narrower than the camera crops the sides, so the camera aspect decides; otherwise
// the image is cropped top and bottom and the screen aspect decides.
func RenderVerticalFov(intr *transform.PinholeCameraIntrinsics, screenAspect float64) float64 {
	cameraAspect := float64(intr.Width) / float64(intr.Height)
	h := HorizontalViewAngle(intr)
	if screenAspect < cameraAspect {
		return HorizontalToVerticalFov(h, cameraAspect)
	}
	return HorizontalToVerticalFov(h, screenAspect)
}

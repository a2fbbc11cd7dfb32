package tracking

import (
	"math"

	"go.viam.com/rdk/spatialmath"
)

// MatrixToOrientation extracts a unit quaternion from a row-major rotation matrix.
//
// Each component's magnitude comes from the diagonal and its sign from the matching
// off-diagonal difference. Radicands are clamped at zero because round-off in a nearly
// orthonormal matrix can push them slightly negative. Near 180 degree rotations an
// off-diagonal difference can be exactly zero and the component keeps a positive sign
// whether or not that is right; eigen based extraction would do better there.
func MatrixToOrientation(m [9]float64) *spatialmath.Quaternion {
	w := math.Sqrt(math.Max(0, 1+m[0]+m[4]+m[8])) / 2
	x := math.Sqrt(math.Max(0, 1+m[0]-m[4]-m[8])) / 2
	y := math.Sqrt(math.Max(0, 1-m[0]+m[4]-m[8])) / 2
	z := math.Sqrt(math.Max(0, 1-m[0]-m[4]+m[8])) / 2

	x *= sign(x * (m[7] - m[5]))
	y *= sign(y * (m[2] - m[6]))
	z *= sign(z * (m[3] - m[1]))

	return &spatialmath.Quaternion{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// sign treats zero as positive.
func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

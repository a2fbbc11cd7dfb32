package tracking

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rdk/spatialmath"
)

// ToReferenceSpace re-expresses a world pose relative to ref. A nil ref leaves the pose alone.
//
// The orientation is ref * world, in that order: swapping the operands mirrors the result.
// The position is the offset from ref rotated by ref's orientation.
func ToReferenceSpace(world, ref spatialmath.Pose) spatialmath.Pose {
	if ref == nil {
		return world
	}
	rq := unit(ref.Orientation().Quaternion())
	wq := world.Orientation().Quaternion()

	o := spatialmath.Quaternion(quat.Mul(rq, wq))
	p := rotate(rq, world.Point().Sub(ref.Point()))
	return spatialmath.NewPose(p, &o)
}

// FromReferenceSpace undoes ToReferenceSpace.
func FromReferenceSpace(local, ref spatialmath.Pose) spatialmath.Pose {
	if ref == nil {
		return local
	}
	inv := quat.Conj(unit(ref.Orientation().Quaternion()))
	lq := local.Orientation().Quaternion()

	o := spatialmath.Quaternion(quat.Mul(inv, lq))
	p := rotate(inv, local.Point()).Add(ref.Point())
	return spatialmath.NewPose(p, &o)
}

func unit(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// rotate applies a unit quaternion to v.
func rotate(q quat.Number, v r3.Vector) r3.Vector {
	r := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

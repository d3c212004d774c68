// Package geom provides the rigid-motion primitives the envire kernel
// composes but does not itself define the semantics of: 3D vectors,
// unit quaternions, rigid transforms, and their first-order uncertainty.
//
// No third-party geometry library appears anywhere in the example corpus
// this module was grounded on, so these primitives are implemented on the
// standard library. See DESIGN.md for that justification.
package geom

import "math"

// Vector3 is a point or free vector in 3D space.
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

// Quaternion is a unit quaternion (W, X, Y, Z) representing a rotation.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion is the rotation that leaves every vector unchanged.
var IdentityQuaternion = Quaternion{W: 1}

// Normalize returns q scaled to unit length. The zero Quaternion normalizes
// to IdentityQuaternion.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return IdentityQuaternion
	}
	return Quaternion{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{q.W, -q.X, -q.Y, -q.Z}
}

// Mul composes two rotations: applying (q.Mul(r)) to a vector is equivalent
// to first applying r, then q.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Rotate applies the rotation to v.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	p := Quaternion{0, v.X, v.Y, v.Z}
	r := q.Mul(p).Mul(q.Conjugate())
	return Vector3{r.X, r.Y, r.Z}
}

// RotationMatrix returns the row-major 3x3 rotation matrix equivalent to q,
// used by first-order uncertainty propagation.
func (q Quaternion) RotationMatrix() [3][3]float64 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Transform is a rigid motion: a rotation followed by a translation.
// Transform{}.Apply(p) applies Rotation then adds Translation.
type Transform struct {
	Translation Vector3
	Rotation    Quaternion
}

// Identity is the transform that leaves every point unchanged.
var Identity = Transform{Rotation: IdentityQuaternion}

// Apply transforms a point from the child frame into the parent frame.
func (t Transform) Apply(p Vector3) Vector3 {
	return t.Rotation.Rotate(p).Add(t.Translation)
}

// Inverse returns the transform that undoes t.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Conjugate()
	return Transform{
		Rotation:    inv,
		Translation: inv.Rotate(t.Translation).Scale(-1),
	}
}

// Compose returns the transform equivalent to first applying o, then t:
// (t.Compose(o)).Apply(p) == t.Apply(o.Apply(p)).
func (t Transform) Compose(o Transform) Transform {
	return Transform{
		Rotation:    t.Rotation.Mul(o.Rotation),
		Translation: t.Rotation.Rotate(o.Translation).Add(t.Translation),
	}
}

// Covariance6 is a 6x6 covariance matrix over a rigid motion's tangent
// space, ordered (rotation-x, rotation-y, rotation-z, x, y, z), matching
// the convention used by TransformWithUncertainty propagation.
type Covariance6 [6][6]float64

// Add returns the element-wise sum of two covariances.
func (c Covariance6) Add(o Covariance6) Covariance6 {
	var r Covariance6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			r[i][j] = c[i][j] + o[i][j]
		}
	}
	return r
}

// TransformWithUncertainty pairs a Transform with an optional first-order
// covariance estimate of that transform's error.
type TransformWithUncertainty struct {
	Transform Transform
	Cov       Covariance6
	// HasCovariance is false for the common case of an exact transform; it
	// lets composition take a fast path that skips Jacobian propagation
	// entirely, matching the source library's uncertainty-free fast path.
	HasCovariance bool
}

// TransformOnly wraps a plain Transform with no uncertainty attached.
func TransformOnly(t Transform) TransformWithUncertainty {
	return TransformWithUncertainty{Transform: t}
}

// jacobianAdjoint returns the 6x6 adjoint matrix of t, i.e. the linearised
// effect of composing with t on a tangent-space covariance expressed as
// (rotation, translation).
func jacobianAdjoint(t Transform) [6][6]float64 {
	R := t.Rotation.RotationMatrix()
	// skew-symmetric matrix of the translation, used in the lower-left block
	// of the adjoint of an SE(3) element.
	tx, ty, tz := t.Translation.X, t.Translation.Y, t.Translation.Z
	skew := [3][3]float64{
		{0, -tz, ty},
		{tz, 0, -tx},
		{-ty, tx, 0},
	}
	var tR [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += skew[i][k] * R[k][j]
			}
			tR[i][j] = s
		}
	}

	var adj [6][6]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			adj[i][j] = R[i][j]
			adj[i+3][j+3] = R[i][j]
			adj[i+3][j] = tR[i][j]
		}
	}
	return adj
}

// Propagate composes t with the given covariance under the first-order
// (linearised) approximation Cov' = Ad(t) * Cov * Ad(t)^T.
func Propagate(t Transform, cov Covariance6) Covariance6 {
	adj := jacobianAdjoint(t)
	var tmp, out Covariance6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			var s float64
			for k := 0; k < 6; k++ {
				s += adj[i][k] * cov[k][j]
			}
			tmp[i][j] = s
		}
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			var s float64
			for k := 0; k < 6; k++ {
				s += tmp[i][k] * adj[j][k]
			}
			out[i][j] = s
		}
	}
	return out
}

// Compose combines two transforms-with-uncertainty as t.Compose(o) combines
// their Transforms, taking the fast, covariance-free path whenever neither
// side carries a covariance.
func (t TransformWithUncertainty) Compose(o TransformWithUncertainty) TransformWithUncertainty {
	composed := t.Transform.Compose(o.Transform)
	if !t.HasCovariance && !o.HasCovariance {
		return TransformOnly(composed)
	}
	cov := Propagate(o.Transform, propagatedOrZero(t))
	cov = cov.Add(o.Cov)
	return TransformWithUncertainty{Transform: composed, Cov: cov, HasCovariance: true}
}

func propagatedOrZero(t TransformWithUncertainty) Covariance6 {
	if !t.HasCovariance {
		return Covariance6{}
	}
	return t.Cov
}

// Inverse returns the transform-with-uncertainty that undoes t.
func (t TransformWithUncertainty) Inverse() TransformWithUncertainty {
	inv := t.Transform.Inverse()
	if !t.HasCovariance {
		return TransformOnly(inv)
	}
	return TransformWithUncertainty{
		Transform:     inv,
		Cov:           Propagate(inv, t.Cov),
		HasCovariance: true,
	}
}

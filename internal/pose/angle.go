package pose

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Angle returns the interior angle in degrees at vertex b formed by the
// segments b→a and b→c, measured in the image plane. A zero length
// segment yields 0 rather than NaN.
func Angle(a, b, c Landmark) float64 {
	ba := r2.Sub(planar(a), planar(b))
	bc := r2.Sub(planar(c), planar(b))

	mag := r2.Norm(ba) * r2.Norm(bc)
	if mag == 0 {
		return 0
	}

	cos := r2.Dot(ba, bc) / mag
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func planar(l Landmark) r2.Vec {
	return r2.Vec{X: l.X, Y: l.Y}
}

// KneeAngles returns the hip-knee-ankle angle for the left and right leg.
// The caller must ensure the set contains the leg indices.
func KneeAngles(s LandmarkSet) (left, right float64) {
	left = Angle(s[LeftHip], s[LeftKnee], s[LeftAnkle])
	right = Angle(s[RightHip], s[RightKnee], s[RightAnkle])
	return left, right
}

// Package testutil provides shared test fixtures: synthetic landmark sets
// with chosen knee angles and posture sequences for the counter tests.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/stepup.report/internal/pose"
)

// segment is the normalised thigh and shin length used by LegSet.
const segment = 0.2

// LegSet returns a complete landmark set whose left and right
// hip-knee-ankle angles are leftDeg and rightDeg. The thigh always points
// straight up from the knee; the shin is rotated away from it.
func LegSet(leftDeg, rightDeg float64) pose.LandmarkSet {
	set := make(pose.LandmarkSet, pose.NumLandmarks)
	for i := range set {
		set[i] = pose.Landmark{X: 0.5, Y: 0.1}
	}
	placeLeg(set, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle, 0.4, leftDeg)
	placeLeg(set, pose.RightHip, pose.RightKnee, pose.RightAnkle, 0.6, rightDeg)
	return set
}

func placeLeg(set pose.LandmarkSet, hip, knee, ankle int, x, deg float64) {
	rad := deg * math.Pi / 180
	k := pose.Landmark{X: x, Y: 0.55}
	set[knee] = k
	set[hip] = pose.Landmark{X: x, Y: k.Y - segment}
	set[ankle] = pose.Landmark{X: k.X + segment*math.Sin(rad), Y: k.Y - segment*math.Cos(rad)}
}

// Truncated returns the first n landmarks of set.
func Truncated(set pose.LandmarkSet, n int) pose.LandmarkSet {
	if n > len(set) {
		n = len(set)
	}
	return append(pose.LandmarkSet(nil), set[:n]...)
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

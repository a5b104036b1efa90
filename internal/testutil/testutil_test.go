package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/stepup.report/internal/pose"
)

func TestLegSet_Angles(t *testing.T) {
	for _, tc := range []struct{ left, right float64 }{
		{175, 170},
		{90, 170},
		{145, 120},
		{180, 180},
	} {
		set := LegSet(tc.left, tc.right)
		assert.Len(t, set, pose.NumLandmarks)

		left, right := pose.KneeAngles(set)
		assert.InDelta(t, tc.left, left, 1e-4)
		assert.InDelta(t, tc.right, right, 1e-4)
	}
}

func TestTruncated(t *testing.T) {
	set := LegSet(170, 170)
	short := Truncated(set, 10)
	assert.Len(t, short, 10)
	assert.Len(t, Truncated(set, 99), pose.NumLandmarks)

	short[0].X = 42
	assert.NotEqual(t, 42.0, set[0].X, "truncated copy must not alias the source")
}

func TestAssertHelpers(t *testing.T) {
	AssertNoError(t, nil)
	AssertError(t, errors.New("boom"))
}

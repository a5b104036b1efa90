package posture

import (
	"fmt"

	"github.com/banshee-data/stepup.report/internal/pose"
)

// Result is the classification of one frame. Left and Right are only
// meaningful when Measured is true.
type Result struct {
	State    State
	Left     float64
	Right    float64
	Measured bool
}

// Average returns the mean knee angle of both legs, the value displayed
// as the live knee-angle readout.
func (r Result) Average() float64 {
	return (r.Left + r.Right) / 2
}

// Classifier turns landmark sets into posture results. It is stateless
// and safe for concurrent use.
type Classifier struct {
	Thresholds Thresholds
	// MinLandmarks is the minimum population of a usable set.
	MinLandmarks int
	// RequiredIndices must all be present in a usable set.
	RequiredIndices []int
	// MinVisibility rejects sets whose required landmarks score below it.
	// Zero disables the check.
	MinVisibility float64
}

// NewClassifier returns a Classifier with the default band, a complete
// 33 point population requirement and the six leg landmarks required.
func NewClassifier() *Classifier {
	return &Classifier{
		Thresholds:      DefaultThresholds(),
		MinLandmarks:    DefaultMinLandmarks,
		RequiredIndices: DefaultRequiredIndices,
	}
}

// Validate checks the classifier configuration.
func (c *Classifier) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.MinLandmarks < 0 {
		return fmt.Errorf("min landmarks must be non-negative, got %d", c.MinLandmarks)
	}
	for _, i := range c.RequiredIndices {
		if i < 0 {
			return fmt.Errorf("required landmark index must be non-negative, got %d", i)
		}
	}
	return nil
}

// Usable reports whether set carries enough landmarks to be classified.
func (c *Classifier) Usable(set pose.LandmarkSet) bool {
	if len(set) == 0 || len(set) < c.MinLandmarks {
		return false
	}
	for _, i := range c.RequiredIndices {
		if !set.Has(i) || !set[i].Visible(c.MinVisibility) {
			return false
		}
	}
	// knee angles always read the six leg joints
	for _, i := range DefaultRequiredIndices {
		if !set.Has(i) {
			return false
		}
	}
	return true
}

// Classify returns UNKNOWN for absent or incomplete sets, otherwise the
// posture implied by both knee angles.
func (c *Classifier) Classify(set pose.LandmarkSet) Result {
	if !c.Usable(set) {
		return Result{State: StateUnknown}
	}
	left, right := pose.KneeAngles(set)
	return Result{
		State:    c.Thresholds.State(left, right),
		Left:     left,
		Right:    right,
		Measured: true,
	}
}

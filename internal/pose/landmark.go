// Package pose holds the per-frame body landmark types produced by the
// external pose estimation model and the joint geometry computed from them.
package pose

// Body landmark indices following the MediaPipe Pose convention.
// Only the lower body is consumed by the classifier; the remaining
// indices are kept so recordings can round-trip a full 33 point set.
const (
	Nose           = 0
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32

	// NumLandmarks is the size of a complete landmark set.
	NumLandmarks = 33
)

// LegPairs lists the landmark index pairs joined when drawing the leg
// skeleton overlay, including the hip line.
var LegPairs = [][2]int{
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{LeftAnkle, LeftHeel},
	{LeftAnkle, LeftFootIndex},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{RightAnkle, RightHeel},
	{RightAnkle, RightFootIndex},
	{LeftHip, RightHip},
}

// KeyJoints are the joints highlighted on the overlay.
var KeyJoints = []int{LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle}

// Landmark is a single estimated joint position in normalised image
// coordinates (0..1). Z is relative depth and is never used for angles.
type Landmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z,omitempty"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// Visible reports whether the landmark visibility meets min. Landmarks
// without a visibility score are treated as visible.
func (l Landmark) Visible(min float64) bool {
	if l.Visibility == nil || min <= 0 {
		return true
	}
	return *l.Visibility >= min
}

// LandmarkSet is one detected body in one frame. A nil set means no body
// was detected; both nil and short sets are valid inputs.
type LandmarkSet []Landmark

// Has reports whether index i is present in the set.
func (s LandmarkSet) Has(i int) bool {
	return i >= 0 && i < len(s)
}

// Subset returns the landmarks at the given indices keyed by index,
// skipping indices the set does not contain.
func (s LandmarkSet) Subset(indices []int) map[int]Landmark {
	out := make(map[int]Landmark, len(indices))
	for _, i := range indices {
		if s.Has(i) {
			out[i] = s[i]
		}
	}
	return out
}

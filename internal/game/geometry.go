package game

// Vec3 is a point or offset in a player's local coordinate frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Quaternion is a block orientation. Orientations are frame-independent in
// this protocol and pass through translation untouched.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Relative converts an absolute position reported by a player into a delta
// against that player's anchor. The result is meaningful to any member
// regardless of where they placed their own tower.
func Relative(abs, anchor Vec3) Vec3 {
	return abs.Sub(anchor)
}

// Absolute reconstructs a position in a receiving player's own frame from a
// stored relative delta and that player's anchor.
func Absolute(rel, anchor Vec3) Vec3 {
	return rel.Add(anchor)
}

package game

import (
	"testing"

	"pgregory.net/rapid"
)

func drawVec(t *rapid.T, label string) Vec3 {
	gen := rapid.Float64Range(-1e6, 1e6)
	return Vec3{
		X: gen.Draw(t, label+".x"),
		Y: gen.Draw(t, label+".y"),
		Z: gen.Draw(t, label+".z"),
	}
}

// A transform reported against anchor a and reconstructed against anchor b
// must land exactly at p - a + b.
func TestCrossFrameReconstruction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawVec(t, "a")
		b := drawVec(t, "b")
		p := drawVec(t, "p")

		got := Absolute(Relative(p, a), b)
		want := p.Sub(a).Add(b)
		if got != want {
			t.Fatalf("reconstructed %v, want %v", got, want)
		}
	})
}

// On an integer grid the round trip through a single frame is lossless.
func TestSameFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gen := rapid.IntRange(-1000, 1000)
		intVec := func(label string) Vec3 {
			return Vec3{
				X: float64(gen.Draw(t, label+".x")),
				Y: float64(gen.Draw(t, label+".y")),
				Z: float64(gen.Draw(t, label+".z")),
			}
		}
		a := intVec("a")
		p := intVec("p")

		if got := Absolute(Relative(p, a), a); got != p {
			t.Fatalf("round trip %v, want %v", got, p)
		}
	})
}

func TestIdentityQuaternion(t *testing.T) {
	q := IdentityQuaternion()
	if q != (Quaternion{W: 1}) {
		t.Fatalf("identity quaternion %v", q)
	}
}

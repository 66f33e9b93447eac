package mapscene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// --- Anchor selection and camera projection ---

func TestBeginFrameWritesAnchoredProjection(t *testing.T) {
	host := newFakeHost()
	host.center = LngLat{Lng: 10, Lat: 20}
	p := newProjector(host)
	cam := NewCamera()

	if !p.BeginFrame(cam) {
		t.Fatal("BeginFrame should succeed outside a transition")
	}
	if !p.Valid() {
		t.Error("projector should be valid after the first frame")
	}

	// Base projection is identity, so the camera's matrix is exactly the
	// anchor model matrix: center nudged by the anchor epsilon.
	got := translationOf(cam.Projection())
	want := mgl64.Vec3{
		(10 + anchorEpsilon) * hostScale,
		(20 + anchorEpsilon) * hostScale,
		0,
	}
	assertVec3Near(t, got, want, 1e-9)
}

func TestBeginFrameDuringTransition(t *testing.T) {
	host := newFakeHost()
	p := newProjector(host)
	cam := NewCamera()

	host.transition = 0.5
	if p.BeginFrame(cam) {
		t.Error("BeginFrame must refuse a mid-transition frame")
	}
	if p.Valid() {
		t.Error("projector must stay invalid before any full frame")
	}

	// 0 and 1 both mean "not transitioning".
	host.transition = 1
	if !p.BeginFrame(cam) {
		t.Error("transition progress 1 should be a normal frame")
	}
	host.transition = 0.25
	if p.BeginFrame(cam) {
		t.Error("BeginFrame must refuse a mid-transition frame")
	}
	if !p.Valid() {
		t.Error("an earlier valid frame must survive a transition")
	}
}

// --- Render matrices ---

func TestRenderMatrixIsAnchorRelative(t *testing.T) {
	host := newFakeHost()
	host.center = LngLat{Lng: 10, Lat: 20}
	m, _ := newTestManager()
	l := attachTestLayer(t, "l", m, host)
	it := addTestMesh(t, l, "a", MeshConfig{Position: LngLat{Lng: 10, Lat: 20}})

	if !l.projector.BeginFrame(l.camera) {
		t.Fatal("BeginFrame failed")
	}
	// The item sits at the viewport center, so its anchor-relative position
	// is just the negated epsilon offset.
	got := translationOf(l.projector.RenderMatrix(it))
	want := mgl64.Vec3{-anchorEpsilon * hostScale, -anchorEpsilon * hostScale, 0}
	assertVec3Near(t, got, want, 1e-9)
}

func TestRenderMatrixAppliesLocalTransform(t *testing.T) {
	host := newFakeHost()
	m, _ := newTestManager()
	l := attachTestLayer(t, "l", m, host)
	it := addTestMesh(t, l, "a", MeshConfig{
		Position: LngLat{Lng: 0, Lat: 0},
		Scale:    mgl64.Vec3{2, 2, 2},
	})

	if !l.projector.BeginFrame(l.camera) {
		t.Fatal("BeginFrame failed")
	}
	rm := l.projector.RenderMatrix(it)
	// A local point at (1,0,0) lands 2 units from the item origin.
	p := mgl64.TransformCoordinate(mgl64.Vec3{1, 0, 0}, rm)
	origin := mgl64.TransformCoordinate(mgl64.Vec3{0, 0, 0}, rm)
	assertNear(t, p.Sub(origin).Len(), 2, 1e-9)
}

// --- Effective altitude through the projection ---

func TestRenderMatrixGroundAltitude(t *testing.T) {
	host := newFakeHost()
	host.terrain = func(LngLat) float64 { return 5 }
	m, _ := newTestManager()
	l := attachTestLayer(t, "l", m, host)

	it := addTestMesh(t, l, "a", MeshConfig{
		Altitude:          10,
		AltitudeReference: Ground,
	})
	if got := it.EffectiveAltitude(); got != 15 {
		t.Fatalf("EffectiveAltitude = %v, want 15", got)
	}

	if !l.projector.BeginFrame(l.camera) {
		t.Fatal("BeginFrame failed")
	}
	rm := l.projector.RenderMatrix(it)
	assertNear(t, translationOf(rm).Z(), 15, 1e-9)
}

func TestRenderMatrixSeaLevelAltitudeIgnoresTerrain(t *testing.T) {
	host := newFakeHost()
	host.terrain = func(LngLat) float64 { return 5 }
	m, _ := newTestManager()
	l := attachTestLayer(t, "l", m, host)

	it := addTestMesh(t, l, "a", MeshConfig{
		Altitude:          10,
		AltitudeReference: MeanSeaLevel,
	})
	if got := it.EffectiveAltitude(); got != 10 {
		t.Fatalf("EffectiveAltitude = %v, want 10", got)
	}
}

// --- Camera inverse cache ---

func TestCameraInverseTracksProjection(t *testing.T) {
	cam := NewCamera()
	cam.SetProjection(mgl64.Translate3D(3, 0, 0))
	assertVec3Near(t, translationOf(cam.Inverse()), mgl64.Vec3{-3, 0, 0}, 1e-12)

	cam.SetProjection(mgl64.Translate3D(0, 7, 0))
	assertVec3Near(t, translationOf(cam.Inverse()), mgl64.Vec3{0, -7, 0}, 1e-12)
}

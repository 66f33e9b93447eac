package mapscene

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// hostScale is the fake host's projected units per degree. Chosen so the
// anchor epsilon (0.00001 deg) becomes an easily checked 0.01 units.
const hostScale = 1000.0

// fakeHost is a planar MapHost: longitude east, latitude north, elevation up,
// all scaled by hostScale, with an identity base projection.
type fakeHost struct {
	center     LngLat
	zoom       float64
	transition float64
	terrain    func(LngLat) float64
	animating  bool
	viewW      float64
	viewH      float64
	repaints   int
}

func newFakeHost() *fakeHost {
	return &fakeHost{zoom: 15, viewW: 100, viewH: 100}
}

func (h *fakeHost) ModelMatrix(pos LngLat, elevation float64) mgl64.Mat4 {
	return mgl64.Translate3D(pos.Lng*hostScale, pos.Lat*hostScale, elevation)
}

func (h *fakeHost) ProjectionMatrix() mgl64.Mat4 { return mgl64.Ident4() }

func (h *fakeHost) TransitionProgress() float64 { return h.transition }

func (h *fakeHost) TerrainElevation(pos LngLat) float64 {
	if h.terrain != nil {
		return h.terrain(pos)
	}
	return 0
}

func (h *fakeHost) TerrainAnimating() bool { return h.animating }

func (h *fakeHost) Center() LngLat { return h.center }

func (h *fakeHost) Zoom() float64 { return h.zoom }

func (h *fakeHost) ViewportSize() (float64, float64) { return h.viewW, h.viewH }

func (h *fakeHost) Unproject(p Point) LngLat { return h.center }

func (h *fakeHost) RequestRepaint() { h.repaints++ }

// fakeRenderer records lifecycle calls.
type fakeRenderer struct {
	resets   int
	renders  int
	disposes int
}

func (r *fakeRenderer) ResetState() { r.resets++ }

func (r *fakeRenderer) Render(scene *Object, c *Camera) { r.renders++ }

func (r *fakeRenderer) Dispose() { r.disposes++ }

// newTestManager builds an isolated manager around a fakeRenderer.
func newTestManager() (*RenderManager, *fakeRenderer) {
	r := &fakeRenderer{}
	m := NewRenderManager("dc", func(DrawContext) Renderer { return r })
	return m, r
}

// attachTestLayer creates a layer on an isolated manager and attaches it.
func attachTestLayer(t *testing.T, id string, m *RenderManager, host *fakeHost) *Layer {
	t.Helper()
	l := NewLayer(id, LayerOptions{Manager: m})
	l.OnAttach(host, "dc")
	return l
}

// stubLoader is a ModelLoader whose behavior is configured per test. during
// runs while the load is "in flight", before the result is produced, which is
// how the synchronous tests exercise the pending-load window.
type stubLoader struct {
	build  func() (*LoadResult, error)
	during func()
	calls  int
}

func (s *stubLoader) Load(ctx context.Context, url string) (*LoadResult, error) {
	s.calls++
	if s.during != nil {
		s.during()
	}
	if s.build != nil {
		return s.build()
	}
	return &LoadResult{Root: boxSubtree()}, nil
}

func boxSubtree() *Object {
	return NewMeshObject("box", NewBoxGeometry(2, 2, 2), nil)
}

// addTestMesh registers a generated box item, failing the test on error.
func addTestMesh(t *testing.T, l *Layer, id string, cfg MeshConfig) *Item {
	t.Helper()
	it, err := l.AddMeshObject(id, boxSubtree(), nil, cfg)
	if err != nil {
		t.Fatalf("AddMeshObject(%q) error: %v", id, err)
	}
	return it
}

// assertVec3Near fails unless got is within tol of want on every axis.
func assertVec3Near(t *testing.T, got, want mgl64.Vec3, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		d := got[i] - want[i]
		if d < -tol || d > tol {
			t.Fatalf("vec = %v, want %v (tol %v)", got, want, tol)
		}
	}
}

// translationOf extracts the translation column of a matrix.
func translationOf(m mgl64.Mat4) mgl64.Vec3 {
	return mgl64.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)}
}

func assertNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	d := got - want
	if d < -tol || d > tol {
		t.Fatalf("value = %v, want %v (tol %v)", got, want, tol)
	}
}

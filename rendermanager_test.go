package mapscene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// --- Construction ---

func TestNewRenderManagerPanicsWithoutContext(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil draw context")
		}
	}()
	NewRenderManager(nil, func(DrawContext) Renderer { return &fakeRenderer{} })
}

func TestNewRenderManagerPanicsWithoutFactory(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil factory")
		}
	}()
	NewRenderManager("dc", nil)
}

// --- Shared instance lifecycle ---

func TestSharedManagerSingleRenderer(t *testing.T) {
	if sharedManager != nil {
		t.Fatal("dirty shared manager from another test")
	}
	t.Cleanup(func() { sharedManager = nil })

	factoryCalls := 0
	r := &fakeRenderer{}
	factory := func(DrawContext) Renderer {
		factoryCalls++
		return r
	}
	host := newFakeHost()

	a := NewLayer("a", LayerOptions{Renderer: factory})
	b := NewLayer("b", LayerOptions{Renderer: factory})
	a.OnAttach(host, "dc")
	b.OnAttach(host, "dc")

	if a.Manager() != b.Manager() {
		t.Fatal("both layers should share one manager")
	}
	if factoryCalls != 1 {
		t.Errorf("renderer factory ran %d times, want 1", factoryCalls)
	}
	if sharedManager == nil || sharedManager.NumLayers() != 2 {
		t.Fatalf("shared manager should hold 2 layers")
	}

	// Detaching one layer keeps the renderer alive.
	a.OnDetach()
	if r.disposes != 0 {
		t.Error("renderer must survive while a layer remains")
	}
	if sharedManager == nil {
		t.Fatal("shared manager should survive while a layer remains")
	}

	// Detaching the last layer disposes the renderer and resets the shared
	// instance for the next attach.
	b.OnDetach()
	if r.disposes != 1 {
		t.Errorf("renderer disposed %d times, want 1", r.disposes)
	}
	if sharedManager != nil {
		t.Error("shared manager should clear after the last detach")
	}
}

func TestManagerOverrideBypassesShared(t *testing.T) {
	if sharedManager != nil {
		t.Fatal("dirty shared manager from another test")
	}
	m, _ := newTestManager()
	host := newFakeHost()
	l := NewLayer("l", LayerOptions{Manager: m})
	l.OnAttach(host, "dc")

	if sharedManager != nil {
		t.Error("an explicit manager must not touch the shared instance")
	}
	if l.Manager() != m {
		t.Error("layer should use the provided manager")
	}
	l.OnDetach()
}

// --- Layer registry ---

func TestRegisterLayerOverwritesByID(t *testing.T) {
	m, _ := newTestManager()
	host := newFakeHost()
	attachTestLayer(t, "a", m, host)
	attachTestLayer(t, "a", m, host)
	if m.NumLayers() != 1 {
		t.Errorf("NumLayers = %d, want overwrite-in-place", m.NumLayers())
	}
}

func TestRenderFrameDrawsEachPreparedLayer(t *testing.T) {
	m, r := newTestManager()
	host := newFakeHost()
	attachTestLayer(t, "a", m, host)
	attachTestLayer(t, "b", m, host)

	m.RenderFrame(FrameOptions{DeltaSeconds: 1.0 / 60})
	if r.resets != 1 {
		t.Errorf("ResetState ran %d times, want once per frame", r.resets)
	}
	if r.renders != 2 {
		t.Errorf("Render ran %d times, want once per layer", r.renders)
	}
}

func TestRenderFrameSkipsZoomGatedLayer(t *testing.T) {
	m, r := newTestManager()
	host := newFakeHost()
	host.zoom = 5
	l := NewLayer("a", LayerOptions{Manager: m, MinZoom: 10})
	l.OnAttach(host, "dc")

	m.RenderFrame(FrameOptions{})
	if r.renders != 0 {
		t.Errorf("zoom-gated layer rendered %d times, want 0", r.renders)
	}

	host.zoom = 12
	m.RenderFrame(FrameOptions{})
	if r.renders != 1 {
		t.Errorf("in-range layer rendered %d times, want 1", r.renders)
	}
}

// --- Animation loops ---

func TestAnimationLoopRegistrationDedups(t *testing.T) {
	m, _ := newTestManager()
	ticks := 0
	m.RegisterAnimationLoop("x", func(dt float64) { ticks++ })
	m.RegisterAnimationLoop("x", func(dt float64) { ticks += 100 })

	m.tickAnimationLoops(0.016)
	if ticks != 1 {
		t.Errorf("ticks = %d; duplicate registration must be a no-op", ticks)
	}
}

func TestAnimationLoopSelfUnregister(t *testing.T) {
	m, _ := newTestManager()
	ticks := 0
	m.RegisterAnimationLoop("x", func(dt float64) {
		ticks++
		m.UnregisterAnimationLoop("x")
	})
	m.tickAnimationLoops(0.016)
	m.tickAnimationLoops(0.016)
	if ticks != 1 {
		t.Errorf("ticks = %d; loop should run once then leave", ticks)
	}
}

func TestOnFrameTicksOncePerHostFrame(t *testing.T) {
	m, _ := newTestManager()
	host := newFakeHost()
	a := attachTestLayer(t, "a", m, host)
	b := attachTestLayer(t, "b", m, host)

	ticks := 0
	m.RegisterAnimationLoop("x", func(dt float64) { ticks++ })

	// A host driving two layers calls each layer's OnFrame once per frame;
	// the shared clock must still advance exactly once.
	dt := 1.0 / 60
	a.OnFrame(FrameOptions{DeltaSeconds: dt})
	b.OnFrame(FrameOptions{DeltaSeconds: dt})
	if ticks != 1 {
		t.Fatalf("one host frame ticked the animation loops %d times, want 1", ticks)
	}

	// The repeated layer id marks the next frame.
	a.OnFrame(FrameOptions{DeltaSeconds: dt})
	b.OnFrame(FrameOptions{DeltaSeconds: dt})
	if ticks != 2 {
		t.Errorf("two host frames ticked the animation loops %d times, want 2", ticks)
	}
}

func TestOnFrameTicksEveryFrameWithSingleLayer(t *testing.T) {
	m, _ := newTestManager()
	host := newFakeHost()
	l := attachTestLayer(t, "a", m, host)

	ticks := 0
	m.RegisterAnimationLoop("x", func(dt float64) { ticks++ })

	for i := 0; i < 3; i++ {
		l.OnFrame(FrameOptions{DeltaSeconds: 1.0 / 60})
	}
	if ticks != 3 {
		t.Errorf("three host frames ticked the animation loops %d times, want 3", ticks)
	}
}

func TestZeroDeltaSkipsTick(t *testing.T) {
	m, _ := newTestManager()
	ticks := 0
	m.RegisterAnimationLoop("x", func(dt float64) { ticks++ })
	m.tickAnimationLoops(0)
	if ticks != 0 {
		t.Error("zero delta must not tick the loops")
	}
}

// --- Pointer events through real scenes ---

type eventLog struct {
	events []string
}

func (e *eventLog) listen(it *Item, types ...EventType) {
	names := map[EventType]string{
		EventMouseEnter:  "enter",
		EventMouseLeave:  "leave",
		EventMouseDown:   "down",
		EventMouseUp:     "up",
		EventClick:       "click",
		EventDoubleClick: "dblclick",
	}
	for _, typ := range types {
		typ := typ
		it.On(typ, func(EventContext) {
			e.events = append(e.events, names[typ]+":"+it.ID())
		})
	}
}

func (e *eventLog) assert(t *testing.T, want ...string) {
	t.Helper()
	if len(e.events) != len(want) {
		t.Fatalf("events = %v, want %v", e.events, want)
	}
	for i := range want {
		if e.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", e.events, want)
		}
	}
	e.events = e.events[:0]
}

// newPointerFixture builds a layer with two small stacked planes at the
// viewport center: "near" at altitude 5 and "far" at altitude 10 (the pick
// ray runs along +Z, so lower altitude is closer). The planes are 2x2 so
// pointer positions near the viewport edge miss them.
func newPointerFixture(t *testing.T) (*RenderManager, *fakeHost, *Item, *Item, *eventLog) {
	t.Helper()
	host := newFakeHost()
	m, _ := newTestManager()
	l := attachTestLayer(t, "l", m, host)

	mkPlane := func() *Object {
		return NewMeshObject("plane", NewPlaneGeometry(2, 2), nil)
	}
	near, err := l.AddMeshObject("near", mkPlane(), nil, MeshConfig{Altitude: 5, AltitudeReference: MeanSeaLevel})
	if err != nil {
		t.Fatal(err)
	}
	far, err := l.AddMeshObject("far", mkPlane(), nil, MeshConfig{Altitude: 10, AltitudeReference: MeanSeaLevel})
	if err != nil {
		t.Fatal(err)
	}

	log := &eventLog{}
	log.listen(near, EventMouseEnter, EventMouseLeave, EventMouseDown, EventMouseUp, EventClick, EventDoubleClick)
	log.listen(far, EventMouseEnter, EventMouseLeave, EventMouseDown, EventMouseUp, EventClick, EventDoubleClick)

	// One frame positions the items and validates the projector.
	m.RenderFrame(FrameOptions{})
	return m, host, near, far, log
}

func center() Point { return Point{X: 50, Y: 50} }

func TestPointerMoveEntersNearestItem(t *testing.T) {
	m, _, _, _, log := newPointerFixture(t)
	m.OnPointerMove(center())
	log.assert(t, "enter:near")
}

func TestPointerMoveSameItemFiresNothing(t *testing.T) {
	m, _, _, _, log := newPointerFixture(t)
	m.OnPointerMove(center())
	log.assert(t, "enter:near")

	m.OnPointerMove(Point{X: 51, Y: 50})
	log.assert(t) // still over "near": no enter, no leave
}

func TestPointerMoveSwitchesItems(t *testing.T) {
	m, _, near, _, log := newPointerFixture(t)
	m.OnPointerMove(center())
	log.assert(t, "enter:near")

	// Hiding the near plane exposes the far one: exactly one leave/enter pair.
	near.SetVisible(false, false)
	m.OnPointerMove(center())
	log.assert(t, "leave:near", "enter:far")
}

func TestPointerSkipsNonInteractableItem(t *testing.T) {
	m, _, near, _, log := newPointerFixture(t)

	// Marking the near item's subtree non-interactable makes the pick ray
	// pass through to the far plane, as if the near one were hidden.
	near.Root().Walk(func(o *Object) bool {
		o.Interactable = false
		return true
	})
	m.OnPointerMove(center())
	log.assert(t, "enter:far")
}

func TestPointerMoveOffEverythingFiresLeave(t *testing.T) {
	m, _, _, _, log := newPointerFixture(t)
	m.OnPointerMove(center())
	log.assert(t, "enter:near")

	m.OnPointerMove(Point{X: 99, Y: 99})
	log.assert(t, "leave:near")
}

func TestClickResolvesAgainstRecordedHit(t *testing.T) {
	m, _, _, _, log := newPointerFixture(t)
	m.OnPointerMove(center())
	log.assert(t, "enter:near")

	m.OnPointerDown(center())
	m.OnPointerUp(center())
	m.OnClick(center())
	log.assert(t, "down:near", "up:near", "click:near")
}

func TestClickWithoutHoverFiresNothing(t *testing.T) {
	m, _, _, _, log := newPointerFixture(t)
	m.OnClick(center())
	log.assert(t)
}

func TestDoubleClick(t *testing.T) {
	m, _, _, _, log := newPointerFixture(t)
	m.OnPointerMove(center())
	log.assert(t, "enter:near")
	m.OnDoubleClick(center())
	log.assert(t, "dblclick:near")
}

func TestEventContextPayload(t *testing.T) {
	host := newFakeHost()
	host.center = LngLat{Lng: 1, Lat: 2}
	m, _ := newTestManager()
	l := attachTestLayer(t, "layer-id", m, host)
	it, err := l.AddMeshObject("item-id", NewMeshObject("p", NewPlaneGeometry(20, 20), nil), nil,
		MeshConfig{Position: host.center, Altitude: 5, AltitudeReference: MeanSeaLevel})
	if err != nil {
		t.Fatal(err)
	}

	var got EventContext
	it.On(EventMouseEnter, func(ctx EventContext) { got = ctx })
	m.RenderFrame(FrameOptions{})
	m.OnPointerMove(center())

	if got.ItemID != "item-id" || got.LayerID != "layer-id" {
		t.Errorf("ids = %q/%q, want item-id/layer-id", got.ItemID, got.LayerID)
	}
	if got.Screen != center() {
		t.Errorf("Screen = %v, want %v", got.Screen, center())
	}
	if got.LngLat != host.center {
		t.Errorf("LngLat = %v, want host unprojection %v", got.LngLat, host.center)
	}
	assertNear(t, got.Distance, 5, 0.1)
	if got.Object == nil {
		t.Error("Object should reference the hit mesh")
	}
	if got.Normal == (mgl64.Vec3{}) {
		t.Error("Normal should be populated")
	}
}

func TestListenerlessItemsReceiveNothing(t *testing.T) {
	host := newFakeHost()
	m, _ := newTestManager()
	l := attachTestLayer(t, "l", m, host)
	addTestMesh(t, l, "silent", MeshConfig{Altitude: 5, AltitudeReference: MeanSeaLevel})

	m.RenderFrame(FrameOptions{})
	m.OnPointerMove(center()) // must not panic, and hover state still tracks
	if m.currentItem == nil || m.currentItem.ID() != "silent" {
		t.Error("hover tracking should record the item even without listeners")
	}
}

package mapscene

// RenderManager multiplexes every attached layer through one GPU renderer
// and one animation clock. A process normally holds a single shared
// instance, created lazily when the first layer attaches and torn down when
// the last detaches; tests construct independent instances directly with
// NewRenderManager.
type RenderManager struct {
	renderer Renderer
	entries  []*layerEntry
	loops    []animLoop

	// frameSeen holds the layers that have rendered since the animation
	// clock last ticked. Hosts drive every attached layer once per frame,
	// so a repeated layer id marks the start of the next frame.
	frameSeen map[string]bool

	// Hit-test state: the last pointer position and the nearest recorded
	// intersection. Click, double-click, down, and up all resolve against
	// the recorded intersection so they stay consistent with hover state.
	lastPointer Point
	current     *Intersection
	currentItem *Item
}

type layerEntry struct {
	id     string
	layer  *Layer
	scene  *Object
	camera *Camera
}

type animLoop struct {
	id string
	fn func(dt float64)
}

// sharedManager is the process-wide instance. At most one exists; all
// layers attached through Layer.OnAttach share its renderer.
var sharedManager *RenderManager

// NewRenderManager constructs a manager with its own renderer bound to the
// host's draw context. Panics if the context or factory is absent: a
// missing GPU context is a configuration error, never retried.
func NewRenderManager(dc DrawContext, factory RendererFactory) *RenderManager {
	if dc == nil {
		panic("mapscene: render manager requires a draw context")
	}
	if factory == nil {
		panic("mapscene: render manager requires a renderer factory")
	}
	return &RenderManager{renderer: factory(dc), frameSeen: map[string]bool{}}
}

// attachShared returns the process-wide manager, creating it on first use.
func attachShared(dc DrawContext, factory RendererFactory) *RenderManager {
	if sharedManager == nil {
		sharedManager = NewRenderManager(dc, factory)
	}
	return sharedManager
}

// Renderer returns the manager's renderer. Exposed for adapters and tests;
// layers and items never draw through it directly.
func (m *RenderManager) Renderer() Renderer {
	return m.renderer
}

// NumLayers returns the number of registered layers.
func (m *RenderManager) NumLayers() int {
	return len(m.entries)
}

// RegisterLayer adds a layer's (scene, camera) pair to the render batch.
// Re-registering an id overwrites the existing entry in place; iteration
// order is insertion order.
func (m *RenderManager) RegisterLayer(l *Layer, scene *Object, camera *Camera) {
	for _, e := range m.entries {
		if e.id == l.ID() {
			e.layer = l
			e.scene = scene
			e.camera = camera
			return
		}
	}
	m.entries = append(m.entries, &layerEntry{id: l.ID(), layer: l, scene: scene, camera: camera})
}

// DetachLayer removes a layer from the batch. Removing the last layer
// disposes the renderer and, for the shared instance, clears it so the next
// attach starts fresh.
func (m *RenderManager) DetachLayer(id string) {
	for i, e := range m.entries {
		if e.id == id {
			copy(m.entries[i:], m.entries[i+1:])
			m.entries[len(m.entries)-1] = nil
			m.entries = m.entries[:len(m.entries)-1]
			break
		}
	}
	if len(m.entries) == 0 {
		m.renderer.Dispose()
		if m == sharedManager {
			sharedManager = nil
		}
	}
}

// RenderFrame runs one host-driven frame: the animation tick, then one draw
// per registered layer into the shared context. Each layer recomputes its
// anchor and item matrices before its draw call, so hit testing after this
// frame is never stale by more than one frame.
func (m *RenderManager) RenderFrame(opts FrameOptions) {
	clear(m.frameSeen)
	m.tickAnimationLoops(opts.DeltaSeconds)

	m.renderer.ResetState()
	for _, e := range m.entries {
		if e.layer.prepareFrame() {
			m.renderer.Render(e.scene, e.camera)
		}
	}
}

// --- Animation loops ---

// RegisterAnimationLoop adds a named callback invoked on every animation
// tick. Re-registering an existing id is a no-op.
func (m *RenderManager) RegisterAnimationLoop(id string, fn func(dt float64)) {
	for _, l := range m.loops {
		if l.id == id {
			return
		}
	}
	m.loops = append(m.loops, animLoop{id: id, fn: fn})
}

// UnregisterAnimationLoop removes a named animation callback.
func (m *RenderManager) UnregisterAnimationLoop(id string) {
	for i, l := range m.loops {
		if l.id == id {
			copy(m.loops[i:], m.loops[i+1:])
			m.loops[len(m.loops)-1] = animLoop{}
			m.loops = m.loops[:len(m.loops)-1]
			return
		}
	}
}

// frameTick advances the animation clock for one layer's OnFrame call,
// ticking at most once per host frame: the first OnFrame of a frame ticks,
// and a layer id seen twice marks the next frame's start.
func (m *RenderManager) frameTick(layerID string, dt float64) {
	if len(m.frameSeen) == 0 || m.frameSeen[layerID] {
		clear(m.frameSeen)
		m.tickAnimationLoops(dt)
	}
	m.frameSeen[layerID] = true
}

// tickAnimationLoops runs every registered callback once. Iterates over a
// snapshot so callbacks may unregister themselves (finished tweens do).
func (m *RenderManager) tickAnimationLoops(dt float64) {
	if dt == 0 || len(m.loops) == 0 {
		return
	}
	snapshot := append([]animLoop(nil), m.loops...)
	for _, l := range snapshot {
		l.fn(dt)
	}
}

// --- Pointer-event intake ---

// OnPointerMove casts a fresh ray through every registered layer and, when
// the nearest hit object changes identity, fires mouseleave on the previous
// item and mouseenter on the new one. No change fires nothing.
func (m *RenderManager) OnPointerMove(p Point) {
	m.lastPointer = p
	hit, item := m.castAll(p)

	prevObj := m.currentObject()
	var newObj *Object
	if hit != nil {
		newObj = hit.Object
	}
	if prevObj == newObj {
		m.current = hit
		m.currentItem = item
		return
	}

	if m.currentItem != nil && m.current != nil {
		m.fire(EventMouseLeave, m.currentItem, *m.current, p)
	}
	m.current = hit
	m.currentItem = item
	if item != nil && hit != nil {
		m.fire(EventMouseEnter, item, *hit, p)
	}
}

// OnPointerDown fires mousedown against the currently recorded intersection.
func (m *RenderManager) OnPointerDown(p Point) {
	m.fireCurrent(EventMouseDown, p)
}

// OnPointerUp fires mouseup against the currently recorded intersection.
func (m *RenderManager) OnPointerUp(p Point) {
	m.fireCurrent(EventMouseUp, p)
}

// OnClick fires click against the currently recorded intersection.
func (m *RenderManager) OnClick(p Point) {
	m.fireCurrent(EventClick, p)
}

// OnDoubleClick fires dblclick against the currently recorded intersection.
func (m *RenderManager) OnDoubleClick(p Point) {
	m.fireCurrent(EventDoubleClick, p)
}

func (m *RenderManager) currentObject() *Object {
	if m.current == nil {
		return nil
	}
	return m.current.Object
}

func (m *RenderManager) fireCurrent(t EventType, p Point) {
	m.lastPointer = p
	if m.current == nil || m.currentItem == nil {
		return
	}
	m.fire(t, m.currentItem, *m.current, p)
}

// castAll intersects the pointer ray against every registered layer's scene
// and returns the overall nearest hit plus its owning item. The item is nil
// for hits on helper/debug objects outside any item: those still become the
// current hit (so hover state tracks them) but never produce events.
func (m *RenderManager) castAll(p Point) (*Intersection, *Item) {
	var best *Intersection
	for _, e := range m.entries {
		l := e.layer
		if l.host == nil || !l.projector.Valid() {
			continue
		}
		w, h := l.host.ViewportSize()
		if w <= 0 || h <= 0 {
			continue
		}
		ray := rayFromScreen(e.camera, p, w, h)
		hits := intersectScene(e.scene, ray)
		if len(hits) == 0 {
			continue
		}
		if best == nil || hits[0].Distance < best.Distance {
			h := hits[0]
			best = &h
		}
	}
	if best == nil {
		return nil, nil
	}
	return best, best.Object.owningItem()
}

// fire routes one event to an item. The ray was already cast regardless;
// this is a pure routing filter, so items without a listener for t simply
// receive nothing.
func (m *RenderManager) fire(t EventType, item *Item, hit Intersection, p Point) {
	if item.layer == nil || !item.hasListeners(t) {
		return
	}
	ctx := EventContext{
		Point:    hit.Point,
		Normal:   hit.Normal,
		Distance: hit.Distance,
		Object:   hit.Object,
		ItemID:   item.id,
		LayerID:  item.layer.ID(),
		Screen:   p,
	}
	if item.layer.host != nil {
		ctx.LngLat = item.layer.host.Unproject(p)
	}
	item.dispatch(t, ctx)
}

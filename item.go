package mapscene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ItemKind distinguishes the two renderable unit types a layer can own.
type ItemKind uint8

const (
	ItemMesh  ItemKind = iota // a loaded mesh hierarchy
	ItemLight                 // a point light
)

// Item is one renderable unit anchored to a geographic position: a mesh
// hierarchy or a point light, plus the mutable state the public API and the
// renderer operate on. Items are created through their owning layer and hold
// back-references to it and to the shared render manager, never the reverse.
type Item struct {
	id    string
	kind  ItemKind
	layer *Layer
	root  *Object

	// Placement
	pos     LngLat
	alt     float64
	altRef  AltitudeReference
	heading float64 // degrees clockwise from north
	pitch   float64 // degrees
	roll    float64 // degrees
	scale   mgl64.Vec3

	// orientationFix is the constant rotation compensating for the asset's
	// authored up-axis convention. Computed once at creation.
	orientationFix mgl64.Mat4

	// Cached composed local transform: scale x rotation x orientation fix.
	local      mgl64.Mat4
	localDirty bool

	// Visual state
	visible   bool
	opacity   float64
	wireframe bool
	pointSize float64
	meta      map[string]any

	// Last-sampled terrain elevation at the item's position.
	terrainElevation float64

	// UI-state stack (state.go)
	states       map[string]*uiState
	activeStates []string

	// Animation (animation.go)
	anim *itemAnimation

	handlers itemHandlerRegistry
}

// newItem wires an item around its root object and registers back-references.
func newItem(layer *Layer, id string, kind ItemKind, root *Object) *Item {
	it := &Item{
		id:             id,
		kind:           kind,
		layer:          layer,
		root:           root,
		scale:          mgl64.Vec3{1, 1, 1},
		orientationFix: mgl64.Ident4(),
		local:          mgl64.Ident4(),
		localDirty:     true,
		visible:        true,
		opacity:        1,
		pointSize:      DefaultPointSize,
		states:         map[string]*uiState{},
		activeStates:   []string{stateDefault},
	}
	it.states[stateDefault] = &uiState{}
	root.item = it
	return it
}

// ID returns the item's layer-scoped identifier.
func (it *Item) ID() string { return it.id }

// Kind returns whether the item is a mesh or a light.
func (it *Item) Kind() ItemKind { return it.kind }

// Root returns the item's scene-graph root object.
func (it *Item) Root() *Object { return it.root }

// Layer returns the owning layer.
func (it *Item) Layer() *Layer { return it.layer }

// --- Placement getters ---

// LngLat returns the item's geographic position.
func (it *Item) LngLat() LngLat { return it.pos }

// Altitude returns the raw configured altitude in meters.
func (it *Item) Altitude() float64 { return it.alt }

// AltitudeReference returns the altitude measurement policy.
func (it *Item) AltitudeReference() AltitudeReference { return it.altRef }

// Heading returns the heading in degrees clockwise from north.
func (it *Item) Heading() float64 { return it.heading }

// Scale returns the non-uniform scale factors.
func (it *Item) Scale() mgl64.Vec3 { return it.scale }

// Visible reports whether the item is drawn and hit-tested.
func (it *Item) Visible() bool { return it.visible }

// Opacity returns the item's opacity in [0, 1].
func (it *Item) Opacity() float64 { return it.opacity }

// TerrainElevation returns the most recently sampled terrain elevation at
// the item's position.
func (it *Item) TerrainElevation() float64 { return it.terrainElevation }

// EffectiveAltitude resolves the altitude used for placement: ground-relative
// items add the sampled terrain elevation, sea-level items use the raw value.
func (it *Item) EffectiveAltitude() float64 {
	if it.altRef == Ground {
		return it.alt + it.terrainElevation
	}
	return it.alt
}

// --- Setters ---
//
// Each setter takes a repaint flag so that bursts of calls can be coalesced
// into a single visual update: pass false and trigger one repaint yourself
// (Modify and the UI-state machinery do exactly that).

// SetLngLat moves the item to a new geographic position and resamples
// terrain elevation there.
func (it *Item) SetLngLat(pos LngLat, repaint bool) {
	it.pos = pos
	it.resampleElevation()
	it.finishSet(repaint)
}

// SetAltitude sets the raw altitude in meters and resamples terrain
// elevation, so ground-relative items pick up terrain changes immediately.
func (it *Item) SetAltitude(alt float64, repaint bool) {
	it.alt = alt
	it.resampleElevation()
	it.finishSet(repaint)
}

// SetAltitudeReference switches between ground-relative and absolute
// altitude and resamples terrain elevation.
func (it *Item) SetAltitudeReference(ref AltitudeReference, repaint bool) {
	it.altRef = ref
	it.resampleElevation()
	it.finishSet(repaint)
}

// SetHeading sets the heading in degrees clockwise from north.
func (it *Item) SetHeading(deg float64, repaint bool) {
	it.heading = deg
	it.localDirty = true
	it.finishSet(repaint)
}

// SetPitchRoll sets the optional pitch and roll in degrees.
func (it *Item) SetPitchRoll(pitch, roll float64, repaint bool) {
	it.pitch = pitch
	it.roll = roll
	it.localDirty = true
	it.finishSet(repaint)
}

// SetScale sets the non-uniform scale factors.
func (it *Item) SetScale(s mgl64.Vec3, repaint bool) {
	it.scale = s
	it.localDirty = true
	it.finishSet(repaint)
}

// SetVisible toggles rendering and hit testing for the whole subtree.
func (it *Item) SetVisible(v bool, repaint bool) {
	it.visible = v
	it.root.Visible = v
	it.finishSet(repaint)
}

// SetOpacity sets opacity on every material in the subtree. Values are
// clamped to [0, 1].
func (it *Item) SetOpacity(o float64, repaint bool) {
	o = math.Min(1, math.Max(0, o))
	it.opacity = o
	it.root.Walk(func(obj *Object) bool {
		if obj.Material != nil {
			obj.Material.Opacity = o
		}
		return true
	})
	it.finishSet(repaint)
}

// SetWireframe toggles wireframe rendering on every material in the subtree.
func (it *Item) SetWireframe(w bool, repaint bool) {
	it.wireframe = w
	it.root.Walk(func(obj *Object) bool {
		if obj.Material != nil {
			obj.Material.Wireframe = w
		}
		return true
	})
	it.finishSet(repaint)
}

// SetPointSize sets the point-cloud point size on every material.
func (it *Item) SetPointSize(size float64, repaint bool) {
	it.pointSize = size
	it.root.Walk(func(obj *Object) bool {
		if obj.Material != nil {
			obj.Material.PointSize = size
		}
		return true
	})
	it.finishSet(repaint)
}

func (it *Item) finishSet(repaint bool) {
	if repaint {
		it.requestRepaint()
	}
}

// ItemChanges is a partial-property set for Modify and for UI states. Nil
// fields are left untouched.
type ItemChanges struct {
	Visible           *bool
	Position          *LngLat
	Altitude          *float64
	AltitudeReference *AltitudeReference
	Heading           *float64
	Scale             *mgl64.Vec3
	Opacity           *float64
	PointSize         *float64
	Wireframe         *bool
}

// Modify applies any subset of the item's mutable properties, then requests
// a single repaint. Position, altitude, and altitude-reference changes
// resample terrain elevation; scale and heading changes invalidate the
// cached local transform.
func (it *Item) Modify(ch ItemChanges) {
	applyChanges(it, ch)
	it.requestRepaint()
}

// applyChanges dispatches each present property through its typed setter.
// The property set is a closed enum (see statePropKind); this is the single
// place it fans out.
func applyChanges(it *Item, ch ItemChanges) {
	for kind := statePropKind(0); kind < statePropCount; kind++ {
		applyChange(it, ch, kind)
	}
}

// --- Metadata ---

// SetMetadata stores a user-defined value on the item.
func (it *Item) SetMetadata(key string, value any) {
	if it.meta == nil {
		it.meta = map[string]any{}
	}
	it.meta[key] = value
}

// Metadata returns a previously stored user-defined value.
func (it *Item) Metadata(key string) (any, bool) {
	v, ok := it.meta[key]
	return v, ok
}

// --- Internals ---

// localTransform returns the cached composed local transform
// (scale x heading/pitch/roll x source-orientation correction),
// recomputing it only when one of its inputs changed.
func (it *Item) localTransform() mgl64.Mat4 {
	if it.localDirty {
		rot := mgl64.HomogRotate3DZ(-mgl64.DegToRad(it.heading))
		if it.pitch != 0 {
			rot = rot.Mul4(mgl64.HomogRotate3DX(mgl64.DegToRad(it.pitch)))
		}
		if it.roll != 0 {
			rot = rot.Mul4(mgl64.HomogRotate3DY(mgl64.DegToRad(it.roll)))
		}
		it.local = mgl64.Scale3D(it.scale.X(), it.scale.Y(), it.scale.Z()).
			Mul4(rot).
			Mul4(it.orientationFix)
		it.localDirty = false
	}
	return it.local
}

// orientationFixFor returns the constant up-axis correction for assets
// authored in a different convention than the map's Z-up space.
func orientationFixFor(up UpAxis) mgl64.Mat4 {
	switch up {
	case UpY:
		return mgl64.HomogRotate3DX(math.Pi / 2)
	case UpX:
		return mgl64.HomogRotate3DY(-math.Pi / 2)
	default:
		return mgl64.Ident4()
	}
}

// resampleElevation queries the host's terrain sampler at the item's
// current position. Safe to call while detached (keeps the last value).
func (it *Item) resampleElevation() {
	if it.layer == nil || it.layer.host == nil {
		return
	}
	it.terrainElevation = it.layer.host.TerrainElevation(it.pos)
}

func (it *Item) requestRepaint() {
	if it.layer != nil && it.layer.host != nil {
		it.layer.host.RequestRepaint()
	}
}

// --- Event listeners ---

type itemHandler struct {
	id uint32
	fn func(EventContext)
}

type itemHandlerRegistry struct {
	byType [6][]itemHandler
	nextID uint32
}

// ListenerHandle allows removing a registered item event listener.
type ListenerHandle struct {
	id   uint32
	item *Item
	typ  EventType
}

// On registers a listener for a pointer event type on this item and returns
// a handle that removes it.
func (it *Item) On(t EventType, fn func(EventContext)) ListenerHandle {
	it.handlers.nextID++
	id := it.handlers.nextID
	it.handlers.byType[t] = append(it.handlers.byType[t], itemHandler{id: id, fn: fn})
	return ListenerHandle{id: id, item: it, typ: t}
}

// Remove unregisters the listener so it no longer fires.
func (h ListenerHandle) Remove() {
	if h.item == nil {
		return
	}
	s := h.item.handlers.byType[h.typ]
	for i := range s {
		if s[i].id == h.id {
			copy(s[i:], s[i+1:])
			s[len(s)-1] = itemHandler{}
			h.item.handlers.byType[h.typ] = s[:len(s)-1]
			return
		}
	}
}

// hasListeners reports whether any listener is registered for t. The hit
// tester uses this as a routing filter: the ray is tested either way, but
// no event is built or fired for listener-less items.
func (it *Item) hasListeners(t EventType) bool {
	return len(it.handlers.byType[t]) > 0
}

// dispatch fires every listener registered for t.
func (it *Item) dispatch(t EventType, ctx EventContext) {
	for _, h := range it.handlers.byType[t] {
		h.fn(ctx)
	}
}

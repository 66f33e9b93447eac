package mapscene

import (
	"context"
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jinzhu/copier"
)

// layerState tracks the host-driven lifecycle.
type layerState uint8

const (
	layerUnattached layerState = iota
	layerAttached
	layerDisposed
)

// LayerOptions configures a layer at creation time.
type LayerOptions struct {
	// MinZoom and MaxZoom gate rendering: outside the range the layer's
	// draw call is skipped. A zero MaxZoom means no upper bound.
	MinZoom float64
	MaxZoom float64

	// Antialias asks renderer adapters that support it for antialiased
	// edges. Adapters read it through Layer.Antialias.
	Antialias bool

	// AmbientColor and AmbientIntensity configure the layer's ambient
	// light. A zero-value color defaults to white at intensity 1.
	AmbientColor     Color
	AmbientIntensity float64

	// Renderer builds the shared renderer on first attach. Required.
	Renderer RendererFactory

	// Loader resolves model URLs for AddMesh. Required for AddMesh;
	// layers that only use AddMeshObject and AddLight may leave it nil.
	Loader ModelLoader

	// Manager overrides the process-wide shared render manager. Tests use
	// this to run against an isolated instance.
	Manager *RenderManager
}

// MeshConfig is the placement configuration for a new mesh item.
type MeshConfig struct {
	URL               string
	Position          LngLat
	Altitude          float64
	AltitudeReference AltitudeReference
	Heading           float64 // degrees clockwise from north
	Pitch             float64
	Roll              float64
	Scale             mgl64.Vec3 // zero value means uniform 1
	UpAxis            UpAxis
	AnimationMode     AnimationMode
}

// LightConfig is the configuration for a new point-light item.
type LightConfig struct {
	Position          LngLat
	Altitude          float64
	AltitudeReference AltitudeReference
	Color             Color
	Intensity         float64
}

// Layer is one geo-referenced 3D scene and the package's public surface: it
// owns a scene-graph root, a camera whose projection is rewritten every
// frame, an ambient light, and the item registry. A layer registers with,
// but is not owned by, the shared RenderManager.
type Layer struct {
	id    string
	opts  LayerOptions
	state layerState

	host      MapHost
	manager   *RenderManager
	projector *Projector

	scene   *Object
	camera  *Camera
	ambient *Object

	items   map[string]*Item
	pending map[string]*pendingLoad
}

type pendingLoad struct {
	canceled bool
}

// NewLayer creates an unattached layer. It becomes live when the host calls
// OnAttach through its custom-render extension point.
func NewLayer(id string, opts LayerOptions) *Layer {
	if opts.AmbientColor == (Color{}) {
		opts.AmbientColor = ColorWhite
		if opts.AmbientIntensity == 0 {
			opts.AmbientIntensity = 1
		}
	}
	scene := NewGroup("layer:" + id)
	ambient := NewLightObject("ambient", opts.AmbientColor, opts.AmbientIntensity)
	ambient.Interactable = false
	scene.AddChild(ambient)
	return &Layer{
		id:      id,
		opts:    opts,
		scene:   scene,
		camera:  NewCamera(),
		ambient: ambient,
		items:   map[string]*Item{},
		pending: map[string]*pendingLoad{},
	}
}

// ID returns the layer's stable identifier.
func (l *Layer) ID() string { return l.id }

// Scene returns the layer's scene-graph root.
func (l *Layer) Scene() *Object { return l.scene }

// Camera returns the layer's camera.
func (l *Layer) Camera() *Camera { return l.camera }

// Manager returns the render manager the layer is registered with, or nil
// while unattached.
func (l *Layer) Manager() *RenderManager { return l.manager }

// Antialias reports whether the layer asked for antialiased drawing.
func (l *Layer) Antialias() bool { return l.opts.Antialias }

// NumItems returns the number of registered items.
func (l *Layer) NumItems() int { return len(l.items) }

// Item looks up a registered item by id.
func (l *Layer) Item(id string) (*Item, bool) {
	it, ok := l.items[id]
	return it, ok
}

// --- Lifecycle (CustomLayer) ---

// OnAttach binds the layer to the host map and the shared render manager.
// Panics if host or dc is nil: missing context at attach time is a
// configuration error.
func (l *Layer) OnAttach(host MapHost, dc DrawContext) {
	if host == nil {
		panic("mapscene: layer requires a map host")
	}
	if dc == nil {
		panic("mapscene: layer requires a draw context")
	}
	if l.state == layerDisposed {
		panic("mapscene: layer has been disposed")
	}
	l.host = host
	l.projector = newProjector(host)
	if l.opts.Manager != nil {
		l.manager = l.opts.Manager
	} else {
		l.manager = attachShared(dc, l.opts.Renderer)
	}
	l.manager.RegisterLayer(l, l.scene, l.camera)
	l.state = layerAttached
	host.RequestRepaint()
}

// OnFrame renders this layer for the current host frame. The shared
// animation clock advances exactly once per host frame no matter how many
// layers the host drives: the manager latches the tick across the frame's
// OnFrame calls.
func (l *Layer) OnFrame(opts FrameOptions) {
	if l.state != layerAttached {
		return
	}
	l.manager.frameTick(l.id, opts.DeltaSeconds)
	l.manager.renderer.ResetState()
	if l.prepareFrame() {
		l.manager.renderer.Render(l.scene, l.camera)
	}
}

// OnDetach disposes every item, clears the scene, and deregisters from the
// manager; the manager disposes the shared renderer if this was the last
// layer. The layer cannot be reattached afterwards.
func (l *Layer) OnDetach() {
	if l.state != layerAttached {
		return
	}
	for id := range l.items {
		it := l.items[id]
		it.stopAnimationLoop()
		it.root.Dispose()
		it.layer = nil
		delete(l.items, id)
	}
	l.scene.Dispose()
	l.manager.DetachLayer(l.id)
	l.manager = nil
	l.host = nil
	l.state = layerDisposed
}

// prepareFrame recomputes the anchor, the camera projection, and every
// item's render matrix, then refreshes world matrices. Returns false when
// the layer should not draw this frame (zoom-gated, or never positioned).
func (l *Layer) prepareFrame() bool {
	if l.state != layerAttached {
		return false
	}
	z := l.host.Zoom()
	if z < l.opts.MinZoom || (l.opts.MaxZoom > 0 && z > l.opts.MaxZoom) {
		return false
	}
	if !l.projector.BeginFrame(l.camera) {
		// Projection-mode transition mid-flight: hold the last valid
		// positions rather than interpolating between matrix bases.
		return l.projector.Valid()
	}
	terrain := l.host.TerrainAnimating()
	for _, it := range l.items {
		if terrain {
			it.resampleElevation()
		}
		it.root.SetLocal(l.projector.RenderMatrix(it))
	}
	l.scene.updateWorld(mgl64.Ident4(), false)
	return true
}

// --- Item operations ---

// AddMesh loads a model asset and registers it as a new item. The add is
// atomic: on any error (duplicate id, unsupported format, load failure)
// nothing is registered. Load failures are logged before being returned.
func (l *Layer) AddMesh(ctx context.Context, id string, cfg MeshConfig) (*Item, error) {
	if l.state != layerAttached {
		return nil, ErrDetached
	}
	if l.opts.Loader == nil {
		panic("mapscene: layer has no model loader")
	}
	if err := l.checkNewID(id); err != nil {
		return nil, err
	}
	if err := ValidateModelURL(cfg.URL); err != nil {
		return nil, err
	}

	pl := &pendingLoad{}
	l.pending[id] = pl
	result, err := l.opts.Loader.Load(ctx, cfg.URL)
	delete(l.pending, id)
	if err != nil {
		log.Printf("mapscene: load %q: %v", cfg.URL, err)
		return nil, fmt.Errorf("mapscene: load %q: %w", cfg.URL, err)
	}
	if pl.canceled {
		result.Root.Dispose()
		return nil, fmt.Errorf("mapscene: load of item %q: %w", id, context.Canceled)
	}
	return l.registerMesh(id, result.Root, result.Clips, cfg)
}

// AddMeshObject registers an already-built scene subtree as a mesh item,
// bypassing the loader. Used for generated geometry.
func (l *Layer) AddMeshObject(id string, subtree *Object, clips []*AnimationClip, cfg MeshConfig) (*Item, error) {
	if l.state != layerAttached {
		return nil, ErrDetached
	}
	if subtree == nil {
		panic("mapscene: cannot add nil subtree")
	}
	if err := l.checkNewID(id); err != nil {
		return nil, err
	}
	return l.registerMesh(id, subtree, clips, cfg)
}

// AddLight registers a point light item at a geographic position.
func (l *Layer) AddLight(id string, cfg LightConfig) (*Item, error) {
	if l.state != layerAttached {
		return nil, ErrDetached
	}
	if err := l.checkNewID(id); err != nil {
		return nil, err
	}
	root := NewGroup("item:" + id)
	root.AddChild(NewLightObject(id, cfg.Color, cfg.Intensity))
	it := newItem(l, id, ItemLight, root)
	it.pos = cfg.Position
	it.alt = cfg.Altitude
	it.altRef = cfg.AltitudeReference
	it.resampleElevation()
	l.items[id] = it
	l.scene.AddChild(root)
	l.host.RequestRepaint()
	return it, nil
}

// ModifyLight updates a light item's color and intensity. Missing ids are a
// silent no-op, matching ModifyMesh.
func (l *Layer) ModifyLight(id string, color Color, intensity float64) {
	it, ok := l.items[id]
	if !ok || it.kind != ItemLight {
		return
	}
	it.root.Walk(func(o *Object) bool {
		if o.Light != nil {
			o.Light.Color = color
			o.Light.Intensity = intensity
		}
		return true
	})
	it.requestRepaint()
}

// ModifyMesh applies a partial property set to an item. A missing id is a
// silent no-op: items may be removed while UI-state callbacks referencing
// them are still in flight.
func (l *Layer) ModifyMesh(id string, ch ItemChanges) {
	it, ok := l.items[id]
	if !ok {
		return
	}
	it.Modify(ch)
}

// CloneMesh registers a deep copy of an existing mesh item under a new id,
// optionally applying property overrides. Geometry, materials, metadata,
// and animation clips are copied, so mutating either item never affects
// the other.
func (l *Layer) CloneMesh(srcID, newID string, overrides ItemChanges) (*Item, error) {
	if l.state != layerAttached {
		return nil, ErrDetached
	}
	src, ok := l.items[srcID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingItem, srcID)
	}
	if err := l.checkNewID(newID); err != nil {
		return nil, err
	}

	newRoot := src.root.Clone()
	it := newItem(l, newID, src.kind, newRoot)
	it.pos = src.pos
	it.alt = src.alt
	it.altRef = src.altRef
	it.heading = src.heading
	it.pitch = src.pitch
	it.roll = src.roll
	it.scale = src.scale
	it.orientationFix = src.orientationFix
	it.visible = src.visible
	it.opacity = src.opacity
	it.wireframe = src.wireframe
	it.pointSize = src.pointSize
	it.terrainElevation = src.terrainElevation
	it.localDirty = true
	if src.meta != nil {
		meta := map[string]any{}
		if err := copier.CopyWithOption(&meta, &src.meta, copier.Option{DeepCopy: true}); err != nil {
			panic("mapscene: deep copy of item metadata failed: " + err.Error())
		}
		it.meta = meta
	}

	if src.anim != nil {
		mapping := map[*Object]*Object{}
		buildCloneMapping(src.root, newRoot, mapping)
		clips := make([]*AnimationClip, 0, len(src.anim.clips))
		for _, c := range src.anim.clips {
			clips = append(clips, c.rebind(mapping))
		}
		it.setClips(clips, src.anim.mode)
	}

	l.items[newID] = it
	l.scene.AddChild(newRoot)
	applyChanges(it, overrides)
	l.host.RequestRepaint()
	return it, nil
}

// RemoveMesh removes an item, detaches its subtree from the scene, and
// releases its geometry and material resources. Removing a missing id is an
// error; so is removing an id whose load has not resolved yet (use
// CancelLoad for that).
func (l *Layer) RemoveMesh(id string) error {
	if _, ok := l.pending[id]; ok {
		return fmt.Errorf("%w: %q", ErrPendingLoad, id)
	}
	it, ok := l.items[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingItem, id)
	}
	it.stopAnimationLoop()
	it.root.Dispose()
	it.layer = nil
	delete(l.items, id)
	if l.host != nil {
		l.host.RequestRepaint()
	}
	return nil
}

// CancelLoad marks a pending AddMesh so that, when the loader resolves, the
// subtree is discarded instead of registered. Always accepted; a no-op for
// ids that are not pending.
func (l *Layer) CancelLoad(id string) {
	if pl, ok := l.pending[id]; ok {
		pl.canceled = true
	}
}

// SetAmbientLight updates the layer's ambient light.
func (l *Layer) SetAmbientLight(color Color, intensity float64) {
	l.ambient.Light.Color = color
	l.ambient.Light.Intensity = intensity
	if l.host != nil {
		l.host.RequestRepaint()
	}
}

// AmbientLight returns the ambient light's current parameters.
func (l *Layer) AmbientLight() (Color, float64) {
	return l.ambient.Light.Color, l.ambient.Light.Intensity
}

// --- Internals ---

// checkNewID enforces layer-scoped id uniqueness before any mutation.
func (l *Layer) checkNewID(id string) error {
	if _, ok := l.items[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	if _, ok := l.pending[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	return nil
}

// registerMesh wraps a subtree in an item root and registers it.
func (l *Layer) registerMesh(id string, subtree *Object, clips []*AnimationClip, cfg MeshConfig) (*Item, error) {
	root := NewGroup("item:" + id)
	root.AddChild(subtree)
	it := newItem(l, id, ItemMesh, root)
	it.pos = cfg.Position
	it.alt = cfg.Altitude
	it.altRef = cfg.AltitudeReference
	it.heading = cfg.Heading
	it.pitch = cfg.Pitch
	it.roll = cfg.Roll
	if cfg.Scale != (mgl64.Vec3{}) {
		it.scale = cfg.Scale
	}
	it.orientationFix = orientationFixFor(cfg.UpAxis)
	it.resampleElevation()
	it.setClips(clips, cfg.AnimationMode)
	l.items[id] = it
	l.scene.AddChild(root)
	l.host.RequestRepaint()
	return it, nil
}

// buildCloneMapping walks a source tree and its structural clone in
// lockstep, recording old-to-new object pairs for clip rebinding.
func buildCloneMapping(src, dst *Object, m map[*Object]*Object) {
	m[src] = dst
	for i, c := range src.Children() {
		buildCloneMapping(c, dst.Children()[i], m)
	}
}

package mapscene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ObjectKind distinguishes rendering and intersection behavior for an Object.
type ObjectKind uint8

const (
	KindGroup  ObjectKind = iota // grouping node with no visual output
	KindMesh                     // triangle mesh
	KindPoints                   // point cloud
	KindLight                    // point light source
)

// objectIDCounter is a plain counter (no atomic; mapscene is single-threaded).
var objectIDCounter uint32

func nextObjectID() uint32 {
	objectIDCounter++
	return objectIDCounter
}

// Object is the scene graph element. A single flat struct is used for all
// kinds to avoid interface dispatch on the render and intersection paths.
type Object struct {
	// Identity
	ID   uint32
	Name string
	Kind ObjectKind

	// Hierarchy
	Parent   *Object
	children []*Object

	// Local is the object's transform relative to its parent. For an item's
	// root object it is rewritten every frame with the anchor-relative
	// render matrix.
	Local mgl64.Mat4

	// Computed during the per-frame world pass.
	world      mgl64.Mat4
	worldDirty bool

	// Visibility & interaction
	Visible      bool
	Interactable bool

	// Geometry and material (KindMesh, KindPoints)
	Geometry *Geometry
	Material *Material

	// Light (KindLight)
	Light *LightSource

	// item is the owning Item, set on the item's root object when it is
	// registered with a layer. Objects with no owning item anywhere up
	// their parent chain never produce pointer events.
	item *Item

	disposed bool
}

// LightSource holds the emissive parameters of a light object.
type LightSource struct {
	Color     Color
	Intensity float64
}

// Material is the mutable visual state the item setters write through.
type Material struct {
	Color     Color
	Opacity   float64
	Wireframe bool
	PointSize float64
}

// objectDefaults sets the common default field values shared by constructors.
func objectDefaults(o *Object) {
	o.ID = nextObjectID()
	o.Local = mgl64.Ident4()
	o.world = mgl64.Ident4()
	o.worldDirty = true
	o.Visible = true
	o.Interactable = true
}

// NewGroup creates a grouping object with no visual representation.
func NewGroup(name string) *Object {
	o := &Object{Name: name, Kind: KindGroup}
	objectDefaults(o)
	return o
}

// NewMeshObject creates a mesh object from geometry and material.
// A nil material gets an opaque white default.
func NewMeshObject(name string, geom *Geometry, mat *Material) *Object {
	if mat == nil {
		mat = &Material{Color: ColorWhite, Opacity: 1, PointSize: DefaultPointSize}
	}
	o := &Object{Name: name, Kind: KindMesh, Geometry: geom, Material: mat}
	objectDefaults(o)
	return o
}

// NewPointsObject creates a point-cloud object. Only the geometry's
// positions are used; indices are ignored.
func NewPointsObject(name string, geom *Geometry, mat *Material) *Object {
	if mat == nil {
		mat = &Material{Color: ColorWhite, Opacity: 1, PointSize: DefaultPointSize}
	}
	o := &Object{Name: name, Kind: KindPoints, Geometry: geom, Material: mat}
	objectDefaults(o)
	return o
}

// NewLightObject creates a point light object.
func NewLightObject(name string, color Color, intensity float64) *Object {
	o := &Object{Name: name, Kind: KindLight, Light: &LightSource{Color: color, Intensity: intensity}}
	objectDefaults(o)
	return o
}

// --- Tree manipulation ---

// AddChild appends child to this object's children.
// If child already has a parent, it is removed from that parent first.
// Panics if child is nil or child is an ancestor of this object (cycle).
func (o *Object) AddChild(child *Object) {
	if child == nil {
		panic("mapscene: cannot add nil child")
	}
	if isAncestor(child, o) {
		panic("mapscene: adding child would create a cycle")
	}
	if child.Parent != nil {
		child.Parent.removeChildByPtr(child)
	}
	child.Parent = o
	o.children = append(o.children, child)
	markSubtreeDirty(child)
}

// RemoveChild detaches child from this object.
// Panics if child.Parent != o.
func (o *Object) RemoveChild(child *Object) {
	if child.Parent != o {
		panic("mapscene: child's parent is not this object")
	}
	o.removeChildByPtr(child)
	child.Parent = nil
	markSubtreeDirty(child)
}

// RemoveFromParent detaches this object from its parent.
// No-op if this object has no parent.
func (o *Object) RemoveFromParent() {
	if o.Parent == nil {
		return
	}
	o.Parent.RemoveChild(o)
}

// Children returns the child list. The returned slice MUST NOT be mutated.
func (o *Object) Children() []*Object {
	return o.children
}

// Walk calls fn for this object and every descendant, depth first.
// Traversal of a subtree stops when fn returns false for its root.
func (o *Object) Walk(fn func(*Object) bool) {
	if !fn(o) {
		return
	}
	for _, child := range o.children {
		child.Walk(fn)
	}
}

// --- Transforms ---

// SetLocal replaces the object's local matrix and marks its subtree dirty.
func (o *Object) SetLocal(m mgl64.Mat4) {
	o.Local = m
	markSubtreeDirty(o)
}

// World returns the object's world matrix as of the last world pass.
func (o *Object) World() mgl64.Mat4 {
	return o.world
}

// updateWorld recomputes world matrices down the subtree. parentRecomputed
// forces recomputation even for clean nodes, mirroring dirty propagation.
func (o *Object) updateWorld(parent mgl64.Mat4, parentRecomputed bool) {
	recompute := o.worldDirty || parentRecomputed
	if recompute {
		o.world = parent.Mul4(o.Local)
		o.worldDirty = false
	}
	for _, child := range o.children {
		child.updateWorld(o.world, recompute)
	}
}

// owningItem walks up the parent chain to the nearest object registered to
// an item. Returns nil for helper/debug objects outside any item.
func (o *Object) owningItem() *Item {
	for p := o; p != nil; p = p.Parent {
		if p.item != nil {
			return p.item
		}
	}
	return nil
}

// --- Disposal ---

// Dispose removes this object from its parent, releases its geometry and
// material references, and recursively disposes all descendants.
func (o *Object) Dispose() {
	if o.disposed {
		return
	}
	o.RemoveFromParent()
	o.dispose()
}

func (o *Object) dispose() {
	o.disposed = true
	o.ID = 0
	for _, child := range o.children {
		child.Parent = nil
		child.dispose()
	}
	o.children = nil
	o.Parent = nil
	if o.Geometry != nil {
		o.Geometry.release()
		o.Geometry = nil
	}
	o.Material = nil
	o.Light = nil
	o.item = nil
}

// IsDisposed returns true if this object has been disposed.
func (o *Object) IsDisposed() bool {
	return o.disposed
}

// Clone returns a deep copy of this object and all descendants. Geometry
// and material are copied, not shared, so mutating one tree never affects
// the other. The owning-item back-reference is not carried over.
func (o *Object) Clone() *Object {
	c := &Object{
		Name:         o.Name,
		Kind:         o.Kind,
		Local:        o.Local,
		world:        o.world,
		worldDirty:   true,
		Visible:      o.Visible,
		Interactable: o.Interactable,
	}
	c.ID = nextObjectID()
	if o.Geometry != nil {
		c.Geometry = o.Geometry.Clone()
	}
	if o.Material != nil {
		m := *o.Material
		c.Material = &m
	}
	if o.Light != nil {
		l := *o.Light
		c.Light = &l
	}
	for _, child := range o.children {
		cc := child.Clone()
		cc.Parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// --- Helpers ---

// isAncestor reports whether candidate is an ancestor of obj.
func isAncestor(candidate, obj *Object) bool {
	for p := obj; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from o.children without clearing
// child.Parent. Uses copy+nil to avoid retaining a dangling pointer.
func (o *Object) removeChildByPtr(child *Object) {
	for i, c := range o.children {
		if c == child {
			copy(o.children[i:], o.children[i+1:])
			o.children[len(o.children)-1] = nil
			o.children = o.children[:len(o.children)-1]
			return
		}
	}
}

// markSubtreeDirty sets worldDirty on obj and all its descendants.
func markSubtreeDirty(obj *Object) {
	obj.worldDirty = true
	for _, child := range obj.children {
		markSubtreeDirty(child)
	}
}

// --- Geometry ---

// Geometry holds triangle or point data in the object's local space, plus a
// cached bounding sphere used for intersection rejection.
type Geometry struct {
	Positions []mgl64.Vec3
	Normals   []mgl64.Vec3
	Indices   []uint32 // triples; empty means Positions are not indexed

	boundsCenter mgl64.Vec3
	boundsRadius float64
	boundsDirty  bool

	released bool
}

// NewGeometry creates a geometry from positions and optional indices.
func NewGeometry(positions []mgl64.Vec3, indices []uint32) *Geometry {
	return &Geometry{Positions: positions, Indices: indices, boundsDirty: true}
}

// MarkDirty invalidates the cached bounding sphere after positions change.
func (g *Geometry) MarkDirty() {
	g.boundsDirty = true
}

// Bounds returns the geometry's bounding sphere in local space.
func (g *Geometry) Bounds() (center mgl64.Vec3, radius float64) {
	if g.boundsDirty {
		g.recomputeBounds()
	}
	return g.boundsCenter, g.boundsRadius
}

func (g *Geometry) recomputeBounds() {
	g.boundsDirty = false
	if len(g.Positions) == 0 {
		g.boundsCenter = mgl64.Vec3{}
		g.boundsRadius = 0
		return
	}
	min := g.Positions[0]
	max := g.Positions[0]
	for _, p := range g.Positions[1:] {
		for i := 0; i < 3; i++ {
			if p[i] < min[i] {
				min[i] = p[i]
			}
			if p[i] > max[i] {
				max[i] = p[i]
			}
		}
	}
	g.boundsCenter = min.Add(max).Mul(0.5)
	r2 := 0.0
	for _, p := range g.Positions {
		d := p.Sub(g.boundsCenter).LenSqr()
		if d > r2 {
			r2 = d
		}
	}
	g.boundsRadius = math.Sqrt(r2)
}

// TriangleCount returns the number of triangles in the geometry.
func (g *Geometry) TriangleCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return len(g.Positions) / 3
}

// Triangle returns the i-th triangle's vertices in local space.
func (g *Geometry) Triangle(i int) (a, b, c mgl64.Vec3) {
	if len(g.Indices) > 0 {
		return g.Positions[g.Indices[3*i]], g.Positions[g.Indices[3*i+1]], g.Positions[g.Indices[3*i+2]]
	}
	return g.Positions[3*i], g.Positions[3*i+1], g.Positions[3*i+2]
}

// Clone returns a deep copy of the geometry.
func (g *Geometry) Clone() *Geometry {
	c := &Geometry{
		Positions:    append([]mgl64.Vec3(nil), g.Positions...),
		Normals:      append([]mgl64.Vec3(nil), g.Normals...),
		Indices:      append([]uint32(nil), g.Indices...),
		boundsCenter: g.boundsCenter,
		boundsRadius: g.boundsRadius,
		boundsDirty:  g.boundsDirty,
	}
	return c
}

// release drops vertex data, standing in for GPU buffer release.
func (g *Geometry) release() {
	g.Positions = nil
	g.Normals = nil
	g.Indices = nil
	g.released = true
}

// NewBoxGeometry builds an axis-aligned box centered at the origin.
func NewBoxGeometry(width, height, depth float64) *Geometry {
	hx, hy, hz := width/2, height/2, depth/2
	positions := []mgl64.Vec3{
		{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {-hx, hy, -hz},
		{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz},
	}
	indices := []uint32{
		0, 2, 1, 0, 3, 2, // -z
		4, 5, 6, 4, 6, 7, // +z
		0, 1, 5, 0, 5, 4, // -y
		3, 6, 2, 3, 7, 6, // +y
		0, 4, 7, 0, 7, 3, // -x
		1, 2, 6, 1, 6, 5, // +x
	}
	return NewGeometry(positions, indices)
}

// NewPlaneGeometry builds a rectangle in the XY plane centered at the origin.
func NewPlaneGeometry(width, height float64) *Geometry {
	hx, hy := width/2, height/2
	positions := []mgl64.Vec3{
		{-hx, -hy, 0}, {hx, -hy, 0}, {hx, hy, 0}, {-hx, hy, 0},
	}
	return NewGeometry(positions, []uint32{0, 1, 2, 0, 2, 3})
}

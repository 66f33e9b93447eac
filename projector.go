package mapscene

import "github.com/go-gl/mathgl/mgl64"

// anchorEpsilon is the fixed offset, in degrees, added to the viewport
// center when picking the frame's anchor point. Some lighting math in
// downstream renderers degenerates when a scene sits exactly at the local
// origin; nudging the anchor off-center sidesteps it. The offset is orders
// of magnitude below the projected-coordinate precision it guards, so it
// does not scale with zoom.
const anchorEpsilon = 0.00001

// Camera holds the projection matrix the renderer draws a scene with. The
// matrix is rewritten every frame by the projector rather than derived from
// a conventional camera transform, so hit testing reconstructs rays from its
// inverse (see hittest.go).
type Camera struct {
	projection mgl64.Mat4
	inverse    mgl64.Mat4
	invDirty   bool
}

// NewCamera creates a camera with an identity projection.
func NewCamera() *Camera {
	return &Camera{projection: mgl64.Ident4(), inverse: mgl64.Ident4()}
}

// SetProjection replaces the camera's projection matrix.
func (c *Camera) SetProjection(m mgl64.Mat4) {
	c.projection = m
	c.invDirty = true
}

// Projection returns the camera's current projection matrix.
func (c *Camera) Projection() mgl64.Mat4 {
	return c.projection
}

// Inverse returns the cached inverse of the projection matrix.
func (c *Camera) Inverse() mgl64.Mat4 {
	if c.invDirty {
		c.inverse = c.projection.Inv()
		c.invDirty = false
	}
	return c.inverse
}

// Projector reconciles the host's globally-referenced projected coordinates
// with the scene graph's local space. Once per frame it picks an anchor
// point near the viewport center and expresses every item's model matrix
// relative to that anchor, keeping matrix entries numerically small no
// matter where on the globe the view sits.
type Projector struct {
	host      MapHost
	anchorInv mgl64.Mat4
	valid     bool
}

func newProjector(host MapHost) *Projector {
	return &Projector{host: host, anchorInv: mgl64.Ident4()}
}

// BeginFrame recomputes the anchor and rewrites the camera's projection as
// base projection x anchor model matrix. It returns false while a
// projection-mode transition is mid-flight: anchor and item matrices from
// two incompatible bases must not be mixed, so items hold their last valid
// position for those frames.
func (p *Projector) BeginFrame(cam *Camera) bool {
	if t := p.host.TransitionProgress(); t != 0 && t != 1 {
		return false
	}
	center := p.host.Center()
	anchor := LngLat{Lng: center.Lng + anchorEpsilon, Lat: center.Lat + anchorEpsilon}
	anchorModel := p.host.ModelMatrix(anchor, 0)
	cam.SetProjection(p.host.ProjectionMatrix().Mul4(anchorModel))
	p.anchorInv = anchorModel.Inv()
	p.valid = true
	return true
}

// RenderMatrix returns the anchor-relative render matrix for an item:
// inverse(anchor) x host model matrix at the item's effective altitude x
// the item's composed local transform.
func (p *Projector) RenderMatrix(it *Item) mgl64.Mat4 {
	model := p.host.ModelMatrix(it.pos, it.EffectiveAltitude())
	return p.anchorInv.Mul4(model).Mul4(it.localTransform())
}

// Valid reports whether BeginFrame has produced at least one usable anchor.
func (p *Projector) Valid() bool {
	return p.valid
}

// Package ebitenrender draws mapscene layers onto an Ebitengine image.
//
// It is a software-style forward renderer: each frame it projects every
// visible triangle through the layer camera's matrix, shades it with the
// scene's ambient and point lights, depth-sorts in painter order, and
// submits the result with DrawTriangles. It favors simplicity over raster
// fidelity and is intended for hosts that already composite through
// Ebitengine, and for demos.
package ebitenrender

import (
	"image/color"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/mapscene/mapscene"
)

// Factory adapts an *ebiten.Image draw context into a mapscene.Renderer.
// Pass it in LayerOptions.Renderer. Panics if the context is not an
// *ebiten.Image: the context type is part of the host agreement.
func Factory(dc mapscene.DrawContext) mapscene.Renderer {
	img, ok := dc.(*ebiten.Image)
	if !ok {
		panic("ebitenrender: draw context must be an *ebiten.Image")
	}
	white := ebiten.NewImage(1, 1)
	white.Fill(color.White)
	return &Renderer{target: img, white: white}
}

// Renderer implements mapscene.Renderer on an Ebitengine image.
type Renderer struct {
	target *ebiten.Image
	white  *ebiten.Image

	tris   []projTri
	lights []pointLight
}

type projTri struct {
	sx, sy    [3]float32
	depth     float64
	r, g, b   float64
	alpha     float64
	wireframe bool
	lineWidth float32
}

type pointLight struct {
	pos       mgl64.Vec3
	color     mapscene.Color
	intensity float64
}

// ResetState clears per-frame buffers so no shading or depth state leaks
// between the scenes that share this renderer.
func (r *Renderer) ResetState() {
	r.tris = r.tris[:0]
	r.lights = r.lights[:0]
}

// Render projects, shades, depth-sorts, and submits one scene.
func (r *Renderer) Render(scene *mapscene.Object, camera *mapscene.Camera) {
	if r.target == nil {
		return
	}
	b := r.target.Bounds()
	w := float64(b.Dx())
	h := float64(b.Dy())
	if w == 0 || h == 0 {
		return
	}
	proj := camera.Projection()

	ambientColor, ambientIntensity := r.collectLights(scene)

	r.tris = r.tris[:0]
	scene.Walk(func(o *mapscene.Object) bool {
		if !o.Visible {
			return false
		}
		switch o.Kind {
		case mapscene.KindMesh:
			r.emitMesh(o, proj, w, h, ambientColor, ambientIntensity)
		case mapscene.KindPoints:
			r.drawPoints(o, proj, w, h)
		}
		return true
	})

	// Painter order: farthest triangles first.
	sort.Slice(r.tris, func(i, j int) bool {
		return r.tris[i].depth > r.tris[j].depth
	})
	r.submit()
}

// Dispose releases the renderer's images.
func (r *Renderer) Dispose() {
	if r.white != nil {
		r.white.Deallocate()
		r.white = nil
	}
	r.target = nil
}

// collectLights gathers the scene's ambient term and point lights.
// The first light object directly under the scene root with intensity > 0
// is treated as ambient by convention (layers create it that way); every
// other light contributes as a positioned point light.
func (r *Renderer) collectLights(scene *mapscene.Object) (mapscene.Color, float64) {
	ambient := mapscene.ColorWhite
	intensity := 0.3
	first := true
	scene.Walk(func(o *mapscene.Object) bool {
		if !o.Visible {
			return false
		}
		if o.Kind == mapscene.KindLight && o.Light != nil {
			if first && o.Parent == scene {
				ambient = o.Light.Color
				intensity = o.Light.Intensity
				first = false
			} else {
				world := o.World()
				r.lights = append(r.lights, pointLight{
					pos:       mgl64.TransformCoordinate(mgl64.Vec3{}, world),
					color:     o.Light.Color,
					intensity: o.Light.Intensity,
				})
			}
		}
		return true
	})
	return ambient, intensity
}

// emitMesh projects and shades one mesh object's triangles.
func (r *Renderer) emitMesh(o *mapscene.Object, proj mgl64.Mat4, w, h float64,
	ambient mapscene.Color, ambientIntensity float64) {
	geom := o.Geometry
	mat := o.Material
	if geom == nil || mat == nil || mat.Opacity <= 0 {
		return
	}
	world := o.World()
	n := geom.TriangleCount()
	for i := 0; i < n; i++ {
		la, lb, lc := geom.Triangle(i)
		a := mgl64.TransformCoordinate(la, world)
		bb := mgl64.TransformCoordinate(lb, world)
		c := mgl64.TransformCoordinate(lc, world)

		sa, da, oka := projectPoint(proj, a, w, h)
		sb, db, okb := projectPoint(proj, bb, w, h)
		sc, dc, okc := projectPoint(proj, c, w, h)
		if !oka || !okb || !okc {
			continue
		}

		shade := r.shade(a, bb, c, mat.Color, ambient, ambientIntensity)
		r.tris = append(r.tris, projTri{
			sx:        [3]float32{float32(sa.X), float32(sb.X), float32(sc.X)},
			sy:        [3]float32{float32(sa.Y), float32(sb.Y), float32(sc.Y)},
			depth:     (da + db + dc) / 3,
			r:         shade.R,
			g:         shade.G,
			b:         shade.B,
			alpha:     mat.Opacity,
			wireframe: mat.Wireframe,
			lineWidth: 1,
		})
	}
}

// shade computes a flat lambert term per triangle from the collected lights.
func (r *Renderer) shade(a, b, c mgl64.Vec3, base, ambient mapscene.Color, ambientIntensity float64) mapscene.Color {
	normal := b.Sub(a).Cross(c.Sub(a))
	if l := normal.Len(); l > 0 {
		normal = normal.Mul(1 / l)
	}
	centroid := a.Add(b).Add(c).Mul(1.0 / 3.0)

	lr := ambient.R * ambientIntensity
	lg := ambient.G * ambientIntensity
	lb := ambient.B * ambientIntensity
	for _, light := range r.lights {
		dir := light.pos.Sub(centroid)
		dist := dir.Len()
		if dist == 0 {
			continue
		}
		lambert := math.Abs(normal.Dot(dir.Mul(1 / dist))) * light.intensity
		lr += light.color.R * lambert
		lg += light.color.G * lambert
		lb += light.color.B * lambert
	}
	return mapscene.Color{
		R: math.Min(1, base.R*lr),
		G: math.Min(1, base.G*lg),
		B: math.Min(1, base.B*lb),
		A: 1,
	}
}

// drawPoints projects a point cloud and draws each point as a filled circle.
// Points skip the triangle depth sort; clouds are assumed unordered.
func (r *Renderer) drawPoints(o *mapscene.Object, proj mgl64.Mat4, w, h float64) {
	geom := o.Geometry
	mat := o.Material
	if geom == nil || mat == nil || mat.Opacity <= 0 {
		return
	}
	world := o.World()
	col := toNRGBA(mat.Color, mat.Opacity)
	radius := float32(mat.PointSize)
	if radius < 0.5 {
		radius = 0.5
	}
	for _, p := range geom.Positions {
		sp, _, ok := projectPoint(proj, mgl64.TransformCoordinate(p, world), w, h)
		if !ok {
			continue
		}
		vector.DrawFilledCircle(r.target, float32(sp.X), float32(sp.Y), radius, col, true)
	}
}

// submit issues the sorted triangles, solid fills via DrawTriangles and
// wireframes via stroked edges.
func (r *Renderer) submit() {
	var verts [3]ebiten.Vertex
	indices := []uint16{0, 1, 2}
	for i := range r.tris {
		t := &r.tris[i]
		if t.wireframe {
			col := color.NRGBA{
				R: uint8(t.r * 255), G: uint8(t.g * 255), B: uint8(t.b * 255),
				A: uint8(t.alpha * 255),
			}
			for e := 0; e < 3; e++ {
				n := (e + 1) % 3
				vector.StrokeLine(r.target, t.sx[e], t.sy[e], t.sx[n], t.sy[n], t.lineWidth, col, true)
			}
			continue
		}
		for v := 0; v < 3; v++ {
			verts[v] = ebiten.Vertex{
				DstX:   t.sx[v],
				DstY:   t.sy[v],
				SrcX:   0,
				SrcY:   0,
				ColorR: float32(t.r),
				ColorG: float32(t.g),
				ColorB: float32(t.b),
				ColorA: float32(t.alpha),
			}
		}
		r.target.DrawTriangles(verts[:], indices, r.white, nil)
	}
}

// projectPoint maps a world-space point through the projection to screen
// pixels. Reports false for points at or behind the eye plane.
func projectPoint(proj mgl64.Mat4, p mgl64.Vec3, w, h float64) (mapscene.Point, float64, bool) {
	clip := proj.Mul4x1(mgl64.Vec4{p.X(), p.Y(), p.Z(), 1})
	cw := clip.W()
	if cw <= 0 {
		return mapscene.Point{}, 0, false
	}
	ndcX := clip.X() / cw
	ndcY := clip.Y() / cw
	return mapscene.Point{
		X: (ndcX + 1) / 2 * w,
		Y: (1 - ndcY) / 2 * h,
	}, cw, true
}

// toNRGBA converts a mapscene color and opacity to an Ebitengine color.
func toNRGBA(c mapscene.Color, opacity float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(math.Min(1, c.R) * 255),
		G: uint8(math.Min(1, c.G) * 255),
		B: uint8(math.Min(1, c.B) * 255),
		A: uint8(math.Min(1, opacity) * 255),
	}
}

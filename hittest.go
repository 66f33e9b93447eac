package mapscene

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Intersection is one ray hit, ordered by distance from the ray origin.
type Intersection struct {
	Point    mgl64.Vec3 // hit point in the frame's anchor-relative space
	Normal   mgl64.Vec3 // face normal at the hit, unit length
	Distance float64
	Object   *Object
}

// EventContext is the payload delivered to item event listeners: the
// intersection geometry, the hit object, the owning item and layer ids, and
// the pointer's geographic and screen positions.
type EventContext struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
	Object   *Object
	ItemID   string
	LayerID  string
	LngLat   LngLat
	Screen   Point
}

// Ray is a half-line in the anchor-relative render space.
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3 // unit length
}

// rayFromScreen reconstructs the pick ray for a screen point. The camera's
// projection is rewritten every frame rather than driven by a camera
// transform, so the ray comes from unprojecting two NDC points through the
// inverse projection: the origin from (0,0,0) and a far point from
// (ndcX, ndcY, 1), matching the space the scene was drawn in.
func rayFromScreen(cam *Camera, p Point, viewW, viewH float64) Ray {
	ndcX := 2*p.X/viewW - 1
	ndcY := 1 - 2*p.Y/viewH

	inv := cam.Inverse()
	origin := unprojectNDC(inv, mgl64.Vec3{0, 0, 0})
	far := unprojectNDC(inv, mgl64.Vec3{ndcX, ndcY, 1})
	return Ray{Origin: origin, Dir: far.Sub(origin).Normalize()}
}

// unprojectNDC applies an inverse projection to an NDC point with
// perspective divide.
func unprojectNDC(inv mgl64.Mat4, ndc mgl64.Vec3) mgl64.Vec3 {
	v := inv.Mul4x1(mgl64.Vec4{ndc.X(), ndc.Y(), ndc.Z(), 1})
	w := v.W()
	if w == 0 {
		return v.Vec3()
	}
	return v.Vec3().Mul(1 / w)
}

// intersectScene casts the ray against every visible, interactable object
// in the scene graph, recursively, and returns intersections ordered by
// ascending distance from the ray origin. Hidden and non-interactable
// subtrees are pruned whole.
func intersectScene(root *Object, ray Ray) []Intersection {
	var hits []Intersection
	root.Walk(func(o *Object) bool {
		if !o.Visible || !o.Interactable {
			return false
		}
		hits = appendObjectHits(hits, o, ray)
		return true
	})
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits
}

// appendObjectHits tests a single object. Meshes intersect per triangle
// after a bounding-sphere reject; point clouds intersect on their bounding
// sphere. Group and light objects produce no hits.
func appendObjectHits(hits []Intersection, o *Object, ray Ray) []Intersection {
	if o.Geometry == nil {
		return hits
	}
	switch o.Kind {
	case KindMesh:
		if !raySphereHit(ray, o) {
			return hits
		}
		world := o.World()
		n := o.Geometry.TriangleCount()
		for i := 0; i < n; i++ {
			la, lb, lc := o.Geometry.Triangle(i)
			a := mgl64.TransformCoordinate(la, world)
			b := mgl64.TransformCoordinate(lb, world)
			c := mgl64.TransformCoordinate(lc, world)
			if dist, ok := rayTriangle(ray, a, b, c); ok {
				normal := b.Sub(a).Cross(c.Sub(a))
				if normal.Len() > 0 {
					normal = normal.Normalize()
				}
				hits = append(hits, Intersection{
					Point:    ray.Origin.Add(ray.Dir.Mul(dist)),
					Normal:   normal,
					Distance: dist,
					Object:   o,
				})
			}
		}
	case KindPoints:
		if dist, ok := raySphereDistance(ray, o); ok {
			hits = append(hits, Intersection{
				Point:    ray.Origin.Add(ray.Dir.Mul(dist)),
				Normal:   ray.Dir.Mul(-1),
				Distance: dist,
				Object:   o,
			})
		}
	}
	return hits
}

// raySphereHit is the cheap reject against the geometry's world-space
// bounding sphere.
func raySphereHit(ray Ray, o *Object) bool {
	_, ok := raySphereDistance(ray, o)
	return ok
}

// raySphereDistance intersects the ray with the object's world-space
// bounding sphere and returns the entry distance.
func raySphereDistance(ray Ray, o *Object) (float64, bool) {
	center, radius := o.Geometry.Bounds()
	world := o.World()
	wc := mgl64.TransformCoordinate(center, world)
	wr := radius * maxAxisScale(world)

	oc := wc.Sub(ray.Origin)
	tca := oc.Dot(ray.Dir)
	d2 := oc.LenSqr() - tca*tca
	r2 := wr * wr
	if d2 > r2 {
		return 0, false
	}
	thc := math.Sqrt(r2 - d2)
	t := tca - thc
	if t < 0 {
		t = tca + thc // origin inside the sphere
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}

// maxAxisScale returns the largest basis-vector length of the matrix, used
// to scale a bounding radius conservatively under non-uniform transforms.
func maxAxisScale(m mgl64.Mat4) float64 {
	sx := mgl64.Vec3{m.At(0, 0), m.At(1, 0), m.At(2, 0)}.Len()
	sy := mgl64.Vec3{m.At(0, 1), m.At(1, 1), m.At(2, 1)}.Len()
	sz := mgl64.Vec3{m.At(0, 2), m.At(1, 2), m.At(2, 2)}.Len()
	return math.Max(sx, math.Max(sy, sz))
}

// rayTriangle runs the Moller-Trumbore intersection test against one
// world-space triangle. Both winding orders hit; backfaces are not culled
// since pick rays come from either side of terrain-draped geometry.
func rayTriangle(ray Ray, a, b, c mgl64.Vec3) (float64, bool) {
	const eps = 1e-9
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := ray.Dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, false
	}
	invDet := 1 / det
	tv := ray.Origin.Sub(a)
	u := tv.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}
	q := tv.Cross(e1)
	v := ray.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * invDet
	if t < eps {
		return 0, false
	}
	return t, true
}

// Package gltfloader loads glTF 2.0 and binary GLB assets into mapscene
// scene graphs. It is the stock mapscene.ModelLoader: node hierarchies map
// to groups, mesh primitives to mesh objects, and TRS animation channels to
// animation clips bound to the created objects.
//
// Local paths are opened from disk with their external buffer files
// resolved relative to the asset. http(s) URLs are fetched in one request,
// so remote .gltf files must embed their buffers (data URIs) or ship as
// .glb; a remote asset referencing a separate .bin fails to decode.
package gltfloader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/mapscene/mapscene"
)

// Loader implements mapscene.ModelLoader for glTF assets.
type Loader struct {
	// Client performs http(s) fetches. Defaults to http.DefaultClient.
	Client *http.Client
}

// New returns a loader with default settings.
func New() *Loader {
	return &Loader{Client: http.DefaultClient}
}

// Load fetches, parses, and converts one asset. The returned subtree is
// detached and ready to hand to Layer.AddMesh's registration path; the ctx
// governs the fetch only, parsing is not interruptible.
func (l *Loader) Load(ctx context.Context, url string) (*mapscene.LoadResult, error) {
	doc, err := l.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return convert(doc, url)
}

func (l *Loader) fetch(ctx context.Context, url string) (*gltf.Document, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		doc, err := gltf.Open(url)
		if err != nil {
			return nil, fmt.Errorf("gltfloader: open %q: %w", url, err)
		}
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gltfloader: request %q: %w", url, err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gltfloader: fetch %q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gltfloader: fetch %q: unexpected status %s", url, resp.Status)
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(resp.Body).Decode(doc); err != nil {
		return nil, fmt.Errorf("gltfloader: decode %q: %w", url, err)
	}
	return doc, nil
}

// builder carries conversion state for one document.
type builder struct {
	doc *gltf.Document

	// nodes maps glTF node index to the created object, for animation
	// channel binding and parent/child wiring.
	nodes map[uint32]*mapscene.Object
}

func convert(doc *gltf.Document, url string) (*mapscene.LoadResult, error) {
	b := &builder{doc: doc, nodes: make(map[uint32]*mapscene.Object)}

	root := mapscene.NewGroup(rootName(url))
	for _, idx := range sceneNodes(doc) {
		child, err := b.buildNode(idx)
		if err != nil {
			return nil, err
		}
		root.AddChild(child)
	}

	clips, err := b.buildClips()
	if err != nil {
		return nil, err
	}
	return &mapscene.LoadResult{Root: root, Clips: clips}, nil
}

// sceneNodes returns the root node indices of the document's default scene,
// or of the first scene when none is marked default.
func sceneNodes(doc *gltf.Document) []uint32 {
	if len(doc.Scenes) == 0 {
		return nil
	}
	idx := 0
	if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
		idx = int(*doc.Scene)
	}
	return doc.Scenes[idx].Nodes
}

func rootName(url string) string {
	name := url
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return name
}

func (b *builder) buildNode(idx uint32) (*mapscene.Object, error) {
	if int(idx) >= len(b.doc.Nodes) {
		return nil, fmt.Errorf("gltfloader: node index %d out of range", idx)
	}
	n := b.doc.Nodes[idx]

	obj := mapscene.NewGroup(n.Name)
	obj.SetLocal(nodeLocal(n))
	b.nodes[idx] = obj

	if n.Mesh != nil {
		if int(*n.Mesh) >= len(b.doc.Meshes) {
			return nil, fmt.Errorf("gltfloader: mesh index %d out of range", *n.Mesh)
		}
		mesh := b.doc.Meshes[*n.Mesh]
		for pi, prim := range mesh.Primitives {
			po, err := b.buildPrimitive(prim, fmt.Sprintf("%s/%d", mesh.Name, pi))
			if err != nil {
				return nil, err
			}
			if po != nil {
				obj.AddChild(po)
			}
		}
	}

	for _, ci := range n.Children {
		child, err := b.buildNode(ci)
		if err != nil {
			return nil, err
		}
		obj.AddChild(child)
	}
	return obj, nil
}

// buildPrimitive converts one mesh primitive. Primitives without a POSITION
// attribute are skipped rather than rejected.
func (b *builder) buildPrimitive(prim *gltf.Primitive, name string) (*mapscene.Object, error) {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, nil
	}
	posAcc, err := b.accessor(posIdx)
	if err != nil {
		return nil, err
	}
	raw, err := modeler.ReadPosition(b.doc, posAcc, nil)
	if err != nil {
		return nil, fmt.Errorf("gltfloader: positions of %s: %w", name, err)
	}
	positions := make([]mgl64.Vec3, len(raw))
	for i, p := range raw {
		positions[i] = mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
	}

	var indices []uint32
	if prim.Indices != nil {
		idxAcc, err := b.accessor(*prim.Indices)
		if err != nil {
			return nil, err
		}
		indices, err = modeler.ReadIndices(b.doc, idxAcc, nil)
		if err != nil {
			return nil, fmt.Errorf("gltfloader: indices of %s: %w", name, err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	geom := mapscene.NewGeometry(positions, indices)
	if ni, ok := prim.Attributes[gltf.NORMAL]; ok {
		normAcc, err := b.accessor(ni)
		if err != nil {
			return nil, err
		}
		rawN, err := modeler.ReadNormal(b.doc, normAcc, nil)
		if err != nil {
			return nil, fmt.Errorf("gltfloader: normals of %s: %w", name, err)
		}
		normals := make([]mgl64.Vec3, len(rawN))
		for i, n := range rawN {
			normals[i] = mgl64.Vec3{float64(n[0]), float64(n[1]), float64(n[2])}
		}
		geom.Normals = normals
	}

	return mapscene.NewMeshObject(name, geom, b.material(prim.Material)), nil
}

// material converts a glTF PBR material to the flat mapscene material,
// keeping only base color factor and opacity. nil falls back to defaults.
func (b *builder) material(idx *uint32) *mapscene.Material {
	if idx == nil || int(*idx) >= len(b.doc.Materials) {
		return nil
	}
	src := b.doc.Materials[*idx]
	if src == nil || src.PBRMetallicRoughness == nil || src.PBRMetallicRoughness.BaseColorFactor == nil {
		return nil
	}
	f := *src.PBRMetallicRoughness.BaseColorFactor
	return &mapscene.Material{
		Color:     mapscene.Color{R: f[0], G: f[1], B: f[2], A: 1},
		Opacity:   f[3],
		PointSize: mapscene.DefaultPointSize,
	}
}

func (b *builder) accessor(idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(b.doc.Accessors) {
		return nil, fmt.Errorf("gltfloader: accessor index %d out of range", idx)
	}
	return b.doc.Accessors[idx], nil
}

// --- Animations ---

func (b *builder) buildClips() ([]*mapscene.AnimationClip, error) {
	if len(b.doc.Animations) == 0 {
		return nil, nil
	}
	clips := make([]*mapscene.AnimationClip, 0, len(b.doc.Animations))
	for ai, anim := range b.doc.Animations {
		clip, err := b.buildClip(anim, ai)
		if err != nil {
			return nil, err
		}
		if len(clip.Targets) > 0 {
			clips = append(clips, clip)
		}
	}
	return clips, nil
}

func (b *builder) buildClip(anim *gltf.Animation, ai int) (*mapscene.AnimationClip, error) {
	name := anim.Name
	if name == "" {
		name = fmt.Sprintf("animation_%d", ai)
	}
	clip := &mapscene.AnimationClip{Name: name}

	// Channels targeting the same node merge into one ClipTarget so a
	// combined translation+rotation pose samples in a single pass.
	targetIdx := make(map[uint32]int)
	for _, ch := range anim.Channels {
		if ch.Target.Node == nil {
			continue
		}
		obj, ok := b.nodes[*ch.Target.Node]
		if !ok {
			continue
		}
		if int(ch.Sampler) >= len(anim.Samplers) {
			return nil, fmt.Errorf("gltfloader: animation %q: sampler index %d out of range", name, ch.Sampler)
		}
		sampler := anim.Samplers[ch.Sampler]

		times, err := b.readTimes(sampler)
		if err != nil {
			return nil, fmt.Errorf("gltfloader: animation %q: %w", name, err)
		}
		if len(times) == 0 {
			continue
		}
		if end := times[len(times)-1]; end > clip.Duration {
			clip.Duration = end
		}

		ti, ok := targetIdx[*ch.Target.Node]
		if !ok {
			n := b.doc.Nodes[*ch.Target.Node]
			t, r, s := nodeRest(n)
			clip.Targets = append(clip.Targets, mapscene.ClipTarget{
				Object:          obj,
				RestTranslation: t,
				RestRotation:    r,
				RestScale:       s,
			})
			ti = len(clip.Targets) - 1
			targetIdx[*ch.Target.Node] = ti
		}
		target := &clip.Targets[ti]

		switch ch.Target.Path {
		case gltf.TRSTranslation:
			vals, err := b.readVec3(sampler)
			if err != nil {
				return nil, fmt.Errorf("gltfloader: animation %q translation: %w", name, err)
			}
			target.Translation = &mapscene.TrackVec{Times: times, Values: vals}
		case gltf.TRSScale:
			vals, err := b.readVec3(sampler)
			if err != nil {
				return nil, fmt.Errorf("gltfloader: animation %q scale: %w", name, err)
			}
			target.Scale = &mapscene.TrackVec{Times: times, Values: vals}
		case gltf.TRSRotation:
			vals, err := b.readQuat(sampler)
			if err != nil {
				return nil, fmt.Errorf("gltfloader: animation %q rotation: %w", name, err)
			}
			target.Rotation = &mapscene.TrackQuat{Times: times, Values: vals}
		default:
			// Morph-target weights are not supported; the channel is ignored.
		}
	}
	return clip, nil
}

func (b *builder) readTimes(s *gltf.AnimationSampler) ([]float64, error) {
	acc, err := b.accessor(s.Input)
	if err != nil {
		return nil, err
	}
	raw, err := modeler.ReadAccessor(b.doc, acc, nil)
	if err != nil {
		return nil, err
	}
	vals, ok := raw.([]float32)
	if !ok {
		return nil, fmt.Errorf("sampler input is not a float scalar accessor")
	}
	times := make([]float64, len(vals))
	for i, v := range vals {
		times[i] = float64(v)
	}
	return times, nil
}

func (b *builder) readVec3(s *gltf.AnimationSampler) ([]mgl64.Vec3, error) {
	raw, err := b.readOutput(s)
	if err != nil {
		return nil, err
	}
	vals, ok := raw.([][3]float32)
	if !ok {
		return nil, fmt.Errorf("sampler output is not a vec3 accessor")
	}
	out := make([]mgl64.Vec3, len(vals))
	for i, v := range vals {
		out[i] = mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
	}
	return out, nil
}

func (b *builder) readQuat(s *gltf.AnimationSampler) ([]mgl64.Quat, error) {
	raw, err := b.readOutput(s)
	if err != nil {
		return nil, err
	}
	vals, ok := raw.([][4]float32)
	if !ok {
		return nil, fmt.Errorf("sampler output is not a vec4 accessor")
	}
	out := make([]mgl64.Quat, len(vals))
	for i, v := range vals {
		// glTF stores quaternions as (x, y, z, w).
		out[i] = mgl64.Quat{
			W: float64(v[3]),
			V: mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])},
		}
	}
	return out, nil
}

func (b *builder) readOutput(s *gltf.AnimationSampler) (any, error) {
	acc, err := b.accessor(s.Output)
	if err != nil {
		return nil, err
	}
	return modeler.ReadAccessor(b.doc, acc, nil)
}

// --- Node transforms ---

var identity16 = [16]float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// nodeLocal builds the node's local matrix from either its explicit matrix
// or its TRS properties. Zero-valued fields read as the glTF defaults.
func nodeLocal(n *gltf.Node) mgl64.Mat4 {
	if m := n.Matrix; m != ([16]float64{}) && m != identity16 {
		// glTF matrices are column-major, as is mgl64.
		var out mgl64.Mat4
		for i, v := range m {
			out[i] = v
		}
		return out
	}
	t, r, s := nodeRest(n)
	return mgl64.Translate3D(t.X(), t.Y(), t.Z()).
		Mul4(r.Normalize().Mat4()).
		Mul4(mgl64.Scale3D(s.X(), s.Y(), s.Z()))
}

// nodeRest returns the node's TRS with glTF defaults applied.
func nodeRest(n *gltf.Node) (mgl64.Vec3, mgl64.Quat, mgl64.Vec3) {
	t := mgl64.Vec3{n.Translation[0], n.Translation[1], n.Translation[2]}
	r := mgl64.Quat{
		W: n.Rotation[3],
		V: mgl64.Vec3{n.Rotation[0], n.Rotation[1], n.Rotation[2]},
	}
	if n.Rotation == ([4]float64{}) {
		r = mgl64.QuatIdent()
	}
	s := mgl64.Vec3{n.Scale[0], n.Scale[1], n.Scale[2]}
	if n.Scale == ([3]float64{}) {
		s = mgl64.Vec3{1, 1, 1}
	}
	return t, r, s
}

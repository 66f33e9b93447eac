package gltfloader

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
)

func TestRootName(t *testing.T) {
	cases := map[string]string{
		"truck.glb":                            "truck.glb",
		"assets/truck.glb":                     "truck.glb",
		"https://cdn.example.com/a/b.gltf?v=2": "b.gltf",
		`C:\models\truck.glb`:                  "truck.glb",
	}
	for in, want := range cases {
		if got := rootName(in); got != want {
			t.Errorf("rootName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNodeRestDefaults(t *testing.T) {
	// A zero-valued node reads as the glTF defaults: identity rotation and
	// unit scale.
	tr, rot, sc := nodeRest(&gltf.Node{})
	if tr != (mgl64.Vec3{}) {
		t.Errorf("translation = %v, want zero", tr)
	}
	if rot.W != 1 || rot.V != (mgl64.Vec3{}) {
		t.Errorf("rotation = %v, want identity", rot)
	}
	if sc != (mgl64.Vec3{1, 1, 1}) {
		t.Errorf("scale = %v, want unit", sc)
	}
}

func TestNodeRestExplicitTRS(t *testing.T) {
	n := &gltf.Node{
		Translation: [3]float64{1, 2, 3},
		Rotation:    [4]float64{0, 0, 0, 1},
		Scale:       [3]float64{2, 2, 2},
	}
	tr, rot, sc := nodeRest(n)
	if tr != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("translation = %v", tr)
	}
	if rot.W != 1 {
		t.Errorf("rotation = %v, want identity", rot)
	}
	if sc != (mgl64.Vec3{2, 2, 2}) {
		t.Errorf("scale = %v", sc)
	}
}

func TestNodeLocalFromTRS(t *testing.T) {
	n := &gltf.Node{Translation: [3]float64{5, 0, 0}}
	m := nodeLocal(n)
	p := mgl64.TransformCoordinate(mgl64.Vec3{0, 0, 0}, m)
	if p != (mgl64.Vec3{5, 0, 0}) {
		t.Errorf("origin maps to %v, want (5,0,0)", p)
	}
}

func TestNodeLocalFromMatrix(t *testing.T) {
	// Column-major translation by (7, 0, 0).
	n := &gltf.Node{Matrix: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		7, 0, 0, 1,
	}}
	m := nodeLocal(n)
	p := mgl64.TransformCoordinate(mgl64.Vec3{0, 0, 0}, m)
	if p != (mgl64.Vec3{7, 0, 0}) {
		t.Errorf("origin maps to %v, want (7,0,0)", p)
	}
}

func TestSceneNodesPicksMarkedScene(t *testing.T) {
	one := uint32(1)
	doc := &gltf.Document{
		Scene: &one,
		Scenes: []*gltf.Scene{
			{Nodes: []uint32{0}},
			{Nodes: []uint32{1, 2}},
		},
	}
	got := sceneNodes(doc)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("sceneNodes = %v, want [1 2]", got)
	}
}

func TestSceneNodesFallsBackToFirstScene(t *testing.T) {
	doc := &gltf.Document{
		Scenes: []*gltf.Scene{{Nodes: []uint32{3}}},
	}
	got := sceneNodes(doc)
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("sceneNodes = %v, want [3]", got)
	}
}

func TestSceneNodesEmptyDocument(t *testing.T) {
	if got := sceneNodes(&gltf.Document{}); got != nil {
		t.Errorf("sceneNodes = %v, want nil", got)
	}
}

// Package mapscene renders a retained set of 3D items (mesh hierarchies
// and point lights) at precise geographic positions on top of an
// interactive 2D/3D map, keeping them locked to the terrain as the view
// pans, zooms, rotates, and tilts.
//
// The package solves three problems that any map/3D bridge runs into:
//
//   - Coordinate reconciliation. Map engines work in globally-referenced
//     projected coordinates whose magnitudes destroy float precision in a
//     local scene graph. Each frame, a [Projector] picks an anchor point
//     near the viewport center and re-expresses every item's model matrix
//     relative to it, so matrix entries stay numerically small anywhere on
//     the globe.
//
//   - Batching. Any number of layers share one GPU renderer and one
//     animation clock through a single [RenderManager], created when the
//     first layer attaches and disposed when the last detaches.
//
//   - Interaction. Pointer events are resolved by casting a ray through the
//     inverse of the per-frame projection matrix into each layer's scene,
//     and routed to per-item listeners (mouseenter, mouseleave, mousedown,
//     mouseup, click, double click).
//
// # Layers and items
//
// A [Layer] is one geo-referenced scene. The host map engine drives it
// through the [CustomLayer] lifecycle: OnAttach with a GPU context,
// OnFrame once per rendered frame, OnDetach on removal. Items are created
// through the layer:
//
//	layer := mapscene.NewLayer("models", mapscene.LayerOptions{
//		Renderer: ebitenrender.Factory,
//		Loader:   gltfloader.New(),
//	})
//	// after the host calls layer.OnAttach(...):
//	item, err := layer.AddMesh(ctx, "truck", mapscene.MeshConfig{
//		URL:               "assets/truck.glb",
//		Position:          mapscene.LngLat{Lng: 13.4, Lat: 52.5},
//		AltitudeReference: mapscene.Ground,
//		UpAxis:            mapscene.UpY,
//	})
//
// Items expose individual setters with repaint coalescing, a partial
// [Item.Modify], named UI states ("hover" and "active" bind themselves to
// pointer events), keyframe animation playback, and gween-backed property
// tweens.
//
// # External collaborators
//
// The host map engine is consumed through the [MapHost] interface; GPU
// drawing through [Renderer] (see the ebitenrender subpackage); asset
// parsing through [ModelLoader] (see the gltfloader subpackage). Everything
// is single-threaded and host-driven: one render pass and one animation
// tick per host frame, before any pointer dispatch for that frame.
package mapscene

package mapscene

import "github.com/go-gl/mathgl/mgl64"

// MapHost is the surface this package consumes from the surrounding map
// engine. It is deliberately small: a projection oracle, a terrain elevation
// sampler, and a repaint signal. Implementations are expected to be cheap to
// call once per item per frame, with the exception of TerrainElevation,
// which is throttled by the caller (see TerrainAnimating).
type MapHost interface {
	// ModelMatrix returns a matrix that places a unit frame at the given
	// geographic position and elevation (meters) into the host's current
	// projection space, for the currently active projection mode.
	ModelMatrix(pos LngLat, elevation float64) mgl64.Mat4

	// ProjectionMatrix returns the host's current base projection matrix.
	ProjectionMatrix() mgl64.Mat4

	// TransitionProgress reports the projection-mode transition progress.
	// It is exactly 0 or 1 outside of a transition and fractional during one.
	TransitionProgress() float64

	// TerrainElevation samples the terrain elevation in meters at pos.
	TerrainElevation(pos LngLat) float64

	// TerrainAnimating reports whether terrain is actively animating.
	// Elevation is only resampled while this is true.
	TerrainAnimating() bool

	// Center returns the geographic position at the viewport center.
	Center() LngLat

	// Zoom returns the current map zoom level.
	Zoom() float64

	// ViewportSize returns the drawing surface size in pixels.
	ViewportSize() (w, h float64)

	// Unproject converts a screen point to the geographic position under it.
	Unproject(p Point) LngLat

	// RequestRepaint asks the host to schedule a new frame.
	RequestRepaint()
}

// DrawContext is the host's opaque GPU handle, handed to the renderer
// factory at attach time. Its concrete type is an agreement between the host
// and the chosen Renderer implementation (the ebitenrender adapter expects
// an *ebiten.Image).
type DrawContext any

// Renderer draws a prepared scene graph through the shared GPU context.
// Exactly one Renderer exists per RenderManager; layers never touch it.
type Renderer interface {
	// ResetState clears per-frame renderer state before a batch of Render
	// calls. Each registered layer is drawn into the same context, so state
	// must not leak between scenes.
	ResetState()

	// Render draws one scene with the given camera.
	Render(scene *Object, camera *Camera)

	// Dispose releases the renderer's GPU resources. Called when the last
	// layer detaches.
	Dispose()
}

// RendererFactory builds a Renderer bound to the host's draw context.
// It is invoked at most once per RenderManager, on first attach.
type RendererFactory func(dc DrawContext) Renderer

// FrameOptions carries per-frame data from the host's render callback.
type FrameOptions struct {
	// DeltaSeconds is the time elapsed since the previous host frame.
	// Drives the shared animation loop. Zero is valid (no tick).
	DeltaSeconds float64
}

// CustomLayer is the host-driven plugin lifecycle: an externally-driven
// state machine over {unattached, attached, disposed}. Layer implements it;
// the host (or its adapter) calls these from its custom-render extension
// point. Keeping this an explicit interface makes the lifecycle testable
// without a real host.
type CustomLayer interface {
	// ID is the stable identifier the host registers the extension under.
	ID() string

	// OnAttach is called once when the extension is added to the map.
	// Panics if dc is nil: a missing GPU context is a configuration error.
	OnAttach(host MapHost, dc DrawContext)

	// OnFrame is called once per host frame while attached.
	OnFrame(opts FrameOptions)

	// OnDetach is called once when the extension is removed. All items are
	// disposed; if this was the last attached layer the shared renderer is
	// disposed too.
	OnDetach()
}

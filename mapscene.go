package mapscene

import "errors"

// LngLat is a geographic position in degrees. Longitude is positive east,
// latitude positive north.
type LngLat struct {
	Lng, Lat float64
}

// Point is a screen-space position in pixels with the origin at the top-left.
type Point struct {
	X, Y float64
}

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default material and light color.
var ColorWhite = Color{1, 1, 1, 1}

// AltitudeReference selects how an item's altitude is measured.
type AltitudeReference uint8

const (
	// Ground places the item relative to the sampled terrain elevation at
	// its geographic position.
	Ground AltitudeReference = iota
	// MeanSeaLevel places the item at an absolute altitude.
	MeanSeaLevel
)

// UpAxis identifies the up-axis convention a model was authored in. The
// source-orientation correction derived from it rotates the asset into the
// map's Z-up space.
type UpAxis uint8

const (
	UpZ UpAxis = iota // already matches the map space; no correction
	UpY               // Y-up assets (the glTF convention)
	UpX               // X-up assets
)

// EventType identifies a kind of pointer interaction event on an item.
type EventType uint8

const (
	EventMouseEnter EventType = iota // pointer moved onto one of the item's objects
	EventMouseLeave                  // pointer left the item's objects
	EventMouseDown                   // button pressed over the item
	EventMouseUp                     // button released over the item
	EventClick                       // press and release resolved to the item
	EventDoubleClick                 // double click resolved to the item
)

// LoopMode controls how a playing animation clip behaves when it reaches the
// end of its duration.
type LoopMode uint8

const (
	LoopOnce     LoopMode = iota // clamp at the end and stop
	LoopRepeat                   // wrap around to the start
	LoopPingPong                 // reverse direction at each end
)

// AnimationMode selects how an item's animation clock advances.
type AnimationMode uint8

const (
	// AnimationContinuous advances clips on the shared per-frame animation
	// loop and forces a repaint every tick.
	AnimationContinuous AnimationMode = iota
	// AnimationManual advances clips only when UpdateAnimation is called.
	AnimationManual
)

// Sentinel errors for the failure modes callers are expected to branch on.
// Configuration mistakes (missing draw context, nil children) panic instead;
// they are programmer errors and are never caught internally.
var (
	// ErrDuplicateID is returned when adding an item whose id already exists
	// in the layer. The layer is left unchanged.
	ErrDuplicateID = errors.New("mapscene: duplicate item id")

	// ErrMissingItem is returned by Remove for an id with no registered item.
	ErrMissingItem = errors.New("mapscene: no item with this id")

	// ErrUnsupportedAsset is returned before any I/O when a model URL has an
	// unrecognized file extension.
	ErrUnsupportedAsset = errors.New("mapscene: unsupported model format")

	// ErrPendingLoad is returned by Remove when the item's asynchronous mesh
	// load has not resolved yet. Use Layer.CancelLoad instead.
	ErrPendingLoad = errors.New("mapscene: item load still pending")

	// ErrDetached is returned by operations that require the layer to be
	// attached to a map host.
	ErrDetached = errors.New("mapscene: layer is not attached")
)

// DefaultPointSize is the point-cloud point size applied to new items.
const DefaultPointSize = 1.0

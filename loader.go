package mapscene

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// LoadResult is what a model loader hands back: a ready scene-graph subtree
// and any animation clips bound to objects inside it.
type LoadResult struct {
	Root  *Object
	Clips []*AnimationClip
}

// ModelLoader fetches and parses a model asset. Loading is the one
// asynchronous boundary in this package: Load may block on network and
// parsing, honors ctx cancellation, and returns either a fully populated
// subtree or an error, never a partial result.
//
// The gltfloader subpackage provides the glTF/GLB implementation.
type ModelLoader interface {
	Load(ctx context.Context, url string) (*LoadResult, error)
}

// supportedModelExts is the closed set of recognized asset extensions.
var supportedModelExts = map[string]bool{
	".gltf": true,
	".glb":  true,
}

// ValidateModelURL sniffs the asset format from the URL's file extension.
// Unrecognized extensions fail here, before any network or parse work.
func ValidateModelURL(url string) error {
	clean := url
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	ext := strings.ToLower(path.Ext(clean))
	if !supportedModelExts[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedAsset, ext)
	}
	return nil
}

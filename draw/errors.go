package draw

import "errors"

// errInvalidResourceContent is returned when a resource entity has zero or
// more than one content component set (an image and a color are mutually
// exclusive), mirroring the Rust traversal's debug assertion that exactly
// one content type is bound.
var errInvalidResourceContent = errors.New("draw: resource must have exactly one content type bound")

package dakota

import "errors"

// Sentinel errors returned by Scene operations (ground: scene/mod.rs's
// anyhow! call sites, given sentinel identity per SPEC_FULL.md §6).
var (
	errResourceAlreadyDefined = errors.New("dakota: cannot redefine resource contents")
	errResourceNotDefined     = errors.New("dakota: resource has no gpu image defined")
	errUnsupportedImageFile   = errors.New("dakota: unsupported image file")
	errNoRootElement          = errors.New("dakota: scene has no root element")
	errRootNotViewport        = errors.New("dakota: root element is not a viewport")
	errNoViewportAtPosition   = errors.New("dakota: no viewport at position")
	errNoChildren             = errors.New("dakota: parent has no children to reorder")
	errChildNotFound          = errors.New("dakota: child not found in parent's children")
)

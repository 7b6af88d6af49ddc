package device

import "unsafe"

// unsafePointer adapts a typed pNext struct pointer to the unsafe.Pointer
// shape vulkan-go's generated bindings expect for pNext chains.
func unsafePointer[T any](v *T) unsafe.Pointer {
	return unsafe.Pointer(v)
}

package chibi

import (
	"fmt"
	"unsafe"
)

func unsafePointer[T any](p *T) unsafe.Pointer { return unsafe.Pointer(p) }

func hexByte(b byte) string { return fmt.Sprintf("%02X", b) }

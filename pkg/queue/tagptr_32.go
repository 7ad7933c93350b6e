//go:build 386 || arm || mips || mipsle

package queue

import "unsafe"

// 32 bit platforms carry the whole pointer and a 32 bit tag.

func packPointer[E any](ptr unsafe.Pointer, tag uintptr) tagPointer[E] {
	return tagPointer[E](uintptr(ptr))<<32 | tagPointer[E](tag)
}

func (tp tagPointer[E]) pointer() unsafe.Pointer {
	return unsafe.Pointer(uintptr(tp >> 32))
}

func (tp tagPointer[E]) value() *E {
	return (*E)(tp.pointer())
}

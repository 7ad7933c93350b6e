package queue

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// New builds an empty FIFO. Nodes come from a pool and are reused across
// enqueue and dequeue cycles.
func New[E any]() *Queue[E] {
	q := &Queue[E]{
		nds: sync.Pool{
			New: func() interface{} {
				return &node[E]{}
			},
		},
	}
	n := q.nds.Get().(*node[E])
	ptr := packPointer[node[E]](unsafe.Pointer(n), 0)
	q.head.Store(uintptr(ptr))
	q.tail.Store(uintptr(ptr))
	return q
}

type node[E any] struct {
	entry *E
	next  atomic.Uintptr
}

// Queue is a lock-free multi-producer multi-consumer FIFO.
type Queue[E any] struct {
	head atomic.Uintptr
	tail atomic.Uintptr
	len  atomic.Int64
	ver  atomic.Uintptr
	nds  sync.Pool
}

func (q *Queue[E]) Enqueue(entry *E) {
	n := q.nds.Get().(*node[E])
	n.entry = entry
	np := packPointer[node[E]](unsafe.Pointer(n), q.ver.Add(1))
	for {
		tailPtr := q.tail.Load()
		tail := tagPointer[node[E]](tailPtr).value()
		nextPtr := tail.next.Load()
		if tailPtr != q.tail.Load() {
			continue
		}
		if nextPtr != 0 {
			q.tail.CompareAndSwap(tailPtr, nextPtr)
			continue
		}
		if tail.next.CompareAndSwap(0, uintptr(np)) {
			q.tail.CompareAndSwap(tailPtr, uintptr(np))
			q.len.Add(1)
			return
		}
	}
}

// Dequeue pops the oldest entry, nil when the queue is empty.
func (q *Queue[E]) Dequeue() *E {
	for {
		headPtr := q.head.Load()
		tailPtr := q.tail.Load()
		nextPtr := tagPointer[node[E]](headPtr).value().next.Load()
		if headPtr != q.head.Load() {
			continue
		}
		if headPtr == tailPtr {
			if nextPtr == 0 {
				return nil
			}
			q.tail.CompareAndSwap(tailPtr, nextPtr)
			continue
		}
		entry := tagPointer[node[E]](nextPtr).value().entry
		if q.head.CompareAndSwap(headPtr, nextPtr) {
			head := tagPointer[node[E]](headPtr).value()
			head.entry = nil
			head.next.Store(0)
			q.nds.Put(head)
			q.len.Add(-1)
			return entry
		}
	}
}

func (q *Queue[E]) Length() int64 {
	return q.len.Load()
}

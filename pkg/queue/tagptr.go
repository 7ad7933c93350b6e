package queue

// tagPointer packs a node address and a reuse counter into one word so the
// CAS loops stay immune to ABA reuse of pooled nodes.
type tagPointer[E any] uint64

package scheduler

import "container/heap"

// pendingHeap implements container/heap.Interface for pendingEvent,
// sorted by dueAt (earliest first — min-heap).
type pendingHeap []pendingEvent

func (h pendingHeap) Len() int           { return len(h) }
func (h pendingHeap) Less(i, j int) bool { return h[i].dueAt.Before(h[j].dueAt) }
func (h pendingHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(pendingEvent))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// heapPush adds a pendingEvent to the heap, maintaining heap invariant.
func heapPush(h *pendingHeap, e pendingEvent) {
	heap.Push(h, e)
}

// heapPop removes and returns the pendingEvent with the earliest dueAt.
// Panics if the heap is empty.
func heapPop(h *pendingHeap) pendingEvent {
	return heap.Pop(h).(pendingEvent)
}

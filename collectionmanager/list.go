package collectionmanager

// node is an element of the eviction list.
type node[T any] struct {
	data T
	prev *node[T]
	next *node[T]
}

// evictionList keeps unpinned entries, most recently released at the head.
type evictionList[T any] struct {
	head *node[T]
	tail *node[T]
	size int
}

func newEvictionList[T any]() *evictionList[T] {
	return &evictionList[T]{}
}

func (l *evictionList[T]) count() int {
	return l.size
}

func (l *evictionList[T]) addToHead(data T) *node[T] {
	n := &node[T]{data: data, next: l.head}
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.size++
	return n
}

// deleteFromTail removes the least recently released element.
func (l *evictionList[T]) deleteFromTail() (T, bool) {
	var zero T
	if l.tail == nil {
		return zero, false
	}
	n := l.tail
	l.delete(n)
	return n.data, true
}

func (l *evictionList[T]) delete(n *node[T]) {
	if n == nil {
		return
	}
	if n == l.head {
		l.head = n.next
	}
	if n == l.tail {
		l.tail = n.prev
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	n.next = nil
	n.prev = nil
	l.size--
}

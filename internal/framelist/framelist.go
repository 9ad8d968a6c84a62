// Package framelist implements the frame buffer's FIFO queue: O(1) append,
// O(1) head-shift. The frame pump keeps two of these (curr, next).
package framelist

// List is a singly linked FIFO of owned frame buffers.
type List struct {
	head  *node
	tail  *node
	count int
}

type node struct {
	frame []byte
	next  *node
}

// Append adds frame to the tail of the list.
func (l *List) Append(frame []byte) {
	n := &node{frame: frame}
	if l.tail == nil {
		l.head = n
		l.tail = n
	} else {
		l.tail.next = n
		l.tail = n
	}
	l.count++
}

// Shift removes and returns the frame at the head of the list. ok is false
// if the list is empty.
func (l *List) Shift() (frame []byte, ok bool) {
	if l.head == nil {
		return nil, false
	}
	n := l.head
	l.head = n.next
	if l.head == nil {
		l.tail = nil
	}
	l.count--
	return n.frame, true
}

// Count reports the number of buffered frames.
func (l *List) Count() int {
	return l.count
}

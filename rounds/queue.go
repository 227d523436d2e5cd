package rounds

// Queue is the rotation order for a room's asymmetric role. Rotate pops the
// head and re-appends it, so every member serves the role once before anyone
// serves it twice, as long as membership does not change mid-rotation.
type Queue struct {
	ids []string
}

// Add appends the id unless it is already queued.
func (q *Queue) Add(id string) bool {
	for _, existing := range q.ids {
		if existing == id {
			return false
		}
	}
	q.ids = append(q.ids, id)
	return true
}

// Remove drops the id from the rotation, preserving order.
func (q *Queue) Remove(id string) bool {
	for i, existing := range q.ids {
		if existing == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Rotate returns the current head and moves it to the tail.
func (q *Queue) Rotate() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	head := q.ids[0]
	q.ids = append(q.ids[1:], head)
	return head, true
}

func (q *Queue) Len() int { return len(q.ids) }

// IDs returns a copy of the rotation order.
func (q *Queue) IDs() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

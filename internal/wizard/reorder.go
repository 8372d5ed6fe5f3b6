package wizard

// MoveIndex returns a copy of ids with the element at from moved to to.
// ok is false when the move is a no-op or out of range.
func MoveIndex(ids []string, from, to int) (moved []string, ok bool) {
	if from == to || from < 0 || to < 0 || from >= len(ids) || to >= len(ids) {
		return nil, false
	}
	moved = make([]string, 0, len(ids))
	item := ids[from]
	for i, id := range ids {
		if i == from {
			continue
		}
		moved = append(moved, id)
	}
	moved = append(moved[:to], append([]string{item}, moved[to:]...)...)
	return moved, true
}

package layering

// Merge returns a tree with the shape and values of newValue in which every
// subtree deeply equal to its counterpart in oldValue is the old reference.
// Neither input is mutated. When the roots differ at all a fresh top-level
// container is returned.
func Merge(oldValue, newValue any) any {
	merged, _ := mergeValue(oldValue, newValue)
	return merged
}

// mergeValue reports whether the returned value is the old reference.
func mergeValue(oldValue, newValue any) (any, bool) {
	if Same(oldValue, newValue) {
		return oldValue, true
	}
	oldKind, newKind := kindOf(oldValue), kindOf(newValue)
	if oldKind != newKind {
		return newValue, false
	}

	switch oldKind {
	case kindMapping:
		oldMap := oldValue.(map[string]any)
		newMap := newValue.(map[string]any)
		if newMap == nil {
			if len(oldMap) == 0 {
				return oldValue, true
			}
			return newValue, false
		}
		result := make(map[string]any, len(newMap))
		reused := len(oldMap) == len(newMap)
		for key, newChild := range newMap {
			oldChild, ok := oldMap[key]
			if !ok {
				result[key] = newChild
				reused = false
				continue
			}
			child, same := mergeValue(oldChild, newChild)
			result[key] = child
			reused = reused && same
		}
		if reused {
			return oldValue, true
		}
		return result, false
	case kindSequence:
		oldSeq := oldValue.([]any)
		newSeq := newValue.([]any)
		if newSeq == nil {
			if len(oldSeq) == 0 {
				return oldValue, true
			}
			return newValue, false
		}
		result := make([]any, len(newSeq))
		reused := len(oldSeq) == len(newSeq)
		for i, newChild := range newSeq {
			if i >= len(oldSeq) {
				result[i] = newChild
				reused = false
				continue
			}
			child, same := mergeValue(oldSeq[i], newChild)
			result[i] = child
			reused = reused && same
		}
		if reused {
			return oldValue, true
		}
		return result, false
	default:
		if scalarEqual(oldValue, newValue) {
			return oldValue, true
		}
		return newValue, false
	}
}

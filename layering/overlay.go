package layering

type deletion struct{}

// Delete marks a key for removal when it appears in an overlay layer.
var Delete any = deletion{}

// Overlay composes layers ordered from strongest to weakest, returning a new
// tree that keeps explicit values from stronger layers while filling missing
// data from weaker ones. Mappings merge key by key; sequences and scalars from
// a stronger layer replace the weaker value outright. A nil entry in a
// stronger layer falls back to the weaker value, and Delete removes the key.
// Subtrees taken unchanged from a single layer are shared, not copied.
func Overlay(layers ...any) any {
	if len(layers) == 0 {
		return nil
	}
	merged := stripDeletes(layers[len(layers)-1])
	for i := len(layers) - 2; i >= 0; i-- {
		merged = overlayValue(layers[i], merged)
	}
	return merged
}

func overlayValue(strong, weak any) any {
	if strong == nil {
		return weak
	}
	strongMap, ok := strong.(map[string]any)
	if !ok {
		return stripDeletes(strong)
	}
	weakMap, ok := weak.(map[string]any)
	if !ok {
		return stripDeletes(strongMap)
	}

	result := make(map[string]any, len(weakMap)+len(strongMap))
	for key, value := range weakMap {
		result[key] = value
	}
	for key, value := range strongMap {
		if value == Delete {
			delete(result, key)
			continue
		}
		existing, found := result[key]
		if !found {
			if value != nil {
				result[key] = stripDeletes(value)
			}
			continue
		}
		result[key] = overlayValue(value, existing)
	}
	return result
}

// stripDeletes drops Delete markers from a layer that has nothing beneath it.
// Layers without markers are returned as is.
func stripDeletes(value any) any {
	m, ok := value.(map[string]any)
	if !ok || !containsDelete(m) {
		return value
	}
	out := make(map[string]any, len(m))
	for key, child := range m {
		if child == Delete {
			continue
		}
		out[key] = stripDeletes(child)
	}
	return out
}

func containsDelete(m map[string]any) bool {
	for _, child := range m {
		if child == Delete {
			return true
		}
		if nested, ok := child.(map[string]any); ok && containsDelete(nested) {
			return true
		}
	}
	return false
}

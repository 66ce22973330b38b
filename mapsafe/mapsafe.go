// Package mapsafe reads typed values out of loosely typed metadata maps, such
// as decoded JSON or GGUF key/value sections.
package mapsafe

// Get retrieves a typed value from a map[string]any.
// Numeric values convert between int, int64 and float64. If the key is missing
// or the value cannot be converted, it returns the default value.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		if n, ok := toInt(val); ok {
			return any(n).(T)
		}
	case float64:
		if f, ok := toFloat(val); ok {
			return any(f).(T)
		}
	default:
		if v, ok := val.(T); ok {
			return v
		}
	}

	return defaultValue
}

func toInt(val any) (int, bool) {
	switch x := val.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	}
	return 0, false
}

func toFloat(val any) (float64, bool) {
	switch x := val.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

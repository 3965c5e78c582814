package helper

// TypedValueOk asserts the result of a lookup function to the expected type
// T. Reports false when the lookup misses or the value has another type.
func TypedValueOk[T any](lookup func() (any, bool)) (val T, ok bool) {
	var raw any
	if raw, ok = lookup(); ok {
		val, ok = raw.(T)
	}
	return
}

package stdx

// Zero returns the zero value for T. Used on error paths of generic functions.
func Zero[T any]() T {
	var zero T
	return zero
}

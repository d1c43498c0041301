package catalog

// Optional is a value that may not be known yet. The zero Optional is unknown.
type Optional[T any] struct {
	value T
	known bool
}

// Some returns a known Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, known: true}
}

// Get returns the value and whether it is known. The value is the zero
// value of T when unknown.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.known
}

// Known reports whether a value has been set.
func (o Optional[T]) Known() bool {
	return o.known
}

// OrElse returns the value when known and def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.known {
		return o.value
	}
	return def
}

package value

// Equal reports whether a and b are structurally equal.
//
// Objects are equal when they have the same size and every key maps to an
// equal value; key order is irrelevant. Arrays compare element-wise. A nil
// Value and Null are equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok {
			return false
		}
		return EqualObjects(av, bv)
	default:
		return false
	}
}

// EqualObjects compares two objects by size and per-key value equality.
// A nil object equals an empty one.
func EqualObjects(a, b Object) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

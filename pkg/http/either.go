package http

// Either holds exactly one of two alternatives. The populated side is fixed
// at construction by NewLeft or NewRight; the zero value is a Left holding
// the zero L.
type Either[L, R any] struct {
	left    L
	right   R
	isRight bool
}

// NewLeft returns an Either holding v on the left.
func NewLeft[L, R any](v L) Either[L, R] {
	return Either[L, R]{left: v}
}

// NewRight returns an Either holding v on the right.
func NewRight[L, R any](v R) Either[L, R] {
	return Either[L, R]{right: v, isRight: true}
}

// IsRight reports whether the right alternative is populated.
func (e Either[L, R]) IsRight() bool { return e.isRight }

// Left returns the left value and whether it is the populated side.
func (e Either[L, R]) Left() (L, bool) { return e.left, !e.isRight }

// Right returns the right value and whether it is the populated side.
func (e Either[L, R]) Right() (R, bool) { return e.right, e.isRight }

// Match calls exactly one of onLeft or onRight.
func (e Either[L, R]) Match(onLeft func(L), onRight func(R)) {
	if e.isRight {
		onRight(e.right)
		return
	}
	onLeft(e.left)
}

// Fold maps either alternative to a T.
func Fold[L, R, T any](e Either[L, R], onLeft func(L) T, onRight func(R) T) T {
	if e.isRight {
		return onRight(e.right)
	}
	return onLeft(e.left)
}

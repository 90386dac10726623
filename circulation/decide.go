package circulation

import "library-circulation/library"

type action int

const (
	actionCheckout action = iota
	actionReturn
)

// decide applies the state guards of a transition. It has no side effects.
func decide(act action, item *library.Book, memberID int64) error {
	switch act {
	case actionCheckout:
		if !item.Available {
			return ErrAlreadyCheckedOut
		}
		if memberID <= 0 {
			return ErrNoMemberSelected
		}
	case actionReturn:
		if item.Available {
			return ErrNotCheckedOut
		}
	}
	return nil
}

package models

import "fmt"

// UserActionKind enumerates what a stage selection asks for.
type UserActionKind int

const (
	// ActionSelect picks one of the offered candidates.
	ActionSelect UserActionKind = iota
	// ActionRequestMore asks for another round of candidates.
	ActionRequestMore
	// ActionRollback returns to the previous course.
	ActionRollback
)

// UserAction is a decoded stage selection. Index is 1-based and only
// meaningful for ActionSelect.
type UserAction struct {
	Kind  UserActionKind
	Index int
}

// Select returns an ActionSelect for the 1-based index.
func Select(index int) UserAction { return UserAction{Kind: ActionSelect, Index: index} }

// RequestMore returns an ActionRequestMore.
func RequestMore() UserAction { return UserAction{Kind: ActionRequestMore} }

// Rollback returns an ActionRollback.
func Rollback() UserAction { return UserAction{Kind: ActionRollback} }

// DecodeUserAction converts the raw integer used by chat clients:
// 0 requests more candidates, -1 rolls back, 1..N selects.
func DecodeUserAction(choice int) (UserAction, error) {
	switch {
	case choice == 0:
		return RequestMore(), nil
	case choice == -1:
		return Rollback(), nil
	case choice > 0:
		return Select(choice), nil
	default:
		return UserAction{}, fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}
}

func (a UserAction) String() string {
	switch a.Kind {
	case ActionSelect:
		return fmt.Sprintf("select(%d)", a.Index)
	case ActionRequestMore:
		return "request_more"
	case ActionRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

package db

import (
	"errors"
	"fmt"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

var (
	// ErrInvalidTransition is returned when a requested status change is not
	// legal from the order's current status.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrNoOpTransition is returned when an admin update targets the status
	// the order already has.
	ErrNoOpTransition = errors.New("order already has the requested status")

	// ErrUnknownStatus is returned for a status value outside the enum.
	ErrUnknownStatus = errors.New("unknown order status")
)

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Terminal reports whether no outgoing transitions are defined for s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusRefunded, StatusDelivered:
		return true
	}
	return false
}

// ValidateUserCancel enforces the user-initiated cancel rule: only a pending
// order may be cancelled by its owner.
func ValidateUserCancel(current OrderStatus) error {
	if current != StatusPending {
		return fmt.Errorf("%w: cannot cancel an order with status %q", ErrInvalidTransition, current)
	}
	return nil
}

// ValidateAdminUpdate enforces the admin status-change rules. Admins may jump
// between states arbitrarily as long as the new status differs from the
// current one; that looseness is a real rule of the system, not a missing
// one. The single exception is refund: when refundFrom is non-empty, a move
// to refunded is only legal from one of the listed statuses.
func ValidateAdminUpdate(current, next OrderStatus, refundFrom []string) error {
	if next == current {
		return fmt.Errorf("%w: %q", ErrNoOpTransition, current)
	}
	if next == StatusRefunded && len(refundFrom) > 0 {
		for _, from := range refundFrom {
			if OrderStatus(from) == current {
				return nil
			}
		}
		return fmt.Errorf("%w: refund not allowed from status %q", ErrInvalidTransition, current)
	}
	return nil
}

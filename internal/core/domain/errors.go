package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrInvalidUser  = errors.New("username must not be empty")
	ErrNotBorrowed  = errors.New("item is not borrowed")
	ErrNotOwner     = errors.New("item is borrowed by another user")
	ErrSelfDeadlock = errors.New("waiting for an item held by the caller")
)

// AlreadyBorrowedError carries the current borrower so the handler can
// render the borrowed_by= reply.
type AlreadyBorrowedError struct {
	Owner string
}

func (e *AlreadyBorrowedError) Error() string {
	return fmt.Sprintf("item already borrowed by %s", e.Owner)
}

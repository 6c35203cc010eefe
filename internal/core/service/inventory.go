package service

import (
	"sync"

	"github.com/adi0301/item-lending/internal/core/domain"
)

// InventoryService owns the shared item catalog. Every public method takes
// the single store lock for its whole critical section, so operations are
// linearized: two concurrent borrows of the same item cannot both succeed.
//
// WaitUntilAvailable is the only blocking operation. It follows the monitor
// pattern: the lock is released while the goroutine is parked on the
// condition and reacquired before the predicate is re-checked, so Return
// can get in to wake it.
type InventoryService struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []domain.Item
}

func NewInventoryService(items []domain.Item) *InventoryService {
	s := &InventoryService{
		items: append([]domain.Item(nil), items...),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// List returns an atomic snapshot of every item's status line. The snapshot
// is taken under the lock so no item is observed mid-mutation.
func (s *InventoryService) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0, len(s.items))
	for _, item := range s.items {
		lines = append(lines, item.StatusLine())
	}
	return lines
}

// Borrow lends the item to username. Borrowing never frees anything, so no
// waiter is woken here.
func (s *InventoryService) Borrow(itemID int, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findLocked(itemID)
	if item == nil {
		return domain.ErrNotFound
	}
	if !item.Available() {
		// No self-renew: borrowing an item you already hold is a conflict too.
		return &domain.AlreadyBorrowedError{Owner: item.BorrowedBy}
	}
	if username == "" {
		return domain.ErrInvalidUser
	}

	item.BorrowedBy = username
	return nil
}

// Return gives the item back and wakes every blocked waiter. The broadcast
// is deliberately coarse: the store does not track which item each waiter
// wants, so all of them re-check their own predicate.
func (s *InventoryService) Return(itemID int, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findLocked(itemID)
	if item == nil {
		return domain.ErrNotFound
	}
	if username == "" {
		return domain.ErrInvalidUser
	}
	if item.Available() {
		return domain.ErrNotBorrowed
	}
	if item.BorrowedBy != username {
		return domain.ErrNotOwner
	}

	item.BorrowedBy = ""
	s.cond.Broadcast()
	return nil
}

// WaitUntilAvailable blocks the calling goroutine until the item is free.
// It fails fast with ErrSelfDeadlock when the caller already holds the item,
// since that wait could never resolve. A successful wait does not reserve
// the item; a follow-up Borrow may still lose the race to another client.
func (s *InventoryService) WaitUntilAvailable(itemID int, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findLocked(itemID)
	if item == nil {
		return domain.ErrNotFound
	}
	if !item.Available() && item.BorrowedBy == username {
		return domain.ErrSelfDeadlock
	}

	// The predicate, not the wake event, is authoritative: a broadcast from
	// an unrelated return just loops back into Wait.
	for !item.Available() {
		s.cond.Wait()
	}
	return nil
}

// findLocked must be called with s.mu held. The catalog is small and fixed,
// so a linear scan is fine; the pointer stays valid because the slice is
// never resized after construction.
func (s *InventoryService) findLocked(itemID int) *domain.Item {
	for i := range s.items {
		if s.items[i].ID == itemID {
			return &s.items[i]
		}
	}
	return nil
}

package domain

import "fmt"

// Item is a single lendable catalog entry. BorrowedBy is empty while the
// item is available; only the inventory service mutates it, under its lock.
type Item struct {
	ID         int
	Name       string
	BorrowedBy string
}

func (i Item) Available() bool {
	return i.BorrowedBy == ""
}

// StatusLine renders the wire representation used by LIST responses.
// The space after "by=" is part of the protocol.
func (i Item) StatusLine() string {
	if i.Available() {
		return fmt.Sprintf("%d %s FREE", i.ID, i.Name)
	}
	return fmt.Sprintf("%d %s BORROWED by= %s", i.ID, i.Name, i.BorrowedBy)
}

// DefaultCatalog returns the fixed seed list. Items live for the process
// lifetime; the catalog is never mutated after startup.
func DefaultCatalog() []Item {
	names := []string{
		"Camera",
		"Tripod",
		"Laptop",
		"Projector",
		"Microphone",
		"Speaker",
		"HDMI_Cable",
		"Ethernet_Cable",
		"Keyboard",
		"Mouse",
		"Monitor",
		"USB_Hub",
		"Power_Bank",
		"Router",
		"VR_Headset",
	}

	items := make([]Item, 0, len(names))
	for i, name := range names {
		items = append(items, Item{ID: i + 1, Name: name})
	}
	return items
}

package store

import "time"

// Store mirrors the stores table.
type Store struct {
	ID            string
	OwnerID       string
	Name          string
	Location      string
	TotalProducts int64
	IsActive      bool
	CreatedAt     time.Time
}

// OwnedBy reports whether caller owns the store.
func (s Store) OwnedBy(caller string) bool {
	return s.OwnerID == caller
}

// Product mirrors the products table. Price and quantity are the only
// mutable fields; everything else is fixed at creation.
type Product struct {
	ID          string
	StoreID     string
	Name        string
	Description string
	Price       int64
	Quantity    int64
	CreatedAt   time.Time
}

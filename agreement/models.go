package agreement

import "time"

// MaxTermsLength caps the terms text of an agreement.
const MaxTermsLength = 200

// Record mirrors the agreements table plus the associated product list.
type Record struct {
	ID            string
	SupplierID    string
	StoreID       string
	Terms         string
	Deadline      time.Time
	PaymentAmount int64
	Status        Status
	CreatedAt     time.Time
	Products      []string
}

// IsParty reports whether caller is the agreement's supplier or the owner of
// the agreement's store. storeOwnerID is resolved by the repository join.
func (r Record) IsParty(caller, storeOwnerID string) bool {
	return caller == r.SupplierID || caller == storeOwnerID
}

// Locked is the row image a transition works on: the record plus the store
// owner resolved in the same locking query.
type Locked struct {
	Record
	StoreOwnerID string
}

package supplier

import "time"

// Supplier mirrors the suppliers table. The ID is the registering identity,
// so a supplier record doubles as proof of who controls it.
type Supplier struct {
	ID               string
	Name             string
	Certification    string
	Description      string
	ProductsSupplied int64
	IsVerified       bool
	Rating           int16
	CreatedAt        time.Time
}

// IsSelf reports whether caller is the supplier's registering identity.
func (s Supplier) IsSelf(caller string) bool {
	return s.ID == caller
}

// CatalogProduct mirrors the supplier_products table.
type CatalogProduct struct {
	ID                string
	SupplierID        string
	Name              string
	Description       string
	Price             int64
	AvailableQuantity int64
	CreatedAt         time.Time
}

// AgreementLink is the projection of a supply agreement used to authorize
// rating: who the parties are and whether the agreement completed.
type AgreementLink struct {
	SupplierID   string
	StoreID      string
	StoreOwnerID string
	Completed    bool
}

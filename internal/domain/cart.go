package domain

import "time"

// Status is the lifecycle state of a single cart line. Only ACTIVE lines
// count toward the cart total and participate in consolidation matching.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusPending    Status = "PENDING"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusExpired    Status = "EXPIRED"
	StatusAbandoned  Status = "ABANDONED"
	StatusSaved      Status = "SAVED"
	StatusDeleted    Status = "DELETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusCheckedOut, StatusExpired, StatusAbandoned, StatusSaved, StatusDeleted:
		return true
	}
	return false
}

// Cart is the aggregate root. TotalPriceCents is derived from the ACTIVE
// details and never stored independently of them; VersionNo increases by
// exactly one on every accepted mutation and is the optimistic-lock fence.
type Cart struct {
	ID              string       `json:"id"`
	UserID          *string      `json:"userId,omitempty"`
	AnonymousToken  *string      `json:"-"`
	TotalPriceCents int64        `json:"totalPriceCents"`
	VersionNo       int64        `json:"versionNo"`
	UserNote        string       `json:"userNote,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	Details         []CartDetail `json:"details,omitempty"`
}

// CartDetail is one product line. UnitPriceCents is a snapshot of the
// catalog price at creation time, not a live reference.
type CartDetail struct {
	ID              string    `json:"id"`
	CartID          string    `json:"cartId"`
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName,omitempty"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unitPriceCents"`
	TotalPriceCents int64     `json:"totalPriceCents"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ActiveTotalCents sums the line totals of ACTIVE details.
func (c *Cart) ActiveTotalCents() int64 {
	var sum int64
	for _, d := range c.Details {
		if d.Status == StatusActive {
			sum += d.TotalPriceCents
		}
	}
	return sum
}

// TotalQuantity sums quantities over ACTIVE details.
func (c *Cart) TotalQuantity() int {
	var sum int
	for _, d := range c.Details {
		if d.Status == StatusActive {
			sum += d.Quantity
		}
	}
	return sum
}

// Detail returns the detail with the given id, or nil.
func (c *Cart) Detail(detailID string) *CartDetail {
	for i := range c.Details {
		if c.Details[i].ID == detailID {
			return &c.Details[i]
		}
	}
	return nil
}

// Live reports whether the cart is still reachable by an owner or a token.
// A cart with neither is orphaned and eligible for garbage collection.
func (c *Cart) Live() bool {
	return c.UserID != nil || c.AnonymousToken != nil
}

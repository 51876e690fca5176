package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are expected under normal
// operation. failed is not terminal: admins may retry it into in_transit.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusPreparing, StatusReady,
		StatusInTransit, StatusDelivered, StatusRejected, StatusCancelled, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

var statusDescriptions = map[Status]string{
	StatusPending:   "Order placed, awaiting vendor review",
	StatusApproved:  "Order approved by the vendor",
	StatusPreparing: "Order is being prepared",
	StatusReady:     "Order is ready for pickup",
	StatusInTransit: "Order is out for delivery",
	StatusDelivered: "Order has been delivered",
	StatusRejected:  "Order was rejected by the vendor",
	StatusCancelled: "Order was cancelled",
	StatusFailed:    "Delivery attempt failed",
}

// DescribeStatus returns the human-readable description for a status.
func DescribeStatus(s Status) string {
	return statusDescriptions[s]
}

type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`

	// Joined from products; not columns of order_items.
	ProductName string    `json:"product_name,omitempty"`
	VendorID    uuid.UUID `json:"vendor_id,omitempty"`
}

type Order struct {
	ID               uuid.UUID     `json:"id"`
	CustomerID       uuid.UUID     `json:"customer_id"`
	DeliveryPersonID uuid.NullUUID `json:"delivery_person_id,omitempty"`
	TotalAmount      float64       `json:"total_amount"`
	DeliveryAddress  string        `json:"delivery_address"`
	Status           Status        `json:"status"`
	StatusReason     *string       `json:"status_reason,omitempty"`
	Items            []OrderItem   `json:"items"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// VendorIDs returns the distinct vendors with at least one product in the
// order, in item order.
func (o *Order) VendorIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	var vendors []uuid.UUID
	for _, item := range o.Items {
		if item.VendorID == uuid.Nil {
			continue
		}
		if _, ok := seen[item.VendorID]; ok {
			continue
		}
		seen[item.VendorID] = struct{}{}
		vendors = append(vendors, item.VendorID)
	}
	return vendors
}

// HasVendor reports whether the vendor owns at least one product in the order.
func (o *Order) HasVendor(vendorID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.VendorID == vendorID {
			return true
		}
	}
	return false
}

// UserSummary is the joined user projection returned with order history.
type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
}

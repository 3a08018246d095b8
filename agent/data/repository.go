package data

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repository is the row-level contract the tool layer talks to.
type Repository interface {
	CustomerByUserID(ctx context.Context, userID string) (*Customer, error)
	// InsertCustomer returns ErrDuplicate when user_id is taken.
	InsertCustomer(ctx context.Context, c *Customer) error
	UpdateCustomer(ctx context.Context, userID string, patch CustomerPatch) (*Customer, error)

	// SearchMenu matches active items whose name contains query, ignoring case.
	SearchMenu(ctx context.Context, query string) ([]MenuItem, error)

	ActiveOrderByCustomer(ctx context.Context, customerID int64) (*ActiveOrder, error)
	InsertActiveOrder(ctx context.Context, o *ActiveOrder) error
	UpdateActiveOrderCart(ctx context.Context, orderID int64, cart []CartItem, subtotal float64) (*ActiveOrder, error)
	// FinalizeOrder inserts the finalized row and deletes the active one atomically.
	FinalizeOrder(ctx context.Context, order *ActiveOrder, total float64) (*FinalizedOrder, error)

	Ping(ctx context.Context) error
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const pgUniqueViolation = "23505"

// BunRepository implements Repository on Postgres.
type BunRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ Repository = (*BunRepository)(nil)

func NewBunRepository(db *bun.DB) (*BunRepository, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunRepository{db: db, now: time.Now}, nil
}

func (r *BunRepository) CustomerByUserID(ctx context.Context, userID string) (*Customer, error) {
	c := new(Customer)
	err := r.db.NewSelect().
		Model(c).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError("select customer", err)
	}
	return c, nil
}

func (r *BunRepository) InsertCustomer(ctx context.Context, c *Customer) error {
	if c == nil {
		return errors.New("customer is nil")
	}
	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if _, err := r.db.NewInsert().Model(c).Returning("*").Exec(ctx); err != nil {
		return mapError("insert customer", err)
	}
	return nil
}

func (r *BunRepository) UpdateCustomer(ctx context.Context, userID string, patch CustomerPatch) (*Customer, error) {
	if patch.IsEmpty() {
		return r.CustomerByUserID(ctx, userID)
	}

	c := &Customer{UserID: userID, UpdatedAt: r.now().UTC()}
	patch.apply(c)

	res, err := r.updateCustomerQuery(c, patch).Returning("*").Exec(ctx, c)
	if err != nil {
		return nil, mapError("update customer", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *BunRepository) updateCustomerQuery(c *Customer, patch CustomerPatch) *bun.UpdateQuery {
	cols := append(patch.columns(), "updated_at")
	return r.db.NewUpdate().
		Model(c).
		Column(cols...).
		Where("user_id = ?", c.UserID)
}

func (r *BunRepository) SearchMenu(ctx context.Context, query string) ([]MenuItem, error) {
	var items []MenuItem
	if err := r.searchMenuQuery(&items, query).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []MenuItem{}, nil
		}
		return nil, fmt.Errorf("search menu: %w", err)
	}
	if items == nil {
		items = []MenuItem{}
	}
	return items, nil
}

func (r *BunRepository) searchMenuQuery(dest *[]MenuItem, query string) *bun.SelectQuery {
	return r.db.NewSelect().
		Model(dest).
		Where("active = TRUE").
		Where("name ILIKE ?", "%"+escapeLike(strings.TrimSpace(query))+"%").
		OrderExpr("name ASC")
}

func (r *BunRepository) ActiveOrderByCustomer(ctx context.Context, customerID int64) (*ActiveOrder, error) {
	o := new(ActiveOrder)
	err := r.db.NewSelect().
		Model(o).
		Where("cliente_id = ?", customerID).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError("select active order", err)
	}
	return o, nil
}

func (r *BunRepository) InsertActiveOrder(ctx context.Context, o *ActiveOrder) error {
	if o == nil {
		return errors.New("order is nil")
	}
	now := r.now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.Status == "" {
		o.Status = OrderStatusCreated
	}
	if _, err := r.db.NewInsert().Model(o).Returning("*").Exec(ctx); err != nil {
		return mapError("insert active order", err)
	}
	return nil
}

func (r *BunRepository) UpdateActiveOrderCart(ctx context.Context, orderID int64, cart []CartItem, subtotal float64) (*ActiveOrder, error) {
	o := &ActiveOrder{ID: orderID, Cart: cart, Subtotal: subtotal, UpdatedAt: r.now().UTC()}
	res, err := r.db.NewUpdate().
		Model(o).
		Column("cart", "subtotal", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx, o)
	if err != nil {
		return nil, mapError("update active order", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return o, nil
}

func (r *BunRepository) FinalizeOrder(ctx context.Context, order *ActiveOrder, total float64) (*FinalizedOrder, error) {
	if order == nil {
		return nil, ErrNotFound
	}

	finalized := &FinalizedOrder{
		ClienteID: order.ClienteID,
		Cart:      order.Cart,
		Subtotal:  order.Subtotal,
		Total:     total,
		Status:    OrderStatusCompleted,
		CreatedAt: r.now().UTC(),
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*ActiveOrder)(nil)).
			Where("id = ?", order.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete active order: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		if _, err := tx.NewInsert().Model(finalized).Returning("*").Exec(ctx); err != nil {
			return fmt.Errorf("insert finalized order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

func (r *BunRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Field('M'))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

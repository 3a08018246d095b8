package data

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps every table in process memory. It backs local runs
// without a database and the tests of the packages above it.
type MemoryRepository struct {
	mu sync.Mutex

	nextID    int64
	customers map[string]*Customer
	menu      []MenuItem
	active    map[int64]*ActiveOrder
	finalized []FinalizedOrder

	now func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(menu ...MenuItem) *MemoryRepository {
	r := &MemoryRepository{
		customers: make(map[string]*Customer),
		active:    make(map[int64]*ActiveOrder),
		now:       time.Now,
	}
	r.SeedMenu(menu...)
	return r
}

func (r *MemoryRepository) SeedMenu(items ...MenuItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.nextID++
		if item.ID == 0 {
			item.ID = r.nextID
		}
		r.menu = append(r.menu, item)
	}
}

func (r *MemoryRepository) CustomerByUserID(_ context.Context, userID string) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryRepository) InsertCustomer(_ context.Context, c *Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[c.UserID]; ok {
		return ErrDuplicate
	}
	r.nextID++
	now := r.now().UTC()
	c.ID = r.nextID
	c.CreatedAt, c.UpdatedAt = now, now
	stored := *c
	r.customers[c.UserID] = &stored
	return nil
}

func (r *MemoryRepository) UpdateCustomer(_ context.Context, userID string, patch CustomerPatch) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if !patch.IsEmpty() {
		patch.apply(c)
		c.UpdatedAt = r.now().UTC()
	}
	out := *c
	return &out, nil
}

func (r *MemoryRepository) SearchMenu(_ context.Context, query string) ([]MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]MenuItem, 0, 4)
	for _, item := range r.menu {
		if item.Active && strings.Contains(strings.ToLower(item.Name), needle) {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b MenuItem) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *MemoryRepository) ActiveOrderByCustomer(_ context.Context, customerID int64) (*ActiveOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.active {
		if o.ClienteID == customerID {
			out := *o
			out.Cart = slices.Clone(o.Cart)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) InsertActiveOrder(_ context.Context, o *ActiveOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.now().UTC()
	o.ID = r.nextID
	o.CreatedAt, o.UpdatedAt = now, now
	if o.Status == "" {
		o.Status = OrderStatusCreated
	}
	stored := *o
	stored.Cart = slices.Clone(o.Cart)
	r.active[o.ID] = &stored
	return nil
}

func (r *MemoryRepository) UpdateActiveOrderCart(_ context.Context, orderID int64, cart []CartItem, subtotal float64) (*ActiveOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.active[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	o.Cart = slices.Clone(cart)
	o.Subtotal = subtotal
	o.UpdatedAt = r.now().UTC()
	out := *o
	out.Cart = slices.Clone(o.Cart)
	return &out, nil
}

func (r *MemoryRepository) FinalizeOrder(_ context.Context, order *ActiveOrder, total float64) (*FinalizedOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order == nil {
		return nil, ErrNotFound
	}
	stored, ok := r.active[order.ID]
	if !ok {
		return nil, ErrNotFound
	}
	r.nextID++
	finalized := FinalizedOrder{
		ID:        r.nextID,
		ClienteID: stored.ClienteID,
		Cart:      slices.Clone(stored.Cart),
		Subtotal:  stored.Subtotal,
		Total:     total,
		Status:    OrderStatusCompleted,
		CreatedAt: r.now().UTC(),
	}
	delete(r.active, order.ID)
	r.finalized = append(r.finalized, finalized)
	return &finalized, nil
}

// FinalizedOrders returns a copy of every finalized order.
func (r *MemoryRepository) FinalizedOrders() []FinalizedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.finalized)
}

func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}

// DefaultMenu is the demo catalog used when no database is configured.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{Name: "Pizza Margherita", Description: "Tomate, mozzarella y albahaca", Price: 25000, Category: "pizza", Active: true, Options: map[string]any{"size": []string{"personal", "mediana", "familiar"}}},
		{Name: "Pizza Hawaiana", Description: "Jamón y piña", Price: 28000, Category: "pizza", Active: true, Options: map[string]any{"size": []string{"personal", "mediana", "familiar"}}},
		{Name: "Pizza Pepperoni", Description: "Pepperoni y mozzarella", Price: 30000, Category: "pizza", Active: true, Options: map[string]any{"size": []string{"personal", "mediana", "familiar"}}},
		{Name: "Pizza Vegetariana", Description: "Champiñones, pimentón, cebolla y aceitunas", Price: 27000, Category: "pizza", Active: true, Options: map[string]any{"size": []string{"personal", "mediana", "familiar"}}},
		{Name: "Gaseosa 400ml", Price: 5000, Category: "bebida", Active: true},
		{Name: "Pizza Cuatro Quesos", Price: 32000, Category: "pizza", Active: false},
	}
}

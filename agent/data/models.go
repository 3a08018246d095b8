// Package data is the pizzeria's data access layer: customers, menu items,
// active orders and finalized orders.
package data

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	OrderStatusCreated   = "creado"
	OrderStatusCompleted = "completado"
)

type Customer struct {
	bun.BaseModel `bun:"table:clientes,alias:c"`

	ID        int64          `bun:"id,pk,autoincrement" json:"id"`
	UserID    string         `bun:"user_id,notnull,unique" json:"user_id"`
	FirstName string         `bun:"first_name" json:"first_name"`
	LastName  string         `bun:"last_name" json:"last_name"`
	Phone     string         `bun:"phone" json:"phone,omitempty"`
	Email     string         `bun:"email" json:"email,omitempty"`
	Direccion string         `bun:"direccion" json:"direccion,omitempty"`
	Metadata  map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time      `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// FullName joins first and last name, skipping empty parts.
func (c *Customer) FullName() string {
	if c == nil {
		return ""
	}
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// IsComplete reports whether the customer has the data needed to order.
func (c *Customer) IsComplete() bool {
	return c != nil && c.LastName != ""
}

// CustomerPatch carries a partial update; nil fields are left untouched.
type CustomerPatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Email     *string
	Direccion *string
}

func (p CustomerPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.Email == nil && p.Direccion == nil
}

func (p CustomerPatch) apply(c *Customer) {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Direccion != nil {
		c.Direccion = *p.Direccion
	}
}

func (p CustomerPatch) columns() []string {
	cols := make([]string, 0, 5)
	if p.FirstName != nil {
		cols = append(cols, "first_name")
	}
	if p.LastName != nil {
		cols = append(cols, "last_name")
	}
	if p.Phone != nil {
		cols = append(cols, "phone")
	}
	if p.Email != nil {
		cols = append(cols, "email")
	}
	if p.Direccion != nil {
		cols = append(cols, "direccion")
	}
	return cols
}

type MenuItem struct {
	bun.BaseModel `bun:"table:menu,alias:m"`

	ID          int64          `bun:"id,pk,autoincrement" json:"id"`
	Name        string         `bun:"name,notnull" json:"name"`
	Description string         `bun:"description" json:"description,omitempty"`
	Price       float64        `bun:"price,notnull" json:"price"`
	Category    string         `bun:"category" json:"category,omitempty"`
	Options     map[string]any `bun:"options,type:jsonb" json:"options,omitempty"`
	Active      bool           `bun:"active,notnull,default:true" json:"active"`
}

type CartItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Size     string  `json:"size,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

type ActiveOrder struct {
	bun.BaseModel `bun:"table:pedidos_activos,alias:pa"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	ClienteID    int64      `bun:"cliente_id,notnull" json:"cliente_id"`
	Cart         []CartItem `bun:"cart,type:jsonb" json:"cart"`
	Subtotal     float64    `bun:"subtotal" json:"subtotal"`
	Direccion    string     `bun:"direccion" json:"direccion"`
	MetodoDePago string     `bun:"metodo_de_pago" json:"metodo_de_pago"`
	Status       string     `bun:"status" json:"status"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

type FinalizedOrder struct {
	bun.BaseModel `bun:"table:pedidos_finalizados,alias:pf"`

	ID        int64      `bun:"id,pk,autoincrement" json:"id"`
	ClienteID int64      `bun:"cliente_id,notnull" json:"cliente_id"`
	Cart      []CartItem `bun:"cart,type:jsonb" json:"cart"`
	Subtotal  float64    `bun:"subtotal" json:"subtotal"`
	Total     float64    `bun:"total" json:"total"`
	Status    string     `bun:"status" json:"status"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Models lists the tables owned by this package, in creation order.
func Models() []any {
	return []any{
		(*Customer)(nil),
		(*MenuItem)(nil),
		(*ActiveOrder)(nil),
		(*FinalizedOrder)(nil),
	}
}

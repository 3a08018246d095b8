package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/data"
)

const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

const (
	DefaultMenuImagePath = "menu.webp"

	fullMenuCaption  = "Te envío nuestro menú completo para que veas todas las opciones que tenemos"
	fullMenuFallback = "Perdón, no pude cargar la imagen del menú. Te puedo ayudar con consultas específicas sobre nuestros productos."

	errAddressRequired = "Dirección de entrega es requerida para crear un pedido"
	errPaymentRequired = "Método de pago es requerido para crear un pedido"
	errNoCustomer      = "Cliente no registrado"
	errNoActiveOrder   = "No hay un pedido activo para finalizar"
)

// Gateway executes tool requests against the data layer. Every failure is
// reported inside the ToolResult so the turn can always continue.
type Gateway struct {
	repo          data.Repository
	menuImagePath string
	observe       func(tool, outcome string)
}

var _ contract.ToolGateway = (*Gateway)(nil)

type GatewayOption func(*Gateway)

// WithMenuImagePath sets the image sent by send_full_menu. An empty path
// makes send_full_menu answer with the text fallback.
func WithMenuImagePath(path string) GatewayOption {
	return func(g *Gateway) {
		g.menuImagePath = strings.TrimSpace(path)
	}
}

func WithObserver(fn func(tool, outcome string)) GatewayOption {
	return func(g *Gateway) {
		if fn != nil {
			g.observe = fn
		}
	}
}

func NewGateway(repo data.Repository, opts ...GatewayOption) (*Gateway, error) {
	if repo == nil {
		return nil, errors.New("tool gateway requires a repository")
	}
	g := &Gateway{
		repo:          repo,
		menuImagePath: DefaultMenuImagePath,
		observe:       func(string, string) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Execute runs reqs in order. The returned error is reserved for a cancelled
// context; everything else lands in the per-call ToolResult.
func (g *Gateway) Execute(ctx context.Context, userID string, reqs []contract.ToolRequest) ([]contract.ToolResult, error) {
	results := make([]contract.ToolResult, 0, len(reqs))
	for _, raw := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		req, err := Decode(raw.Tool, raw.Arguments)
		if err != nil {
			log.Warn().Err(err).Str("tool", raw.Tool).Str("user_id", userID).Msg("tool request rejected")
			g.observe(raw.Tool, OutcomeInvalid)
			results = append(results, contract.ToolResult{
				CallID: raw.CallID,
				Tool:   raw.Tool,
				Error:  err.Error(),
			})
			continue
		}

		result := g.Run(ctx, userID, req)
		result.CallID = raw.CallID
		results = append(results, result)
	}
	return results, nil
}

// Run executes one decoded request on behalf of userID.
func (g *Gateway) Run(ctx context.Context, userID string, req Request) contract.ToolResult {
	req = req.withUser(userID)
	out := contract.ToolResult{Tool: req.Name(), Args: argsOf(req)}

	var (
		result any
		err    error
	)
	switch r := req.(type) {
	case GetCustomerRequest:
		result = g.getCustomer(ctx, r.UserID)
	case CreateCustomerRequest:
		result, err = g.createCustomer(ctx, r)
	case UpdateCustomerRequest:
		result = g.updateCustomer(ctx, ToolUpdateCustomer, r.UserID, data.CustomerPatch{
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Phone:     r.Phone,
			Email:     r.Email,
			Direccion: r.Direccion,
		})
	case UpdateCustomerAddressRequest:
		direccion := strings.TrimSpace(r.Direccion)
		result = g.updateCustomer(ctx, ToolUpdateCustomerAddress, r.UserID, data.CustomerPatch{Direccion: &direccion})
	case SearchMenuRequest:
		result = g.searchMenu(ctx, r.Query)
	case SendFullMenuRequest:
		result = g.sendFullMenu()
	case GetActiveOrderRequest:
		result = g.getActiveOrder(ctx, r.UserID)
	case CreateOrUpdateOrderRequest:
		result, err = g.createOrUpdateOrder(ctx, r)
	case FinalizeOrderRequest:
		result, err = g.finalizeOrder(ctx, r)
	default:
		err = fmt.Errorf("%w: %s", contract.ErrUnknownTool, req.Name())
	}

	if err != nil {
		log.Error().Err(err).Str("tool", out.Tool).Str("user_id", userID).Msg("tool execution failed")
		g.observe(out.Tool, OutcomeError)
		out.Error = err.Error()
		return out
	}

	out.Result = result
	g.observe(out.Tool, outcomeOf(result))
	return out
}

// Customer resolves the customer for userID, or nil when unknown.
func (g *Gateway) Customer(ctx context.Context, userID string) *data.Customer {
	c, err := g.repo.CustomerByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			log.Warn().Err(err).Str("tool", ToolGetCustomer).Str("user_id", userID).Msg("customer lookup failed")
		}
		return nil
	}
	return c
}

// ActiveOrder resolves userID's open order, or nil when there is none.
func (g *Gateway) ActiveOrder(ctx context.Context, userID string) *data.ActiveOrder {
	c := g.Customer(ctx, userID)
	if c == nil {
		return nil
	}
	o, err := g.repo.ActiveOrderByCustomer(ctx, c.ID)
	if err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			log.Warn().Err(err).Str("tool", ToolGetActiveOrder).Str("user_id", userID).Msg("active order lookup failed")
		}
		return nil
	}
	return o
}

// FullMenu returns the send_full_menu reply directly.
func (g *Gateway) FullMenu() contract.TextReply {
	switch v := g.sendFullMenu().(type) {
	case contract.ImageDirective:
		return contract.TextReply{Text: v.Text, Image: &v}
	case string:
		return contract.TextReply{Text: v}
	default:
		return contract.TextReply{Text: fullMenuFallback}
	}
}

func (g *Gateway) getCustomer(ctx context.Context, userID string) any {
	if c := g.Customer(ctx, userID); c != nil {
		return c
	}
	return map[string]any{}
}

func (g *Gateway) createCustomer(ctx context.Context, r CreateCustomerRequest) (any, error) {
	if existing := g.Customer(ctx, r.UserID); existing != nil {
		return existing, nil
	}

	c := &data.Customer{
		UserID:    r.UserID,
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Phone:     strings.TrimSpace(r.Phone),
		Email:     strings.TrimSpace(r.Email),
	}
	err := g.repo.InsertCustomer(ctx, c)
	switch {
	case err == nil:
		log.Info().Str("tool", ToolCreateCustomer).Str("user_id", r.UserID).Int64("customer_id", c.ID).Msg("customer created")
		return c, nil
	case errors.Is(err, data.ErrDuplicate):
		// Lost a race with a concurrent create for the same user.
		if existing := g.Customer(ctx, r.UserID); existing != nil {
			return existing, nil
		}
		return nil, err
	default:
		return nil, err
	}
}

func (g *Gateway) updateCustomer(ctx context.Context, tool, userID string, patch data.CustomerPatch) any {
	c, err := g.repo.UpdateCustomer(ctx, userID, patch)
	if err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			log.Warn().Err(err).Str("tool", tool).Str("user_id", userID).Msg("customer update failed")
		}
		return map[string]any{}
	}
	return c
}

func (g *Gateway) searchMenu(ctx context.Context, query string) any {
	items, err := g.repo.SearchMenu(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("tool", ToolSearchMenu).Str("query", query).Msg("menu search failed")
		return []data.MenuItem{}
	}
	if items == nil {
		items = []data.MenuItem{}
	}
	return items
}

func (g *Gateway) sendFullMenu() any {
	if g.menuImagePath == "" {
		return fullMenuFallback
	}
	return contract.ImageDirective{
		Type:      string(contract.MessageTypeImage),
		ImagePath: g.menuImagePath,
		Text:      fullMenuCaption,
		HasImage:  true,
	}
}

func (g *Gateway) getActiveOrder(ctx context.Context, userID string) any {
	if o := g.ActiveOrder(ctx, userID); o != nil {
		return o
	}
	return map[string]any{}
}

func (g *Gateway) createOrUpdateOrder(ctx context.Context, r CreateOrUpdateOrderRequest) (any, error) {
	c := g.Customer(ctx, r.UserID)
	if c == nil {
		return map[string]any{}, nil
	}

	existing, err := g.repo.ActiveOrderByCustomer(ctx, c.ID)
	switch {
	case err == nil:
		return g.repo.UpdateActiveOrderCart(ctx, existing.ID, r.Items, r.Subtotal)
	case !errors.Is(err, data.ErrNotFound):
		return nil, err
	}

	direccion := strings.TrimSpace(r.Direccion)
	if direccion == "" {
		return nil, errors.New(errAddressRequired)
	}
	pago := strings.TrimSpace(r.MetodoDePago)
	if pago == "" {
		return nil, errors.New(errPaymentRequired)
	}

	o := &data.ActiveOrder{
		ClienteID:    c.ID,
		Cart:         r.Items,
		Subtotal:     r.Subtotal,
		Direccion:    direccion,
		MetodoDePago: pago,
		Status:       data.OrderStatusCreated,
	}
	if err := g.repo.InsertActiveOrder(ctx, o); err != nil {
		return nil, err
	}
	log.Info().Str("tool", ToolCreateOrUpdateOrder).Str("user_id", r.UserID).Int64("order_id", o.ID).Msg("active order created")
	return o, nil
}

func (g *Gateway) finalizeOrder(ctx context.Context, r FinalizeOrderRequest) (any, error) {
	c := g.Customer(ctx, r.UserID)
	if c == nil {
		return nil, errors.New(errNoCustomer)
	}
	o, err := g.repo.ActiveOrderByCustomer(ctx, c.ID)
	if errors.Is(err, data.ErrNotFound) {
		return nil, errors.New(errNoActiveOrder)
	}
	if err != nil {
		return nil, err
	}

	finalized, err := g.repo.FinalizeOrder(ctx, o, r.Total)
	if errors.Is(err, data.ErrNotFound) {
		return nil, errors.New(errNoActiveOrder)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("tool", ToolFinalizeOrder).Str("user_id", r.UserID).Int64("order_id", finalized.ID).Msg("order finalized")
	return finalized, nil
}

func outcomeOf(result any) string {
	switch v := result.(type) {
	case map[string]any:
		if len(v) == 0 {
			return OutcomeEmpty
		}
	case []data.MenuItem:
		if len(v) == 0 {
			return OutcomeEmpty
		}
	}
	return OutcomeOK
}

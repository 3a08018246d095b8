package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/data"
)

// Request is one validated tool invocation. The set of implementations is
// closed: Decode is the only way to build one from model output.
type Request interface {
	Name() string
	// withUser pins the request to the turn's real user id.
	withUser(userID string) Request
}

type GetCustomerRequest struct {
	UserID string `json:"user_id"`
}

type CreateCustomerRequest struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

type UpdateCustomerRequest struct {
	UserID    string  `json:"user_id"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	Direccion *string `json:"direccion,omitempty"`
}

type UpdateCustomerAddressRequest struct {
	UserID    string `json:"user_id"`
	Direccion string `json:"direccion"`
}

type SearchMenuRequest struct {
	Query string `json:"query"`
}

type SendFullMenuRequest struct{}

type GetActiveOrderRequest struct {
	UserID string `json:"user_id"`
}

type CreateOrUpdateOrderRequest struct {
	UserID       string          `json:"user_id"`
	Items        []data.CartItem `json:"items"`
	Subtotal     float64         `json:"subtotal"`
	Direccion    string          `json:"direccion,omitempty"`
	MetodoDePago string          `json:"metodo_de_pago,omitempty"`
}

type FinalizeOrderRequest struct {
	UserID string  `json:"user_id"`
	Total  float64 `json:"total"`
}

func (GetCustomerRequest) Name() string           { return ToolGetCustomer }
func (CreateCustomerRequest) Name() string        { return ToolCreateCustomer }
func (UpdateCustomerRequest) Name() string        { return ToolUpdateCustomer }
func (UpdateCustomerAddressRequest) Name() string { return ToolUpdateCustomerAddress }
func (SearchMenuRequest) Name() string            { return ToolSearchMenu }
func (SendFullMenuRequest) Name() string          { return ToolSendFullMenu }
func (GetActiveOrderRequest) Name() string        { return ToolGetActiveOrder }
func (CreateOrUpdateOrderRequest) Name() string   { return ToolCreateOrUpdateOrder }
func (FinalizeOrderRequest) Name() string         { return ToolFinalizeOrder }

func (r GetCustomerRequest) withUser(id string) Request           { r.UserID = id; return r }
func (r CreateCustomerRequest) withUser(id string) Request        { r.UserID = id; return r }
func (r UpdateCustomerRequest) withUser(id string) Request        { r.UserID = id; return r }
func (r UpdateCustomerAddressRequest) withUser(id string) Request { r.UserID = id; return r }
func (r SearchMenuRequest) withUser(string) Request               { return r }
func (r SendFullMenuRequest) withUser(string) Request             { return r }
func (r GetActiveOrderRequest) withUser(id string) Request        { r.UserID = id; return r }
func (r CreateOrUpdateOrderRequest) withUser(id string) Request   { r.UserID = id; return r }
func (r FinalizeOrderRequest) withUser(id string) Request         { r.UserID = id; return r }

// Decode validates raw model arguments against the named tool's schema.
// Unknown tools fail with contract.ErrUnknownTool; malformed or incomplete
// arguments with contract.ErrValidation. user_id is not required here
// because the gateway always overwrites it.
func Decode(name, arguments string) (Request, error) {
	raw := strings.TrimSpace(arguments)
	if raw == "" {
		raw = "{}"
	}

	switch name {
	case ToolGetCustomer:
		return decodeInto[GetCustomerRequest](name, raw)
	case ToolCreateCustomer:
		req, err := decodeInto[CreateCustomerRequest](name, raw)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.FirstName) == "" {
			return nil, missingField(name, "first_name")
		}
		if strings.TrimSpace(req.LastName) == "" {
			return nil, missingField(name, "last_name")
		}
		return req, nil
	case ToolUpdateCustomer:
		return decodeInto[UpdateCustomerRequest](name, raw)
	case ToolUpdateCustomerAddress:
		req, err := decodeInto[UpdateCustomerAddressRequest](name, raw)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Direccion) == "" {
			return nil, missingField(name, "direccion")
		}
		return req, nil
	case ToolSearchMenu:
		req, err := decodeInto[SearchMenuRequest](name, raw)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Query) == "" {
			return nil, missingField(name, "query")
		}
		return req, nil
	case ToolSendFullMenu:
		return SendFullMenuRequest{}, nil
	case ToolGetActiveOrder:
		return decodeInto[GetActiveOrderRequest](name, raw)
	case ToolCreateOrUpdateOrder:
		req, err := decodeInto[CreateOrUpdateOrderRequest](name, raw)
		if err != nil {
			return nil, err
		}
		if len(req.Items) == 0 {
			return nil, missingField(name, "items")
		}
		for i, item := range req.Items {
			if strings.TrimSpace(item.Name) == "" {
				return nil, missingField(name, fmt.Sprintf("items[%d].name", i))
			}
			if item.Quantity <= 0 {
				return nil, fmt.Errorf("%w: tool=%s items[%d].quantity must be > 0", contract.ErrValidation, name, i)
			}
		}
		if req.Subtotal < 0 {
			return nil, fmt.Errorf("%w: tool=%s subtotal must be >= 0", contract.ErrValidation, name)
		}
		return req, nil
	case ToolFinalizeOrder:
		req, err := decodeInto[FinalizeOrderRequest](name, raw)
		if err != nil {
			return nil, err
		}
		if req.Total <= 0 {
			return nil, fmt.Errorf("%w: tool=%s total must be > 0", contract.ErrValidation, name)
		}
		return req, nil
	default:
		return nil, fmt.Errorf("%w: %q", contract.ErrUnknownTool, name)
	}
}

func decodeInto[T Request](name, raw string) (T, error) {
	var req T
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return req, fmt.Errorf("%w: tool=%s decode arguments: %v", contract.ErrValidation, name, err)
	}
	return req, nil
}

func missingField(tool, field string) error {
	return fmt.Errorf("%w: tool=%s %s is required", contract.ErrValidation, tool, field)
}

// argsOf renders a request back into the argument map recorded in tool_results.
func argsOf(req Request) map[string]any {
	raw, err := json.Marshal(req)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

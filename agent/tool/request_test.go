package tool

import (
	"errors"
	"testing"

	"github.com/tanpawarit/chative-pizzeria/agent/contract"
)

func TestDecodeUnknownTool(t *testing.T) {
	t.Parallel()

	_, err := Decode("delete_everything", `{}`)
	if !errors.Is(err, contract.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestDecodeValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		tool string
		args string
	}{
		{name: "malformed json", tool: ToolGetCustomer, args: `{"user_id":`},
		{name: "create without last name", tool: ToolCreateCustomer, args: `{"first_name":"Juan"}`},
		{name: "address without direccion", tool: ToolUpdateCustomerAddress, args: `{"direccion":"  "}`},
		{name: "search without query", tool: ToolSearchMenu, args: ``},
		{name: "order without items", tool: ToolCreateOrUpdateOrder, args: `{"items":[],"subtotal":0}`},
		{name: "order with zero quantity", tool: ToolCreateOrUpdateOrder, args: `{"items":[{"name":"Pizza","quantity":0,"price":1}],"subtotal":1}`},
		{name: "finalize without total", tool: ToolFinalizeOrder, args: `{"user_id":"u1"}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.tool, tc.args)
			if !errors.Is(err, contract.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDecodeOrderRequest(t *testing.T) {
	t.Parallel()

	req, err := Decode(ToolCreateOrUpdateOrder, `{
		"user_id": "Juan Pérez",
		"items": [{"name": "Pizza Hawaiana", "quantity": 2, "price": 28000, "size": "mediana"}],
		"subtotal": 56000,
		"direccion": "Calle 1 # 2-3",
		"metodo_de_pago": "efectivo"
	}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order, ok := req.(CreateOrUpdateOrderRequest)
	if !ok {
		t.Fatalf("unexpected request type: %T", req)
	}
	if len(order.Items) != 1 || order.Items[0].Size != "mediana" {
		t.Fatalf("unexpected items: %#v", order.Items)
	}

	pinned := order.withUser("573001112233").(CreateOrUpdateOrderRequest)
	if pinned.UserID != "573001112233" {
		t.Fatalf("user id not pinned: %q", pinned.UserID)
	}
}

func TestDecodeUpdateCustomerKeepsNulls(t *testing.T) {
	t.Parallel()

	req, err := Decode(ToolUpdateCustomer, `{"user_id":"u1","phone":"300","email":null}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	update := req.(UpdateCustomerRequest)
	if update.Phone == nil || *update.Phone != "300" {
		t.Fatalf("phone = %v", update.Phone)
	}
	if update.Email != nil || update.FirstName != nil {
		t.Fatal("null and absent fields must stay nil")
	}
}

func TestDecodeSendFullMenuIgnoresArguments(t *testing.T) {
	t.Parallel()

	req, err := Decode(ToolSendFullMenu, `not json at all`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Name() != ToolSendFullMenu {
		t.Fatalf("name = %s", req.Name())
	}
}

package tool

import (
	"github.com/cloudwego/eino/schema"
)

const (
	ToolGetCustomer           = "get_customer"
	ToolCreateCustomer        = "create_customer"
	ToolUpdateCustomer        = "update_customer"
	ToolUpdateCustomerAddress = "update_customer_address"
	ToolSearchMenu            = "search_menu"
	ToolSendFullMenu          = "send_full_menu"
	ToolGetActiveOrder        = "get_active_order"
	ToolCreateOrUpdateOrder   = "create_or_update_order"
	ToolFinalizeOrder         = "finalize_order"
)

// Names lists every registered tool in catalog order.
func Names() []string {
	infos := Infos()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

// Infos declares the registry to the model.
func Infos() []*schema.ToolInfo {
	userID := &schema.ParameterInfo{Type: schema.String, Desc: "Identificador real del usuario del canal", Required: true}

	return []*schema.ToolInfo{
		{
			Name: ToolGetCustomer,
			Desc: "Busca el cliente registrado para el user_id. Devuelve un objeto vacío si no existe.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id": userID,
			}),
		},
		{
			Name: ToolCreateCustomer,
			Desc: "Registra un cliente nuevo. Si ya existe devuelve el registro existente.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id":    userID,
				"first_name": {Type: schema.String, Desc: "Nombre", Required: true},
				"last_name":  {Type: schema.String, Desc: "Apellido", Required: true},
				"phone":      {Type: schema.String, Desc: "Teléfono"},
				"email":      {Type: schema.String, Desc: "Correo electrónico"},
			}),
		},
		{
			Name: ToolUpdateCustomer,
			Desc: "Actualiza solo los campos enviados del cliente.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id":    userID,
				"first_name": {Type: schema.String, Desc: "Nombre"},
				"last_name":  {Type: schema.String, Desc: "Apellido"},
				"phone":      {Type: schema.String, Desc: "Teléfono"},
				"email":      {Type: schema.String, Desc: "Correo electrónico"},
				"direccion":  {Type: schema.String, Desc: "Dirección de entrega"},
			}),
		},
		{
			Name: ToolUpdateCustomerAddress,
			Desc: "Actualiza la dirección de entrega guardada del cliente.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id":   userID,
				"direccion": {Type: schema.String, Desc: "Dirección de entrega", Required: true},
			}),
		},
		{
			Name: ToolSearchMenu,
			Desc: "Busca productos activos del menú cuyo nombre contenga el texto.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Texto a buscar, por ejemplo margherita", Required: true},
			}),
		},
		{
			Name: ToolSendFullMenu,
			Desc: "Envía la imagen del menú completo. Úsala cuando el cliente pida ver todo el menú.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		{
			Name: ToolGetActiveOrder,
			Desc: "Devuelve el pedido abierto del cliente o un objeto vacío.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id": userID,
			}),
		},
		{
			Name: ToolCreateOrUpdateOrder,
			Desc: "Crea el pedido del cliente o reemplaza el carrito del pedido abierto. Dirección y método de pago son obligatorios solo al crear.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id": userID,
				"items": {
					Type:     schema.Array,
					Desc:     "Productos del carrito",
					Required: true,
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"name":     {Type: schema.String, Desc: "Nombre del producto", Required: true},
							"quantity": {Type: schema.Integer, Desc: "Cantidad", Required: true},
							"price":    {Type: schema.Number, Desc: "Precio unitario", Required: true},
							"size":     {Type: schema.String, Desc: "Tamaño"},
							"notes":    {Type: schema.String, Desc: "Notas"},
						},
					},
				},
				"subtotal":       {Type: schema.Number, Desc: "Subtotal del carrito", Required: true},
				"direccion":      {Type: schema.String, Desc: "Dirección de entrega"},
				"metodo_de_pago": {Type: schema.String, Desc: "Método de pago"},
			}),
		},
		{
			Name: ToolFinalizeOrder,
			Desc: "Cierra el pedido abierto del cliente con el total final.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id": userID,
				"total":   {Type: schema.Number, Desc: "Total final a pagar", Required: true},
			}),
		},
	}
}

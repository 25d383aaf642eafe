package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --- Print Request Structures (Matching the server JSON) ---

// PrintRequest is the payload of an inbound print_request event. The POS
// backends have emitted both Spanish and English field names over time, so
// every field has an alias and the first non-empty one wins.
type PrintRequest struct {
	OrderID     FlexString `json:"id_pedido"`
	SaleID      FlexString `json:"id_venta"`
	Reference   FlexString `json:"order_id"`
	Table       FlexString `json:"mesa"`
	TableNumber FlexString `json:"mesa_numero"`
	TableEN     FlexString `json:"table"`
	Waiter      FlexString `json:"mesero"`
	WaiterName  FlexString `json:"mesero_nombre"`
	WaiterEN    FlexString `json:"waiter"`

	Products []RequestItem `json:"productos"`
	Items    []RequestItem `json:"items"`

	Customer          FlexString `json:"cliente"`
	Phone             FlexString `json:"telefono"`
	Address           FlexString `json:"direccion"`
	Total             *Amount    `json:"total"`
	Subtotal          *Amount    `json:"subtotal"`
	Tax               *Amount    `json:"iva"`
	Discount          *Amount    `json:"descuento"`
	DeliveryFee       *Amount    `json:"delivery"`
	EstimatedDelivery FlexString `json:"tiempo_entrega"`
	Template          string     `json:"template,omitempty"`
}

// RequestItem is one product line as sent by the server.
type RequestItem struct {
	Name       FlexString `json:"nombre"`
	NameEN     FlexString `json:"name"`
	Quantity   *Amount    `json:"cantidad"`
	QuantityEN *Amount    `json:"quantity"`
	Price      *Amount    `json:"precio"`
	UnitPrice  *Amount    `json:"unit_price"`
	Notes      FlexString `json:"notas"`
	NotesEN    FlexString `json:"notes"`
}

// SourceReference returns the order or sale identifier, or "" when absent.
func (r PrintRequest) SourceReference() string {
	return firstOf(r.OrderID, r.SaleID, r.Reference)
}

func (r PrintRequest) TableLabel() string {
	return firstOf(r.Table, r.TableNumber, r.TableEN)
}

func (r PrintRequest) WaiterLabel() string {
	return firstOf(r.Waiter, r.WaiterName, r.WaiterEN)
}

// LineItems returns the request items, preferring the "productos" list.
func (r PrintRequest) LineItems() []RequestItem {
	if len(r.Products) > 0 {
		return r.Products
	}
	return r.Items
}

func (i RequestItem) DisplayName() string {
	return firstOf(i.Name, i.NameEN)
}

func (i RequestItem) NoteText() string {
	return strings.TrimSpace(firstOf(i.Notes, i.NotesEN))
}

func (i RequestItem) Qty() *Amount {
	if i.Quantity != nil {
		return i.Quantity
	}
	return i.QuantityEN
}

func (i RequestItem) Unit() *Amount {
	if i.Price != nil {
		return i.Price
	}
	return i.UnitPrice
}

func firstOf(values ...FlexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// FlexString accepts either a JSON string or a JSON number.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*s = FlexString(n.String())
	return nil
}

// Amount is a numeric value that may arrive as a JSON number or a numeric
// string such as "10.50".
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("invalid amount %q: not a finite number", raw)
	}
	*a = Amount(val)
	return nil
}

func (a *Amount) Float() *float64 {
	if a == nil {
		return nil
	}
	v := float64(*a)
	return &v
}

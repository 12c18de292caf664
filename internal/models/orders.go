package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SourceLocal  = "local"
	SourceMandao = "mandao"
)

// Payment methods accepted on delivery.
const (
	PaymentEfectivo      = "efectivo"
	PaymentTransferencia = "transferencia"
	PaymentTarjeta       = "tarjeta"
)

func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentEfectivo, PaymentTransferencia, PaymentTarjeta:
		return true
	}
	return false
}

// Order - the transaction header. ReciboDia marks it as absorbed by a
// liquidación.
type Order struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	TenantID         uint            `gorm:"uniqueIndex:idx_order_external;index" json:"tenantId"`
	Table            string          `gorm:"column:mesa;size:50" json:"mesa"`
	TableNormalized  string          `gorm:"size:50;index" json:"mesaNormalizada"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	Status           OrderStatus     `gorm:"size:20;index" json:"estado"`
	Total            decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	Notes            string          `gorm:"size:500" json:"notas"`
	PaymentMethod    string          `gorm:"size:20" json:"metodoPago,omitempty"`
	CustomerName     string          `gorm:"size:100" json:"clienteNombre,omitempty"`
	CustomerDocument string          `gorm:"size:50" json:"clienteDocumento,omitempty"`
	DeliveryAddress  string          `gorm:"size:255" json:"direccion,omitempty"`
	Source           string          `gorm:"size:10" json:"origen"`
	ExternalOrderID  *string         `gorm:"size:100;uniqueIndex:idx_order_external" json:"mandaoOrderId,omitempty"`
	ReciboDia        bool            `gorm:"index" json:"reciboDia"`
	LiquidacionID    *uint           `gorm:"index" json:"liquidacionId,omitempty"`
	CreatedByID      uint            `json:"userId"`
	Waiter           string          `gorm:"size:50" json:"mesero"`
	CreatedAt        time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// OrderItem - one line of an order. Name, category and price are a snapshot
// taken at creation so the line survives product deletion.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"index" json:"-"`
	Position    int             `json:"-"`
	ProductID   *uint           `gorm:"index" json:"productoId"`
	ProductName string          `gorm:"size:100" json:"nombre"`
	Category    string          `gorm:"size:20" json:"categoria"`
	Quantity    int             `json:"cantidad"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2)" json:"precio"`
	Groups      StatusGroups    `gorm:"column:status_groups;type:text" json:"estados"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotal returns Σ price×quantity over the items.
func CalculateTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// AllDelivered is true when every unit of every item is entregado.
func (o *Order) AllDelivered() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if !it.Groups.Only(StatusEntregado) {
			return false
		}
	}
	return true
}

// BeforeSave keeps the derived fields in sync whenever the full struct is
// written. Column-map updates leave them alone.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	o.TableNormalized = NormalizeTable(o.Table)
	if len(o.Items) > 0 {
		o.Total = CalculateTotal(o.Items)
	}
	return nil
}

// Expense - one expense sheet with several lines.
type Expense struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TenantID      uint            `gorm:"index" json:"tenantId"`
	Date          time.Time       `gorm:"index" json:"fecha"`
	Lines         []ExpenseLine   `gorm:"foreignKey:ExpenseID" json:"gastos"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	ReciboDia     bool            `gorm:"index" json:"reciboDia"`
	LiquidacionID *uint           `gorm:"index" json:"liquidacionId,omitempty"`
	CreatedByID   uint            `json:"userId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type ExpenseLine struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	ExpenseID   uint            `gorm:"index" json:"-"`
	Description string          `gorm:"size:200" json:"descripcion"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2)" json:"monto"`
}

func (e *Expense) BeforeSave(tx *gorm.DB) error {
	e.Total = decimal.Zero
	for _, l := range e.Lines {
		e.Total = e.Total.Add(l.Amount)
	}
	return nil
}

// Cash movement kinds
const (
	MovementIngreso = "ingreso"
	MovementRetiro  = "retiro"
)

// Liquidacion - a closed cash batch. Orders and expenses point back to it
// through their LiquidacionID.
type Liquidacion struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TenantID     uint            `gorm:"index" json:"tenantId"`
	Date         time.Time       `gorm:"index" json:"fecha"`
	OpeningCash  decimal.Decimal `gorm:"type:decimal(12,2)" json:"cajaInicial"`
	IncomeTotal  decimal.Decimal `gorm:"type:decimal(12,2)" json:"totalPedidos"`
	ExpenseTotal decimal.Decimal `gorm:"type:decimal(12,2)" json:"totalGastos"`
	Movements    []CashMovement  `gorm:"foreignKey:LiquidacionID" json:"movimientosCaja"`
	MovementsNet decimal.Decimal `gorm:"type:decimal(12,2)" json:"totalMovimientos"`
	ClosingCash  decimal.Decimal `gorm:"type:decimal(12,2)" json:"cajaFinal"`
	Observations string          `gorm:"size:1000" json:"observaciones"`
	Closed       bool            `json:"cerrada"`
	OrderCount   int             `json:"cantidadPedidos"`
	ExpenseCount int             `json:"cantidadGastos"`
	CreatedByID  uint            `json:"userId"`
	Orders       []Order         `gorm:"foreignKey:LiquidacionID" json:"pedidos,omitempty"`
	Expenses     []Expense       `gorm:"foreignKey:LiquidacionID" json:"gastos,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type CashMovement struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	LiquidacionID uint            `gorm:"index" json:"-"`
	Type          string          `gorm:"size:10" json:"tipo"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2)" json:"monto"`
	Reason        string          `gorm:"size:200" json:"motivo"`
	Date          time.Time       `json:"fecha"`
}

// MovementsNet returns Σingreso − Σretiro.
func MovementsNet(movements []CashMovement) decimal.Decimal {
	net := decimal.Zero
	for _, m := range movements {
		if m.Type == MovementIngreso {
			net = net.Add(m.Amount)
		} else {
			net = net.Sub(m.Amount)
		}
	}
	return net
}

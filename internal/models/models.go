package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	// Money goes over the wire as a JSON number, not a quoted string.
	decimal.MarshalJSONWithoutQuotes = true
}

// Roles
const (
	RoleAdmin      = "admin"
	RoleMesero     = "mesero"
	RoleCajero     = "cajero"
	RoleSuperAdmin = "superadmin"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleMesero, RoleCajero, RoleSuperAdmin:
		return true
	}
	return false
}

// Tenant - one restaurant site. Every tenant-scoped row points here.
type Tenant struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:100;uniqueIndex:idx_tenant_site" json:"restaurante"`
	Site         string     `gorm:"size:100;uniqueIndex:idx_tenant_site" json:"sede"`
	PaidUntil    *time.Time `json:"fechaPago"`
	Blocked      bool       `json:"bloqueado"`
	BlockReason  string     `gorm:"size:255" json:"motivoBloqueo,omitempty"`
	BlockedAt    *time.Time `json:"fechaBloqueo,omitempty"`
	MandaoUserID string     `gorm:"size:100;index" json:"mandaoUserId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// User - staff account. Username is stored lower-case.
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TenantID        uint       `gorm:"index" json:"tenantId"`
	Tenant          *Tenant    `json:"tenant,omitempty"`
	Name            string     `gorm:"size:50" json:"nombre"`
	Username        string     `gorm:"uniqueIndex;size:100" json:"email"`
	PasswordHash    string     `json:"-"` // Never return this in JSON
	Role            string     `gorm:"size:20" json:"rol"`
	Active          bool       `json:"activo"`
	PendingApproval bool       `json:"pendienteAprobacion"`
	LastLoginAt     *time.Time `json:"ultimoAcceso"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Permission flag names used by route guards.
const (
	PermVerProductos      = "verProductos"
	PermCrearProductos    = "crearProductos"
	PermEditarProductos   = "editarProductos"
	PermEliminarProductos = "eliminarProductos"
	PermVerPedidos        = "verPedidos"
	PermCrearPedidos      = "crearPedidos"
	PermEditarPedidos     = "editarPedidos"
	PermCancelarPedidos   = "cancelarPedidos"
	PermVerGastos         = "verGastos"
	PermCrearGastos       = "crearGastos"
	PermEditarGastos      = "editarGastos"
	PermEliminarGastos    = "eliminarGastos"
	PermVerReportes       = "verReportes"
	PermVerLiquidaciones  = "verLiquidaciones"
)

type Permissions struct {
	VerProductos      bool `json:"verProductos"`
	CrearProductos    bool `json:"crearProductos"`
	EditarProductos   bool `json:"editarProductos"`
	EliminarProductos bool `json:"eliminarProductos"`
	VerPedidos        bool `json:"verPedidos"`
	CrearPedidos      bool `json:"crearPedidos"`
	EditarPedidos     bool `json:"editarPedidos"`
	CancelarPedidos   bool `json:"cancelarPedidos"`
	VerGastos         bool `json:"verGastos"`
	CrearGastos       bool `json:"crearGastos"`
	EditarGastos      bool `json:"editarGastos"`
	EliminarGastos    bool `json:"eliminarGastos"`
	VerReportes       bool `json:"verReportes"`
	VerLiquidaciones  bool `json:"verLiquidaciones"`
}

// DefaultPermissions is what a freshly approved staff member gets.
func DefaultPermissions() Permissions {
	return Permissions{
		VerProductos: true,
		VerPedidos:   true,
		CrearPedidos: true,
		VerGastos:    true,
		CrearGastos:  true,
	}
}

func (p Permissions) Allows(name string) bool {
	switch name {
	case PermVerProductos:
		return p.VerProductos
	case PermCrearProductos:
		return p.CrearProductos
	case PermEditarProductos:
		return p.EditarProductos
	case PermEliminarProductos:
		return p.EliminarProductos
	case PermVerPedidos:
		return p.VerPedidos
	case PermCrearPedidos:
		return p.CrearPedidos
	case PermEditarPedidos:
		return p.EditarPedidos
	case PermCancelarPedidos:
		return p.CancelarPedidos
	case PermVerGastos:
		return p.VerGastos
	case PermCrearGastos:
		return p.CrearGastos
	case PermEditarGastos:
		return p.EditarGastos
	case PermEliminarGastos:
		return p.EliminarGastos
	case PermVerReportes:
		return p.VerReportes
	case PermVerLiquidaciones:
		return p.VerLiquidaciones
	}
	return false
}

// Set flips one named flag. It reports false for unknown names.
func (p *Permissions) Set(name string, v bool) bool {
	flags := map[string]*bool{
		PermVerProductos:      &p.VerProductos,
		PermCrearProductos:    &p.CrearProductos,
		PermEditarProductos:   &p.EditarProductos,
		PermEliminarProductos: &p.EliminarProductos,
		PermVerPedidos:        &p.VerPedidos,
		PermCrearPedidos:      &p.CrearPedidos,
		PermEditarPedidos:     &p.EditarPedidos,
		PermCancelarPedidos:   &p.CancelarPedidos,
		PermVerGastos:         &p.VerGastos,
		PermCrearGastos:       &p.CrearGastos,
		PermEditarGastos:      &p.EditarGastos,
		PermEliminarGastos:    &p.EliminarGastos,
		PermVerReportes:       &p.VerReportes,
		PermVerLiquidaciones:  &p.VerLiquidaciones,
	}
	f, ok := flags[name]
	if !ok {
		return false
	}
	*f = v
	return true
}

// StaffPermission - delegation record from an admin to one staff member.
type StaffPermission struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	TenantID    uint        `gorm:"index" json:"tenantId"`
	AdminID     uint        `gorm:"uniqueIndex:idx_admin_staff" json:"adminId"`
	StaffID     uint        `gorm:"uniqueIndex:idx_admin_staff" json:"meseroId"`
	Staff       *User       `gorm:"foreignKey:StaffID" json:"mesero,omitempty"`
	Permissions Permissions `gorm:"embedded" json:"permisos"`
	Active      bool        `json:"activo"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Product categories
const (
	CategoryComidas  = "Comidas"
	CategoryBebidas  = "Bebidas"
	CategoryPostres  = "Postres"
	CategoryEntradas = "Entradas"
	CategoryOtros    = "Otros"
)

func IsValidCategory(c string) bool {
	switch c {
	case CategoryComidas, CategoryBebidas, CategoryPostres, CategoryEntradas, CategoryOtros:
		return true
	}
	return false
}

// Product - menu entry. Stock is the legacy per-product counter; real
// availability comes from ingredient stock.
type Product struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TenantID    uint            `gorm:"index" json:"tenantId"`
	Name        string          `gorm:"size:100;index" json:"nombre"`
	Description string          `gorm:"size:500" json:"descripcion"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2)" json:"precio"`
	Category    string          `gorm:"size:20;index" json:"categoria"`
	Available   bool            `gorm:"index" json:"disponible"`
	Stock       int             `json:"stock"`
	ImageURL    string          `gorm:"size:500" json:"imagen"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Ingredient - an "alimento" whose stock backs one or more products.
type Ingredient struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	TenantID  uint            `gorm:"index" json:"tenantId"`
	Name      string          `gorm:"size:100;index" json:"nombre"`
	Stock     decimal.Decimal `gorm:"type:decimal(12,3)" json:"stock"`
	UnitValue decimal.Decimal `gorm:"type:decimal(12,2)" json:"valor"`
	Recipes   []RecipeLink    `gorm:"foreignKey:IngredientID" json:"productos"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RecipeLink - how much of an ingredient one unit of a product consumes.
type RecipeLink struct {
	ID               uint            `gorm:"primaryKey" json:"-"`
	IngredientID     uint            `gorm:"index" json:"-"`
	ProductID        uint            `gorm:"index" json:"productoId"`
	QuantityRequired decimal.Decimal `gorm:"type:decimal(12,3)" json:"cantidadRequerida"`
}

const (
	MovementSale       = "venta"
	MovementAdjustment = "ajuste"
)

// StockMovement - audit row for every ingredient deduction.
type StockMovement struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TenantID     uint            `gorm:"index" json:"tenantId"`
	IngredientID uint            `gorm:"index" json:"alimentoId"`
	OrderID      *uint           `gorm:"index" json:"pedidoId,omitempty"`
	Kind         string          `gorm:"size:20" json:"tipo"`
	Requested    decimal.Decimal `gorm:"type:decimal(12,3)" json:"solicitado"`
	Deducted     decimal.Decimal `gorm:"type:decimal(12,3)" json:"descontado"`
	Reference    string          `gorm:"size:255" json:"referencia,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// PushToken - a customer device following the orders of one table.
type PushToken struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Token           string    `gorm:"size:255;uniqueIndex" json:"token"`
	Table           string    `gorm:"column:mesa;size:50" json:"mesa"`
	TableNormalized string    `gorm:"size:50;index:idx_push_lookup" json:"mesaNormalizada"`
	Restaurant      string    `gorm:"size:100;index:idx_push_lookup" json:"restaurante"`
	Site            string    `gorm:"size:100" json:"sede,omitempty"`
	LastUsed        time.Time `gorm:"index" json:"lastUsed"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (p *PushToken) BeforeSave(tx *gorm.DB) error {
	p.TableNormalized = NormalizeTable(p.Table)
	return nil
}

// Outbox task states
const (
	OutboxPending = "pending"
	OutboxDone    = "done"
	OutboxDead    = "dead"
)

// OutboxTask - a side effect committed together with the business write
// and delivered later by the outbox worker.
type OutboxTask struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Kind          string    `gorm:"size:50;index" json:"kind"`
	Payload       string    `gorm:"type:text" json:"payload"`
	Status        string    `gorm:"size:10;index:idx_outbox_due" json:"status"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"maxAttempts"`
	NextAttemptAt time.Time `gorm:"index:idx_outbox_due" json:"nextAttemptAt"`
	LastError     string    `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&StaffPermission{},
		&Product{},
		&Ingredient{},
		&RecipeLink{},
		&StockMovement{},
		&Order{},
		&OrderItem{},
		&Expense{},
		&ExpenseLine{},
		&Liquidacion{},
		&CashMovement{},
		&PushToken{},
		&OutboxTask{},
	}
}

package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("recurso no encontrado")
	ErrConflict  = errors.New("conflicto con una operación concurrente")
	ErrForbidden = errors.New("acceso denegado")
)

// ValidationError is a client mistake (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError names the ingredient that cannot cover an order.
type InsufficientStockError struct {
	Ingredient string          `json:"alimento"`
	Available  decimal.Decimal `json:"disponible"`
	Required   decimal.Decimal `json:"requerido"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Stock insuficiente de %s: disponible %s, requerido %s", e.Ingredient, e.Available, e.Required)
}

// reconciled rejects changes to a record a liquidación already absorbed.
func reconciled(what string) error {
	return invalid("El %s ya fue incluido en una liquidación", what)
}

// forUpdate row-locks what a transaction reads before it writes. SQLite
// ignores it and serializes writers instead.
var forUpdate = clause.Locking{Strength: "UPDATE"}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// ErrUnauthorized is a failed login or an unusable token (HTTP 401).
var ErrUnauthorized = errors.New("credenciales inválidas")

// BlockedError means the caller's restaurant is suspended (HTTP 403).
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "Cuenta suspendida" }

func (e *BlockedError) Unwrap() error { return ErrForbidden }

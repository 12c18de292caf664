package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

type OrderStatus string

const (
	StatusPendiente  OrderStatus = "pendiente"
	StatusPreparando OrderStatus = "preparando"
	StatusListo      OrderStatus = "listo"
	StatusEntregado  OrderStatus = "entregado"
	StatusCancelado  OrderStatus = "cancelado"
)

// ItemStatuses is the canonical order used when serializing status groups.
var ItemStatuses = []OrderStatus{StatusPendiente, StatusPreparando, StatusListo, StatusEntregado}

// OrderStatuses lists every order-level status.
var OrderStatuses = []OrderStatus{StatusPendiente, StatusPreparando, StatusListo, StatusEntregado, StatusCancelado}

// IsValid reports whether s is a valid order-level status.
func (s OrderStatus) IsValid() bool {
	return s == StatusCancelado || s.IsItemStatus()
}

// IsItemStatus reports whether s can label a status group. Items are never
// "cancelado" on their own.
func (s OrderStatus) IsItemStatus() bool {
	switch s {
	case StatusPendiente, StatusPreparando, StatusListo, StatusEntregado:
		return true
	}
	return false
}

// IsActive is true while the kitchen still has work on the order.
func (s OrderStatus) IsActive() bool {
	return s == StatusPendiente || s == StatusPreparando || s == StatusListo
}

// StatusGroup is one wire-level entry of StatusGroups.
type StatusGroup struct {
	Quantity int         `json:"cantidad"`
	Status   OrderStatus `json:"estado"`
}

var (
	ErrInvalidItemStatus = errors.New("estado de item no válido")
	ErrSameStatus        = errors.New("el estado origen y destino son iguales")
	ErrInvalidQuantity   = errors.New("la cantidad debe ser mayor a 0")
	ErrAmbiguousSource   = errors.New("el item tiene varios estados, indique el estado origen")
)

// InsufficientUnitsError is returned when the source group holds fewer units
// than requested.
type InsufficientUnitsError struct {
	Status    OrderStatus
	Available int
	Requested int
}

func (e *InsufficientUnitsError) Error() string {
	return fmt.Sprintf("solo hay %d unidades en estado %s, se pidieron %d", e.Available, e.Status, e.Requested)
}

// StatusGroups partitions an item's quantity by preparation status.
// The sum of all groups always equals the item's quantity.
type StatusGroups map[OrderStatus]int

func NewStatusGroups(quantity int) StatusGroups {
	return SingleGroup(StatusPendiente, quantity)
}

func (g StatusGroups) Total() int {
	total := 0
	for _, q := range g {
		total += q
	}
	return total
}

// List returns the non-empty groups in canonical order.
func (g StatusGroups) List() []StatusGroup {
	out := make([]StatusGroup, 0, len(g))
	for _, s := range ItemStatuses {
		if q := g[s]; q > 0 {
			out = append(out, StatusGroup{Quantity: q, Status: s})
		}
	}
	return out
}

// Only reports whether every unit is in status s.
func (g StatusGroups) Only(s OrderStatus) bool {
	total := g.Total()
	return total > 0 && g[s] == total
}

// SingleGroup puts the whole quantity into one group.
func SingleGroup(s OrderStatus, quantity int) StatusGroups {
	return StatusGroups{s: quantity}
}

// Move shifts quantity units from one named group to another. When from is
// empty the source is inferred, but only if exactly one group other than to
// holds units.
func (g StatusGroups) Move(from, to OrderStatus, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !to.IsItemStatus() {
		return ErrInvalidItemStatus
	}
	if from == "" {
		var candidates []OrderStatus
		for _, s := range ItemStatuses {
			if s != to && g[s] > 0 {
				candidates = append(candidates, s)
			}
		}
		if len(candidates) != 1 {
			return ErrAmbiguousSource
		}
		from = candidates[0]
	}
	if !from.IsItemStatus() {
		return ErrInvalidItemStatus
	}
	if from == to {
		return ErrSameStatus
	}
	if g[from] < quantity {
		return &InsufficientUnitsError{Status: from, Available: g[from], Requested: quantity}
	}

	g[from] -= quantity
	if g[from] == 0 {
		delete(g, from)
	}
	g[to] += quantity
	return nil
}

func (g StatusGroups) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.List())
}

func (g *StatusGroups) UnmarshalJSON(data []byte) error {
	var list []StatusGroup
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	out := StatusGroups{}
	for _, entry := range list {
		if !entry.Status.IsItemStatus() {
			return fmt.Errorf("%w: %q", ErrInvalidItemStatus, entry.Status)
		}
		if entry.Quantity < 0 {
			return ErrInvalidQuantity
		}
		if entry.Quantity > 0 {
			out[entry.Status] += entry.Quantity
		}
	}
	*g = out
	return nil
}

// Value stores the groups as their JSON list.
func (g StatusGroups) Value() (driver.Value, error) {
	b, err := g.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (g *StatusGroups) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*g = StatusGroups{}
		return nil
	case []byte:
		return g.UnmarshalJSON(v)
	case string:
		return g.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into StatusGroups", value)
	}
}

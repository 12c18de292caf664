package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatusGroupsMove(t *testing.T) {
	tests := []struct {
		name     string
		start    StatusGroups
		from, to OrderStatus
		qty      int
		want     string
		wantErr  error
	}{
		{
			name:  "move 2 of 5 pending to preparando",
			start: NewStatusGroups(5),
			from:  StatusPendiente, to: StatusPreparando, qty: 2,
			want: `[{"cantidad":3,"estado":"pendiente"},{"cantidad":2,"estado":"preparando"}]`,
		},
		{
			name:  "moving everything drops the empty group",
			start: NewStatusGroups(2),
			from:  StatusPendiente, to: StatusListo, qty: 2,
			want: `[{"cantidad":2,"estado":"listo"}]`,
		},
		{
			name:  "inferred source with a single candidate",
			start: StatusGroups{StatusPreparando: 3, StatusListo: 1},
			to:    StatusListo, qty: 3,
			want: `[{"cantidad":4,"estado":"listo"}]`,
		},
		{
			name:    "inferred source is ambiguous",
			start:   StatusGroups{StatusPendiente: 1, StatusPreparando: 1},
			to:      StatusListo, qty: 1,
			wantErr: ErrAmbiguousSource,
		},
		{
			name:    "same status",
			start:   NewStatusGroups(2),
			from:    StatusPendiente, to: StatusPendiente, qty: 1,
			wantErr: ErrSameStatus,
		},
		{
			name:    "zero quantity",
			start:   NewStatusGroups(2),
			from:    StatusPendiente, to: StatusListo, qty: 0,
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "cancelado is not an item status",
			start:   NewStatusGroups(2),
			from:    StatusPendiente, to: StatusCancelado, qty: 1,
			wantErr: ErrInvalidItemStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := tt.start.Total()
			err := tt.start.Move(tt.from, tt.to, tt.qty)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Move() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Move() unexpected error: %v", err)
			}
			b, _ := json.Marshal(tt.start)
			if string(b) != tt.want {
				t.Errorf("groups = %s, want %s", b, tt.want)
			}
			if tt.start.Total() != total {
				t.Errorf("Total() = %d after move, want %d", tt.start.Total(), total)
			}
		})
	}
}

func TestStatusGroupsMoveInsufficient(t *testing.T) {
	g := StatusGroups{StatusPendiente: 1, StatusPreparando: 4}
	err := g.Move(StatusPendiente, StatusListo, 2)

	var insufficient *InsufficientUnitsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Move() error = %v, want *InsufficientUnitsError", err)
	}
	if insufficient.Available != 1 || insufficient.Requested != 2 {
		t.Errorf("error = %+v", insufficient)
	}
	if g[StatusPendiente] != 1 || g[StatusPreparando] != 4 || g[StatusListo] != 0 {
		t.Errorf("groups changed after a rejected move: %v", g)
	}
}

func TestStatusGroupsRoundTripThroughDriver(t *testing.T) {
	g := StatusGroups{StatusEntregado: 1, StatusPendiente: 2}
	v, err := g.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != `[{"cantidad":2,"estado":"pendiente"},{"cantidad":1,"estado":"entregado"}]` {
		t.Errorf("Value() = %v", v)
	}

	var back StatusGroups
	if err := back.Scan([]byte(v.(string))); err != nil {
		t.Fatal(err)
	}
	if back[StatusPendiente] != 2 || back[StatusEntregado] != 1 || len(back) != 2 {
		t.Errorf("Scan() = %v", back)
	}
}

func TestStatusGroupsUnmarshalRejectsUnknownStatus(t *testing.T) {
	var g StatusGroups
	err := json.Unmarshal([]byte(`[{"cantidad":1,"estado":"cancelado"}]`), &g)
	if !errors.Is(err, ErrInvalidItemStatus) {
		t.Errorf("Unmarshal() error = %v, want ErrInvalidItemStatus", err)
	}
}

func TestOrderAllDelivered(t *testing.T) {
	o := Order{Items: []OrderItem{
		{Quantity: 2, Groups: SingleGroup(StatusEntregado, 2)},
		{Quantity: 1, Groups: StatusGroups{StatusListo: 1}},
	}}
	if o.AllDelivered() {
		t.Error("AllDelivered() = true with a listo unit")
	}
	o.Items[1].Groups = SingleGroup(StatusEntregado, 1)
	if !o.AllDelivered() {
		t.Error("AllDelivered() = false with every unit delivered")
	}
}

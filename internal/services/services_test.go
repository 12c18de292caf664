package services

import (
	"encoding/json"
	"testing"
	"time"

	"restopos/internal/database"
	"restopos/internal/models"
	"restopos/internal/outbox"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	tenant  models.Tenant
	actor   Actor
	stock   *StockService
	catalog *CatalogService
	orders  *OrderService
	events  *recorder
}

type recorder struct {
	events []string
}

func (r *recorder) Publish(_ uint, event string, _ any) {
	r.events = append(r.events, event)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewTestDB(t.Name())
	if err != nil {
		t.Fatal(err)
	}
	paid := time.Now().AddDate(0, 1, 0)
	tenant := models.Tenant{Name: "La Fonda", Site: "Centro", PaidUntil: &paid}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatal(err)
	}
	admin := models.User{TenantID: tenant.ID, Name: "Ana", Username: "ana", Role: models.RoleAdmin, Active: true}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatal(err)
	}
	stock := NewStockService(db)
	rec := &recorder{}
	return &fixture{
		db:      db,
		tenant:  tenant,
		actor:   Actor{UserID: admin.ID, TenantID: tenant.ID, Role: models.RoleAdmin, Name: admin.Name},
		stock:   stock,
		catalog: NewCatalogService(db, stock),
		orders:  NewOrderService(db, stock, outbox.New(3), rec),
		events:  rec,
	}
}

func (f *fixture) product(t *testing.T, name string, price int64) models.Product {
	t.Helper()
	p := models.Product{TenantID: f.tenant.ID, Name: name, Price: decimal.NewFromInt(price), Category: models.CategoryComidas, Available: true}
	if err := f.db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
	return p
}

// ingredient creates an ingredient consumed by productID at perUnit.
func (f *fixture) ingredient(t *testing.T, name string, stock float64, productID uint, perUnit float64) models.Ingredient {
	t.Helper()
	ing := models.Ingredient{
		TenantID:  f.tenant.ID,
		Name:      name,
		Stock:     decimal.NewFromFloat(stock),
		UnitValue: decimal.NewFromInt(1),
		Recipes:   []models.RecipeLink{{ProductID: productID, QuantityRequired: decimal.NewFromFloat(perUnit)}},
	}
	if err := f.db.Create(&ing).Error; err != nil {
		t.Fatal(err)
	}
	return ing
}

func (f *fixture) stockOf(t *testing.T, id uint) decimal.Decimal {
	t.Helper()
	var ing models.Ingredient
	if err := f.db.First(&ing, id).Error; err != nil {
		t.Fatal(err)
	}
	return ing.Stock
}

// afterNextRead runs sql inside the caller's transaction right after its
// next query on table, the way a writer committing between that read and
// the following write would.
func (f *fixture) afterNextRead(t *testing.T, table, sql string, args ...any) {
	t.Helper()
	name := "test:after_read:" + table
	fired := false
	err := f.db.Callback().Query().After("gorm:query").Register(name, func(db *gorm.DB) {
		if fired || db.Statement.Table != table {
			return
		}
		fired = true
		if err := db.Session(&gorm.Session{NewDB: true}).Exec(sql, args...).Error; err != nil {
			db.AddError(err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.db.Callback().Query().Remove(name) })
}

// hasStock reports whether ingredient id holds exactly want.
func (f *fixture) hasStock(t *testing.T, id uint, want float64) bool {
	t.Helper()
	return f.stockOf(t, id).Equal(decimal.NewFromFloat(want))
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Mesa 4"`, "Mesa 4"},
		{`4`, "4"},
		{`4.5`, "4.5"},
		{`null`, ""},
		{`"  7 "`, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f FlexString
			if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if f.String() != tt.want {
				t.Errorf("got %q, want %q", f.String(), tt.want)
			}
		})
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	tests := []struct {
		period string
		want   time.Time
	}{
		{PeriodToday, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{PeriodWeek, now.AddDate(0, 0, -7)},
		{PeriodMonth, now.AddDate(0, -1, 0)},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			if got := periodStart(tt.period, now); !got.Equal(tt.want) {
				t.Errorf("periodStart(%q) = %v, want %v", tt.period, got, tt.want)
			}
		})
	}
}

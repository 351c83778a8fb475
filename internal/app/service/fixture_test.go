package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/internal/db"
	"github.com/Elogic360/neatify/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cartFixture struct {
	db        *gorm.DB
	cartRepo  repository.CartRepository
	lifecycle CartLifecycle
	service   CartService
	clock     *fakeClock
	registry  *prometheus.Registry
}

func setupCartServiceTest(t *testing.T, opts ...ServiceOption) *cartFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	clock := newFakeClock()
	registry := prometheus.NewRegistry()
	cartMetrics := metrics.NewCartMetrics(registry)

	cartRepo := repository.NewCartRepository(testDB)
	productRepo := repository.NewProductRepository(testDB)

	lifecycle := NewCartLifecycle(cartRepo, LifecycleConfig{
		ExpirationWindow:   72 * time.Hour,
		HighValueThreshold: decimal.NewFromInt(100000),
	}, cartMetrics, WithLifecycleClock(clock.Now))

	opts = append([]ServiceOption{WithServiceClock(clock.Now)}, opts...)
	cartService := NewCartService(
		cartRepo,
		lifecycle,
		NewRepositoryCatalog(productRepo),
		ServiceConfig{MaxQuantityPerItem: 10, Pricing: DefaultPricing()},
		cartMetrics,
		opts...,
	)

	return &cartFixture{
		db:        testDB,
		cartRepo:  cartRepo,
		lifecycle: lifecycle,
		service:   cartService,
		clock:     clock,
		registry:  registry,
	}
}

func (f *cartFixture) createProduct(t *testing.T, name, price string, stock int, active bool) *model.Product {
	t.Helper()
	product := &model.Product{
		Name:     name,
		Slug:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: active,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *cartFixture) createVariation(t *testing.T, productID uint, stock *int, adjustment string) *model.ProductVariation {
	t.Helper()
	variation := &model.ProductVariation{
		ProductID:       productID,
		Name:            "Size",
		Value:           "L",
		Stock:           stock,
		PriceAdjustment: decimal.RequireFromString(adjustment),
	}
	require.NoError(t, f.db.Create(variation).Error)
	return variation
}

func (f *cartFixture) setStock(t *testing.T, productID uint, stock int) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", productID).Update("stock", stock).Error)
}

func (f *cartFixture) deactivate(t *testing.T, productID uint) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", productID).Update("is_active", false).Error)
}

func (f *cartFixture) resolve(t *testing.T, owner model.Owner) *model.Cart {
	t.Helper()
	cart, err := f.service.ResolveCart(testContext(), owner)
	require.NoError(t, err)
	return cart
}

func (f *cartFixture) reload(t *testing.T, cartID uint) *model.Cart {
	t.Helper()
	cart, err := f.cartRepo.FindByID(testContext(), cartID)
	require.NoError(t, err)
	return cart
}

// counterValue reads a counter from the fixture registry, 0 when absent.
func (f *cartFixture) counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metricLoop
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func uintPtr(v uint) *uint {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

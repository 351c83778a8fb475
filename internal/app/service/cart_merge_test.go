package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// seedItem writes an item directly, bypassing policy checks, to model carts
// whose contents became invalid after they were filled.
func (f *cartFixture) seedItem(t *testing.T, cart *model.Cart, product *model.Product, quantity int) {
	t.Helper()
	require.NoError(t, f.cartRepo.CreateItem(testContext(), &model.CartItem{
		CartID:    cart.ID,
		ProductID: product.ID,
		Quantity:  quantity,
		UnitPrice: product.Price,
	}))
}

func TestCartService_MergeSessionIntoUser_BestEffort(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	a := f.createProduct(t, "a", "20", 10, true)
	b := f.createProduct(t, "b", "30", 1, true)

	sessionCart := f.resolve(t, model.SessionOwner("guest"))
	f.seedItem(t, sessionCart, a, 2)
	f.seedItem(t, sessionCart, b, 999)

	userCart, err := f.service.MergeSessionIntoUser(ctx, 7, "guest")
	require.NoError(t, err)
	require.NotNil(t, userCart)
	assert.Equal(t, model.UserOwner(7), userCart.Owner())

	stored := f.reload(t, userCart.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, a.ID, stored.Items[0].ProductID)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.True(t, stored.Subtotal.Equal(dec("40")))

	assert.Equal(t, model.CartStatusConverted, f.reload(t, sessionCart.ID).Status)
	assert.Len(t, f.reload(t, sessionCart.ID).Items, 2, "session items are retained")
	assert.Equal(t, 1.0, f.counterValue(t, "cart_merge_skipped_items_total", map[string]string{"operation": "merge"}))
}

func TestCartService_MergeSessionIntoUser_AddsToExistingLines(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	a := f.createProduct(t, "a", "20", 50, true)
	c := f.createProduct(t, "c", "5", 50, true)

	userCart := f.resolve(t, model.UserOwner(7))
	_, err := f.service.AddItem(ctx, userCart, a.ID, nil, 9)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, userCart, c.ID, nil, 1)
	require.NoError(t, err)

	sessionCart := f.resolve(t, model.SessionOwner("guest"))
	_, err = f.service.AddItem(ctx, sessionCart, a.ID, nil, 2)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, sessionCart, c.ID, nil, 3)
	require.NoError(t, err)

	merged, err := f.service.MergeSessionIntoUser(ctx, 7, "guest")
	require.NoError(t, err)
	assert.Equal(t, userCart.ID, merged.ID)

	stored := f.reload(t, userCart.ID)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, 9, stored.Items[0].Quantity, "merge would exceed the cap and is skipped")
	assert.Equal(t, 4, stored.Items[1].Quantity)
}

func TestCartService_MergeSessionIntoUser_NothingToMerge(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	merged, err := f.service.MergeSessionIntoUser(ctx, 7, "unknown")
	require.NoError(t, err)
	assert.Nil(t, merged)

	empty := f.resolve(t, model.SessionOwner("empty"))
	merged, err = f.service.MergeSessionIntoUser(ctx, 7, "empty")
	require.NoError(t, err)
	assert.Nil(t, merged)
	assert.Equal(t, model.CartStatusActive, f.reload(t, empty.ID).Status)

	var count int64
	require.NoError(t, f.db.Model(&model.Cart{}).Where("user_id = ?", 7).Count(&count).Error)
	assert.Zero(t, count, "no user cart is created when there is nothing to merge")
}

func TestCartService_ConvertGuestToUser(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	a := f.createProduct(t, "a", "20", 10, true)
	old := f.createProduct(t, "old", "99", 10, true)

	userCart := f.resolve(t, model.UserOwner(3))
	_, err := f.service.AddItem(ctx, userCart, old.ID, nil, 1)
	require.NoError(t, err)

	guestCart := f.resolve(t, model.SessionOwner("guest"))
	_, err = f.service.AddItem(ctx, guestCart, a.ID, nil, 4)
	require.NoError(t, err)

	converted, err := f.service.ConvertGuestToUser(ctx, "guest", 3)
	require.NoError(t, err)
	assert.Equal(t, userCart.ID, converted.ID)

	stored := f.reload(t, userCart.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, a.ID, stored.Items[0].ProductID)
	assert.Equal(t, 4, stored.Items[0].Quantity)
	assert.True(t, stored.Subtotal.Equal(dec("80")))
	assert.Equal(t, model.CartStatusConverted, f.reload(t, guestCart.ID).Status)

	_, err = f.service.ConvertGuestToUser(ctx, "guest", 3)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestCartService_DetectOwnershipStatus(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	a := f.createProduct(t, "a", "20", 10, true)

	status, err := f.service.DetectOwnershipStatus(ctx, nil, "")
	require.NoError(t, err)
	assert.Equal(t, &OwnershipStatus{UserType: "guest"}, status)

	guestCart := f.resolve(t, model.SessionOwner("guest"))
	_, err = f.service.AddItem(ctx, guestCart, a.ID, nil, 1)
	require.NoError(t, err)

	status, err = f.service.DetectOwnershipStatus(ctx, uintPtr(9), "guest")
	require.NoError(t, err)
	assert.Equal(t, "registered", status.UserType)
	assert.True(t, status.HasSessionCart)
	assert.False(t, status.HasUserCart)
	assert.False(t, status.CanMerge)

	userCart := f.resolve(t, model.UserOwner(9))
	_, err = f.service.AddItem(ctx, userCart, a.ID, nil, 2)
	require.NoError(t, err)

	status, err = f.service.DetectOwnershipStatus(ctx, uintPtr(9), "guest")
	require.NoError(t, err)
	assert.True(t, status.HasUserCart)
	assert.Equal(t, 1, status.UserCartItems)
	assert.Equal(t, 1, status.SessionCartItems)
	assert.True(t, status.CanMerge)
	assert.True(t, status.RecommendMerge)
}

func TestCartService_DetectRelevantCarts(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	p1 := f.createProduct(t, "p1", "20", 10, true)
	p2 := f.createProduct(t, "p2", "20", 10, true)

	userCart := f.resolve(t, model.UserOwner(4))
	_, err := f.service.AddItem(ctx, userCart, p1.ID, nil, 3)
	require.NoError(t, err)

	guestCart := f.resolve(t, model.SessionOwner("guest"))
	_, err = f.service.AddItem(ctx, guestCart, p1.ID, nil, 1)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, guestCart, p2.ID, nil, 1)
	require.NoError(t, err)

	f.setStock(t, p1.ID, 2)

	result, err := f.service.DetectRelevantCarts(ctx, []uint{p1.ID}, uintPtr(4), "guest")
	require.NoError(t, err)
	assert.Equal(t, PriorityUser, result.CartPriority)
	assert.True(t, result.UserHasRelevantCart)
	assert.True(t, result.SessionHasRelevantCart)
	assert.True(t, result.RecommendSessionMerge)
	require.Len(t, result.RelevantUserItems, 1)
	assert.False(t, result.RelevantUserItems[0].InStock, "3 requested, 2 left")
	require.Len(t, result.RelevantSessionItems, 1)
	assert.True(t, result.RelevantSessionItems[0].InStock)

	result, err = f.service.DetectRelevantCarts(ctx, []uint{p2.ID}, nil, "guest")
	require.NoError(t, err)
	assert.Equal(t, PrioritySession, result.CartPriority)
	assert.False(t, result.RecommendSessionMerge)
	assert.Empty(t, result.RelevantUserItems)
}

func TestCartService_SmartCartForProducts(t *testing.T) {
	f := setupCartServiceTest(t, WithSessionTokens(func() string { return "minted-token" }))
	ctx := testContext()

	p1 := f.createProduct(t, "p1", "20", 10, true)

	smart, err := f.service.SmartCartForProducts(ctx, []uint{p1.ID}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, PrioritySession, smart.Source)
	assert.Equal(t, "minted-token", smart.SessionID)
	assert.Equal(t, model.SessionOwner("minted-token"), smart.Cart.Owner())

	smart, err = f.service.SmartCartForProducts(ctx, []uint{p1.ID}, uintPtr(5), "")
	require.NoError(t, err)
	assert.Equal(t, PriorityUser, smart.Source)
	assert.Empty(t, smart.SessionID)

	_, err = f.service.AddItem(ctx, smart.Cart, p1.ID, nil, 1)
	require.NoError(t, err)
	guest := f.resolve(t, model.SessionOwner("guest"))
	_, err = f.service.AddItem(ctx, guest, p1.ID, nil, 1)
	require.NoError(t, err)

	smart, err = f.service.SmartCartForProducts(ctx, []uint{p1.ID}, uintPtr(5), "guest")
	require.NoError(t, err)
	assert.Equal(t, PriorityUser, smart.Source, "user cart with matches wins")
	assert.True(t, smart.Detection.RecommendSessionMerge)
}

func TestCartService_SessionStatistics(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	stats, err := f.service.SessionStatistics(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.UniqueProducts)
	assert.Nil(t, stats.LastActivity)

	a := f.createProduct(t, "a", "12.50", 10, true)
	b := f.createProduct(t, "b", "3", 10, true)
	cart := f.resolve(t, model.SessionOwner("guest"))
	_, err = f.service.AddItem(ctx, cart, a.ID, nil, 2)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, cart, b.ID, nil, 3)
	require.NoError(t, err)

	stats, err = f.service.SessionStatistics(ctx, "guest")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalQuantity)
	assert.Equal(t, 2, stats.UniqueProducts)
	assert.True(t, stats.CartValue.Equal(dec("34")))
	assert.Equal(t, "active", stats.CartStatus)
	assert.Equal(t, 20, stats.EngagementScore)
	require.NotNil(t, stats.ExpiresAt)
}

// lookupBarrier holds every Lookup until all expected callers have read
// their cart, so they all act on the same snapshot.
type lookupBarrier struct {
	CartLifecycle
	wg *sync.WaitGroup
}

func (l *lookupBarrier) Lookup(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	cart, err := l.CartLifecycle.Lookup(ctx, owner)
	l.wg.Done()
	l.wg.Wait()
	return cart, err
}

func TestCartService_ConcurrentMergesTransferOnce(t *testing.T) {
	f := setupCartServiceTest(t)
	ctx := testContext()

	a := f.createProduct(t, "a", "20", 10, true)
	sessionCart := f.resolve(t, model.SessionOwner("guest"))
	_, err := f.service.AddItem(ctx, sessionCart, a.ID, nil, 2)
	require.NoError(t, err)

	const merges = 2
	var wg sync.WaitGroup
	wg.Add(merges)
	cartService := NewCartService(
		f.cartRepo,
		&lookupBarrier{CartLifecycle: f.lifecycle, wg: &wg},
		NewRepositoryCatalog(repository.NewProductRepository(f.db)),
		ServiceConfig{MaxQuantityPerItem: 10, Pricing: DefaultPricing()},
		metrics.NewCartMetrics(prometheus.NewRegistry()),
		WithServiceClock(f.clock.Now),
	)

	var (
		mu     sync.Mutex
		merged int
	)
	var g errgroup.Group
	for i := 0; i < merges; i++ {
		g.Go(func() error {
			cart, err := cartService.MergeSessionIntoUser(ctx, 7, "guest")
			if err != nil {
				return err
			}
			if cart != nil {
				mu.Lock()
				merged++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, merged)

	userCart := f.resolve(t, model.UserOwner(7))
	require.Len(t, userCart.Items, 1)
	assert.Equal(t, 2, userCart.Items[0].Quantity)
	assert.Equal(t, model.CartStatusConverted, f.reload(t, sessionCart.ID).Status)
	assert.Equal(t, 1.0, f.counterValue(t, "cart_converted_total", nil))

	_, err = f.service.AddItem(ctx, sessionCart, a.ID, nil, 1)
	assert.ErrorIs(t, err, ErrCartNotActive, "a claimed session cart takes no more items")
}

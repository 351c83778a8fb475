package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCartTest(t *testing.T) (*gorm.DB, CartRepository, *model.Product) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	repo := NewCartRepository(testDB)

	product := &model.Product{
		Name:     "Test Product",
		Price:    decimal.NewFromInt(50),
		Stock:    10,
		IsActive: true,
	}
	require.NoError(t, testDB.Create(product).Error)

	return testDB, repo, product
}

func createCart(t *testing.T, repo CartRepository, owner model.Owner, expiresAt time.Time) *model.Cart {
	t.Helper()
	cart := model.NewCart(owner, expiresAt)
	require.NoError(t, repo.Create(context.Background(), cart))
	require.NotZero(t, cart.ID)
	return cart
}

func TestCartRepository_CreateAndFindActiveByOwner(t *testing.T) {
	_, repo, _ := setupCartTest(t)
	ctx := context.Background()

	userCart := createCart(t, repo, model.UserOwner(7), time.Now().UTC().Add(time.Hour))
	sessionCart := createCart(t, repo, model.SessionOwner("guest-token"), time.Now().UTC().Add(time.Hour))

	found, err := repo.FindActiveByOwner(ctx, model.UserOwner(7))
	require.NoError(t, err)
	assert.Equal(t, userCart.ID, found.ID)
	assert.Equal(t, model.UserOwner(7), found.Owner())

	found, err = repo.FindActiveByOwner(ctx, model.SessionOwner("guest-token"))
	require.NoError(t, err)
	assert.Equal(t, sessionCart.ID, found.ID)
	assert.Nil(t, found.UserID)

	_, err = repo.FindActiveByOwner(ctx, model.UserOwner(8))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCartRepository_FindActiveByOwner_InvalidOwner(t *testing.T) {
	_, repo, _ := setupCartTest(t)

	_, err := repo.FindActiveByOwner(context.Background(), model.Owner{})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	_, err = repo.FindActiveByOwner(context.Background(), model.SessionOwner(""))
	assert.ErrorIs(t, err, ErrInvalidOwner)
}

func TestCartRepository_CreateDuplicateActive(t *testing.T) {
	_, repo, _ := setupCartTest(t)

	createCart(t, repo, model.UserOwner(1), time.Now().UTC().Add(time.Hour))

	err := repo.Create(context.Background(), model.NewCart(model.UserOwner(1), time.Now().UTC().Add(time.Hour)))
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestCartRepository_UpdateStatus(t *testing.T) {
	_, repo, _ := setupCartTest(t)
	ctx := context.Background()

	cart := createCart(t, repo, model.UserOwner(1), time.Now().UTC().Add(time.Hour))

	ok, err := repo.UpdateStatus(ctx, cart.ID, model.CartStatusActive, model.CartStatusConverted)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition from active no longer matches.
	ok, err = repo.UpdateStatus(ctx, cart.ID, model.CartStatusActive, model.CartStatusExpired)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusConverted, stored.Status)

	_, err = repo.FindActiveByOwner(ctx, model.UserOwner(1))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCartRepository_ExpireBefore(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := createCart(t, repo, model.UserOwner(1), now.Add(-2*time.Hour))
	fresh := createCart(t, repo, model.UserOwner(2), now.Add(2*time.Hour))
	require.NoError(t, repo.CreateItem(ctx, &model.CartItem{
		CartID: stale.ID, ProductID: product.ID, Quantity: 1, UnitPrice: product.Price,
	}))

	count, err := repo.ExpireBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Idempotent.
	count, err = repo.ExpireBefore(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)

	stored, err := repo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusExpired, stored.Status)
	assert.Len(t, stored.Items, 1, "items are retained on expiry")

	stored, err = repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusActive, stored.Status)
}

func TestCartRepository_ItemLifecycle(t *testing.T) {
	testDB, repo, product := setupCartTest(t)
	ctx := context.Background()

	cart := createCart(t, repo, model.SessionOwner("tok"), time.Now().UTC().Add(time.Hour))

	variation := &model.ProductVariation{ProductID: product.ID, Name: "Size", Value: "M"}
	require.NoError(t, testDB.Create(variation).Error)

	plain := &model.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 2, UnitPrice: product.Price}
	sized := &model.CartItem{CartID: cart.ID, ProductID: product.ID, VariationID: &variation.ID, Quantity: 1, UnitPrice: product.Price}
	require.NoError(t, repo.CreateItem(ctx, plain))
	require.NoError(t, repo.CreateItem(ctx, sized))

	found, err := repo.FindItemByLine(ctx, cart.ID, product.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, plain.ID, found.ID)

	found, err = repo.FindItemByLine(ctx, cart.ID, product.ID, &variation.ID)
	require.NoError(t, err)
	assert.Equal(t, sized.ID, found.ID)

	found.Quantity = 4
	require.NoError(t, repo.UpdateItem(ctx, found))

	items, err := repo.FindItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, plain.ID, items[0].ID)
	assert.Equal(t, 4, items[1].Quantity)

	_, err = repo.FindItemByID(ctx, cart.ID+1, plain.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.DeleteItem(ctx, cart.ID, plain.ID))
	assert.ErrorIs(t, repo.DeleteItem(ctx, cart.ID, plain.ID), gorm.ErrRecordNotFound)

	require.NoError(t, repo.DeleteItemsByCart(ctx, cart.ID))
	items, err = repo.FindItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCartRepository_SaveTotalsAndExpiration(t *testing.T) {
	_, repo, _ := setupCartTest(t)
	ctx := context.Background()

	cart := createCart(t, repo, model.UserOwner(3), time.Now().UTC().Add(time.Hour))
	cart.Subtotal = decimal.RequireFromString("100.00")
	cart.TaxAmount = decimal.RequireFromString("18.00")
	cart.Total = decimal.RequireFromString("118.00")
	code := "WELCOME"
	cart.PromoCode = &code
	require.NoError(t, repo.SaveTotals(ctx, cart))

	later := time.Now().UTC().Add(96 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.UpdateExpiration(ctx, cart.ID, later))

	stored, err := repo.FindByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, stored.Subtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, stored.TaxAmount.Equal(decimal.NewFromInt(18)))
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(118)))
	require.NotNil(t, stored.PromoCode)
	assert.Equal(t, "WELCOME", *stored.PromoCode)
	assert.True(t, stored.ExpiresAt.Equal(later))
}

func TestCartRepository_TransactionRollsBack(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()

	cart := createCart(t, repo, model.UserOwner(4), time.Now().UTC().Add(time.Hour))

	errBoom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx CartRepository) error {
		locked, err := tx.LockByID(ctx, cart.ID)
		if err != nil {
			return err
		}
		if err := tx.CreateItem(ctx, &model.CartItem{
			CartID: locked.ID, ProductID: product.ID, Quantity: 1, UnitPrice: product.Price,
		}); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	items, err := repo.FindItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCartRepository_LockActiveByOwner(t *testing.T) {
	_, repo, product := setupCartTest(t)
	ctx := context.Background()

	cart := createCart(t, repo, model.SessionOwner("lock-me"), time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.CreateItem(ctx, &model.CartItem{
		CartID: cart.ID, ProductID: product.ID, Quantity: 3, UnitPrice: product.Price,
	}))

	err := repo.Transaction(ctx, func(tx CartRepository) error {
		locked, err := tx.LockActiveByOwner(ctx, model.SessionOwner("lock-me"))
		require.NoError(t, err)
		assert.Equal(t, cart.ID, locked.ID)
		assert.Len(t, locked.Items, 1)
		return nil
	})
	require.NoError(t, err)
}

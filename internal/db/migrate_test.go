package db

import (
	"errors"
	"testing"
	"time"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMigrateSchema_OneActiveCartPerOwner(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(testDB)

	expires := time.Now().Add(time.Hour)
	require.NoError(t, testDB.Create(model.NewCart(model.UserOwner(1), expires)).Error)

	err = testDB.Create(model.NewCart(model.UserOwner(1), expires)).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	// A converted cart does not block a new active one.
	converted := model.NewCart(model.SessionOwner("tok"), expires)
	converted.Status = model.CartStatusConverted
	require.NoError(t, testDB.Create(converted).Error)
	require.NoError(t, testDB.Create(model.NewCart(model.SessionOwner("tok"), expires)).Error)
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(testDB)

	require.NoError(t, SeedCatalog(testDB))
	require.NoError(t, SeedCatalog(testDB))

	var count int64
	require.NoError(t, testDB.Model(&model.Product{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)

	var scarf model.Product
	require.NoError(t, testDB.Where("slug = ?", "discontinued-scarf").First(&scarf).Error)
	assert.False(t, scarf.IsActive)

	var variations int64
	require.NoError(t, testDB.Model(&model.ProductVariation{}).Count(&variations).Error)
	assert.Equal(t, int64(2), variations)
}

func TestTruncateAllTables(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(testDB)

	require.NoError(t, SeedCatalog(testDB))
	require.NoError(t, TruncateAllTables(testDB))

	var count int64
	require.NoError(t, testDB.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

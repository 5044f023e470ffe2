package stores

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

func TestRepositoryCreateAndList(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	group := &models.StoreGroup{Name: "Metro"}
	require.NoError(t, repo.CreateGroup(ctx, group))

	first := &models.Store{Code: "B-002", Name: "Clear View", GroupID: &group.ID, BaseDiscountRate: decimal.RequireFromString("7.5"), IsActive: true}
	second := &models.Store{Code: "A-001", Name: "Bright Optics", IsActive: false}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	loaded, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, loaded.BaseDiscountRate.Equal(decimal.RequireFromString("7.5")))
	require.NotNil(t, loaded.GroupID)
	assert.Equal(t, group.ID, *loaded.GroupID)

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A-001", all[0].Code)

	active, err := repo.List(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	byGroup, err := repo.List(ctx, ListFilter{GroupID: &group.ID})
	require.NoError(t, err)
	require.Len(t, byGroup, 1)

	searched, err := repo.List(ctx, ListFilter{Search: "bright"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, second.ID, searched[0].ID)

	byIDs, err := repo.FindByIDs(ctx, []uuid.UUID{first.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
}

func TestRepositoryDeleteGuardsLedgerHistory(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	store := &models.Store{Code: "A-001", Name: "Bright Optics", IsActive: true}
	require.NoError(t, repo.Create(ctx, store))
	require.NoError(t, conn.Create(&models.BrandDiscount{ID: uuid.New(), StoreID: store.ID, BrandID: uuid.New(), DiscountRate: decimal.NewFromInt(5)}).Error)
	require.NoError(t, conn.Create(&models.LedgerTransaction{
		ID:           uuid.New(),
		StoreID:      store.ID,
		Sequence:     1,
		Type:         enums.LedgerTransactionSale,
		Amount:       1000,
		Delta:        1000,
		BalanceAfter: 1000,
		ProcessedAt:  time.Now().UTC(),
	}).Error)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.DeleteWithTx(tx, store.ID)
	})
	assert.ErrorIs(t, err, ErrHasLedgerHistory)

	require.NoError(t, conn.Where("store_id = ?", store.ID).Delete(&models.LedgerTransaction{}).Error)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.DeleteWithTx(tx, store.ID)
	}))

	_, err = repo.FindByID(ctx, store.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var rules int64
	require.NoError(t, conn.Model(&models.BrandDiscount{}).Where("store_id = ?", store.ID).Count(&rules).Error)
	assert.Zero(t, rules)
}

func TestRepositoryDeleteMissingStore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.DeleteWithTx(tx, uuid.New())
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

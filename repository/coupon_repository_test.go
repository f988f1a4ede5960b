package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestStaticCouponRepository_CaseInsensitiveLookup(t *testing.T) {
	repo := repository.NewStaticCouponRepository(models.Coupon{
		Code:       "Welcome10",
		Type:       models.CouponTypePercentage,
		Value:      decimal.NewFromInt(10),
		ExpiresAt:  time.Now().Add(time.Hour),
		UsageLimit: 5,
	})

	for _, code := range []string{"WELCOME10", "welcome10", " Welcome10 "} {
		c, err := repo.FindByCode(context.Background(), code)
		require.NoError(t, err, code)
		assert.Equal(t, "WELCOME10", c.Code)
	}

	_, err := repo.FindByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrCouponNotFound)
}

func TestStaticCouponRepository_IncrementUsedCount(t *testing.T) {
	repo := repository.NewStaticCouponRepository(models.Coupon{Code: "ONCE", UsageLimit: 1})

	require.NoError(t, repo.IncrementUsedCount(context.Background(), "once"))
	c, _ := repo.FindByCode(context.Background(), "ONCE")
	assert.Equal(t, 1, c.UsedCount)

	assert.ErrorIs(t, repo.IncrementUsedCount(context.Background(), "missing"), repository.ErrCouponNotFound)
}

func TestStaticCouponRepository_ReturnsCopies(t *testing.T) {
	repo := repository.NewStaticCouponRepository(models.Coupon{Code: "COPY", UsageLimit: 3})

	c, _ := repo.FindByCode(context.Background(), "COPY")
	c.UsedCount = 99

	again, _ := repo.FindByCode(context.Background(), "COPY")
	assert.Equal(t, 0, again.UsedCount)

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGormCouponRepository_FindByCode(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "code", "type", "value", "expires_at", "usage_limit", "used_count", "created_at", "updated_at"}).
		AddRow(id, "SAVE10", "percentage", "10", now.Add(time.Hour), 100, 3, now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "coupons" WHERE UPPER(code) = $1`)).
		WillReturnRows(rows)

	c, err := repo.FindByCode(context.Background(), "save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, models.CouponTypePercentage, c.Type)
	assert.True(t, decimal.NewFromInt(10).Equal(c.Value))
	assert.Equal(t, 3, c.UsedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCouponRepository_FindByCode_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "coupons"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, err := repo.FindByCode(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrCouponNotFound)
	assert.Nil(t, c)
}

func TestGormCouponRepository_IncrementUsedCount(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "coupons" SET "used_count"=used_count + 1`)).
		WithArgs("SAVE10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.IncrementUsedCount(context.Background(), "save10"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCouponRepository_IncrementUsedCount_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "coupons"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.ErrorIs(t, repo.IncrementUsedCount(context.Background(), "ghost"), repository.ErrCouponNotFound)
}

package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrCouponNotFound is returned when no coupon matches a code.
var ErrCouponNotFound = errors.New("coupon not found")

// CouponRepository is the coupon catalog. Lookups are case-insensitive.
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	IncrementUsedCount(ctx context.Context, code string) error
	FindAll(ctx context.Context) ([]models.Coupon, error)
}

// GormCouponRepository implements CouponRepository using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository.
func NewGormCouponRepository(db *gorm.DB) CouponRepository {
	return &GormCouponRepository{db: db}
}

// Create inserts a new coupon; the code is stored upper-cased.
func (r *GormCouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	return r.db.WithContext(ctx).Create(coupon).Error
}

// FindByCode retrieves a coupon by its code (case-insensitive).
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", models.NormalizeCouponCode(code)).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// IncrementUsedCount atomically increments the used_count of a coupon.
func (r *GormCouponRepository) IncrementUsedCount(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("UPPER(code) = ?", models.NormalizeCouponCode(code)).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// FindAll lists the catalog ordered by code.
func (r *GormCouponRepository) FindAll(ctx context.Context) ([]models.Coupon, error) {
	var coupons []models.Coupon
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

// StaticCouponRepository is an in-memory catalog seeded at start-up.
type StaticCouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]*models.Coupon
}

func NewStaticCouponRepository(seed ...models.Coupon) *StaticCouponRepository {
	r := &StaticCouponRepository{coupons: make(map[string]*models.Coupon)}
	for i := range seed {
		c := seed[i]
		_ = r.Create(context.Background(), &c)
	}
	return r
}

func (r *StaticCouponRepository) Create(_ context.Context, coupon *models.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	c := *coupon

	r.mu.Lock()
	r.coupons[c.Code] = &c
	r.mu.Unlock()
	return nil
}

func (r *StaticCouponRepository) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, ErrCouponNotFound
	}
	out := *c
	return &out, nil
}

func (r *StaticCouponRepository) IncrementUsedCount(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return ErrCouponNotFound
	}
	c.UsedCount++
	return nil
}

func (r *StaticCouponRepository) FindAll(_ context.Context) ([]models.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

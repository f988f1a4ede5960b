package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/pkg/kvstore"
	"github.com/claudioc0/ecommerce0-sub001/pricing"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"go.uber.org/zap"
)

var couponCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// CartService defines cart operations. Totals are recomputed on every call
// and never stored.
type CartService interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	AddItem(ctx context.Context, userID string, req models.AddItemRequest) (*models.Cart, error)
	UpdateItem(ctx context.Context, userID string, req models.UpdateItemRequest) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string, variant models.Variant) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
	ApplyCoupon(ctx context.Context, userID, code string) (*models.ApplyCouponResponse, error)
	RemoveCoupon(ctx context.Context, userID string) (*models.Cart, error)
	Totals(ctx context.Context, userID string) (models.CartTotals, error)
}

type cartServiceImpl struct {
	store   kvstore.Store
	coupons repository.CouponRepository
	engine  *pricing.Engine
	now     func() time.Time
	logger  *zap.Logger
}

// NewCartService creates a new CartService backed by store.
func NewCartService(
	store kvstore.Store,
	coupons repository.CouponRepository,
	engine *pricing.Engine,
	now func() time.Time,
	logger *zap.Logger,
) CartService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cartServiceImpl{
		store:   store,
		coupons: coupons,
		engine:  engine,
		now:     now,
		logger:  logger,
	}
}

func cartKey(userID string) string {
	return "cart:user:" + userID
}

func (s *cartServiceImpl) load(ctx context.Context, userID string) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID}
	if _, err := kvstore.GetJSON(ctx, s.store, cartKey(userID), cart); err != nil {
		s.logger.Error("Failed to load cart", zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

func (s *cartServiceImpl) save(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = s.now()
	if err := kvstore.SetJSON(ctx, s.store, cartKey(cart.UserID), cart); err != nil {
		s.logger.Error("Failed to save cart", zap.String("user_id", cart.UserID), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return nil
}

// Get returns the cart for userID; a user without a stored cart gets an
// empty one.
func (s *cartServiceImpl) Get(ctx context.Context, userID string) (*models.Cart, error) {
	return s.load(ctx, userID)
}

// AddItem adds a product line, merging with an existing line of the same
// product and variant.
func (s *cartServiceImpl) AddItem(ctx context.Context, userID string, req models.AddItemRequest) (*models.Cart, error) {
	if req.Product.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "product id is required")
	}
	if req.Quantity < 1 {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "quantity must be at least 1")
	}
	if req.Product.UnitPrice.IsNegative() {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "unit price cannot be negative")
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := findLine(cart.Items, req.Product.ID, req.Variant)
	qty := req.Quantity
	if idx >= 0 {
		qty += cart.Items[idx].Quantity
	}
	if req.Product.Stock > 0 && qty > req.Product.Stock {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "only %d units of %s in stock", req.Product.Stock, req.Product.ID)
	}

	if idx >= 0 {
		cart.Items[idx].Quantity = qty
		cart.Items[idx].Product = req.Product
	} else {
		cart.Items = append(cart.Items, models.CartItem{
			Product:  req.Product,
			Quantity: qty,
			Variant:  req.Variant,
		})
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	s.logger.Debug("Cart item added",
		zap.String("user_id", userID),
		zap.String("product_id", req.Product.ID),
		zap.Int("quantity", qty),
	)
	return cart, nil
}

// UpdateItem sets the quantity of a line; a quantity of zero or less
// removes the line.
func (s *cartServiceImpl) UpdateItem(ctx context.Context, userID string, req models.UpdateItemRequest) (*models.Cart, error) {
	if req.Quantity <= 0 {
		return s.RemoveItem(ctx, userID, req.ProductID, req.Variant)
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := findLine(cart.Items, req.ProductID, req.Variant)
	if idx < 0 {
		return nil, apperrors.Wrapf(apperrors.ErrProductNotInCart, "product %s", req.ProductID)
	}
	if stock := cart.Items[idx].Product.Stock; stock > 0 && req.Quantity > stock {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "only %d units of %s in stock", stock, req.ProductID)
	}
	cart.Items[idx].Quantity = req.Quantity

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem deletes a line from the cart.
func (s *cartServiceImpl) RemoveItem(ctx context.Context, userID, productID string, variant models.Variant) (*models.Cart, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := findLine(cart.Items, productID, variant)
	if idx < 0 {
		return nil, apperrors.Wrapf(apperrors.ErrProductNotInCart, "product %s", productID)
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Clear drops the cart record, coupon reference included.
func (s *cartServiceImpl) Clear(ctx context.Context, userID string) error {
	if err := s.store.Remove(ctx, cartKey(userID)); err != nil {
		s.logger.Error("Failed to clear cart", zap.String("user_id", userID), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return nil
}

// ApplyCoupon validates code against the catalog and stores it on the cart.
// The returned discount is computed against the current cart contents.
func (s *cartServiceImpl) ApplyCoupon(ctx context.Context, userID, code string) (*models.ApplyCouponResponse, error) {
	if !couponCodePattern.MatchString(code) {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "malformed coupon code %q", code)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCoupon, "coupon %s not found", models.NormalizeCouponCode(code))
	}
	if err != nil {
		s.logger.Error("Coupon lookup failed", zap.String("code", code), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.ErrCatalogFailure, err)
	}

	now := s.now()
	if !coupon.IsValidAt(now) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidCoupon, errors.New(coupon.InvalidReason(now)))
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.CouponCode = coupon.Code
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	totals := s.engine.ComputeTotals(cart.Items, coupon, now)
	s.logger.Info("Coupon applied",
		zap.String("user_id", userID),
		zap.String("code", coupon.Code),
		zap.String("discount", totals.Discount.StringFixed(2)),
	)

	return &models.ApplyCouponResponse{
		Code:     coupon.Code,
		Type:     coupon.Type,
		Discount: totals.Discount,
		Totals:   totals,
	}, nil
}

// RemoveCoupon clears the coupon reference on the cart.
func (s *cartServiceImpl) RemoveCoupon(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.CouponCode == "" {
		return cart, nil
	}
	cart.CouponCode = ""
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Totals prices the current cart. A stored coupon that no longer exists or
// is no longer valid yields a zero discount.
func (s *cartServiceImpl) Totals(ctx context.Context, userID string) (models.CartTotals, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return models.CartTotals{}, err
	}
	coupon, err := lookupCoupon(ctx, s.coupons, cart.CouponCode)
	if err != nil {
		return models.CartTotals{}, err
	}
	return s.engine.ComputeTotals(cart.Items, coupon, s.now()), nil
}

// lookupCoupon resolves a stored coupon reference. An empty or unknown code
// is not an error; it resolves to no coupon.
func lookupCoupon(ctx context.Context, repo repository.CouponRepository, code string) (*models.Coupon, error) {
	if code == "" {
		return nil, nil
	}
	coupon, err := repo.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCatalogFailure, fmt.Errorf("coupon %s: %w", code, err))
	}
	return coupon, nil
}

func findLine(items []models.CartItem, productID string, v models.Variant) int {
	for i, it := range items {
		if it.SameLine(productID, v) {
			return i
		}
	}
	return -1
}

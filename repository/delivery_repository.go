package repository

import (
	"context"
	"sync"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"gorm.io/gorm"
)

// DeliveryRepository records outbound email/SMS attempts.
type DeliveryRepository interface {
	SaveLog(ctx context.Context, log *models.DeliveryLog) error
	GetLogs(ctx context.Context, filter models.DeliveryFilter) ([]models.DeliveryLog, int64, error)
}

type deliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

func (r *deliveryRepository) SaveLog(ctx context.Context, log *models.DeliveryLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *deliveryRepository) GetLogs(ctx context.Context, filter models.DeliveryFilter) ([]models.DeliveryLog, int64, error) {
	var logs []models.DeliveryLog
	var total int64

	filter = normalizeFilter(filter)

	query := r.db.WithContext(ctx).Model(&models.DeliveryLog{})

	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&logs).Error

	return logs, total, err
}

func normalizeFilter(filter models.DeliveryFilter) models.DeliveryFilter {
	if filter.PageSize < 1 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	return filter
}

// MemoryDeliveryRepository keeps delivery logs in memory, newest last.
type MemoryDeliveryRepository struct {
	mu   sync.Mutex
	logs []models.DeliveryLog
	next int64
}

func NewMemoryDeliveryRepository() *MemoryDeliveryRepository {
	return &MemoryDeliveryRepository{}
}

func (r *MemoryDeliveryRepository) SaveLog(_ context.Context, log *models.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	log.ID = r.next
	r.logs = append(r.logs, *log)
	return nil
}

func (r *MemoryDeliveryRepository) GetLogs(_ context.Context, filter models.DeliveryFilter) ([]models.DeliveryLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter = normalizeFilter(filter)

	var matched []models.DeliveryLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		l := r.logs[i]
		if filter.OrderID != "" && l.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && l.Channel != filter.Channel {
			continue
		}
		matched = append(matched, l)
	}

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return []models.DeliveryLog{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"anpr-watch/internal/domain/anpr"
)

type ANPRRepository struct {
	db *gorm.DB
}

func NewANPRRepository(db *gorm.DB) *ANPRRepository {
	return &ANPRRepository{db: db}
}

type Plate struct {
	ID         int64  `gorm:"primaryKey"`
	Number     string `gorm:"not null"`
	Normalized string `gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time
}

type ConfirmationRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlateID     *int64
	Plate       string         `gorm:"not null"`
	Mode        string         `gorm:"not null"`
	Frame       uint64         `gorm:"not null"`
	Registered  bool           `gorm:"not null"`
	Hit         bool           `gorm:"not null"`
	WarpedBox   datatypes.JSON `gorm:"type:jsonb"`
	ConfirmedAt time.Time      `gorm:"not null"`
	CreatedAt   time.Time
}

func (ConfirmationRow) TableName() string { return "confirmations" }

func (r *ANPRRepository) GetOrCreatePlate(ctx context.Context, normalized string) (int64, error) {
	var plate Plate
	err := r.db.WithContext(ctx).Where("normalized = ?", normalized).First(&plate).Error
	if err == nil {
		return plate.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, err
	}

	plate = Plate{
		Number:     normalized,
		Normalized: normalized,
		CreatedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&plate).Error; err != nil {
		return 0, err
	}
	return plate.ID, nil
}

// Record stores one confirmation event.
func (r *ANPRRepository) Record(ctx context.Context, c anpr.Confirmation) error {
	plateID, err := r.GetOrCreatePlate(ctx, c.Plate)
	if err != nil {
		return err
	}

	box, err := json.Marshal(c.Polygon)
	if err != nil {
		return err
	}

	row := ConfirmationRow{
		ID:          c.ID,
		PlateID:     &plateID,
		Plate:       c.Plate,
		Mode:        string(c.Mode),
		Frame:       c.Frame,
		Registered:  c.Registered,
		Hit:         c.Hit,
		WarpedBox:   datatypes.JSON(box),
		ConfirmedAt: c.At,
		CreatedAt:   time.Now(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *ANPRRepository) FindConfirmations(ctx context.Context, plate *string, hitsOnly bool, from, to *time.Time, limit, offset int) ([]anpr.Confirmation, error) {
	query := r.db.WithContext(ctx).Model(&ConfirmationRow{})

	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	if hitsOnly {
		query = query.Where("hit")
	}
	if from != nil {
		query = query.Where("confirmed_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("confirmed_at <= ?", *to)
	}

	query = query.Order("confirmed_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []ConfirmationRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]anpr.Confirmation, 0, len(rows))
	for _, row := range rows {
		c, err := row.toConfirmation()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (row ConfirmationRow) toConfirmation() (anpr.Confirmation, error) {
	c := anpr.Confirmation{
		ID:         row.ID,
		Plate:      row.Plate,
		Mode:       anpr.Mode(row.Mode),
		Frame:      row.Frame,
		Registered: row.Registered,
		Hit:        row.Hit,
		At:         row.ConfirmedAt,
	}
	if len(row.WarpedBox) > 0 {
		if err := json.Unmarshal(row.WarpedBox, &c.Polygon); err != nil {
			return anpr.Confirmation{}, fmt.Errorf("confirmation %s: decode warped_box: %w", row.ID, err)
		}
	}
	return c, nil
}

func (r *ANPRRepository) GetLastConfirmationTime(ctx context.Context, plate string) (*time.Time, error) {
	var row ConfirmationRow
	err := r.db.WithContext(ctx).
		Where("plate = ?", plate).
		Order("confirmed_at DESC").
		First(&row).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &row.ConfirmedAt, nil
}

// DeleteOlderThan removes confirmations older than the given number of days.
func (r *ANPRRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where("confirmed_at < ?", cutoff).
		Delete(&ConfirmationRow{})
	return res.RowsAffected, res.Error
}

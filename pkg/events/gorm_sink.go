package events

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// SecurityEvent is the persisted form of Event.
type SecurityEvent struct {
	ID        uint      `gorm:"primaryKey"`
	Type      string    `gorm:"index;not null"`
	IP        string    `gorm:"index"`
	UserAgent string    `gorm:"type:text"`
	Details   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}

// GormSink appends events to the security_events table.
type GormSink struct {
	db *gorm.DB
}

var _ Sink = (*GormSink)(nil)

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Migrate() error {
	return s.db.AutoMigrate(&SecurityEvent{})
}

func (s *GormSink) Write(ctx context.Context, ev Event) error {
	details := ""
	if len(ev.Details) > 0 {
		raw, err := json.Marshal(ev.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}

	row := SecurityEvent{
		Type:      string(ev.Type),
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Details:   details,
		Timestamp: ev.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Recent returns up to limit events, newest first, optionally filtered by type.
func (s *GormSink) Recent(ctx context.Context, limit int, eventType Type) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Order("timestamp desc").Order("id desc").Limit(limit)
	if eventType != "" {
		query = query.Where("type = ?", string(eventType))
	}

	var rows []SecurityEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev := Event{
			Type:      Type(row.Type),
			IP:        row.IP,
			UserAgent: row.UserAgent,
			Timestamp: row.Timestamp,
		}
		if row.Details != "" {
			_ = json.Unmarshal([]byte(row.Details), &ev.Details)
		}
		out = append(out, ev)
	}
	return out, nil
}

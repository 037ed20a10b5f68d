package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/maastricht-university/harmon/types"
)

type noteRow struct {
	Pos            uint64   `gorm:"primaryKey;autoIncrement"`
	ID             string   `gorm:"uniqueIndex;size:64"`
	ConversationID string   `gorm:"index;size:128"`
	Point          string   `gorm:"type:text"`
	Solutions      []string `gorm:"serializer:json"`
	Timestamp      time.Time
}

func (noteRow) TableName() string { return "notes" }

type segmentRow struct {
	Pos            uint64 `gorm:"primaryKey;autoIncrement"`
	ID             string `gorm:"uniqueIndex;size:64"`
	ConversationID string `gorm:"index;size:128"`
	Text           string `gorm:"type:text"`
	Sequence       uint64
	Timestamp      time.Time
}

func (segmentRow) TableName() string { return "transcript_segments" }

type discussionRow struct {
	ID      string `gorm:"primaryKey;size:128"`
	Title   string
	Created time.Time `gorm:"index"`
}

func (discussionRow) TableName() string { return "discussions" }

// SQL stores rows through gorm; Pos keeps insertion order.
type SQL struct {
	db *gorm.DB
}

func NewSQL(ctx context.Context, db *gorm.DB) (*SQL, error) {
	if err := db.WithContext(ctx).AutoMigrate(&discussionRow{}, &noteRow{}, &segmentRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) AppendNote(ctx context.Context, conversationID string, note types.Note) error {
	row := noteRow{
		ID:             orNewID(note.ID),
		ConversationID: conversationID,
		Point:          note.Point,
		Solutions:      note.Solutions,
		Timestamp:      note.Timestamp,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createDiscussion(tx, types.Discussion{ID: conversationID, Created: note.Timestamp}); err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return nil
	})
}

func (s *SQL) AppendTranscriptSegment(ctx context.Context, conversationID string, seg types.Segment) error {
	row := segmentRow{
		ID:             orNewID(seg.ID),
		ConversationID: conversationID,
		Text:           seg.Text,
		Sequence:       seg.Sequence,
		Timestamp:      seg.Timestamp,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createDiscussion(tx, types.Discussion{ID: conversationID, Created: seg.Timestamp}); err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
		return nil
	})
}

func (s *SQL) RecentSegments(ctx context.Context, conversationID string, limit int) ([]types.Segment, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("pos DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []segmentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select segments: %w", err)
	}
	slices.Reverse(rows)

	out := make([]types.Segment, len(rows))
	for i, r := range rows {
		out[i] = types.Segment{ID: r.ID, Text: r.Text, Sequence: r.Sequence, Timestamp: r.Timestamp}
	}
	return out, nil
}

func (s *SQL) Notes(ctx context.Context, conversationID string) ([]types.Note, error) {
	var rows []noteRow
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("pos ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select notes: %w", err)
	}
	out := make([]types.Note, len(rows))
	for i, r := range rows {
		out[i] = types.Note{ID: r.ID, Point: r.Point, Solutions: r.Solutions, Timestamp: r.Timestamp}
	}
	return out, nil
}

func (s *SQL) CreateDiscussion(ctx context.Context, d types.Discussion) error {
	return createDiscussion(s.db.WithContext(ctx), d)
}

func createDiscussion(db *gorm.DB, d types.Discussion) error {
	d = withCreated(d)
	row := discussionRow{ID: d.ID, Title: d.Title, Created: d.Created}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("insert discussion: %w", err)
	}
	return nil
}

func (s *SQL) Discussions(ctx context.Context) ([]types.Discussion, error) {
	var rows []discussionRow
	if err := s.db.WithContext(ctx).Order("created ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select discussions: %w", err)
	}
	out := make([]types.Discussion, len(rows))
	for i, r := range rows {
		out[i] = types.Discussion{ID: r.ID, Title: r.Title, Created: r.Created}
	}
	return out, nil
}

func orNewID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

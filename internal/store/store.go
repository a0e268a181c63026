package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/multiplayer-sessions/pkg/types"
)

// Session is the persisted form of an advertised session.
type Session struct {
	ID             string `gorm:"primaryKey;size:16"`
	Seq            int64  `gorm:"index"`
	MatchType      string `gorm:"size:64;index"`
	HostAddress    string `gorm:"size:255"`
	MaxConnections int
	NumPlayers     int
	Started        bool
	Attributes     map[string]string `gorm:"serializer:json;type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Store struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema.
func Open(dataSource string, debug bool) (*Store, error) {
	// By default only log errors, full SQL in debug mode
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(postgres.Open(dataSource), &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return New(db)
}

// New wraps an already opened database, e.g. sqlite in tests.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) SaveSession(ctx context.Context, ad types.SessionAd) error {
	db := s.db.WithContext(ctx)

	var existing []Session
	if err := db.Select("seq").Where("id = ?", ad.ID).Limit(1).Find(&existing).Error; err != nil {
		return fmt.Errorf("load session %s: %w", ad.ID, err)
	}

	row := fromAd(ad)
	if len(existing) > 0 {
		row.Seq = existing[0].Seq
	} else {
		var maxSeq int64
		if err := db.Model(&Session{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("next session seq: %w", err)
		}
		row.Seq = maxSeq + 1
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"match_type", "host_address", "max_connections", "num_players", "started", "attributes", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", ad.ID, err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns sessions in the order they were first saved.
func (s *Store) ListSessions(ctx context.Context) ([]types.SessionAd, error) {
	var rows []Session
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ads := make([]types.SessionAd, 0, len(rows))
	for _, r := range rows {
		ads = append(ads, r.toAd())
	}
	return ads, nil
}

func (s *Store) Close() error {
	database, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}

func fromAd(ad types.SessionAd) Session {
	return Session{
		ID:             ad.ID,
		MatchType:      ad.MatchType,
		HostAddress:    ad.HostAddress,
		MaxConnections: ad.MaxConnections,
		NumPlayers:     ad.NumPlayers,
		Started:        ad.Started,
		Attributes:     ad.Attributes,
	}
}

func (r Session) toAd() types.SessionAd {
	return types.SessionAd{
		ID:             r.ID,
		MatchType:      r.MatchType,
		HostAddress:    r.HostAddress,
		MaxConnections: r.MaxConnections,
		NumPlayers:     r.NumPlayers,
		Started:        r.Started,
		Attributes:     r.Attributes,
	}
}

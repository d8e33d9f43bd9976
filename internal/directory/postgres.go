package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// roomRow is the persisted form of a Summary.
type roomRow struct {
	SessionID  string `gorm:"primaryKey;size:64"`
	Code       string `gorm:"size:12;index"`
	RoomName   string `gorm:"size:255"`
	GameMode   string `gorm:"size:64;index"`
	MapName    string `gorm:"size:64"`
	Players    int
	MaxPlayers int
	State      string `gorm:"size:16"`
	IsPrivate  bool
	UpdatedAt  time.Time
}

func (roomRow) TableName() string { return "rooms" }

func toRow(s Summary) roomRow {
	return roomRow{
		SessionID:  s.SessionID,
		Code:       s.Code,
		RoomName:   s.RoomName,
		GameMode:   s.GameMode,
		MapName:    s.MapName,
		Players:    s.Players,
		MaxPlayers: s.MaxPlayers,
		State:      s.State,
		IsPrivate:  s.IsPrivate,
	}
}

func (r roomRow) toSummary() Summary {
	return Summary{
		SessionID:  r.SessionID,
		Code:       r.Code,
		RoomName:   r.RoomName,
		GameMode:   r.GameMode,
		MapName:    r.MapName,
		Players:    r.Players,
		MaxPlayers: r.MaxPlayers,
		State:      r.State,
		IsPrivate:  r.IsPrivate,
		UpdatedAt:  r.UpdatedAt,
	}
}

// Postgres is a Directory backed by a PostgreSQL table, so room listings
// survive process restarts when multiple frontends share a database.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens the database and migrates the rooms table.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}
	if err := db.AutoMigrate(&roomRow{}); err != nil {
		return nil, fmt.Errorf("migrating rooms table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Register implements Directory. Re-registering a session ID overwrites the
// stale row, which covers recovery after an unclean shutdown.
func (p *Postgres) Register(ctx context.Context, s Summary) error {
	if err := p.db.WithContext(ctx).Save(toRow(s)).Error; err != nil {
		return fmt.Errorf("registering room %s: %w", s.SessionID, err)
	}
	return nil
}

// Update implements Directory.
func (p *Postgres) Update(ctx context.Context, s Summary) error {
	res := p.db.WithContext(ctx).Model(&roomRow{}).
		Where("session_id = ?", s.SessionID).
		Updates(toRow(s))
	if res.Error != nil {
		return fmt.Errorf("updating room %s: %w", s.SessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownSession
	}
	return nil
}

// Deregister implements Directory.
func (p *Postgres) Deregister(ctx context.Context, sessionID string) error {
	res := p.db.WithContext(ctx).Delete(&roomRow{}, "session_id = ?", sessionID)
	if res.Error != nil {
		return fmt.Errorf("deregistering room %s: %w", sessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownSession
	}
	return nil
}

// Query implements Directory.
func (p *Postgres) Query(ctx context.Context, f Filter) ([]Summary, error) {
	q := p.db.WithContext(ctx).Model(&roomRow{}).Order("code")
	if f.GameMode != "" {
		q = q.Where("game_mode = ?", f.GameMode)
	}
	if f.HideFull {
		q = q.Where("players < max_players")
	}
	if f.HideInProgress {
		q = q.Where("state IN ?", []string{"waiting", "countdown"})
	}
	if f.HidePrivate {
		q = q.Where("is_private = ?", false)
	}

	var rows []roomRow
	if err := q.Find(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying rooms: %w", err)
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSummary())
	}
	return out, nil
}

package indexer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rbtchain/core/events"
	"rbtchain/core/types"
	"rbtchain/native/ringback"
)

const (
	KindArtist = "artist"
	KindFan    = "fan"
)

// Open connects to the indexer database. DSNs starting with postgres:// or
// postgresql:// use Postgres, anything else is treated as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer persists committed marketplace events for relational queries.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger}
}

// Emit implements events.Emitter. Failures are logged, never propagated,
// since the event has already been committed to state.
func (ix *Indexer) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if err := ix.Index(evt.Event()); err != nil {
		ix.logger.Error("indexer: failed to index event", "type", evt.EventType(), "error", err)
	}
}

// Index stores a single event. Replaying an event is a no-op.
func (ix *Indexer) Index(evt *types.Event) error {
	if evt == nil {
		return nil
	}
	switch evt.Type {
	case ringback.EventTypeArtistSignedUp:
		return ix.insert(&Profile{
			Address:    evt.Attr("profile"),
			Owner:      evt.Attr("owner"),
			Kind:       KindArtist,
			Name:       evt.Attr("name"),
			ProfileURL: evt.Attr("profileUrl"),
		})
	case ringback.EventTypeFanSignedUp:
		return ix.insert(&Profile{
			Address:    evt.Attr("profile"),
			Owner:      evt.Attr("owner"),
			Kind:       KindFan,
			Name:       evt.Attr("name"),
			ProfileURL: evt.Attr("profileUrl"),
		})
	case ringback.EventTypeToneUploaded:
		seq, err := parseUint(evt, "sequence")
		if err != nil {
			return err
		}
		code, err := strconv.ParseUint(evt.Attr("audioCode"), 10, 8)
		if err != nil {
			return fmt.Errorf("indexer: audioCode: %w", err)
		}
		price, err := parseUint(evt, "price")
		if err != nil {
			return err
		}
		created, err := parseUint(evt, "createdAt")
		if err != nil {
			return err
		}
		return ix.insert(&Tone{
			Address:    evt.Attr("tone"),
			Sequence:   seq,
			Artist:     evt.Attr("artist"),
			AudioName:  evt.Attr("audioName"),
			AudioCode:  uint8(code),
			AudioURL:   evt.Attr("audioUrl"),
			Price:      price,
			Duration:   evt.Attr("duration"),
			UploadedAt: int64(created),
		})
	case ringback.EventTypeToneSubscribed:
		seq, err := parseUint(evt, "sequence")
		if err != nil {
			return err
		}
		amount, err := parseUint(evt, "amount")
		if err != nil {
			return err
		}
		at, err := parseUint(evt, "subscribedAt")
		if err != nil {
			return err
		}
		return ix.insert(&Subscription{
			Address:      evt.Attr("subscription"),
			Tone:         evt.Attr("tone"),
			Sequence:     seq,
			Fan:          evt.Attr("fan"),
			Artist:       evt.Attr("artist"),
			Amount:       amount,
			SubscribedAt: int64(at),
		})
	default:
		return nil
	}
}

func (ix *Indexer) insert(row interface{}) error {
	return ix.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

func parseUint(evt *types.Event, key string) (uint64, error) {
	v, err := strconv.ParseUint(evt.Attr(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("indexer: %s: %w", key, err)
	}
	return v, nil
}

// SubscriptionFilter narrows ListSubscriptions. Empty fields match anything.
type SubscriptionFilter struct {
	Fan      string
	Artist   string
	Sequence *uint64
	Limit    int
}

// ListSubscriptions returns subscriptions ordered by time of subscription.
func (ix *Indexer) ListSubscriptions(filter SubscriptionFilter) ([]Subscription, error) {
	q := ix.db.Model(&Subscription{})
	if filter.Fan != "" {
		q = q.Where("fan = ?", filter.Fan)
	}
	if filter.Artist != "" {
		q = q.Where("artist = ?", filter.Artist)
	}
	if filter.Sequence != nil {
		q = q.Where("sequence = ?", *filter.Sequence)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Subscription
	if err := q.Order("subscribed_at asc, address asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TonesByArtist returns the tones uploaded by artist in sequence order.
func (ix *Indexer) TonesByArtist(artist string) ([]Tone, error) {
	var out []Tone
	err := ix.db.Where("artist = ?", artist).Order("sequence asc").Find(&out).Error
	return out, err
}

// Profile returns the indexed profile of owner with the given kind.
func (ix *Indexer) Profile(owner, kind string) (*Profile, bool, error) {
	var out Profile
	err := ix.db.Where("owner = ? AND kind = ?", owner, kind).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

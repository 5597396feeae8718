package indexer

import (
	"time"

	"gorm.io/gorm"
)

// Profile is an artist or fan profile.
type Profile struct {
	Address    string `gorm:"primaryKey;size:64"`
	Owner      string `gorm:"size:64;index"`
	Kind       string `gorm:"size:16;index"`
	Name       string `gorm:"size:32"`
	ProfileURL string `gorm:"size:255"`
	CreatedAt  time.Time
}

// Tone is an uploaded ring-back-tone.
type Tone struct {
	Address    string `gorm:"primaryKey;size:64"`
	Sequence   uint64 `gorm:"uniqueIndex"`
	Artist     string `gorm:"size:64;index"`
	AudioName  string `gorm:"size:32"`
	AudioCode  uint8
	AudioURL   string `gorm:"size:255"`
	Price      uint64
	Duration   string `gorm:"size:16"`
	UploadedAt int64
	CreatedAt  time.Time
}

// Subscription is one fan to tone link.
type Subscription struct {
	Address      string `gorm:"primaryKey;size:64"`
	Tone         string `gorm:"size:64;index"`
	Sequence     uint64 `gorm:"index"`
	Fan          string `gorm:"size:64;index"`
	Artist       string `gorm:"size:64;index"`
	Amount       uint64
	SubscribedAt int64
	CreatedAt    time.Time
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Profile{},
		&Tone{},
		&Subscription{},
	)
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const DateLayout = "2006-01-02"

// RateDay anchors the snapshots recorded for one calendar day (UTC).
type RateDay struct {
	Date      string    `gorm:"primaryKey;size:10"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RateDay) TableName() string { return "rate_days" }

// RateSnapshot rows are insert-only. Seq orders snapshots of one material
// within a day; the highest seq is the current rate.
type RateSnapshot struct {
	ID         snowflake.ID                           `gorm:"primaryKey"`
	Date       string                                 `gorm:"size:10;not null;uniqueIndex:ux_rate_snapshots_seq,priority:1"`
	Material   string                                 `gorm:"size:32;not null;uniqueIndex:ux_rate_snapshots_seq,priority:2"`
	Seq        int                                    `gorm:"not null;uniqueIndex:ux_rate_snapshots_seq,priority:3"`
	Values     datatypes.JSONType[map[string]float64] `gorm:"column:rates;not null"`
	RecordedAt time.Time                              `gorm:"not null"`
}

func (RateSnapshot) TableName() string { return "rate_snapshots" }

type Snapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Day is the read model: material -> snapshots in append order.
type Day struct {
	Date     string                `json:"date"`
	Products map[string][]Snapshot `json:"products"`
}

// Latest returns the most recently appended snapshot for material.
func (d *Day) Latest(material string) (Snapshot, bool) {
	if d == nil {
		return Snapshot{}, false
	}
	snaps := d.Products[material]
	if len(snaps) == 0 {
		return Snapshot{}, false
	}
	return snaps[len(snaps)-1], true
}

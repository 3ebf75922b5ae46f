package store

import (
	"time"

	"gorm.io/gorm"
)

// Event names an entry of the activity history.
type Event string

const (
	EventInstall   Event = "install"
	EventUninstall Event = "uninstall"
	EventUpgrade   Event = "upgrade"
	EventTest      Event = "test"
	EventFailed    Event = "failed"
)

// Metadata is free-form detail attached to an activity.
type Metadata map[string]interface{}

// Keg is the database record of an installed formula. There is at most one
// record per formula name.
type Keg struct {
	ID          int       `gorm:"primaryKey;not null" json:"-"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Version     string    `gorm:"not null" json:"version"`
	Prefix      string    `gorm:"not null" json:"prefix"`
	URL         string    `json:"url"`
	SHA256      string    `gorm:"column:sha256" json:"sha256"`
	FormulaPath string    `json:"formula_path"`
	InstallID   string    `gorm:"type:uuid" json:"install_id"`
	RuntimeDeps []string  `gorm:"serializer:json" json:"runtime_dependencies"`
	TestPassed  *bool     `json:"test_passed"`
	InstalledAt time.Time `gorm:"not null" json:"installed_at"`
}

// Activity is one entry of the install history.
type Activity struct {
	ID        int       `gorm:"primaryKey;not null" json:"-"`
	Event     Event     `gorm:"index;not null" json:"event"`
	Formula   string    `gorm:"index;not null" json:"formula"`
	Version   string    `json:"version"`
	Message   string    `json:"message"`
	Metadata  Metadata  `gorm:"serializer:json" json:"metadata"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// BeforeCreate stamps the activity with the current time, stored as UTC.
func (a *Activity) BeforeCreate(_ *gorm.DB) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Timestamp = a.Timestamp.UTC()
	if a.Metadata == nil {
		a.Metadata = Metadata{}
	}
	return nil
}

// BeforeCreate stores the install time as UTC.
func (k *Keg) BeforeCreate(_ *gorm.DB) error {
	if k.InstalledAt.IsZero() {
		k.InstalledAt = time.Now()
	}
	k.InstalledAt = k.InstalledAt.UTC()
	return nil
}

// DependsOn reports whether name is one of the keg's runtime dependencies.
func (k *Keg) DependsOn(name string) bool {
	for _, d := range k.RuntimeDeps {
		if d == name {
			return true
		}
	}
	return false
}

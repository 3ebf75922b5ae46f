// Package store records installed kegs and the install history in a local
// SQLite database, and reads and writes the receipt kept inside each keg.
package store

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maxgog/keg/internal/errs"
)

// Store is the keg database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// models.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: could not open database file")
	}
	if err := db.AutoMigrate(&Keg{}, &Activity{}); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Close())
}

// Get returns the record of the named keg, or an error of kind
// errs.ErrNotInstalled.
func (s *Store) Get(name string) (*Keg, error) {
	var k Keg
	err := s.db.Where("name = ?", name).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.ErrNotInstalled, nil, "formula", name)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &k, nil
}

// IsInstalled reports whether a record exists for name.
func (s *Store) IsInstalled(name string) bool {
	var n int64
	s.db.Model(&Keg{}).Where("name = ?", name).Count(&n)
	return n > 0
}

// List returns every installed keg ordered by name.
func (s *Store) List() ([]Keg, error) {
	var kegs []Keg
	if err := s.db.Order("name").Find(&kegs).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return kegs, nil
}

// Save records k, replacing any previous record of the same formula.
func (s *Store) Save(k *Keg) error {
	return errors.WithStack(s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", k.Name).Delete(&Keg{}).Error; err != nil {
			return err
		}
		k.ID = 0
		return tx.Create(k).Error
	}))
}

// SetTestResult records the outcome of the named keg's test.
func (s *Store) SetTestResult(name string, passed bool) error {
	res := s.db.Model(&Keg{}).Where("name = ?", name).Update("test_passed", passed)
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.E(errs.ErrNotInstalled, nil, "formula", name)
	}
	return nil
}

// Delete removes the record of the named keg.
func (s *Store) Delete(name string) error {
	return errors.WithStack(s.db.Where("name = ?", name).Delete(&Keg{}).Error)
}

// Dependents returns the names of installed kegs that need name at runtime.
func (s *Store) Dependents(name string) ([]string, error) {
	kegs, err := s.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for i := range kegs {
		if kegs[i].DependsOn(name) {
			names = append(names, kegs[i].Name)
		}
	}
	return names, nil
}

// Record appends an entry to the activity history.
func (s *Store) Record(a *Activity) error {
	return errors.WithStack(s.db.Create(a).Error)
}

// History returns the most recent activities, newest first. An empty
// formula selects every formula; limit <= 0 means no limit.
func (s *Store) History(formula string, limit int) ([]Activity, error) {
	q := s.db.Order("timestamp desc, id desc")
	if formula != "" {
		q = q.Where("formula = ?", formula)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var list []Activity
	if err := q.Find(&list).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return list, nil
}

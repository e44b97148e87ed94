package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ModificationHistory is one manual edit of a record field.
type ModificationHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`                         // Auto-incrementing primary key
	Owner         string    `gorm:"size:64;index;not null" json:"-"`              // Session the edit belongs to
	DocumentID    string    `gorm:"size:64;not null" json:"document_id"`          // Document holding the record
	RecordIndex   int       `gorm:"not null" json:"record_index"`                 // Row within the document
	ModField      string    `gorm:"size:255;not null" json:"field"`               // Field being modified
	PreviousValue string    `gorm:"size:1048576" json:"previous_value"`           // Previous value of the field
	NewValue      string    `gorm:"size:1048576" json:"new_value"`                // New value of the field
	Undone        bool      `gorm:"not null;default:false" json:"undone"`         // Whether the modification has been undone
	CreatedAt     time.Time `json:"created_at"`
}

// InitializeDB opens the SQLite database at path and migrates the schema.
// A "file:" DSN (such as the in-memory default) is passed through unchanged.
func InitializeDB(path string) (*gorm.DB, error) {
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create db directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&ModificationHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return db, nil
}

// InsertModification inserts a new modification record into the database
func InsertModification(db *gorm.DB, record *ModificationHistory) error {
	return db.Create(record).Error
}

// GetModifications returns the owner's modifications, newest first.
func GetModifications(db *gorm.DB, owner string) ([]ModificationHistory, error) {
	records := []ModificationHistory{}
	result := db.Where("owner = ?", owner).Order("id desc").Find(&records)
	return records, result.Error
}

// GetModification returns one of the owner's modifications.
func GetModification(db *gorm.DB, owner string, id uint) (*ModificationHistory, error) {
	var record ModificationHistory
	result := db.Where("owner = ?", owner).First(&record, id)
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

// SetModificationUndone marks the modification as undone.
func SetModificationUndone(db *gorm.DB, record *ModificationHistory) error {
	record.Undone = true
	return db.Model(record).Update("undone", true).Error
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

type boltBookBackup struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the bucket then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(config.BoltDB.FilePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create the database folder, %v", err)
	}
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BoltDB.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BoltDB.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltBookBackup provides the bolt-based replica of books.
func NewBoltBookBackup(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) BookBackup {
	return &boltBookBackup{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// backupKey is zero padded so keys sort by owner then by book id.
func backupKey(ownerID, id int64) []byte {
	return []byte(fmt.Sprintf("%020d:%020d", ownerID, id))
}

func ownerPrefix(ownerID int64) []byte {
	return []byte(fmt.Sprintf("%020d:", ownerID))
}

// Close shuts down the bolt database.
func (bb *boltBookBackup) Close() error {
	return bb.client.Close()
}

// Save inserts or replaces the copy of a book.
func (bb *boltBookBackup) Save(_ context.Context, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return bb.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bb.config.BucketName)).Put(backupKey(book.OwnerID, book.ID), bookBytes)
	})
}

// Get retrieves the copy of a book owned by ownerID.
func (bb *boltBookBackup) Get(_ context.Context, ownerID, id int64) (Book, error) {
	var book Book
	err := bb.client.View(func(tx *bolt.Tx) error {
		result := tx.Bucket([]byte(bb.config.BucketName)).Get(backupKey(ownerID, id))
		if result == nil {
			return ErrBookNotFound
		}
		return json.Unmarshal(result, &book)
	})
	if err != nil {
		return Book{}, err
	}
	return book, nil
}

// Delete removes the copy of a book. Deleting a missing key is not an error.
func (bb *boltBookBackup) Delete(_ context.Context, ownerID, id int64) error {
	return bb.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bb.config.BucketName)).Delete(backupKey(ownerID, id))
	})
}

// GetAllByOwner retrieves every copied book of an owner ordered by id.
func (bb *boltBookBackup) GetAllByOwner(_ context.Context, ownerID int64) ([]Book, error) {
	books := []Book{}
	prefix := ownerPrefix(ownerID)
	err := bb.client.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bb.config.BucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var book Book
			if err := json.Unmarshal(v, &book); err != nil {
				return err
			}
			books = append(books, book)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return books, nil
}

// Package database is the encrypted SQLite backing for the session store.
package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB is a session key/value database whose sensitive values are sealed with
// AES-GCM before they reach disk.
type DB struct {
	conn *sql.DB
	aead cipher.AEAD
}

// Options locate the database file and the key used to seal values
type Options struct {
	Path string
	Key  []byte
}

// Open opens the database at opts.Path, creating the file and its schema on
// first use. The key must be KeySize bytes.
func Open(opts Options) (*DB, error) {
	block, err := aes.NewCipher(opts.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// pragmas go in the DSN so every pooled connection gets them
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL", opts.Path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, aead: aead}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// seal returns base64(nonce || ciphertext)
func (db *DB) seal(plain []byte) (string, error) {
	nonce := make([]byte, db.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(db.aead.Seal(nonce, nonce, plain, nil)), nil
}

func (db *DB) unseal(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("sealed value is not base64: %w", err)
	}
	n := db.aead.NonceSize()
	if len(raw) < n {
		return nil, fmt.Errorf("sealed value is %d bytes, shorter than its nonce", len(raw))
	}
	plain, err := db.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal value: %w", err)
	}
	return plain, nil
}

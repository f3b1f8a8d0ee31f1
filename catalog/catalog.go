/*
Package catalog maintains an SQLite index of BLP textures.

Textures are keyed by the xxhash of their bytes and stored once, zstd
compressed, alongside the header fields. Every scan of a directory tree is
recorded as a run with its own UUID and each file found during the run is
linked to its texture.
*/
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bodgit/blp"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// Texture describes a catalogued texture.
type Texture struct {
	Hash        string
	Format      blp.Format
	Compression blp.Compression
	Encoding    blp.Encoding
	AlphaDepth  uint8
	Width       uint32
	Height      uint32
	Mips        int
	Size        int
	Paths       []string
}

// Catalog is a texture catalog backed by an SQLite database.
type Catalog struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the catalog stored in file.
func Open(file string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	// SQLite only allows one writer
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS scan (id TEXT PRIMARY KEY NOT NULL, root TEXT NOT NULL, started INTEGER NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS texture (id INTEGER PRIMARY KEY NOT NULL, hash TEXT NOT NULL UNIQUE, format INTEGER NOT NULL, compression INTEGER NOT NULL, encoding INTEGER NOT NULL, alpha_depth INTEGER NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, mips INTEGER NOT NULL, size INTEGER NOT NULL, data BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS location (scan_id TEXT NOT NULL, texture_id INTEGER NOT NULL, path TEXT NOT NULL, UNIQUE(scan_id, path), FOREIGN KEY(scan_id) REFERENCES scan(id), FOREIGN KEY(texture_id) REFERENCES texture(id))"); err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}

	return &Catalog{
		db:  db,
		enc: enc,
		dec: dec,
	}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// Hash returns the catalog key for the texture bytes in data.
func Hash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// BeginScan records a new scan of root and returns its identifier.
func (c *Catalog) BeginScan(root string) (string, error) {
	id := uuid.NewString()
	if _, err := c.db.Exec("INSERT INTO scan (id, root, started) VALUES (?, ?, ?)", id, root, time.Now().Unix()); err != nil {
		return "", err
	}
	return id, nil
}

// Add stores the texture in data, described by h, and records that it was
// found at path during the given scan. The texture hash is returned.
func (c *Catalog) Add(scan, path string, data []byte, h *blp.Header) (string, error) {
	hash := Hash(data)

	// Identical textures may be added concurrently, the first one wins
	if _, err := c.db.Exec("INSERT OR IGNORE INTO texture (hash, format, compression, encoding, alpha_depth, width, height, mips, size, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		hash, h.Format, h.Compression, h.Encoding, h.AlphaDepth, h.Width, h.Height, h.MipCount(), len(data), c.enc.EncodeAll(data, nil)); err != nil {
		return "", err
	}

	var id int64
	if err := c.db.QueryRow("SELECT id FROM texture WHERE hash = ?", hash).Scan(&id); err != nil {
		return "", err
	}

	if _, err := c.db.Exec("INSERT OR REPLACE INTO location (scan_id, texture_id, path) VALUES (?, ?, ?)", scan, id, path); err != nil {
		return "", err
	}

	return hash, nil
}

// Find returns the texture with the given hash, or nil if there isn't one.
func (c *Catalog) Find(hash string) (*Texture, error) {
	t := Texture{Hash: hash}
	var id int64
	switch err := c.db.QueryRow("SELECT id, format, compression, encoding, alpha_depth, width, height, mips, size FROM texture WHERE hash = ?", hash).Scan(&id, &t.Format, &t.Compression, &t.Encoding, &t.AlphaDepth, &t.Width, &t.Height, &t.Mips, &t.Size); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
	default:
		return nil, err
	}

	rows, err := c.db.Query("SELECT DISTINCT path FROM location WHERE texture_id = ? ORDER BY path", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		t.Paths = append(t.Paths, path)
	}

	return &t, rows.Err()
}

// Load returns the original bytes of the texture with the given hash, or nil
// if there isn't one.
func (c *Catalog) Load(hash string) ([]byte, error) {
	var data []byte
	switch err := c.db.QueryRow("SELECT data FROM texture WHERE hash = ?", hash).Scan(&data); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		b, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, err
		}
		if Hash(b) != hash {
			return nil, fmt.Errorf("catalog: texture %s is corrupt", hash)
		}
		return b, nil
	default:
		return nil, err
	}
}

// Count returns the number of textures and the number of locations recorded
// by the given scan.
func (c *Catalog) Count(scan string) (int, int, error) {
	var textures, locations int
	if err := c.db.QueryRow("SELECT COUNT(DISTINCT texture_id), COUNT(*) FROM location WHERE scan_id = ?", scan).Scan(&textures, &locations); err != nil {
		return 0, 0, err
	}
	return textures, locations, nil
}

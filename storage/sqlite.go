package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4"
	_ "modernc.org/sqlite"

	"terrasync/typedef"
)

// CanvasDB is the persistent local canvas tier, surviving process restarts.
// Payloads are stored as lz4-compressed JSON; any entry that fails to
// decompress or decode is treated as a cache miss and evicted.
type CanvasDB struct {
	db *sql.DB
}

const canvasSchema = `
CREATE TABLE IF NOT EXISTS canvases (
	territory_id TEXT PRIMARY KEY,
	payload      BLOB NOT NULL,
	updated_at   INTEGER NOT NULL
);`

// OpenCanvasDB opens (creating if needed) the canvas database at path.
func OpenCanvasDB(path string) (*CanvasDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open canvas db: %w", err)
	}
	// Single writer; sqlite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(canvasSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init canvas schema: %w", err)
	}
	return &CanvasDB{db: db}, nil
}

// Close releases the database handle.
func (cdb *CanvasDB) Close() error {
	return cdb.db.Close()
}

// Get loads the stored canvas for a territory. A missing or unreadable row
// reports (nil, false, nil).
func (cdb *CanvasDB) Get(ctx context.Context, territoryID string) (*typedef.PixelCanvas, bool, error) {
	var payload []byte
	err := cdb.db.QueryRowContext(ctx,
		`SELECT payload FROM canvases WHERE territory_id = ?`, territoryID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read canvas %s: %w", territoryID, err)
	}

	raw, err := decompressLZ4(payload)
	if err != nil {
		// Unreadable entries are misses, not errors.
		_ = cdb.Delete(ctx, territoryID)
		return nil, false, nil
	}
	var canvas typedef.PixelCanvas
	if err := json.Unmarshal(raw, &canvas); err != nil {
		_ = cdb.Delete(ctx, territoryID)
		return nil, false, nil
	}
	return &canvas, true, nil
}

// Put stores a canvas, replacing any previous payload for the territory.
func (cdb *CanvasDB) Put(ctx context.Context, canvas *typedef.PixelCanvas) error {
	raw, err := json.Marshal(canvas)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas %s: %w", canvas.TerritoryID, err)
	}
	payload, err := compressLZ4(raw)
	if err != nil {
		return fmt.Errorf("failed to compress canvas %s: %w", canvas.TerritoryID, err)
	}
	_, err = cdb.db.ExecContext(ctx,
		`INSERT INTO canvases (territory_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(territory_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		canvas.TerritoryID, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write canvas %s: %w", canvas.TerritoryID, err)
	}
	return nil
}

// Delete drops the stored canvas for a territory if present.
func (cdb *CanvasDB) Delete(ctx context.Context, territoryID string) error {
	_, err := cdb.db.ExecContext(ctx,
		`DELETE FROM canvases WHERE territory_id = ?`, territoryID)
	if err != nil {
		return fmt.Errorf("failed to delete canvas %s: %w", territoryID, err)
	}
	return nil
}

// compressLZ4 compresses data using LZ4
func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	_, err := writer.Write(data)
	if err != nil {
		writer.Close()
		return nil, err
	}

	err = writer.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressLZ4 decompresses LZ4 data
func decompressLZ4(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	_, err := io.Copy(&buf, reader)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

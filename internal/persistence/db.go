// Package persistence stores the edit journal and world metadata in SQLite.
// The map itself is never serialised: it is regenerated from the stored seed
// and the journal is replayed over it.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/world"
)

// Metadata keys.
const (
	MetaSeed    = "seed"
	MetaWidth   = "width"
	MetaHeight  = "height"
	MetaFlat    = "flat"
	MetaTerrain = "terrain" // JSON world.GenConfig
	MetaLimits  = "limits"  // JSON editor.Limits, widest ever used
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// StrokeRecord is one journaled stroke.
type StrokeRecord struct {
	Seq       int64         `db:"seq" json:"seq"`
	ID        string        `db:"stroke_id" json:"id"`
	CreatedAt int64         `db:"created_at" json:"created_at"` // Unix millis
	Points    int           `db:"points" json:"points"`
	Data      string        `db:"stroke_json" json:"-"`
	Stroke    editor.Stroke `db:"-" json:"stroke"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS strokes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		stroke_id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		points INTEGER NOT NULL,
		stroke_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_strokes_created ON strokes(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// AppendStroke journals a stroke under id, which must be a UUID.
func (db *DB) AppendStroke(id string, s editor.Stroke) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("stroke id %q: %w", id, err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stroke: %w", err)
	}
	points := len(s.Cells)
	if points == 0 {
		points = len(s.Positions)
	}
	_, err = db.conn.Exec(
		"INSERT INTO strokes (stroke_id, created_at, points, stroke_json) VALUES (?, ?, ?, ?)",
		id, time.Now().UnixMilli(), points, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert stroke: %w", err)
	}
	return nil
}

// LoadStrokes returns every journaled stroke in the order it was applied.
func (db *DB) LoadStrokes() ([]editor.Stroke, error) {
	var rows []string
	if err := db.conn.Select(&rows, "SELECT stroke_json FROM strokes ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("load strokes: %w", err)
	}
	out := make([]editor.Stroke, 0, len(rows))
	for i, data := range rows {
		var s editor.Stroke
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode stroke %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// RecentStrokes returns the latest limit strokes, newest first.
func (db *DB) RecentStrokes(limit int) ([]StrokeRecord, error) {
	var recs []StrokeRecord
	err := db.conn.Select(&recs,
		"SELECT seq, stroke_id, created_at, points, stroke_json FROM strokes ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent strokes: %w", err)
	}
	for i := range recs {
		if err := json.Unmarshal([]byte(recs[i].Data), &recs[i].Stroke); err != nil {
			return nil, fmt.Errorf("decode stroke %s: %w", recs[i].ID, err)
		}
	}
	return recs, nil
}

// StrokeCount returns the number of journaled strokes.
func (db *DB) StrokeCount() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM strokes")
	return n, err
}

// ClearStrokes empties the journal. Used when the world is regenerated.
func (db *DB) ClearStrokes() error {
	_, err := db.conn.Exec("DELETE FROM strokes")
	return err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// WorldMeta is the generation record needed to rebuild the map.
type WorldMeta struct {
	Seed    int64
	Width   int
	Height  int
	Flat    bool            // Generation skipped; every cell starts at elevation 0
	Terrain world.GenConfig // Generator settings; zero on databases that predate them
	Limits  editor.Limits   // Editor bounds the journal was recorded under
}

// SaveWorld records the generation parameters in one transaction.
func (db *DB) SaveWorld(m WorldMeta) error {
	terrain, err := json.Marshal(m.Terrain)
	if err != nil {
		return fmt.Errorf("encode terrain: %w", err)
	}
	limits, err := json.Marshal(m.Limits)
	if err != nil {
		return fmt.Errorf("encode limits: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		MetaSeed:    strconv.FormatInt(m.Seed, 10),
		MetaWidth:   strconv.Itoa(m.Width),
		MetaHeight:  strconv.Itoa(m.Height),
		MetaFlat:    strconv.FormatBool(m.Flat),
		MetaTerrain: string(terrain),
		MetaLimits:  string(limits),
	} {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// LoadWorld reads the generation record. ok is false on a fresh database.
func (db *DB) LoadWorld() (m WorldMeta, ok bool, err error) {
	seed, err := db.GetMeta(MetaSeed)
	if errors.Is(err, sql.ErrNoRows) {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("load seed: %w", err)
	}
	w, err := db.GetMeta(MetaWidth)
	if err != nil {
		return m, false, fmt.Errorf("load width: %w", err)
	}
	h, err := db.GetMeta(MetaHeight)
	if err != nil {
		return m, false, fmt.Errorf("load height: %w", err)
	}

	if m.Seed, err = strconv.ParseInt(seed, 10, 64); err != nil {
		return m, false, fmt.Errorf("parse seed: %w", err)
	}
	if m.Width, err = strconv.Atoi(w); err != nil {
		return m, false, fmt.Errorf("parse width: %w", err)
	}
	if m.Height, err = strconv.Atoi(h); err != nil {
		return m, false, fmt.Errorf("parse height: %w", err)
	}

	// Older databases have no flat key.
	flat, err := db.GetMeta(MetaFlat)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return m, false, fmt.Errorf("load flat: %w", err)
	default:
		if m.Flat, err = strconv.ParseBool(flat); err != nil {
			return m, false, fmt.Errorf("parse flat: %w", err)
		}
	}
	if err := db.getJSONMeta(MetaTerrain, &m.Terrain); err != nil {
		return m, false, err
	}
	if err := db.getJSONMeta(MetaLimits, &m.Limits); err != nil {
		return m, false, err
	}
	return m, true, nil
}

// WidenLimits merges lim into the stored limits, keeping the larger bound of
// each field, and returns the result. Every journaled stroke passed the
// limits active when it was recorded, so it also passes the widened ones.
func (db *DB) WidenLimits(lim editor.Limits) (editor.Limits, error) {
	var stored editor.Limits
	if err := db.getJSONMeta(MetaLimits, &stored); err != nil {
		return lim, err
	}
	merged := stored.Union(lim)
	if merged == stored {
		return merged, nil
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return lim, fmt.Errorf("encode limits: %w", err)
	}
	if err := db.SaveMeta(MetaLimits, string(data)); err != nil {
		return lim, fmt.Errorf("save limits: %w", err)
	}
	return merged, nil
}

// getJSONMeta decodes a JSON metadata value into v. A missing key leaves v
// untouched.
func (db *DB) getJSONMeta(key string, v any) error {
	data, err := db.GetMeta(key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

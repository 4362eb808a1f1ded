package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/sortir-go/internal/rag"
)

// FileName is the database file inside an index directory.
const FileName = "index.db"

// FormatVersion is bumped whenever the on-disk schema changes.
const FormatVersion = 1

// DefaultDir returns the default index directory, ~/.sortir/index, creating
// its parent if needed.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("index: could not determine home directory: %w", err)
	}
	parent := filepath.Join(home, ".sortir")
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return "", fmt.Errorf("index: could not create %s: %w", parent, err)
	}
	return filepath.Join(parent, "index"), nil
}

// ErrIndexLoad matches every *LoadError via errors.Is.
var ErrIndexLoad = errors.New("index: load failed")

// LoadError reports a persisted index that is absent or unusable. It is
// fatal at startup.
type LoadError struct {
	// Path is the index directory.
	Path string
	// Reason says what is wrong with it.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("index: load %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIndexLoad.
func (e *LoadError) Is(target error) bool { return target == ErrIndexLoad }

const schema = `
CREATE TABLE meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE chunks (
    position         INTEGER PRIMARY KEY,
    text             TEXT NOT NULL,
    event_id         TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL DEFAULT '',
    location_name    TEXT NOT NULL DEFAULT '',
    location_address TEXT NOT NULL DEFAULT '',
    firstdate_begin  TEXT NOT NULL DEFAULT '',
    lastdate_end     TEXT NOT NULL DEFAULT '',
    vector           BLOB NOT NULL
);
`

// Persist writes the index to dir. The database is written into a sibling
// temporary directory which then replaces dir, so readers never observe a
// half-written index.
func (f *Flat) Persist(ctx context.Context, dir string) error {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("index: persist: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("index: persist: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := f.writeDB(ctx, filepath.Join(tmp, FileName)); err != nil {
		return err
	}

	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = tmp + ".old"
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("index: persist: move previous index: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("index: persist: publish: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func (f *Flat) writeDB(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("index: persist: open %s: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("index: persist: schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: persist: begin: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version":  strconv.Itoa(FormatVersion),
		"dimension":       strconv.Itoa(f.dim),
		"count":           strconv.Itoa(len(f.chunks)),
		"embedding_model": f.info.Model,
		"built_at":        f.info.BuiltAt.UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("index: persist: meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (position, text, event_id, title, location_name, location_address,
                    firstdate_begin, lastdate_end, vector)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: persist: prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range f.chunks {
		m := c.Metadata
		if _, err := stmt.ExecContext(ctx, i, c.Text, m.ID, m.Title, m.LocationName,
			m.LocationAddress, m.FirstDateBegin, m.LastDateEnd, encodeVector(f.vectors[i])); err != nil {
			return fmt.Errorf("index: persist: chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: persist: commit: %w", err)
	}
	return nil
}

// Load reads an index written by [Flat.Persist]. Every failure is a
// *LoadError.
func Load(ctx context.Context, dir string) (*Flat, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Path: dir, Reason: "no index found", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &LoadError{Path: dir, Reason: "open database", Err: err}
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, &LoadError{Path: dir, Reason: "read metadata", Err: err}
	}
	if v := meta["format_version"]; v != strconv.Itoa(FormatVersion) {
		return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("unsupported format version %q (want %d)", v, FormatVersion)}
	}
	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil || dim < 0 {
		return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("invalid dimension %q", meta["dimension"])}
	}
	count, err := strconv.Atoi(meta["count"])
	if err != nil || count < 0 {
		return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("invalid count %q", meta["count"])}
	}

	f := New(dim)
	f.info.Model = meta["embedding_model"]
	if t, err := time.Parse(time.RFC3339, meta["built_at"]); err == nil {
		f.info.BuiltAt = t
	}

	rows, err := db.QueryContext(ctx, `
SELECT position, text, event_id, title, location_name, location_address,
       firstdate_begin, lastdate_end, vector
FROM   chunks
ORDER  BY position ASC`)
	if err != nil {
		return nil, &LoadError{Path: dir, Reason: "read chunks", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pos  int
			c    rag.Chunk
			blob []byte
		)
		m := &c.Metadata
		if err := rows.Scan(&pos, &c.Text, &m.ID, &m.Title, &m.LocationName,
			&m.LocationAddress, &m.FirstDateBegin, &m.LastDateEnd, &blob); err != nil {
			return nil, &LoadError{Path: dir, Reason: "scan chunk", Err: err}
		}
		if pos != f.Len() {
			return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("gap in chunk positions at %d", pos)}
		}
		vec, err := decodeVector(blob, dim)
		if err != nil {
			return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("chunk %d", pos), Err: err}
		}
		if err := f.Add(c, vec); err != nil {
			return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("chunk %d", pos), Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &LoadError{Path: dir, Reason: "read chunks", Err: err}
	}
	if f.Len() != count {
		return nil, &LoadError{Path: dir, Reason: fmt.Sprintf("expected %d chunks, found %d", count, f.Len())}
	}
	return f, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 0, 4*len(v))
	for _, x := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("%w: vector has %d bytes, want %d", ErrDimensionMismatch, len(b), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

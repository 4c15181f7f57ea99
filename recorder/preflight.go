package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// recordColumns are the snapshot_records columns this version writes.
var recordColumns = []string{"observed_at", "cpu", "mem", "gpu", "title", "artist", "position", "duration", "playing"}

// PreflightResult says what Preflight did with an existing history file.
type PreflightResult struct {
	// MovedTo is where the file was renamed, empty when it was kept.
	MovedTo string
	// Reason is "corrupt" or "schema" when the file was moved.
	Reason string
}

// Preflight inspects an existing history file before it is opened for
// writing. A file that fails quick_check, or whose snapshot table lacks a
// column this version writes, is renamed aside together with its WAL and
// journal files. A missing file passes. Only a timeout or a failed rename
// is an error.
func Preflight(path string, timeout time.Duration, logf func(string, ...any)) (PreflightResult, error) {
	if strings.TrimSpace(path) == "" {
		return PreflightResult{}, errors.New("preflight: empty path")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return PreflightResult{}, nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reason, detail := inspect(ctx, path)
	if reason == "" {
		return PreflightResult{}, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return PreflightResult{}, fmt.Errorf("preflight: %s timed out after %s", path, timeout)
	}
	moved, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return PreflightResult{}, fmt.Errorf("preflight: %w (%s: %v)", err, reason, detail)
	}
	if logf != nil {
		logf("Recorder: history file is %s (%v), moved to %s", reason, detail, moved)
	}
	return PreflightResult{MovedTo: moved, Reason: reason}, nil
}

// inspect returns "" when path is usable, else the reason and the detail.
func inspect(ctx context.Context, path string) (string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "corrupt", err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	var status string
	if err := db.QueryRowContext(ctx, "pragma quick_check").Scan(&status); err != nil {
		return "corrupt", err
	}
	if strings.TrimSpace(status) != "ok" {
		return "corrupt", fmt.Errorf("quick_check reported %q", status)
	}

	have, err := tableColumns(ctx, db, "snapshot_records")
	if err != nil {
		return "corrupt", err
	}
	if len(have) == 0 {
		return "", nil
	}
	for _, col := range recordColumns {
		if !have[col] {
			return "schema", fmt.Errorf("snapshot_records has no %s column", col)
		}
	}
	return "", nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "select name from pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// quarantine renames path and any sidecar files with a timestamp suffix and
// returns the new main file path.
func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	for _, side := range []string{"", "-wal", "-shm", "-journal"} {
		src := path + side
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, src+suffix); err != nil {
			return "", fmt.Errorf("quarantine %s: %w", src, err)
		}
	}
	return path + suffix, nil
}

package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"drawsync/core"
)

// ErrSceneNotCached is returned by Load for a session id with no cached
// scene.
var ErrSceneNotCached = errors.New("scene not cached")

// SceneCache persists the last non-deleted scene per session id so a reload
// can restore state before the network reconnects.
type SceneCache struct {
	db *sql.DB
}

// NewSceneCache opens (and if needed initializes) the cache database.
func NewSceneCache(dataSourceName string) (*SceneCache, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene cache: %w", err)
	}

	stmt := `CREATE TABLE IF NOT EXISTS scenes (
		session_id TEXT PRIMARY KEY,
		elements BLOB NOT NULL,
		app_state BLOB,
		updated_at DATETIME
	);`
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create scenes table: %w", err)
	}

	return &SceneCache{db: db}, nil
}

func (c *SceneCache) Save(ctx context.Context, sessionID string, elements []core.Element, appState json.RawMessage) error {
	data, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM scenes WHERE session_id = ?", sessionID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	now := time.Now()
	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE scenes SET elements = ?, app_state = ?, updated_at = ? WHERE session_id = ?",
			data, []byte(appState), now, sessionID)
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO scenes (session_id, elements, app_state, updated_at) VALUES (?, ?, ?, ?)",
			sessionID, data, []byte(appState), now)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (c *SceneCache) Load(ctx context.Context, sessionID string) ([]core.Element, json.RawMessage, error) {
	var data, appState []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT elements, app_state FROM scenes WHERE session_id = ?", sessionID).
		Scan(&data, &appState)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrSceneNotCached
		}
		return nil, nil, err
	}

	var elements []core.Element
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal cached scene: %w", err)
	}

	if len(appState) == 0 {
		return elements, nil, nil
	}
	return elements, json.RawMessage(appState), nil
}

func (c *SceneCache) Delete(ctx context.Context, sessionID string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM scenes WHERE session_id = ?", sessionID)
	return err
}

func (c *SceneCache) Close() error {
	return c.db.Close()
}

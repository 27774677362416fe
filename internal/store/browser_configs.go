package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ternarybob/netwatch/internal/models"
)

// ErrConfigNotFound is returned when a BrowserConfig row does not exist.
var ErrConfigNotFound = errors.New("browser config not found")

// BrowserConfigStore persists BrowserConfig rows (spec.md §3). Rows are
// created by callers and mutated only via RecordOutcome.
type BrowserConfigStore struct {
	db *DB
}

// NewBrowserConfigStore wraps db for BrowserConfig persistence.
func NewBrowserConfigStore(db *DB) *BrowserConfigStore {
	return &BrowserConfigStore{db: db}
}

// Create inserts a new BrowserConfig row.
func (s *BrowserConfigStore) Create(ctx context.Context, c *models.BrowserConfig) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO browser_configs (config_id, headless_mode, wait_strategy, user_agent, viewport_width, viewport_height,
		                              stealth_enabled, disable_automation_flag, total_attempts, success_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ConfigID, string(c.HeadlessMode), string(c.WaitStrategy), string(c.UserAgent),
		c.Viewport.Width, c.Viewport.Height, c.StealthEnabled, c.DisableAutomationFlag, c.TotalAttempts, c.SuccessCount,
	)
	if err != nil {
		return fmt.Errorf("create browser config %s: %w", c.ConfigID, err)
	}
	return nil
}

// RecordOutcome increments total_attempts, and success_count when success is true.
func (s *BrowserConfigStore) RecordOutcome(ctx context.Context, configID string, success bool) error {
	successDelta := 0
	if success {
		successDelta = 1
	}
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE browser_configs SET total_attempts = total_attempts + 1, success_count = success_count + ?
		WHERE config_id = ?`, successDelta, configID)
	if err != nil {
		return fmt.Errorf("record browser config outcome %s: %w", configID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("browser config %s: %w", configID, ErrConfigNotFound)
	}
	return nil
}

// Get returns a BrowserConfig row, or ErrConfigNotFound.
func (s *BrowserConfigStore) Get(ctx context.Context, configID string) (*models.BrowserConfig, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT config_id, headless_mode, wait_strategy, user_agent, viewport_width, viewport_height,
		       stealth_enabled, disable_automation_flag, total_attempts, success_count
		FROM browser_configs WHERE config_id = ?`, configID)

	var c models.BrowserConfig
	var headlessMode, waitStrategy, userAgent string
	err := row.Scan(&c.ConfigID, &headlessMode, &waitStrategy, &userAgent, &c.Viewport.Width, &c.Viewport.Height,
		&c.StealthEnabled, &c.DisableAutomationFlag, &c.TotalAttempts, &c.SuccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get browser config %s: %w", configID, err)
	}
	c.HeadlessMode = models.HeadlessMode(headlessMode)
	c.WaitStrategy = models.WaitStrategy(waitStrategy)
	c.UserAgent = models.UserAgentProfile(userAgent)
	return &c, nil
}

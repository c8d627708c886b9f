// Package sqlite implements model.AlarmStore against a local SQLite file,
// mirroring the relational alarm/condition schema the watcher's alarm
// registration surface is built on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"cryptowatcher/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite-backed AlarmStore.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/watcher.db"
}

// Store is a model.AlarmStore backed by SQLite. It is safe for concurrent
// reads; the registry is the only writer-side caller and only ever selects.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (creating if absent) the SQLite database at cfg.DBPath in WAL
// mode and ensures the alarm/condition schema exists.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alarm (
			alarm_id     INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id   TEXT    NOT NULL,
			exchange_id  INTEGER NOT NULL,
			base_symbol  TEXT    NOT NULL,
			quote_symbol TEXT    NOT NULL,
			is_enabled   INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS condition (
			alarm_id       INTEGER PRIMARY KEY,
			whale          TEXT,
			tick           TEXT,
			rsi            TEXT,
			bollinger_band TEXT,
			FOREIGN KEY (alarm_id) REFERENCES alarm(alarm_id)
		);

		CREATE INDEX IF NOT EXISTS idx_alarm_enabled ON alarm(is_enabled);
	`)
	return err
}

// SelectEnabledAlarms returns every alarm currently marked enabled.
func (s *Store) SelectEnabledAlarms(ctx context.Context) ([]model.AlarmRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alarm_id, channel_id, exchange_id, base_symbol, quote_symbol, is_enabled
		FROM alarm
		WHERE is_enabled = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("select enabled alarms: %w", err)
	}
	defer rows.Close()

	var out []model.AlarmRecord
	for rows.Next() {
		var rec model.AlarmRecord
		var exchangeID int
		var isEnabled int
		if err := rows.Scan(&rec.AlarmID, &rec.ChannelID, &exchangeID, &rec.BaseSymbol, &rec.QuoteSymbol, &isEnabled); err != nil {
			return nil, fmt.Errorf("scan alarm row: %w", err)
		}
		rec.ExchangeID = model.ExchangeID(exchangeID)
		rec.IsEnabled = isEnabled != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SelectCondition returns the sub-condition set for an alarm. A missing row
// is not an error — it yields a Condition with every sub-condition nil.
func (s *Store) SelectCondition(ctx context.Context, alarmID model.AlarmID) (model.Condition, error) {
	cond := model.Condition{AlarmID: alarmID}

	var whale, tick, rsi, bollinger sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT whale, tick, rsi, bollinger_band
		FROM condition
		WHERE alarm_id = ?
	`, alarmID).Scan(&whale, &tick, &rsi, &bollinger)
	if err == sql.ErrNoRows {
		return cond, nil
	}
	if err != nil {
		return cond, fmt.Errorf("select condition for alarm %d: %w", alarmID, err)
	}

	if whale.Valid {
		var w model.WhaleCondition
		if err := json.Unmarshal([]byte(whale.String), &w); err != nil {
			return cond, fmt.Errorf("decode whale condition for alarm %d: %w", alarmID, err)
		}
		cond.Whale = &w
	}
	if tick.Valid {
		var t model.TickCondition
		if err := json.Unmarshal([]byte(tick.String), &t); err != nil {
			return cond, fmt.Errorf("decode tick condition for alarm %d: %w", alarmID, err)
		}
		cond.Tick = &t
	}
	if rsi.Valid {
		var rc model.RsiCondition
		if err := json.Unmarshal([]byte(rsi.String), &rc); err != nil {
			return cond, fmt.Errorf("decode rsi condition for alarm %d: %w", alarmID, err)
		}
		cond.RSI = &rc
	}
	if bollinger.Valid {
		var b model.BollingerBandCondition
		if err := json.Unmarshal([]byte(bollinger.String), &b); err != nil {
			return cond, fmt.Errorf("decode bollinger band condition for alarm %d: %w", alarmID, err)
		}
		cond.BollingerBand = &b
	}

	return cond, nil
}

// InsertAlarm inserts a new alarm and its conditions, returning the
// generated alarm ID. Used by tests and any future control-plane surface
// that writes alarms directly against the store.
func (s *Store) InsertAlarm(ctx context.Context, rec model.AlarmRecord, cond model.Condition) (model.AlarmID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO alarm (channel_id, exchange_id, base_symbol, quote_symbol, is_enabled)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ChannelID, int(rec.ExchangeID), rec.BaseSymbol, rec.QuoteSymbol, boolToInt(rec.IsEnabled))
	if err != nil {
		return 0, fmt.Errorf("insert alarm: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert alarm id: %w", err)
	}

	whale, err := marshalCondition(cond.Whale)
	if err != nil {
		return 0, err
	}
	tick, err := marshalCondition(cond.Tick)
	if err != nil {
		return 0, err
	}
	rsi, err := marshalCondition(cond.RSI)
	if err != nil {
		return 0, err
	}
	bollinger, err := marshalCondition(cond.BollingerBand)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO condition (alarm_id, whale, tick, rsi, bollinger_band)
		VALUES (?, ?, ?, ?, ?)
	`, id, whale, tick, rsi, bollinger); err != nil {
		return 0, fmt.Errorf("insert condition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit alarm insert: %w", err)
	}
	return model.AlarmID(id), nil
}

// SetEnabled flips an alarm's is_enabled flag, letting the registry's next
// poll pick up the change.
func (s *Store) SetEnabled(ctx context.Context, alarmID model.AlarmID, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alarm SET is_enabled = ? WHERE alarm_id = ?`, boolToInt(enabled), alarmID)
	if err != nil {
		return fmt.Errorf("set alarm %d enabled=%v: %w", alarmID, enabled, err)
	}
	return nil
}

func marshalCondition[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal condition: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

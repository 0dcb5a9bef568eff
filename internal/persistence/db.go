// Package persistence provides SQLite-based storage for a settlement session:
// the discovery ledger, activity counters, engine counters and event log.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/engine"
)

// Unlock categories stored in the unlocks table.
const (
	unlockCapability = "capability"
	unlockStructure  = "structure"
	unlockResource   = "resource"
)

// Metadata keys.
const (
	MetaLastTick    = "last_tick"
	MetaSessionID   = "session_id"
	MetaSavedAt     = "saved_at"
	metaAccumulated = "discovery_accumulated"
	metaDryCycles   = "discovery_cycles_without"
	metaCycles      = "discovery_cycles"
)

// DB wraps a SQLite connection for session persistence.
type DB struct {
	conn *sqlx.DB
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

// inTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS discoveries (
		name TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS unlocks (
		category TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (category, tag)
	);

	CREATE TABLE IF NOT EXISTS activity_counts (
		activity TEXT PRIMARY KEY,
		count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS eligibility (
		name TEXT PRIMARY KEY,
		cycles INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveLedger replaces the stored ledger.
func (db *DB) SaveLedger(st discovery.LedgerState) error {
	return db.inTx(func(tx *sqlx.Tx) error { return saveLedger(tx, st) })
}

func saveLedger(tx *sqlx.Tx, st discovery.LedgerState) error {
	if _, err := tx.Exec("DELETE FROM discoveries"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM unlocks"); err != nil {
		return err
	}

	for i, name := range st.Completed {
		if _, err := tx.Exec("INSERT INTO discoveries (name, seq) VALUES (?, ?)", name, i); err != nil {
			return fmt.Errorf("insert discovery %q: %w", name, err)
		}
	}
	for cat, tags := range map[string][]string{
		unlockCapability: st.Capabilities,
		unlockStructure:  st.Structures,
		unlockResource:   st.Resources,
	} {
		for _, tag := range tags {
			if _, err := tx.Exec("INSERT INTO unlocks (category, tag) VALUES (?, ?)", cat, tag); err != nil {
				return fmt.Errorf("insert %s %q: %w", cat, tag, err)
			}
		}
	}
	return nil
}

// LoadLedger reads the stored ledger.
func (db *DB) LoadLedger() (discovery.LedgerState, error) {
	var st discovery.LedgerState
	if err := db.conn.Select(&st.Completed, "SELECT name FROM discoveries ORDER BY seq"); err != nil {
		return st, fmt.Errorf("load discoveries: %w", err)
	}

	var rows []struct {
		Category string `db:"category"`
		Tag      string `db:"tag"`
	}
	if err := db.conn.Select(&rows, "SELECT category, tag FROM unlocks ORDER BY category, tag"); err != nil {
		return st, fmt.Errorf("load unlocks: %w", err)
	}
	for _, r := range rows {
		switch r.Category {
		case unlockCapability:
			st.Capabilities = append(st.Capabilities, r.Tag)
		case unlockStructure:
			st.Structures = append(st.Structures, r.Tag)
		case unlockResource:
			st.Resources = append(st.Resources, r.Tag)
		}
	}
	return st, nil
}

// SaveActivity replaces the stored activity counts.
func (db *DB) SaveActivity(counts map[discovery.Activity]int) error {
	return db.inTx(func(tx *sqlx.Tx) error { return saveActivity(tx, counts) })
}

func saveActivity(tx *sqlx.Tx, counts map[discovery.Activity]int) error {
	if _, err := tx.Exec("DELETE FROM activity_counts"); err != nil {
		return err
	}
	stmt, err := tx.Preparex("INSERT INTO activity_counts (activity, count) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for act, n := range counts {
		if _, err := stmt.Exec(string(act), n); err != nil {
			return fmt.Errorf("insert activity %s: %w", act, err)
		}
	}
	return nil
}

// LoadActivity reads the stored activity counts.
func (db *DB) LoadActivity() (map[discovery.Activity]int, error) {
	var rows []struct {
		Activity string `db:"activity"`
		Count    int    `db:"count"`
	}
	if err := db.conn.Select(&rows, "SELECT activity, count FROM activity_counts"); err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	counts := make(map[discovery.Activity]int, len(rows))
	for _, r := range rows {
		counts[discovery.Activity(r.Activity)] = r.Count
	}
	return counts, nil
}

// SaveEngine stores the discovery engine counters.
func (db *DB) SaveEngine(st discovery.EngineState) error {
	return db.inTx(func(tx *sqlx.Tx) error { return saveEngine(tx, st) })
}

func saveEngine(tx *sqlx.Tx, st discovery.EngineState) error {
	if _, err := tx.Exec("DELETE FROM eligibility"); err != nil {
		return err
	}
	for name, n := range st.EligibleCycles {
		if _, err := tx.Exec("INSERT INTO eligibility (name, cycles) VALUES (?, ?)", name, n); err != nil {
			return fmt.Errorf("insert eligibility %q: %w", name, err)
		}
	}

	meta := map[string]string{
		metaAccumulated: strconv.FormatFloat(st.Accumulated, 'g', -1, 64),
		metaDryCycles:   strconv.Itoa(st.CyclesWithoutDiscovery),
		metaCycles:      strconv.FormatUint(st.Cycles, 10),
	}
	for k, v := range meta {
		if err := saveMeta(tx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// LoadEngine reads the discovery engine counters. Missing metadata reads as zero.
func (db *DB) LoadEngine() (discovery.EngineState, error) {
	st := discovery.EngineState{EligibleCycles: make(map[string]int)}

	var rows []struct {
		Name   string `db:"name"`
		Cycles int    `db:"cycles"`
	}
	if err := db.conn.Select(&rows, "SELECT name, cycles FROM eligibility"); err != nil {
		return st, fmt.Errorf("load eligibility: %w", err)
	}
	for _, r := range rows {
		st.EligibleCycles[r.Name] = r.Cycles
	}

	if v, err := db.metaOrEmpty(metaAccumulated); err != nil {
		return st, err
	} else if v != "" {
		if st.Accumulated, err = strconv.ParseFloat(v, 64); err != nil {
			return st, fmt.Errorf("parse %s: %w", metaAccumulated, err)
		}
	}
	if v, err := db.metaOrEmpty(metaDryCycles); err != nil {
		return st, err
	} else if v != "" {
		if st.CyclesWithoutDiscovery, err = strconv.Atoi(v); err != nil {
			return st, fmt.Errorf("parse %s: %w", metaDryCycles, err)
		}
	}
	if v, err := db.metaOrEmpty(metaCycles); err != nil {
		return st, err
	} else if v != "" {
		if st.Cycles, err = strconv.ParseUint(v, 10, 64); err != nil {
			return st, fmt.Errorf("parse %s: %w", metaCycles, err)
		}
	}
	return st, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}
	return db.inTx(func(tx *sqlx.Tx) error { return saveEvents(tx, events) })
}

func saveEvents(tx *sqlx.Tx, events []engine.Event) error {
	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecentEvents returns the most recent N events, oldest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM (SELECT * FROM events ORDER BY id DESC LIMIT ?) ORDER BY id",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	return saveMeta(db.conn, key, value)
}

func saveMeta(ex sqlx.Execer, key, value string) error {
	_, err := ex.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. Returns sql.ErrNoRows if absent.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func (db *DB) metaOrEmpty(key string) (string, error) {
	v, err := db.GetMeta(key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, nil
}

// HasSession reports whether a session has been saved.
func (db *DB) HasSession() bool {
	v, err := db.metaOrEmpty(MetaSessionID)
	return err == nil && v != ""
}

// SaveSession performs a full save of the session in one transaction.
// Pending events are acknowledged only after the commit succeeds.
func (db *DB) SaveSession(sim *engine.Simulation) error {
	ledger := sim.Ledger.Snapshot()
	events := sim.PendingEvents()
	tick := sim.CurrentTick()
	slog.Info("saving session", "discovered", len(ledger.Completed), "tick", tick, "events", len(events))

	err := db.inTx(func(tx *sqlx.Tx) error {
		if err := saveLedger(tx, ledger); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		if err := saveActivity(tx, sim.Tracker.Snapshot()); err != nil {
			return fmt.Errorf("save activity: %w", err)
		}
		if err := saveEngine(tx, sim.Discovery.Snapshot()); err != nil {
			return fmt.Errorf("save engine: %w", err)
		}
		if err := saveEvents(tx, events); err != nil {
			return fmt.Errorf("save events: %w", err)
		}
		meta := map[string]string{
			MetaLastTick:  strconv.FormatUint(tick, 10),
			MetaSessionID: sim.SessionID,
			MetaSavedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range meta {
			if err := saveMeta(tx, k, v); err != nil {
				return fmt.Errorf("save meta: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sim.AckEvents(len(events))
	return nil
}

// LoadSession restores a saved session into sim. Definitions must already
// be registered with sim.Discovery so eligibility entries can be matched.
func (db *DB) LoadSession(sim *engine.Simulation) error {
	ledger, err := db.LoadLedger()
	if err != nil {
		return err
	}
	activity, err := db.LoadActivity()
	if err != nil {
		return err
	}
	eng, err := db.LoadEngine()
	if err != nil {
		return err
	}
	events, err := db.RecentEvents(100)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	sim.Ledger.Restore(ledger)
	sim.Tracker.Restore(activity)
	sim.Discovery.Restore(eng)
	sim.LoadEvents(events)

	if v, err := db.metaOrEmpty(MetaLastTick); err != nil {
		return err
	} else if v != "" {
		tick, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", MetaLastTick, err)
		}
		sim.SetTick(tick)
	}
	if v, err := db.metaOrEmpty(MetaSessionID); err != nil {
		return err
	} else if v != "" {
		sim.SessionID = v
	}

	slog.Info("session restored",
		"session", sim.SessionID,
		"discovered", len(ledger.Completed),
		"tick", sim.CurrentTick(),
	)
	return nil
}

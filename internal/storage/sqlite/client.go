package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS city_master (
		city_id INTEGER PRIMARY KEY,
		city_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS typology_master (
		typology_id INTEGER PRIMARY KEY,
		typology_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS lever_master (
		lever_id INTEGER PRIMARY KEY,
		lever_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS category_master (
		category_id INTEGER PRIMARY KEY,
		category_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS measurement_unit_master (
		unit_id INTEGER PRIMARY KEY,
		unit_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS data_source_master (
		source_id INTEGER PRIMARY KEY,
		source_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS period_master (
		period_id INTEGER PRIMARY KEY,
		period_label TEXT NOT NULL,
		period_type TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_period_start ON period_master(start_date);

	CREATE TABLE IF NOT EXISTS store_master (
		id INTEGER PRIMARY KEY,
		store_code_sellin TEXT,
		store_code_sellout TEXT,
		store_name TEXT NOT NULL,
		city_id INTEGER NOT NULL,
		typology_id INTEGER NOT NULL,
		lever_id INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		start_date DATE,
		end_date DATE,
		FOREIGN KEY (city_id) REFERENCES city_master(city_id),
		FOREIGN KEY (typology_id) REFERENCES typology_master(typology_id),
		FOREIGN KEY (lever_id) REFERENCES lever_master(lever_id)
	);
	CREATE INDEX IF NOT EXISTS idx_store_typology_lever ON store_master(typology_id, lever_id);

	CREATE TABLE IF NOT EXISTS ab_test_result (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		unit_id INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		period_id INTEGER NOT NULL,
		value REAL,
		FOREIGN KEY (store_id) REFERENCES store_master(id),
		FOREIGN KEY (category_id) REFERENCES category_master(category_id),
		FOREIGN KEY (unit_id) REFERENCES measurement_unit_master(unit_id),
		FOREIGN KEY (source_id) REFERENCES data_source_master(source_id),
		FOREIGN KEY (period_id) REFERENCES period_master(period_id)
	);
	CREATE INDEX IF NOT EXISTS idx_result_filters ON ab_test_result(source_id, unit_id, category_id);
	CREATE INDEX IF NOT EXISTS idx_result_store ON ab_test_result(store_id);

	CREATE TABLE IF NOT EXISTS ab_test_summary (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		typology_id INTEGER NOT NULL,
		lever_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		unit_id INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		average_variation REAL,
		difference_vs_control REAL
	);

	CREATE TABLE IF NOT EXISTS capex_fee (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		typology_id INTEGER NOT NULL,
		lever_id INTEGER NOT NULL,
		capex REAL NOT NULL,
		fee REAL NOT NULL,
		UNIQUE (typology_id, lever_id)
	);

	CREATE TABLE IF NOT EXISTS ols_coefficient (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		typology_id INTEGER NOT NULL,
		feature_name TEXT NOT NULL,
		coefficient REAL NOT NULL,
		UNIQUE (typology_id, feature_name)
	);

	CREATE VIEW IF NOT EXISTS v_chatbot_complete AS
	SELECT
		r.id, r.value,
		s.id AS store_id, s.store_name, s.is_active,
		ci.city_name, t.typology_name, l.lever_name,
		c.category_name, u.unit_name, ds.source_name,
		p.period_label, p.period_type, p.start_date, p.end_date
	FROM ab_test_result r
	JOIN store_master s ON s.id = r.store_id
	JOIN city_master ci ON ci.city_id = s.city_id
	JOIN typology_master t ON t.typology_id = s.typology_id
	JOIN lever_master l ON l.lever_id = s.lever_id
	JOIN category_master c ON c.category_id = r.category_id
	JOIN measurement_unit_master u ON u.unit_id = r.unit_id
	JOIN data_source_master ds ON ds.source_id = r.source_id
	JOIN period_master p ON p.period_id = r.period_id;

	CREATE VIEW IF NOT EXISTS v_dashboard_summary AS
	SELECT
		ds.source_name, t.typology_name, l.lever_name,
		c.category_name, u.unit_name,
		sm.average_variation, sm.difference_vs_control
	FROM ab_test_summary sm
	JOIN typology_master t ON t.typology_id = sm.typology_id
	JOIN lever_master l ON l.lever_id = sm.lever_id
	JOIN category_master c ON c.category_id = sm.category_id
	JOIN measurement_unit_master u ON u.unit_id = sm.unit_id
	JOIN data_source_master ds ON ds.source_id = sm.source_id;

	CREATE VIEW IF NOT EXISTS v_evolution_timeline AS
	SELECT
		p.period_label, p.start_date, t.typology_name, l.lever_name,
		c.category_name, AVG(r.value) AS avg_value
	FROM ab_test_result r
	JOIN store_master s ON s.id = r.store_id
	JOIN typology_master t ON t.typology_id = s.typology_id
	JOIN lever_master l ON l.lever_id = s.lever_id
	JOIN category_master c ON c.category_id = r.category_id
	JOIN period_master p ON p.period_id = r.period_id
	GROUP BY p.period_label, p.start_date, t.typology_name, l.lever_name, c.category_name;
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

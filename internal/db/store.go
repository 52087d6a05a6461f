package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"smartclim/internal/util"
)

var (
	ErrEmptyAddress = errors.New("empty address")
	ErrNoReading    = errors.New("no reading stored")
)

// detection_count only grows once per window per device.
const detectionWindow = 30 * time.Minute

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec(`PRAGMA foreign_keys = ON;`)
	// SQLite is effectively single-writer; one connection avoids SQLITE_BUSY
	// when the scanner and the poller write concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{`
CREATE TABLE IF NOT EXISTS scan_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT,
	ended_at TEXT,
	adapter TEXT,
	mode TEXT,
	tag TEXT,
	gps_start TEXT
);`, `
CREATE TABLE IF NOT EXISTS devices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER,
	name TEXT,
	mac TEXT UNIQUE COLLATE NOCASE,
	mac_type TEXT,
	mac_subtype TEXT,
	rssi INTEGER,
	timestamp TEXT,
	adapter TEXT,
	source TEXT,
	vendor TEXT,
	manufacturer TEXT,
	model TEXT,
	firmware TEXT,
	detection_count INTEGER DEFAULT 1,
	last_count_update TEXT,
	tag TEXT
);`, `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER,
	mac TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	format TEXT,
	temperature REAL,
	humidity INTEGER,
	battery INTEGER,
	rssi INTEGER,
	lat REAL,
	lon REAL,
	gps TEXT,
	raw TEXT,
	FOREIGN KEY(mac) REFERENCES devices(mac) ON DELETE CASCADE
);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_mac_time ON readings(mac, timestamp);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	// Columns added after the first release.
	_ = execIgnore(s.db, ctx, `ALTER TABLE devices ADD COLUMN source TEXT`)
	_ = execIgnore(s.db, ctx, `ALTER TABLE devices ADD COLUMN vendor TEXT`)
	_ = execIgnore(s.db, ctx, `ALTER TABLE readings ADD COLUMN gps TEXT`)
	return nil
}

func execIgnore(db *sql.DB, ctx context.Context, q string) error {
	_, err := db.ExecContext(ctx, q)
	return err
}

func normalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

func (s *Store) CreateSession(ctx context.Context, adapter, mode string, tag *string, gpsStart *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `INSERT INTO scan_sessions (started_at, adapter, mode, tag, gps_start) VALUES (?, ?, ?, ?, ?)`,
		util.NowTimestamp(),
		adapter,
		mode,
		optString(tag),
		optString(gpsStart),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) EndSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE scan_sessions SET ended_at = ? WHERE id = ?`, util.NowTimestamp(), id)
	return err
}

func (s *Store) DeviceExists(ctx context.Context, mac string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mac = normalizeMAC(mac)
	if mac == "" {
		return false, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE mac = ?`, mac).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveParams describes a device observation. Nil fields leave the stored
// value untouched on update.
type SaveParams struct {
	SessionID    *int64
	Name         *string
	MAC          string
	MACType      *string
	MACSubType   *string
	RSSI         *int
	Timestamp    *string
	Adapter      *string
	Source       *string
	Vendor       *string
	Manufacturer *string
	Model        *string
	Firmware     *string
	Tag          *string
}

// SaveDevice inserts a device or updates the existing row for the same MAC.
func (s *Store) SaveDevice(ctx context.Context, p SaveParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.MAC = normalizeMAC(p.MAC)
	if p.MAC == "" {
		return ErrEmptyAddress
	}
	if p.Timestamp == nil {
		ts := util.NowTimestamp()
		p.Timestamp = &ts
	}

	var count int
	var lastCountUpdate sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT detection_count, last_count_update FROM devices WHERE mac = ?`, p.MAC).
		Scan(&count, &lastCountUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return s.insertDevice(ctx, p)
	}
	if err != nil {
		return err
	}

	lastUpdate := lastCountUpdate.String
	if countsAsNewDetection(lastUpdate, *p.Timestamp) {
		count++
		lastUpdate = *p.Timestamp
	}

	fields := make([]string, 0, 16)
	args := make([]any, 0, 16)
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+" = ?")
			args = append(args, *v)
		}
	}
	set("name", p.Name)
	set("mac_type", p.MACType)
	set("mac_subtype", p.MACSubType)
	set("timestamp", p.Timestamp)
	set("adapter", p.Adapter)
	set("source", p.Source)
	set("vendor", p.Vendor)
	set("manufacturer", p.Manufacturer)
	set("model", p.Model)
	set("firmware", p.Firmware)
	set("tag", p.Tag)
	if p.SessionID != nil {
		fields = append(fields, "session_id = ?")
		args = append(args, *p.SessionID)
	}
	if p.RSSI != nil {
		fields = append(fields, "rssi = ?")
		args = append(args, *p.RSSI)
	}
	fields = append(fields, "detection_count = ?", "last_count_update = ?")
	args = append(args, count, lastUpdate, p.MAC)

	q := fmt.Sprintf("UPDATE devices SET %s WHERE mac = ?", strings.Join(fields, ", "))
	_, err = s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *Store) insertDevice(ctx context.Context, p SaveParams) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO devices (
	session_id, name, mac, mac_type, mac_subtype, rssi, timestamp, adapter, source,
	vendor, manufacturer, model, firmware, detection_count, last_count_update, tag
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		optInt64(p.SessionID),
		optString(p.Name),
		p.MAC,
		optString(p.MACType),
		optString(p.MACSubType),
		optInt(p.RSSI),
		optString(p.Timestamp),
		optString(p.Adapter),
		optString(p.Source),
		optString(p.Vendor),
		optString(p.Manufacturer),
		optString(p.Model),
		optString(p.Firmware),
		1,
		optString(p.Timestamp),
		optString(p.Tag),
	)
	return err
}

func countsAsNewDetection(last, cur string) bool {
	if last == "" {
		return true
	}
	prev, err := time.Parse(util.TimestampLayout, last)
	now, err2 := time.Parse(util.TimestampLayout, cur)
	if err != nil || err2 != nil {
		return true
	}
	return now.Sub(prev) >= detectionWindow
}

type ReadingParams struct {
	SessionID   *int64
	MAC         string
	Timestamp   string
	Format      string
	Temperature float64
	Humidity    int
	Battery     int
	RSSI        *int
	Lat         *float64
	Lon         *float64
	GPS         *string
	Raw         *string
}

// InsertReading appends a decoded reading. The device row must exist.
func (s *Store) InsertReading(ctx context.Context, p ReadingParams) (int64, error) {
	mac := normalizeMAC(p.MAC)
	if mac == "" {
		return 0, ErrEmptyAddress
	}
	if p.Timestamp == "" {
		p.Timestamp = util.NowTimestamp()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
INSERT INTO readings (session_id, mac, timestamp, format, temperature, humidity, battery, rssi, lat, lon, gps, raw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		optInt64(p.SessionID),
		mac,
		p.Timestamp,
		p.Format,
		p.Temperature,
		p.Humidity,
		p.Battery,
		optInt(p.RSSI),
		optFloat64(p.Lat),
		optFloat64(p.Lon),
		optString(p.GPS),
		optString(p.Raw),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type Reading struct {
	ID          int64
	SessionID   sql.NullInt64
	MAC         string
	Timestamp   string
	Format      string
	Temperature float64
	Humidity    int
	Battery     int
	RSSI        sql.NullInt64
	Lat         sql.NullFloat64
	Lon         sql.NullFloat64
	Raw         sql.NullString
}

const readingColumns = `id, session_id, mac, timestamp, format, temperature, humidity, battery, rssi, lat, lon, raw`

func scanReading(sc interface{ Scan(...any) error }) (Reading, error) {
	var r Reading
	var format sql.NullString
	err := sc.Scan(&r.ID, &r.SessionID, &r.MAC, &r.Timestamp, &format, &r.Temperature, &r.Humidity, &r.Battery,
		&r.RSSI, &r.Lat, &r.Lon, &r.Raw)
	r.Format = format.String
	return r, err
}

// LatestReading returns the newest reading for mac or ErrNoReading.
func (s *Store) LatestReading(ctx context.Context, mac string) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+readingColumns+` FROM readings WHERE mac = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		normalizeMAC(mac))
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, fmt.Errorf("%s: %w", normalizeMAC(mac), ErrNoReading)
	}
	return r, err
}

// Readings returns up to limit readings for mac, newest first.
func (s *Store) Readings(ctx context.Context, mac string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+readingColumns+` FROM readings WHERE mac = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		normalizeMAC(mac), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type Device struct {
	MAC            string
	Name           string
	Manufacturer   string
	Model          string
	Firmware       string
	DetectionCount int
	LastSeen       string
}

func (s *Store) Devices(ctx context.Context) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT mac, COALESCE(name, ''), COALESCE(manufacturer, ''), COALESCE(model, ''), COALESCE(firmware, ''),
	COALESCE(detection_count, 0), COALESCE(timestamp, '')
FROM devices ORDER BY mac`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.MAC, &d.Name, &d.Manufacturer, &d.Model, &d.Firmware, &d.DetectionCount, &d.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type Statistics struct {
	Devices      int
	NamedDevices int
	Readings     int
	Sessions     int
}

func (s *Store) GetStatistics(ctx context.Context) (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Statistics
	queries := []struct {
		q   string
		dst *int
	}{
		{`SELECT COUNT(*) FROM devices`, &st.Devices},
		{`SELECT COUNT(*) FROM devices WHERE name IS NOT NULL AND name != 'Unknown'`, &st.NamedDevices},
		{`SELECT COUNT(*) FROM readings`, &st.Readings},
		{`SELECT COUNT(*) FROM scan_sessions`, &st.Sessions},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.q).Scan(q.dst); err != nil {
			return Statistics{}, err
		}
	}
	return st, nil
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optFloat64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

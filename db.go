package main

import (
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errNotFound = errors.New("not found")
var errDuplicate = errors.New("already exists")

// Store interface for database operations
type Store interface {
	Init() error
	// Operator operations
	CreateOperator(op *Operator) (*Operator, error)
	GetOperatorByFingerprintID(fingerprintID int) (*Operator, error)
	GetOperatorByRealID(realID string) (*Operator, error)
	ListOperators(search, statusFilter string) ([]*Operator, error)
	SaveOperator(op *Operator) error
	DeleteOperator(fingerprintID int) error
	NextPendingOperator() (*Operator, error)
	// Usage log operations
	CreateUsageLog(l *UsageLog) (*UsageLog, error)
	ListUsageLogs(skip, limit int) ([]*UsageLog, error)
	// Token blacklist operations
	BlacklistToken(token string, expiresAt time.Time) error
	IsTokenBlacklisted(token string) (bool, error)
	PurgeExpiredTokens(now time.Time) (int64, error)
	// Dashboard aggregates
	DashboardStats(now time.Time) (*DashboardStats, error)
}

// Memory store
type MemStore struct {
	mu        sync.Mutex
	operators map[int]*Operator
	logs      []*UsageLog
	blacklist map[string]*BlacklistedToken
	opSeq     int64
	logSeq    int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		operators: map[int]*Operator{},
		blacklist: map[string]*BlacklistedToken{},
		opSeq:     1,
		logSeq:    1,
	}
}

func (m *MemStore) Init() error { return nil }

func (m *MemStore) CreateOperator(op *Operator) (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.operators[op.FingerprintID]; ok {
		return nil, errDuplicate
	}
	if op.Email != nil {
		for _, other := range m.operators {
			if other.Email != nil && *other.Email == *op.Email {
				return nil, errDuplicate
			}
		}
	}
	c := *op
	c.ID = m.opSeq
	m.opSeq++
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.operators[c.FingerprintID] = &c
	out := c
	return &out, nil
}

func (m *MemStore) GetOperatorByFingerprintID(fingerprintID int) (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.operators[fingerprintID]; ok {
		c := *op
		return &c, nil
	}
	return nil, nil
}

func (m *MemStore) GetOperatorByRealID(realID string) (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.operators {
		if op.FingerprintIDReal != nil && *op.FingerprintIDReal == realID {
			c := *op
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListOperators(search, statusFilter string) ([]*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Operator
	needle := strings.ToLower(search)
	for _, op := range m.operators {
		if statusFilter != "" && op.Status != statusFilter {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(op.Name), needle) &&
			!strings.Contains(strconv.Itoa(op.FingerprintID), needle) {
			continue
		}
		c := *op
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SaveOperator(op *Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for fid, existing := range m.operators {
		if existing.ID == op.ID {
			delete(m.operators, fid)
			c := *op
			m.operators[c.FingerprintID] = &c
			return nil
		}
	}
	return errNotFound
}

func (m *MemStore) DeleteOperator(fingerprintID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.operators[fingerprintID]; !ok {
		return errNotFound
	}
	delete(m.operators, fingerprintID)
	return nil
}

func (m *MemStore) NextPendingOperator() (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *Operator
	for _, op := range m.operators {
		if op.Status != StatusPending {
			continue
		}
		if op.FingerprintIDReal != nil && *op.FingerprintIDReal != "" {
			continue
		}
		if next == nil || op.ID < next.ID {
			next = op
		}
	}
	if next == nil {
		return nil, nil
	}
	c := *next
	return &c, nil
}

func (m *MemStore) CreateUsageLog(l *UsageLog) (*UsageLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *l
	c.ID = m.logSeq
	m.logSeq++
	if c.ActivationTime.IsZero() {
		c.ActivationTime = time.Now().UTC()
	}
	m.logs = append(m.logs, &c)
	out := c
	return &out, nil
}

func (m *MemStore) ListUsageLogs(skip, limit int) ([]*UsageLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if skip < 0 {
		skip = 0
	}
	if skip >= len(m.logs) {
		return nil, nil
	}
	end := len(m.logs)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	var out []*UsageLog
	for _, l := range m.logs[skip:end] {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemStore) BlacklistToken(token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// duplicate revoke is a no-op
	if _, ok := m.blacklist[token]; ok {
		return nil
	}
	m.blacklist[token] = &BlacklistedToken{Token: token, BlacklistedAt: time.Now().UTC(), ExpiresAt: expiresAt}
	return nil
}

func (m *MemStore) IsTokenBlacklisted(token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[token]
	return ok, nil
}

func (m *MemStore) PurgeExpiredTokens(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for tok, rec := range m.blacklist {
		if rec.ExpiresAt.Before(now) {
			delete(m.blacklist, tok)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DashboardStats(now time.Time) (*DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &DashboardStats{}
	for _, op := range m.operators {
		s.TotalOperators++
		switch op.Status {
		case StatusActive:
			s.ActiveOperators++
		case StatusPending:
			s.PendingOperators++
		}
	}
	y, mo, d := now.Date()
	for _, l := range m.logs {
		ly, lmo, ld := l.ActivationTime.Date()
		if ly == y && lmo == mo && ld == d {
			s.TodayAttendance++
		}
	}
	return s, nil
}

// SQLite store
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS operators (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			fingerprint_id INTEGER UNIQUE,
			fingerprint_id_real TEXT,
			role TEXT DEFAULT 'operator',
			password_hash TEXT,
			email TEXT UNIQUE,
			phone TEXT,
			status TEXT DEFAULT 'Active',
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS usage_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operator_id INTEGER,
			activation_time TEXT,
			operational_duration INTEGER,
			error_log TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS blacklisted_tokens (
			token TEXT PRIMARY KEY,
			blacklisted_at TEXT,
			expires_at INTEGER
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const sqliteOperatorCols = `id,name,fingerprint_id,fingerprint_id_real,role,password_hash,email,phone,status,created_at`

func scanSQLiteOperator(row interface{ Scan(...interface{}) error }) (*Operator, error) {
	var op Operator
	var realID, hash, email, phone, created sql.NullString
	if err := row.Scan(&op.ID, &op.Name, &op.FingerprintID, &realID, &op.Role, &hash, &email, &phone, &op.Status, &created); err != nil {
		return nil, err
	}
	if realID.Valid && realID.String != "" {
		op.FingerprintIDReal = &realID.String
	}
	op.PasswordHash = hash.String
	if email.Valid {
		op.Email = &email.String
	}
	if phone.Valid {
		op.Phone = &phone.String
	}
	if created.Valid {
		op.CreatedAt, _ = time.Parse(sqliteTimeLayout, created.String)
	}
	return &op, nil
}

func (s *SQLiteStore) CreateOperator(op *Operator) (*Operator, error) {
	created := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO operators(name,fingerprint_id,fingerprint_id_real,role,password_hash,email,phone,status,created_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		op.Name, op.FingerprintID, op.FingerprintIDReal, op.Role, op.PasswordHash, op.Email, op.Phone, op.Status, created.Format(sqliteTimeLayout))
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	out := *op
	out.ID = id
	out.CreatedAt = created
	return &out, nil
}

func (s *SQLiteStore) GetOperatorByFingerprintID(fingerprintID int) (*Operator, error) {
	row := s.db.QueryRow(`SELECT `+sqliteOperatorCols+` FROM operators WHERE fingerprint_id = ?`, fingerprintID)
	op, err := scanSQLiteOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (s *SQLiteStore) GetOperatorByRealID(realID string) (*Operator, error) {
	row := s.db.QueryRow(`SELECT `+sqliteOperatorCols+` FROM operators WHERE fingerprint_id_real = ?`, realID)
	op, err := scanSQLiteOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (s *SQLiteStore) ListOperators(search, statusFilter string) ([]*Operator, error) {
	q := `SELECT ` + sqliteOperatorCols + ` FROM operators`
	var conds []string
	var args []interface{}
	if search != "" {
		conds = append(conds, `(name LIKE ? OR CAST(fingerprint_id AS TEXT) LIKE ?)`)
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	if statusFilter != "" {
		conds = append(conds, `status = ?`)
		args = append(args, statusFilter)
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY id`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Operator
	for rows.Next() {
		op, err := scanSQLiteOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveOperator(op *Operator) error {
	res, err := s.db.Exec(
		`UPDATE operators SET name=?,fingerprint_id=?,fingerprint_id_real=?,role=?,password_hash=?,email=?,phone=?,status=? WHERE id=?`,
		op.Name, op.FingerprintID, op.FingerprintIDReal, op.Role, op.PasswordHash, op.Email, op.Phone, op.Status, op.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteOperator(fingerprintID int) error {
	res, err := s.db.Exec(`DELETE FROM operators WHERE fingerprint_id = ?`, fingerprintID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (s *SQLiteStore) NextPendingOperator() (*Operator, error) {
	row := s.db.QueryRow(`SELECT ` + sqliteOperatorCols + ` FROM operators WHERE status = 'Pending' AND (fingerprint_id_real IS NULL OR fingerprint_id_real = '') ORDER BY id LIMIT 1`)
	op, err := scanSQLiteOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (s *SQLiteStore) CreateUsageLog(l *UsageLog) (*UsageLog, error) {
	at := l.ActivationTime
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT INTO usage_logs(operator_id,activation_time,operational_duration,error_log) VALUES(?,?,?,?)`,
		l.OperatorID, at.Format(sqliteTimeLayout), l.OperationalDuration, l.ErrorLog)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	out := *l
	out.ID = id
	out.ActivationTime = at
	return &out, nil
}

func (s *SQLiteStore) ListUsageLogs(skip, limit int) ([]*UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id,operator_id,activation_time,operational_duration,error_log FROM usage_logs ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*UsageLog
	for rows.Next() {
		var l UsageLog
		var at string
		var errLog sql.NullString
		if err := rows.Scan(&l.ID, &l.OperatorID, &at, &l.OperationalDuration, &errLog); err != nil {
			return nil, err
		}
		l.ActivationTime, _ = time.Parse(sqliteTimeLayout, at)
		if errLog.Valid {
			l.ErrorLog = &errLog.String
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) BlacklistToken(token string, expiresAt time.Time) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO blacklisted_tokens(token,blacklisted_at,expires_at) VALUES(?,?,?)`,
		token, time.Now().UTC().Format(sqliteTimeLayout), expiresAt.Unix())
	return err
}

func (s *SQLiteStore) IsTokenBlacklisted(token string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM blacklisted_tokens WHERE token = ?`, token).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) PurgeExpiredTokens(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM blacklisted_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DashboardStats(now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{}
	row := s.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'Active' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status = 'Pending' THEN 1 ELSE 0 END),0)
		FROM operators`)
	if err := row.Scan(&stats.TotalOperators, &stats.ActiveOperators, &stats.PendingOperators); err != nil {
		return nil, err
	}
	day := now.UTC().Format("2006-01-02")
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM usage_logs WHERE substr(activation_time,1,10) = ?`, day).Scan(&stats.TodayAttendance); err != nil {
		return nil, err
	}
	return stats, nil
}

// lifecycle helpers
func (m *MemStore) close() error { return nil }
func (m *MemStore) ping() bool   { return true }

func (s *SQLiteStore) close() error { return s.db.Close() }
func (s *SQLiteStore) ping() bool   { return s.db.Ping() == nil }

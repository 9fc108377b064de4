package main

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

const pgOperatorCols = `id,name,fingerprint_id,fingerprint_id_real,role,password_hash,email,phone,status,created_at`

func scanPGOperator(row interface{ Scan(...interface{}) error }) (*Operator, error) {
	var op Operator
	var realID, hash, email, phone sql.NullString
	if err := row.Scan(&op.ID, &op.Name, &op.FingerprintID, &realID, &op.Role, &hash, &email, &phone, &op.Status, &op.CreatedAt); err != nil {
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
	return &op, nil
}

func (p *PostgresStore) CreateOperator(op *Operator) (*Operator, error) {
	out := *op
	err := p.db.QueryRow(
		`INSERT INTO operators(name,fingerprint_id,fingerprint_id_real,role,password_hash,email,phone,status,created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,now()) RETURNING id,created_at`,
		op.Name, op.FingerprintID, op.FingerprintIDReal, op.Role, op.PasswordHash, op.Email, op.Phone, op.Status).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		// unique violation surfaces here
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) GetOperatorByFingerprintID(fingerprintID int) (*Operator, error) {
	row := p.db.QueryRow(`SELECT `+pgOperatorCols+` FROM operators WHERE fingerprint_id = $1`, fingerprintID)
	op, err := scanPGOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (p *PostgresStore) GetOperatorByRealID(realID string) (*Operator, error) {
	row := p.db.QueryRow(`SELECT `+pgOperatorCols+` FROM operators WHERE fingerprint_id_real = $1`, realID)
	op, err := scanPGOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (p *PostgresStore) ListOperators(search, statusFilter string) ([]*Operator, error) {
	q := `SELECT ` + pgOperatorCols + ` FROM operators`
	var conds []string
	var args []interface{}
	if search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, `(name ILIKE $1 OR fingerprint_id::text LIKE $1)`)
	}
	if statusFilter != "" {
		args = append(args, statusFilter)
		if len(args) == 1 {
			conds = append(conds, `status = $1`)
		} else {
			conds = append(conds, `status = $2`)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY id`
	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Operator
	for rows.Next() {
		op, err := scanPGOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveOperator(op *Operator) error {
	res, err := p.db.Exec(
		`UPDATE operators SET name=$1,fingerprint_id=$2,fingerprint_id_real=$3,role=$4,password_hash=$5,email=$6,phone=$7,status=$8 WHERE id=$9`,
		op.Name, op.FingerprintID, op.FingerprintIDReal, op.Role, op.PasswordHash, op.Email, op.Phone, op.Status, op.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteOperator(fingerprintID int) error {
	res, err := p.db.Exec(`DELETE FROM operators WHERE fingerprint_id = $1`, fingerprintID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNotFound
	}
	return nil
}

func (p *PostgresStore) NextPendingOperator() (*Operator, error) {
	row := p.db.QueryRow(`SELECT ` + pgOperatorCols + ` FROM operators WHERE status = 'Pending' AND (fingerprint_id_real IS NULL OR fingerprint_id_real = '') ORDER BY id LIMIT 1`)
	op, err := scanPGOperator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (p *PostgresStore) CreateUsageLog(l *UsageLog) (*UsageLog, error) {
	out := *l
	at := l.ActivationTime
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err := p.db.QueryRow(`INSERT INTO usage_logs(operator_id,activation_time,operational_duration,error_log) VALUES($1,$2,$3,$4) RETURNING id,activation_time`,
		l.OperatorID, at, l.OperationalDuration, l.ErrorLog).Scan(&out.ID, &out.ActivationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PostgresStore) ListUsageLogs(skip, limit int) ([]*UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Query(`SELECT id,operator_id,activation_time,operational_duration,error_log FROM usage_logs ORDER BY id LIMIT $1 OFFSET $2`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*UsageLog
	for rows.Next() {
		var l UsageLog
		var errLog sql.NullString
		if err := rows.Scan(&l.ID, &l.OperatorID, &l.ActivationTime, &l.OperationalDuration, &errLog); err != nil {
			return nil, err
		}
		if errLog.Valid {
			l.ErrorLog = &errLog.String
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) BlacklistToken(token string, expiresAt time.Time) error {
	_, err := p.db.Exec(`INSERT INTO blacklisted_tokens(token,blacklisted_at,expires_at) VALUES($1,now(),$2) ON CONFLICT (token) DO NOTHING`, token, expiresAt)
	return err
}

func (p *PostgresStore) IsTokenBlacklisted(token string) (bool, error) {
	var one int
	err := p.db.QueryRow(`SELECT 1 FROM blacklisted_tokens WHERE token = $1`, token).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PostgresStore) PurgeExpiredTokens(now time.Time) (int64, error) {
	res, err := p.db.Exec(`DELETE FROM blacklisted_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) DashboardStats(now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{}
	row := p.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'Active' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status = 'Pending' THEN 1 ELSE 0 END),0)
		FROM operators`)
	if err := row.Scan(&stats.TotalOperators, &stats.ActiveOperators, &stats.PendingOperators); err != nil {
		return nil, err
	}
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM usage_logs WHERE activation_time::date = $1::date`, now).Scan(&stats.TodayAttendance); err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgresStore) close() error { return p.db.Close() }
func (p *PostgresStore) ping() bool   { return p.db.Ping() == nil }

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return s
}

func TestSQLiteOperatorLifecycle(t *testing.T) {
	s := newSQLiteTestStore(t)

	email := "op@example.com"
	op, err := s.CreateOperator(&Operator{
		Name:          "Jane Doe",
		FingerprintID: 1001,
		Role:          RoleAdmin,
		PasswordHash:  "hash",
		Email:         &email,
		Status:        StatusActive,
	})
	require.NoError(t, err)
	require.NotZero(t, op.ID)
	require.False(t, op.CreatedAt.IsZero())

	// unique fingerprint_id
	_, err = s.CreateOperator(&Operator{Name: "Dup", FingerprintID: 1001, Role: RoleOperator, Status: StatusActive})
	require.Error(t, err)

	got, err := s.GetOperatorByFingerprintID(1001)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Jane Doe", got.Name)
	require.NotNil(t, got.Email)
	require.Equal(t, email, *got.Email)

	missing, err := s.GetOperatorByFingerprintID(9999)
	require.NoError(t, err)
	require.Nil(t, missing)

	realID := "TPL-0042"
	got.FingerprintIDReal = &realID
	got.Status = StatusSuspended
	require.NoError(t, s.SaveOperator(got))

	byReal, err := s.GetOperatorByRealID(realID)
	require.NoError(t, err)
	require.NotNil(t, byReal)
	require.Equal(t, StatusSuspended, byReal.Status)

	require.NoError(t, s.DeleteOperator(1001))
	require.ErrorIs(t, s.DeleteOperator(1001), errNotFound)
}

func TestSQLiteListAndPending(t *testing.T) {
	s := newSQLiteTestStore(t)

	_, err := s.CreateOperator(&Operator{Name: "Alice", FingerprintID: 1001, Role: RoleAdmin, Status: StatusActive})
	require.NoError(t, err)
	_, err = s.CreateOperator(&Operator{Name: "Bob", FingerprintID: 2002, Role: RoleOperator, Status: StatusPending})
	require.NoError(t, err)
	_, err = s.CreateOperator(&Operator{Name: "Carol", FingerprintID: 3003, Role: RoleOperator, Status: StatusPending})
	require.NoError(t, err)

	all, err := s.ListOperators("", "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	pending, err := s.ListOperators("", StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	byName, err := s.ListOperators("ali", "")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	require.Equal(t, "Alice", byName[0].Name)

	byID, err := s.ListOperators("2002", "")
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Equal(t, "Bob", byID[0].Name)

	// oldest pending operator without a template id wins
	next, err := s.NextPendingOperator()
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 2002, next.FingerprintID)

	realID := "TPL-0001"
	next.FingerprintIDReal = &realID
	next.Status = StatusActive
	require.NoError(t, s.SaveOperator(next))

	next, err = s.NextPendingOperator()
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 3003, next.FingerprintID)
}

func TestSQLiteBlacklist(t *testing.T) {
	s := newSQLiteTestStore(t)
	now := time.Now()

	require.NoError(t, s.BlacklistToken("tok-1", now.Add(time.Hour)))
	// duplicate insert is ignored
	require.NoError(t, s.BlacklistToken("tok-1", now.Add(2*time.Hour)))
	require.NoError(t, s.BlacklistToken("tok-old", now.Add(-time.Hour)))

	revoked, err := s.IsTokenBlacklisted("tok-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// revoked stays revoked even past its expiry, until purged
	revoked, err = s.IsTokenBlacklisted("tok-old")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = s.IsTokenBlacklisted("unknown")
	require.NoError(t, err)
	require.False(t, revoked)

	n, err := s.PurgeExpiredTokens(now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	revoked, err = s.IsTokenBlacklisted("tok-old")
	require.NoError(t, err)
	require.False(t, revoked)

	revoked, err = s.IsTokenBlacklisted("tok-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestSQLiteUsageLogsAndStats(t *testing.T) {
	s := newSQLiteTestStore(t)

	op, err := s.CreateOperator(&Operator{Name: "Alice", FingerprintID: 1001, Role: RoleOperator, Status: StatusActive})
	require.NoError(t, err)

	errLog := "conveyor fault"
	_, err = s.CreateUsageLog(&UsageLog{OperatorID: op.ID, OperationalDuration: 120, ErrorLog: &errLog})
	require.NoError(t, err)
	_, err = s.CreateUsageLog(&UsageLog{OperatorID: op.ID, OperationalDuration: 60})
	require.NoError(t, err)

	logs, err := s.ListUsageLogs(0, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[0].ErrorLog)
	require.Equal(t, errLog, *logs[0].ErrorLog)
	require.Nil(t, logs[1].ErrorLog)

	page, err := s.ListUsageLogs(1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, 60, page[0].OperationalDuration)

	stats, err := s.DashboardStats(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalOperators)
	require.Equal(t, 1, stats.ActiveOperators)
	require.Equal(t, 0, stats.PendingOperators)
	require.Equal(t, 2, stats.TodayAttendance)
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *MemStore) {
	t.Helper()
	store := NewMemStore()
	tokens := NewTokenAuthority([]byte("handler-test-secret"), 30*time.Minute)
	return NewApp(store, tokens), store
}

func postForm(t *testing.T, app *App, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, app *App, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	return m
}

func loginAdmin(t *testing.T, app *App, store *MemStore) string {
	t.Helper()
	seedOperator(t, store, 1001, "secret", RoleAdmin)
	rec := postForm(t, app, "/token", url.Values{"username": {"1001"}, "password": {"secret"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLoginLogoutLifecycle(t *testing.T) {
	app, store := newTestApp(t)
	seedOperator(t, store, 1001, "secret", RoleAdmin)

	// login
	rec := postForm(t, app, "/token", url.Values{"username": {"1001"}, "password": {"secret"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "bearer", body["token_type"])
	token := body["access_token"].(string)
	require.NotEmpty(t, token)
	user := body["user"].(map[string]interface{})
	require.EqualValues(t, 1001, user["fingerprint_id"])
	require.Equal(t, RoleAdmin, user["role"])

	// the token works
	rec = doJSON(t, app, "GET", "/operators/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// logout
	rec = doJSON(t, app, "POST", "/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Equal(t, true, body["success"])

	// the same token is now rejected
	rec = doJSON(t, app, "GET", "/operators/", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	app, store := newTestApp(t)
	seedOperator(t, store, 1001, "secret", RoleAdmin)

	rec := postForm(t, app, "/token", url.Values{"username": {"1001"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginUnknownOperator(t *testing.T) {
	app, _ := newTestApp(t)

	rec := postForm(t, app, "/token", url.Values{"username": {"4242"}, "password": {"secret"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postForm(t, app, "/token", url.Values{"username": {"not-a-number"}, "password": {"secret"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginNonAdminForbidden(t *testing.T) {
	app, store := newTestApp(t)
	seedOperator(t, store, 2002, "secret", RoleOperator)

	rec := postForm(t, app, "/token", url.Values{"username": {"2002"}, "password": {"secret"}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBearerRequired(t *testing.T) {
	app, _ := newTestApp(t)

	rec := doJSON(t, app, "GET", "/operators/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = doJSON(t, app, "GET", "/operators/", "bogus-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestCleanupTokens(t *testing.T) {
	app, store := newTestApp(t)
	token := loginAdmin(t, app, store)

	now := time.Now()
	require.NoError(t, store.BlacklistToken("stale-1", now.Add(-time.Hour)))
	require.NoError(t, store.BlacklistToken("stale-2", now.Add(-time.Hour)))
	require.NoError(t, store.BlacklistToken("fresh", now.Add(time.Hour)))

	rec := doJSON(t, app, "DELETE", "/cleanup-tokens", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Cleaned up 2 expired tokens", body["message"])
}

func TestCleanupTokensRequiresAdmin(t *testing.T) {
	app, store := newTestApp(t)
	seedOperator(t, store, 2002, "secret", RoleOperator)

	// a non-admin cannot log in, but an existing token still resolves; the
	// role must be re-checked on the request itself
	token, err := app.Tokens.IssueLogin("2002")
	require.NoError(t, err)

	rec := doJSON(t, app, "DELETE", "/cleanup-tokens", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperatorCRUD(t *testing.T) {
	app, store := newTestApp(t)
	token := loginAdmin(t, app, store)

	// create
	rec := doJSON(t, app, "POST", "/operators/", token, map[string]interface{}{
		"name":           "Jane Doe",
		"fingerprint_id": 2002,
		"password":       "hunter2",
		"email":          "jane@example.com",
		"status":         StatusPending,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	require.EqualValues(t, 2002, created["fingerprint_id"])
	require.Equal(t, RoleOperator, created["role"])

	// duplicate fingerprint_id
	rec = doJSON(t, app, "POST", "/operators/", token, map[string]interface{}{
		"name":           "Other",
		"fingerprint_id": 2002,
		"password":       "pw",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// fetch
	rec = doJSON(t, app, "GET", "/operators/2002", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// partial update
	rec = doJSON(t, app, "PATCH", "/operators/2002", token, map[string]interface{}{
		"status": StatusSuspended,
		"phone":  "555-0100",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody(t, rec)
	require.Equal(t, StatusSuspended, updated["status"])
	require.Equal(t, "555-0100", updated["phone"])
	require.Equal(t, "Jane Doe", updated["name"])

	// delete
	rec = doJSON(t, app, "DELETE", "/operators/2002", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, app, "GET", "/operators/2002", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperatorList(t *testing.T) {
	app, store := newTestApp(t)
	token := loginAdmin(t, app, store)
	seedOperator(t, store, 2002, "pw", RoleOperator)
	pending := seedOperator(t, store, 3003, "pw", RoleOperator)
	pending.Status = StatusPending
	require.NoError(t, store.SaveOperator(pending))

	rec := doJSON(t, app, "GET", "/operators/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []Operator
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Len(t, all, 3)

	rec = doJSON(t, app, "GET", "/operators/?status_filter=Pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered []Operator
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&filtered))
	require.Len(t, filtered, 1)
	require.Equal(t, 3003, filtered[0].FingerprintID)

	rec = doJSON(t, app, "GET", "/operators/?search=2002", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []Operator
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&found))
	require.Len(t, found, 1)
	require.Equal(t, 2002, found[0].FingerprintID)
}

func TestOperatorMe(t *testing.T) {
	app, store := newTestApp(t)
	token := loginAdmin(t, app, store)

	rec := doJSON(t, app, "GET", "/operators/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.EqualValues(t, 1001, body["fingerprint_id"])
}

func TestFingerprintEnrollAndLogin(t *testing.T) {
	app, store := newTestApp(t)

	op, err := store.CreateOperator(&Operator{
		Name:          "New Hire",
		FingerprintID: 7007,
		Role:          RoleOperator,
		Status:        StatusPending,
	})
	require.NoError(t, err)

	// enroll binds the template to the pending operator and activates it
	rec := doJSON(t, app, "POST", "/fingerprint_enroll", "", map[string]interface{}{
		"fingerprint_id_real": "TPL-0042",
		"status":              "enrolled",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	enrolled, err := store.GetOperatorByFingerprintID(op.FingerprintID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, enrolled.Status)
	require.NotNil(t, enrolled.FingerprintIDReal)
	require.Equal(t, "TPL-0042", *enrolled.FingerprintIDReal)

	// a matched read records attendance
	rec = doJSON(t, app, "POST", "/fingerprint_login", "", map[string]interface{}{
		"fingerprint_id_real": "TPL-0042",
		"confidence":          97.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	logs, err := store.ListUsageLogs(0, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, enrolled.ID, logs[0].OperatorID)
}

func TestFingerprintEnrollNoPending(t *testing.T) {
	app, _ := newTestApp(t)

	rec := doJSON(t, app, "POST", "/fingerprint_enroll", "", map[string]interface{}{
		"fingerprint_id_real": "TPL-0001",
		"status":              "enrolled",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFingerprintLoginRejections(t *testing.T) {
	app, store := newTestApp(t)

	rec := doJSON(t, app, "POST", "/fingerprint_login", "", map[string]interface{}{
		"fingerprint_id_real": "TPL-9999",
		"confidence":          80.0,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	realID := "TPL-0100"
	_, err := store.CreateOperator(&Operator{
		Name:              "Benched",
		FingerprintID:     8008,
		FingerprintIDReal: &realID,
		Role:              RoleOperator,
		Status:            StatusSuspended,
	})
	require.NoError(t, err)

	rec = doJSON(t, app, "POST", "/fingerprint_login", "", map[string]interface{}{
		"fingerprint_id_real": realID,
		"confidence":          95.0,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUsageLogs(t *testing.T) {
	app, store := newTestApp(t)
	token := loginAdmin(t, app, store)
	op := seedOperator(t, store, 2002, "pw", RoleOperator)

	rec := doJSON(t, app, "POST", "/usage_logs/", token, map[string]interface{}{
		"operator_id":          op.ID,
		"operational_duration": 320,
		"error_log":            "belt jam at 00:12",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, app, "POST", "/usage_logs/", token, map[string]interface{}{
		"operator_id":          op.ID,
		"operational_duration": 45,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, app, "GET", "/usage_logs/?skip=0&limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []UsageLog
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&logs))
	require.Len(t, logs, 1)
	require.Equal(t, 320, logs[0].OperationalDuration)

	rec = doJSON(t, app, "GET", "/usage_logs/?skip=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&logs))
	require.Len(t, logs, 1)
	require.Equal(t, 45, logs[0].OperationalDuration)
}

func TestDashboardStats(t *testing.T) {
	app, store := newTestApp(t)
	token := loginAdmin(t, app, store)

	active := seedOperator(t, store, 2002, "pw", RoleOperator)
	pending := seedOperator(t, store, 3003, "pw", RoleOperator)
	pending.Status = StatusPending
	require.NoError(t, store.SaveOperator(pending))

	_, err := store.CreateUsageLog(&UsageLog{OperatorID: active.ID})
	require.NoError(t, err)

	rec := doJSON(t, app, "GET", "/dashboard/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.EqualValues(t, 3, body["total_operators"])
	require.EqualValues(t, 2, body["active_operators"])
	require.EqualValues(t, 1, body["pending_operators"])
	require.EqualValues(t, 1, body["today_attendance"])
}

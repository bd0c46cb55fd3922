package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/remit/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	return store
}

func sampleRecord(id string) *Record {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &Record{
		SessionID: id,
		Status:    StatusWaitingOTP,
		BankConfig: map[string]interface{}{
			"id":       "bic",
			"loginUrl": "https://demo-banking.bic.ao/login",
			"selectors": map[string]interface{}{
				"usernameField": "#login-username",
			},
		},
		TransferData: map[string]interface{}{
			"username":     "ana",
			"password":     "s3cret",
			"receiverIban": "AO06000600000100037131174",
			"amount":       250000.0,
		},
		ControlTargetPID:    os.Getpid(),
		ControlSessionToken: "E3B0C44298FC1C14",
		DebugPort:           9222,
		CurrentLocation:     "https://demo-banking.bic.ao/transfers/confirm",
		OTPDetected:         true,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord("SES1773480413A1B2C3D4")

	require.NoError(t, store.Put(rec))

	got, err := store.Get(rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	info, err := os.Stat(filepath.Join(store.Dir(), rec.SessionID+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestPutFillsTimestamps(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	rec := &Record{SessionID: "SES1", Status: StatusWaitingOTP}
	require.NoError(t, store.Put(rec))

	got, err := store.Get("SES1")
	require.NoError(t, err)
	assert.Equal(t, fixed, got.CreatedAt)
	assert.Equal(t, fixed, got.UpdatedAt)
}

func TestPutRejectsInvalidRecords(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name string
		rec  *Record
	}{
		{name: "nil", rec: nil},
		{name: "empty id", rec: &Record{Status: StatusWaitingOTP}},
		{name: "path traversal", rec: &Record{SessionID: "../escape", Status: StatusWaitingOTP}},
		{name: "unknown status", rec: &Record{SessionID: "SES1", Status: "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.Put(tt.rec))
		})
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("SES_DOES_NOT_EXIST")
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))

	_, err = store.Get("../../etc/passwd")
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
}

func TestCorruptRecordSelfHeals(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated", content: `{"session_id": "SES9", "status": "wait`},
		{name: "not json", content: "garbage"},
		{name: "empty", content: ""},
		{name: "wrong id", content: `{"session_id": "SES8", "status": "waiting_otp"}`},
		{name: "bad status", content: `{"session_id": "SES9", "status": "sleeping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, store.Put(sampleRecord("SES1")))
			path := filepath.Join(store.Dir(), "SES9.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := store.Get("SES9")
			assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
			assert.NoFileExists(t, path)

			ids, err := store.ListIDs()
			require.NoError(t, err)
			assert.Equal(t, []string{"SES1"}, ids)
		})
	}
}

func TestListIDsPrunesCorruptEntries(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(sampleRecord("SES2")))
	require.NoError(t, store.Put(sampleRecord("SES1")))
	bad := filepath.Join(store.Dir(), "SES3.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0600))
	// Temp files from in-flight writes are never listed.
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), ".SES4-123.tmp"), []byte("{"), 0600))

	ids, err := store.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"SES1", "SES2"}, ids)
	assert.NoFileExists(t, bad)
}

func TestUpdate(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord("SES1")
	require.NoError(t, store.Put(rec))

	later := rec.UpdatedAt.Add(time.Minute)
	store.now = func() time.Time { return later }

	ok, err := store.Update("SES1", func(r *Record) {
		r.Status = StatusProcessingOTP
		r.SessionID = "SES_RENAMED"
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get("SES1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessingOTP, got.Status)
	assert.Equal(t, later, got.UpdatedAt)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)

	ok, err = store.Update("SES_MISSING", func(r *Record) { r.Status = StatusFailed })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStatusOnlyMovesForward(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusWaitingOTP, StatusProcessingOTP, true},
		{StatusWaitingOTP, StatusFailed, true},
		{StatusProcessingOTP, StatusCompleted, true},
		{StatusProcessingOTP, StatusFailed, true},
		{StatusProcessingOTP, StatusWaitingOTP, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessingOTP, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			store := newTestStore(t)
			rec := sampleRecord("SES1")
			rec.Status = tt.from
			require.NoError(t, store.Put(rec))

			_, err := store.Update("SES1", func(r *Record) { r.Status = tt.to })
			got, getErr := store.Get("SES1")
			require.NoError(t, getErr)
			if tt.allowed {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, got.Status)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tt.from, got.Status)
			}
		})
	}
}

func TestUpdatedAtStrictlyIncreases(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord("SES1")
	require.NoError(t, store.Put(rec))
	store.now = func() time.Time { return rec.UpdatedAt }

	_, err := store.Update("SES1", func(r *Record) { r.Status = StatusProcessingOTP })
	require.NoError(t, err)

	got, err := store.Get("SES1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(rec.UpdatedAt))
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(sampleRecord("SES1")))

	require.NoError(t, store.Delete("SES1"))
	require.NoError(t, store.Delete("SES1"))
	require.NoError(t, store.Delete("never-existed"))

	_, err := store.Get("SES1")
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
}

func TestConcurrentReadersNeverSeePartialWrites(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord("SES1")
	require.NoError(t, store.Put(rec))

	// Two versions that differ in a large field so a torn write would be visible.
	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = 'x'
	}
	versions := []string{"a" + string(big), "b" + string(big)}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			next := rec.Clone()
			next.CurrentLocation = versions[i%2]
			if err := store.Put(next); err != nil {
				t.Errorf("put: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		got, err := store.Get("SES1")
		require.NoError(t, err)
		loc := got.CurrentLocation
		valid := loc == rec.CurrentLocation || loc == versions[0] || loc == versions[1]
		require.True(t, valid, "observed a record that is neither version")
	}
	close(stop)
	wg.Wait()
}

func TestListMatching(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"SES1700000000AAAA", "SES1800000000BBBB", "DEMO_1700000000"} {
		require.NoError(t, store.Put(sampleRecord(id)))
	}

	ids, err := store.ListMatching([]string{"SES17*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SES1700000000AAAA"}, ids)

	ids, err = store.ListMatching([]string{"*", "!DEMO_*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SES1700000000AAAA", "SES1800000000BBBB"}, ids)

	ids, err = store.ListMatching(nil)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	live := sampleRecord("SES_LIVE")
	live.ControlTargetPID = 100
	dead := sampleRecord("SES_DEAD")
	dead.ControlTargetPID = 200
	dead.ProfileDir = "/cache/remit/profiles/profile-200"
	done := sampleRecord("SES_DONE")
	done.Status = StatusCompleted
	done.TransactionID = "TXN1"
	for _, rec := range []*Record{live, dead, done} {
		require.NoError(t, store.Put(rec))
	}

	alive := func(pid int) bool { return pid == 100 }
	report, err := store.Prune(alive)
	require.NoError(t, err)
	assert.Equal(t, []string{"SES_DONE"}, report.Terminal)
	assert.Equal(t, []string{"SES_DEAD"}, report.Orphaned)
	assert.Equal(t, 2, report.Total())
	assert.Equal(t, []string{"/cache/remit/profiles/profile-200"}, report.Profiles)

	ids, err := store.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"SES_LIVE"}, ids)
}

func TestRedactedHidesCredentials(t *testing.T) {
	rec := sampleRecord("SES1")
	red := rec.Redacted()

	assert.Equal(t, "[REDACTED]", red.TransferData["password"])
	assert.Equal(t, "s3cret", rec.TransferData["password"])
	assert.Equal(t, "ana", red.TransferData["username"])
}

func TestWatch(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 16)
	ready := make(chan error, 1)
	go func() {
		ready <- store.Watch(ctx, func(e Event) { events <- e })
	}()
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, store.Put(sampleRecord("SES1")))
	waitForEvent(t, events, EventWritten, "SES1")

	require.NoError(t, store.Delete("SES1"))
	waitForEvent(t, events, EventRemoved, "SES1")

	cancel()
	select {
	case err := <-ready:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind, id string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == kind && e.SessionID == id {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event for %s", kind, id)
		}
	}
}

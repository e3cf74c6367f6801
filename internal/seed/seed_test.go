package seed

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/ztkent/sky-quality-meter/internal/tools"
	"github.com/ztkent/sky-quality-meter/tsl2591"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := tools.ConnectSqlite(filepath.Join(t.TempDir(), "test.db"), quietLogger())
	if err != nil {
		t.Fatalf("failed to create SQLite db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func TestStores_RoundTrip(t *testing.T) {
	stores := map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "seed", "tsl2591.json")),
		"sqlite": newTestSQLiteStore(t),
	}
	ctx := context.Background()

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on empty store, got %v", err)
			}
			for _, g := range tsl2591.Gains {
				for _, it := range tsl2591.IntegrationTimes {
					want := tsl2591.Config{Gain: g, Integration: it}
					if err := store.Save(ctx, want); err != nil {
						t.Fatalf("Save failed: %v", err)
					}
					got, err := store.Load(ctx)
					if err != nil {
						t.Fatalf("Load failed: %v", err)
					}
					if got != want {
						t.Errorf("got %v, want %v", got, want)
					}
				}
			}
		})
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown integration", `{"gain": 16, "integrationMs": 250}`},
		{"unknown gain", `{"gain": 17, "integrationMs": 200}`},
		{"missing integration", `{"gain": 16}`},
		{"truncated", `{"gain": 16, "integ`},
		{"empty", ``},
		{"wrong types", `{"gain": "Medium", "integrationMs": "200ms"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := NewFileStore(path).Load(context.Background())
			if !errors.Is(err, ErrSeedCorrupt) {
				t.Errorf("expected ErrSeedCorrupt, got %v", err)
			}
		})
	}
}

func TestSQLiteStore_Corrupt(t *testing.T) {
	store := newTestSQLiteStore(t)
	if _, err := store.db.Exec(`INSERT INTO seed (id, gain, integration_ms) VALUES (1, 16, 700)`); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrSeedCorrupt) {
		t.Errorf("expected ErrSeedCorrupt, got %v", err)
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "seed.json"))
	if err := store.Save(context.Background(), tsl2591.DefaultConfig); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "seed.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

type stubStore struct {
	config tsl2591.Config
	err    error
}

func (s stubStore) Load(ctx context.Context) (tsl2591.Config, error) { return s.config, s.err }
func (s stubStore) Save(ctx context.Context, c tsl2591.Config) error { return nil }

func TestResolve(t *testing.T) {
	high := tsl2591.TSL2591_GAIN_HIGH
	ms500 := tsl2591.TSL2591_INTEGRATIONTIME_500MS
	saved := tsl2591.Config{Gain: tsl2591.TSL2591_GAIN_MAX, Integration: tsl2591.TSL2591_INTEGRATIONTIME_600MS}

	tests := []struct {
		name      string
		overrides Overrides
		store     Store
		want      Start
	}{
		{
			name:  "auto uses seed",
			store: stubStore{config: saved},
			want:  Start{Config: saved, Seeded: true},
		},
		{
			name:  "auto without seed uses default",
			store: stubStore{err: ErrNotFound},
			want:  Start{Config: tsl2591.DefaultConfig},
		},
		{
			name:  "auto with corrupt seed uses default",
			store: stubStore{err: ErrSeedCorrupt},
			want:  Start{Config: tsl2591.DefaultConfig},
		},
		{
			name:  "auto without a store",
			store: nil,
			want:  Start{Config: tsl2591.DefaultConfig},
		},
		{
			name:      "gain override keeps default integration",
			overrides: Overrides{Gain: &high},
			store:     stubStore{config: saved},
			want:      Start{Config: tsl2591.Config{Gain: high, Integration: tsl2591.TSL2591_INTEGRATIONTIME_200MS}, Manual: true},
		},
		{
			name:      "integration override keeps default gain",
			overrides: Overrides{Integration: &ms500},
			store:     stubStore{config: saved},
			want:      Start{Config: tsl2591.Config{Gain: tsl2591.TSL2591_GAIN_MED, Integration: ms500}, Manual: true},
		},
		{
			name:      "both overridden",
			overrides: Overrides{Gain: &high, Integration: &ms500},
			store:     stubStore{config: saved},
			want:      Start{Config: tsl2591.Config{Gain: high, Integration: ms500}, Manual: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(context.Background(), tt.overrides, tt.store, quietLogger())
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

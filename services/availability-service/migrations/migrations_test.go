package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadEmbedded(t *testing.T) {
	ms, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ms) == 0 || ms[0].Version != "001" {
		t.Fatalf("unexpected migrations: %+v", ms)
	}
	for _, table := range []string{"availability_settings", "appointments", "booking_idempotency_keys", "outbox_events", "inbox_events", "service_catalog"} {
		if !strings.Contains(ms[0].SQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("initial migration does not create %s", table)
		}
	}
}

func TestScanOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql": {Data: []byte("SELECT 2;")},
		"002_next.sql":  {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("ignored")},
	}
	ms, err := scan(fsys)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ms) != 2 || ms[0].Name != "002_next.sql" || ms[1].Name != "010_later.sql" {
		t.Fatalf("unexpected order: %+v", ms)
	}
}

func TestScanRejectsBadNames(t *testing.T) {
	cases := []fstest.MapFS{
		{"init.sql": {Data: []byte("SELECT 1;")}},
		{"001_a.sql": {Data: []byte("SELECT 1;")}, "001_b.sql": {Data: []byte("SELECT 2;")}},
	}
	for i, fsys := range cases {
		if _, err := scan(fsys); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

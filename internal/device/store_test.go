package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/database"
	_ "github.com/boguslaw-wojcik/zwave-bridge/migrations"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewStore(db, nil)
}

func seedGate(t *testing.T, s *Store) {
	t.Helper()
	err := s.Seed(context.Background(), []config.DeviceConfig{
		{
			ID:            "gate",
			Name:          "Driveway Gate",
			NodeID:        5,
			Profile:       "gate",
			Endpoint:      0,
			Supervised:    true,
			ReportStopped: true,
		},
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
}

func TestSeedAndGet(t *testing.T) {
	s := testStore(t)
	seedGate(t, s)

	d, err := s.Get(context.Background(), "gate")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Name != "Driveway Gate" || d.NodeID != 5 || !d.Supervised || !d.ReportStopped {
		t.Errorf("unexpected record: %+v", d)
	}
	if d.LastSessionID != 63 {
		t.Errorf("fresh session counter = %d, want 63", d.LastSessionID)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGetByNode(t *testing.T) {
	s := testStore(t)
	seedGate(t, s)

	d, err := s.GetByNode(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("GetByNode() error = %v", err)
	}
	if d.ID != "gate" {
		t.Errorf("device id = %q, want gate", d.ID)
	}
	if _, err := s.GetByNode(context.Background(), 9, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByNode() error = %v, want ErrNotFound", err)
	}
}

func TestSessionCounterRoundTrip(t *testing.T) {
	s := testStore(t)
	seedGate(t, s)
	ctx := context.Background()

	if err := s.SaveSessionID(ctx, "gate", 42); err != nil {
		t.Fatalf("SaveSessionID() error = %v", err)
	}
	got, err := s.LastSessionID(ctx, "gate")
	if err != nil {
		t.Fatalf("LastSessionID() error = %v", err)
	}
	if got != 42 {
		t.Errorf("counter = %d, want 42", got)
	}

	if err := s.SaveSessionID(ctx, "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveSessionID() error = %v, want ErrNotFound", err)
	}
}

func TestSeedPreservesCounterAndMetadata(t *testing.T) {
	s := testStore(t)
	seedGate(t, s)
	ctx := context.Background()

	if err := s.SaveSessionID(ctx, "gate", 17); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMetadata(ctx, "gate", 0x010F, 0x0602, 0x0053); err != nil {
		t.Fatal(err)
	}

	// Reconfigure with a new name; operational state must survive.
	err := s.Seed(ctx, []config.DeviceConfig{
		{ID: "gate", Name: "Front Gate", NodeID: 5, Profile: "gate", Supervised: true},
	})
	if err != nil {
		t.Fatalf("reseeding: %v", err)
	}

	d, err := s.Get(ctx, "gate")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Front Gate" {
		t.Errorf("name = %q, want Front Gate", d.Name)
	}
	if d.LastSessionID != 17 {
		t.Errorf("counter = %d, want 17", d.LastSessionID)
	}
	if d.ManufacturerID != 0x010F {
		t.Errorf("manufacturer id = %#04x, want 0x010F", d.ManufacturerID)
	}
}

func TestMetadataWrittenOnce(t *testing.T) {
	s := testStore(t)
	seedGate(t, s)
	ctx := context.Background()

	if err := s.SaveMetadata(ctx, "gate", 0x010F, 0x0602, 0x0053); err != nil {
		t.Fatal(err)
	}
	// A second report must not overwrite the cached identity.
	if err := s.SaveMetadata(ctx, "gate", 0xDEAD, 0xBEEF, 0x0001); err != nil {
		t.Fatal(err)
	}

	d, err := s.Get(ctx, "gate")
	if err != nil {
		t.Fatal(err)
	}
	if d.ManufacturerID != 0x010F || d.ProductTypeID != 0x0602 || d.ProductID != 0x0053 {
		t.Errorf("metadata overwritten: %+v", d)
	}
}

func TestFirmwareVersionWrittenOnce(t *testing.T) {
	s := testStore(t)
	seedGate(t, s)
	ctx := context.Background()

	if err := s.SaveFirmwareVersion(ctx, "gate", "25.25"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFirmwareVersion(ctx, "gate", "26.0"); err != nil {
		t.Fatal(err)
	}

	d, err := s.Get(ctx, "gate")
	if err != nil {
		t.Fatal(err)
	}
	if d.FirmwareVersion != "25.25" {
		t.Errorf("firmware version = %q, want 25.25", d.FirmwareVersion)
	}
}

func TestList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	err := s.Seed(ctx, []config.DeviceConfig{
		{ID: "shutter", Name: "Bedroom Shutter", NodeID: 7, Profile: "shutter", Endpoint: 1},
		{ID: "gate", Name: "Driveway Gate", NodeID: 5, Profile: "gate"},
	})
	if err != nil {
		t.Fatal(err)
	}

	devices, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if devices[0].ID != "gate" || devices[1].ID != "shutter" {
		t.Errorf("unexpected order: %s, %s", devices[0].ID, devices[1].ID)
	}
}

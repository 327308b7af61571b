package segment

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSegment_AppendAndReadBack(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	active, err := m.CreateActive()
	if err != nil {
		t.Fatalf("Failed to create active segment: %v", err)
	}

	off1, err := active.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	off2, err := active.Append([]byte("world!"))
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if off1 != 0 || off2 != 5 {
		t.Errorf("Expected offsets 0 and 5, got %d and %d", off1, off2)
	}
	if active.Size() != 11 {
		t.Errorf("Expected size 11, got %d", active.Size())
	}

	// Reads see appended bytes once flushed, even while the segment is active
	if err := active.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	buf, err := m.ReadAt(active.ID(), off2, 6)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(buf, []byte("world!")) {
		t.Errorf("Expected 'world!', got %q", buf)
	}
}

func TestSegment_SealIsOneWay(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	active, err := m.CreateActive()
	if err != nil {
		t.Fatalf("Failed to create active segment: %v", err)
	}
	if _, err := active.Append([]byte("data")); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	sealed, err := active.Seal()
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	m.AdoptSealed(sealed)

	if sealed.ID() != active.ID() {
		t.Errorf("Sealed id %d does not match active id %d", sealed.ID(), active.ID())
	}
	if sealed.Size() != 4 {
		t.Errorf("Expected sealed size 4, got %d", sealed.Size())
	}

	got := m.Sealed()
	if len(got) != 1 || got[0].ID() != sealed.ID() {
		t.Fatalf("Expected one sealed segment with id %d, got %v", sealed.ID(), got)
	}
}

func TestManager_ScanOrdersByID(t *testing.T) {
	dir := t.TempDir()

	// Write segment files out of order, plus a file that must be ignored
	for _, name := range []string{"000000003.seg", "000000001.seg", "000000002.seg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	files := m.Files()
	if len(files) != 3 {
		t.Fatalf("Expected 3 segment files, got %d", len(files))
	}
	for i, f := range files {
		if f.ID != uint64(i+1) {
			t.Errorf("Expected id %d at position %d, got %d", i+1, i, f.ID)
		}
	}

	// Next allocation continues after the highest scanned id
	active, err := m.CreateActive()
	if err != nil {
		t.Fatalf("Failed to create active segment: %v", err)
	}
	if active.ID() != 4 {
		t.Errorf("Expected next id 4, got %d", active.ID())
	}
}

func TestManager_RemoveDeletesFile(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	active, err := m.CreateActive()
	if err != nil {
		t.Fatalf("Failed to create active segment: %v", err)
	}
	if _, err := active.Append([]byte("doomed")); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	sealed, err := active.Seal()
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	m.AdoptSealed(sealed)

	// Open a pooled read handle so Remove also has to close it
	if _, err := m.ReadAt(sealed.ID(), 0, 6); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}

	if err := m.Remove(sealed.ID()); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}

	if _, err := os.Stat(sealed.Path()); !os.IsNotExist(err) {
		t.Errorf("Expected segment file to be deleted, stat err: %v", err)
	}
	if len(m.Sealed()) != 0 {
		t.Errorf("Expected no sealed segments after remove")
	}

	if _, err := m.ReadAt(sealed.ID(), 0, 1); !errors.Is(err, ErrUnknownSegment) {
		t.Errorf("Expected ErrUnknownSegment after remove, got %v", err)
	}
}

func TestManager_ScratchCommitLifecycle(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	scratch, err := m.CreateScratch()
	if err != nil {
		t.Fatalf("Failed to create scratch segment: %v", err)
	}
	if _, err := scratch.Append([]byte("compacted")); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// Before commit the file lives outside the scan namespace
	if _, err := os.Stat(filepath.Join(dir, "000000001.seg.new")); err != nil {
		t.Fatalf("Expected scratch file, stat err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "000000001.seg")); !os.IsNotExist(err) {
		t.Fatalf("Scratch segment visible under final name before commit")
	}

	sealed, err := scratch.Seal()
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}
	if err := m.CommitScratch(sealed); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if sealed.Path() != filepath.Join(dir, "000000001.seg") {
		t.Errorf("Expected committed path, got %s", sealed.Path())
	}
	if _, err := os.Stat(sealed.Path()); err != nil {
		t.Errorf("Committed segment file missing: %v", err)
	}
	if got := m.Sealed(); len(got) != 1 || got[0].ID() != 1 {
		t.Errorf("Expected committed segment in sealed set, got %v", got)
	}

	buf, err := m.ReadAt(1, 0, 9)
	if err != nil {
		t.Fatalf("Failed to read committed segment: %v", err)
	}
	if !bytes.Equal(buf, []byte("compacted")) {
		t.Errorf("Expected 'compacted', got %q", buf)
	}
}

func TestManager_ScanSweepsUncommittedScratch(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "000000001.seg"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write segment file: %v", err)
	}
	stale := filepath.Join(dir, "000000002.seg.new")
	if err := os.WriteFile(stale, []byte("half-written"), 0644); err != nil {
		t.Fatalf("Failed to write scratch file: %v", err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	if len(m.Files()) != 1 {
		t.Errorf("Expected scratch file to be excluded from scan, got %d files", len(m.Files()))
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Expected stale scratch file to be deleted, stat err: %v", err)
	}
}

func TestManager_DiscardScratchRemovesFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	scratch, err := m.CreateScratch()
	if err != nil {
		t.Fatalf("Failed to create scratch segment: %v", err)
	}
	if _, err := scratch.Append([]byte("doomed")); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if err := m.DiscardScratch(scratch); err != nil {
		t.Fatalf("Failed to discard: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "000000001.seg.new")); !os.IsNotExist(err) {
		t.Errorf("Expected scratch file to be deleted, stat err: %v", err)
	}
}

func TestManager_FilesReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000000001.seg", "000000002.seg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer m.Close()

	files := m.Files()
	files[0].ID = 999
	files[0].Path = "clobbered"

	fresh := m.Files()
	if fresh[0].ID != 1 || fresh[0].Path == "clobbered" {
		t.Errorf("Mutating the returned slice leaked into the manager: %+v", fresh[0])
	}
}

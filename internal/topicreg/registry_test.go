package topicreg

import "testing"

func TestFileNameReplacesSlashesWithDots(t *testing.T) {
	got := FileName("/robot/camera/image")
	want := "ros2_hazcat..robot.camera.image"
	if got != want {
		t.Fatalf("FileName = %q, want %q", got, want)
	}
}

func TestAcquireSharesSegmentAcrossLocalEndpoints(t *testing.T) {
	r := New(t.TempDir())

	seg1, err := r.Acquire("/topic", 4, 1)
	if err != nil {
		t.Fatalf("Acquire (first): %v", err)
	}
	seg2, err := r.Acquire("/topic", 4, 1)
	if err != nil {
		t.Fatalf("Acquire (second): %v", err)
	}
	if seg1 != seg2 {
		t.Fatal("expected the same mapped segment for repeated local Acquire")
	}

	if err := r.Release("/topic"); err != nil {
		t.Fatalf("Release (first): %v", err)
	}
	if _, ok := r.Lookup("/topic"); !ok {
		t.Fatal("segment should remain open while one local reference survives")
	}
	if err := r.Release("/topic"); err != nil {
		t.Fatalf("Release (second): %v", err)
	}
	if _, ok := r.Lookup("/topic"); ok {
		t.Fatal("segment should be closed once local references reach zero")
	}
}

func TestAcquireOpensExistingFileInsteadOfRecreating(t *testing.T) {
	dir := t.TempDir()
	r1 := New(dir)
	seg, err := r1.Acquire("/shared", 2, 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	seg.Header().PubCount = 3
	if err := r1.Release("/shared"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	r2 := New(dir)
	seg2, err := r2.Acquire("/shared", 99, 99) // dimensions ignored: file exists
	if err != nil {
		t.Fatalf("Acquire (reopen): %v", err)
	}
	defer r2.Release("/shared")
	if got := seg2.Header().PubCount; got != 3 {
		t.Fatalf("PubCount = %d, want 3 (expected reopen of existing file)", got)
	}
}

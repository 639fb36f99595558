package hazcat

import (
	"bytes"
	"testing"

	"github.com/nightduck/rmw-hazcat/internal/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.ShmDir = t.TempDir()
	return cfg
}

func TestPublishTakeRoundTrip(t *testing.T) {
	ctx, err := Init(testConfig(t))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	pub, err := ctx.RegisterPublisher("/demo", nil, 4)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	sub, err := ctx.RegisterSubscription("/demo", nil, 4)
	if err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}

	if err := pub.Publish([]byte("hello hazcat")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, ok, err := sub.Take()
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if !ok {
		t.Fatal("expected a message")
	}
	if !bytes.Equal(got, []byte("hello hazcat")) {
		t.Fatalf("got %q", got)
	}

	if err := pub.Unregister(); err != nil {
		t.Fatalf("pub.Unregister: %v", err)
	}
	if err := sub.Unregister(); err != nil {
		t.Fatalf("sub.Unregister: %v", err)
	}
}

func TestTakeEmptyIsNotAnError(t *testing.T) {
	ctx, err := Init(testConfig(t))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	sub, err := ctx.RegisterSubscription("/empty", nil, 2)
	if err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}
	defer sub.Unregister()

	data, ok, err := sub.Take()
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if ok || data != nil {
		t.Fatalf("expected empty take, got ok=%v data=%v", ok, data)
	}
}

func TestMinimumVersionRejectsNewerRequirement(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinSupportedVersion = "99.0.0"
	if _, err := Init(cfg); err == nil {
		t.Fatal("expected Init to reject an unsatisfiable minimum version")
	}
}

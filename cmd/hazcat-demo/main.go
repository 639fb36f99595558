// Command hazcat-demo walks through a full register -> publish -> take ->
// unregister cycle against a real segment, as a smoke test for a shm root
// directory and a sanity check when wiring up a new deployment.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nightduck/rmw-hazcat/internal/config"
	"github.com/nightduck/rmw-hazcat/pkg/hazcat"
)

func main() {
	var (
		topic   string
		shmDir  string
		depth   uint
		payload string
	)
	flag.StringVar(&topic, "topic", "/hazcat/demo", "topic name")
	flag.StringVar(&shmDir, "shm-dir", "/dev/shm", "shared-memory root directory")
	flag.UintVar(&depth, "depth", 8, "ring history depth")
	flag.StringVar(&payload, "payload", "hello from hazcat-demo", "payload bytes to publish")
	flag.Parse()

	if err := run(topic, shmDir, uint32(depth), payload); err != nil {
		fmt.Fprintln(os.Stderr, "hazcat-demo:", err)
		os.Exit(1)
	}
}

func run(topic, shmDir string, depth uint32, payload string) error {
	cfg := config.Default()
	cfg.ShmDir = shmDir

	ctx, err := hazcat.Init(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer ctx.Fini()

	pub, err := ctx.RegisterPublisher(topic, nil, depth)
	if err != nil {
		return fmt.Errorf("register publisher: %w", err)
	}
	defer pub.Unregister()

	sub, err := ctx.RegisterSubscription(topic, nil, depth)
	if err != nil {
		return fmt.Errorf("register subscription: %w", err)
	}
	defer sub.Unregister()

	if err := pub.Publish([]byte(payload)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Printf("published %d bytes to %s\n", len(payload), topic)

	got, ok, err := sub.Take()
	if err != nil {
		return fmt.Errorf("take: %w", err)
	}
	if !ok {
		return fmt.Errorf("take: expected a message, ring reported empty")
	}
	fmt.Printf("took %q\n", got)
	return nil
}

// Command hazcat-watch tails a shm root directory for topic segments
// appearing and disappearing, and on each write event to a segment reports
// any rows whose spinlock is held at that moment (a crashed publisher or
// subscriber can leave a row spinlock set, which §9 notes has no automatic
// recovery). It does not measure how long a lock has been held.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/nightduck/rmw-hazcat/internal/topic"
)

func main() {
	var shmDir string
	flag.StringVar(&shmDir, "shm-dir", "/dev/shm", "shared-memory root directory to watch")
	flag.Parse()

	if err := run(shmDir); err != nil {
		fmt.Fprintln(os.Stderr, "hazcat-watch:", err)
		os.Exit(1)
	}
}

func run(shmDir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(shmDir); err != nil {
		return fmt.Errorf("watching %s: %w", shmDir, err)
	}
	fmt.Printf("watching %s for hazcat topic segments\n", shmDir)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			handleEvent(shmDir, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "watch error:", err)
		}
	}
}

func handleEvent(shmDir string, ev fsnotify.Event) {
	base := strings.TrimPrefix(ev.Name, shmDir+"/")
	if !strings.HasPrefix(base, "ros2_hazcat.") {
		return
	}
	switch {
	case ev.Op&fsnotify.Create != 0:
		fmt.Printf("+ segment %s\n", base)
	case ev.Op&fsnotify.Remove != 0:
		fmt.Printf("- segment %s\n", base)
	case ev.Op&fsnotify.Write != 0:
		diagnose(ev.Name, base)
	}
}

func diagnose(path, base string) {
	seg, err := topic.Open(path, base)
	if err != nil {
		return // segment may have been unlinked between the event and this open
	}
	defer seg.Close()

	report, err := topic.Diagnose(seg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "diagnose", base, ":", err)
		return
	}
	if len(report.LockedRows) > 0 {
		fmt.Printf("! %s: rows locked=%v pub=%d sub=%d len=%d domains=%d\n",
			base, report.LockedRows, report.PubCount, report.SubCount, report.Len, report.NumDomains)
	}
}

// Package topicreg is the process-local list of opened topic segments,
// keyed by topic name (core specification §2 item 4, §4.6). It memoizes
// the mapped *topic.Segment so repeated Register calls for the same topic
// within one process share a single mmap rather than mapping it again per
// endpoint.
package topicreg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nightduck/rmw-hazcat/internal/topic"
)

// shmPrefix matches the naming rule of §6: "/ros2_hazcat.<topic-with-
// slashes-replaced-by-dots>".
const shmPrefix = "ros2_hazcat."

// FileName converts a topic name such as "/robot/camera/image" into its
// shared-memory segment file name, "ros2_hazcat..robot.camera.image".
func FileName(topicName string) string {
	return shmPrefix + strings.ReplaceAll(topicName, "/", ".")
}

type entry struct {
	seg    *topic.Segment
	opens  int // local endpoints (publishers+subscribers) holding this open
}

// Registry is the process-local topic-name-to-segment map. Unlike
// allocreg, which resolves foreign allocator ids discovered on the take
// path, topicreg only ever holds topics this process has explicitly
// registered a local endpoint against.
type Registry struct {
	shmDir string

	mu      sync.Mutex
	byTopic map[string]*entry
}

// New creates a registry rooted at shmDir (normally /dev/shm, overridable
// by internal/config for tests and non-Linux hosts).
func New(shmDir string) *Registry {
	return &Registry{shmDir: shmDir, byTopic: make(map[string]*entry)}
}

// Acquire returns the segment for topicName, creating its backing file with
// the given initial length and domain count if this is the first local
// endpoint to touch it and no file exists yet. If the file already exists
// (another process registered first), it is opened instead and the
// requested dimensions are ignored -- growth, if needed, is the caller's
// job via topic.Segment.Grow under an exclusive lock.
func (r *Registry) Acquire(topicName string, length, numDomains uint32) (*topic.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byTopic[topicName]; ok {
		e.opens++
		return e.seg, nil
	}

	path := filepath.Join(r.shmDir, FileName(topicName))
	seg, err := topic.Create(path, topicName, length, numDomains)
	if errors.Is(err, os.ErrExist) {
		seg, err = topic.Open(path, topicName)
	}
	if err != nil {
		return nil, err
	}
	r.byTopic[topicName] = &entry{seg: seg, opens: 1}
	return seg, nil
}

// Release drops one local endpoint's hold on topicName's segment, closing
// (but not unlinking) the mapping once no local endpoint references it.
// Unlinking the backing file is a cross-process decision driven by the
// segment's own PubCount/SubCount header fields, handled by the queue
// package at the point it observes both reach zero.
func (r *Registry) Release(topicName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTopic[topicName]
	if !ok {
		return nil
	}
	e.opens--
	if e.opens > 0 {
		return nil
	}
	delete(r.byTopic, topicName)
	return e.seg.Close()
}

// Lookup returns the currently mapped segment for topicName, if any local
// endpoint has it open.
func (r *Registry) Lookup(topicName string) (*topic.Segment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byTopic[topicName]
	if !ok {
		return nil, false
	}
	return e.seg, true
}

// Path returns the filesystem path Acquire would use for topicName, without
// opening or creating it.
func (r *Registry) Path(topicName string) string {
	return filepath.Join(r.shmDir, FileName(topicName))
}

// Count returns the number of topic segments this process currently has
// open, for the active_topics gauge.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTopic)
}

package topic

import (
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nightduck/rmw-hazcat/internal/herrors"
)

// lockPollInterval is the spacing between F_SETLK probes when a Segment has
// a non-zero lockTimeout (see flockWithTimeout).
const lockPollInterval = time.Millisecond

// Segment is a topic's shared-memory-mapped ring: one file under the
// configured shm root, mmap'd MAP_SHARED so every process that opens it by
// name sees the same bytes (§3, §4.6). There is no cgo shm_open call --
// Linux's shm_open is, byte for byte, opening a file under the tmpfs-backed
// /dev/shm, so a plain *os.File plus unix.Mmap gets the same guarantee.
type Segment struct {
	Name string // sanitized topic name, used for diagnostics only

	file *os.File
	buf  []byte

	// lockTimeout bounds LockShared/LockExclusive's wait when non-zero
	// (internal/config's LockWaitTimeout). Zero means block indefinitely,
	// same as a bare F_SETLKW.
	lockTimeout time.Duration
}

// SetLockTimeout bounds every future LockShared/LockExclusive call to at
// most d of waiting before it gives up with a LockFailed error. d <= 0
// restores the default of blocking indefinitely.
func (s *Segment) SetLockTimeout(d time.Duration) {
	s.lockTimeout = d
}

// Create makes a new segment file of the given initial ring length and
// domain count, failing if one already exists at path.
func Create(path, name string, length, numDomains uint32) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, herrors.Wrap(herrors.TopicOpenFailed, name, err, "creating segment file %s", path)
	}
	size := segmentSize(length, numDomains)
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, herrors.Wrap(herrors.TopicOpenFailed, name, err, "truncating segment to %d bytes", size)
	}
	seg, err := mapSegment(f, name, size)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	hdr := seg.Header()
	hdr.Len = length
	hdr.NumDomains = numDomains
	return seg, nil
}

// Open maps an existing segment file at path.
func Open(path, name string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, herrors.Wrap(herrors.TopicOpenFailed, name, err, "opening segment file %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, herrors.Wrap(herrors.TopicOpenFailed, name, err, "statting segment file %s", path)
	}
	return mapSegment(f, name, fi.Size())
}

func mapSegment(f *os.File, name string, size int64) (*Segment, error) {
	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, herrors.Wrap(herrors.TopicOpenFailed, name, err, "mmap of %d bytes", size)
	}
	return &Segment{Name: name, file: f, buf: buf}, nil
}

// Header returns a pointer to the mapped header. The returned pointer
// aliases shared memory: every field access is visible to every other
// process with the segment open.
func (s *Segment) Header() *Header {
	return (*Header)(unsafe.Pointer(&s.buf[0]))
}

// RefCell returns a pointer to the i'th row's shared refcount cell.
func (s *Segment) RefCell(i uint32) *RefCell {
	return (*RefCell)(unsafe.Pointer(&s.buf[refCellOffset(i)]))
}

// Entry returns a pointer to the Entry at (domainCol, i) for the segment's
// current length. Callers must hold at least a shared file lock while
// reading length and calling this together, per §4.1 -- Grow changes length
// and the row-major layout it implies atomically under the exclusive lock.
func (s *Segment) Entry(domainCol, i uint32) *Entry {
	length := s.Header().Len
	return (*Entry)(unsafe.Pointer(&s.buf[entryOffset(domainCol, i, length)]))
}

// LockShared acquires an advisory, blocking, process-wide shared (read)
// lock over the whole segment file, matching the original's use of a single
// flock-style lock to serialize readers against the rare exclusive
// structural change (Grow, endpoint registration).
func (s *Segment) LockShared() error {
	return s.flock(unix.F_RDLCK)
}

// LockExclusive acquires an advisory, blocking, process-wide exclusive
// (write) lock over the whole segment file.
func (s *Segment) LockExclusive() error {
	return s.flock(unix.F_WRLCK)
}

// Unlock releases whichever lock this process holds on the segment file.
func (s *Segment) Unlock() error {
	return s.flock(unix.F_UNLCK)
}

func (s *Segment) flock(typ int16) error {
	// Unlock never waits on anything, so the configured timeout only
	// applies to acquiring a read or write lock.
	if typ != unix.F_UNLCK && s.lockTimeout > 0 {
		return s.flockWithTimeout(typ)
	}
	lk := unix.Flock_t{
		Type:   typ,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0, // 0 means "to end of file", covering header growth too
	}
	for {
		err := unix.FcntlFlock(s.file.Fd(), unix.F_SETLKW, &lk)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return herrors.Wrap(herrors.LockFailed, s.Name, err, "fcntl F_SETLKW type=%d", typ)
		}
		return nil
	}
}

// flockWithTimeout bounds the wait for a read or write lock to
// s.lockTimeout, polling the same non-blocking F_SETLK primitive
// TryLockExclusive probes with instead of handing the kernel an unbounded
// F_SETLKW. A caller that configures internal/config's LockWaitTimeout gets
// a bounded wait on a lock wedged by a crashed holder instead of hanging
// forever.
func (s *Segment) flockWithTimeout(typ int16) error {
	lk := unix.Flock_t{Type: typ, Whence: int16(os.SEEK_SET)}
	deadline := time.Now().Add(s.lockTimeout)
	for {
		err := unix.FcntlFlock(s.file.Fd(), unix.F_SETLK, &lk)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err != unix.EACCES && err != unix.EAGAIN {
			return herrors.Wrap(herrors.LockFailed, s.Name, err, "fcntl F_SETLK type=%d", typ)
		}
		if time.Now().After(deadline) {
			return herrors.New(herrors.LockFailed, s.Name, "timed out after %s waiting for lock", s.lockTimeout)
		}
		time.Sleep(lockPollInterval)
	}
}

// TryLockExclusive attempts a non-blocking exclusive lock, used by Diagnose
// to detect a lock that nothing currently holds versus one that is merely
// contended.
func (s *Segment) TryLockExclusive() (bool, error) {
	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: int16(os.SEEK_SET)}
	err := unix.FcntlFlock(s.file.Fd(), unix.F_SETLK, &lk)
	if err == nil {
		// Release immediately; this call only probes.
		unlk := unix.Flock_t{Type: unix.F_UNLCK, Whence: int16(os.SEEK_SET)}
		unix.FcntlFlock(s.file.Fd(), unix.F_SETLK, &unlk)
		return true, nil
	}
	if err == unix.EACCES || err == unix.EAGAIN {
		return false, nil
	}
	return false, herrors.Wrap(herrors.LockFailed, s.Name, err, "fcntl F_SETLK probe")
}

// Grow extends the segment to accommodate a new ring length or domain
// count, called when a registering endpoint pushes NumDomains or the
// configured depth past what the current file holds. Callers must already
// hold LockExclusive.
//
// This reproduces, rather than fixes, the original C implementation's
// known re-layout bug (see the growth section of DESIGN.md's Open
// Question decisions): growing length or numDomains changes every Entry's
// row-major offset, but existing Entry payloads are not moved to their new
// offsets -- only the raw file is extended and the header fields updated.
// Any row written before the Grow is therefore misread by a later access
// computed with the new Len/NumDomains. The core specification's Non-goals
// exclude fixing this, so it is carried forward verbatim for behavioral
// fidelity with the system being modeled.
func (s *Segment) Grow(newLength, newNumDomains uint32) error {
	hdr := s.Header()
	if newLength < hdr.Len {
		newLength = hdr.Len
	}
	if newNumDomains < hdr.NumDomains {
		newNumDomains = hdr.NumDomains
	}
	newSize := segmentSize(newLength, newNumDomains)
	if err := s.file.Truncate(newSize); err != nil {
		return herrors.Wrap(herrors.TopicOpenFailed, s.Name, err, "growing segment to %d bytes", newSize)
	}
	if err := unix.Munmap(s.buf); err != nil {
		return herrors.Wrap(herrors.TopicOpenFailed, s.Name, err, "unmapping before remap")
	}
	buf, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return herrors.Wrap(herrors.TopicOpenFailed, s.Name, err, "remapping after growth")
	}
	s.buf = buf
	hdr = s.Header()
	hdr.Len = newLength
	hdr.NumDomains = newNumDomains
	return nil
}

// Close unmaps and closes the segment's file descriptor without removing
// the backing file -- other processes may still have it open.
func (s *Segment) Close() error {
	if err := unix.Munmap(s.buf); err != nil {
		s.file.Close()
		return herrors.Wrap(herrors.TopicOpenFailed, s.Name, err, "munmap on close")
	}
	return s.file.Close()
}

// Unlink removes the segment's backing file, called by the last endpoint to
// unregister once both PubCount and SubCount reach zero (§4.6).
func Unlink(path string) error {
	return os.Remove(path)
}

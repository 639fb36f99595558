package topic

// Report is a point-in-time snapshot of a segment's lock state, used by the
// hazcat-watch tool and by tests to detect a row left locked by a process
// that crashed mid-publish or mid-take without releasing it. The core
// specification leaves recovery from such a stuck lock unresolved (no
// lease, no owner pid recorded in RefCell) -- Diagnose only surfaces the
// condition; it performs no recovery, per the Open Question disposition in
// DESIGN.md.
type Report struct {
	Len          uint32
	NumDomains   uint32
	PubCount     uint16
	SubCount     uint16
	FileLockFree bool
	LockedRows   []uint32
}

// Diagnose inspects a segment's header and every row's lock word without
// holding the segment's own advisory file lock: it only probes that lock
// with a non-blocking attempt (released at once if it succeeds), so it can
// still report on a segment another process is wedged holding. A row is
// reported if its lock word is held at the moment it is read; hold time is
// not measured. Because it does not lock, the result is best-effort: a row
// can change state between the read here and the caller observing it.
func Diagnose(s *Segment) (Report, error) {
	hdr := s.Header()
	r := Report{
		Len:        hdr.Len,
		NumDomains: hdr.NumDomains,
		PubCount:   hdr.PubCount,
		SubCount:   hdr.SubCount,
	}
	free, err := s.TryLockExclusive()
	if err != nil {
		return r, err
	}
	r.FileLockFree = free
	for i := uint32(0); i < hdr.Len; i++ {
		if s.RefCell(i).Lock == LockHeld {
			r.LockedRows = append(r.LockedRows, i)
		}
	}
	return r, nil
}

package allocator

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapArena reserves an anonymous, zero-filled region of the given size.
// It stands in for the domain-specific ring-buffer allocator the core
// specification treats abstractly (§4.5) -- real device allocators would
// back this with device memory instead, but the page-granular mmap idiom
// here is the same one the topic segment itself uses for the shared ring.
func mmapArena(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocator: arena size must be positive, got %d", size)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("allocator: mmap arena of %d bytes: %w", size, err)
	}
	return buf, nil
}

func munmapArena(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return unix.Munmap(buf)
}

// Package domain identifies the memory domain a payload or allocator lives in.
package domain

// Type is the device family portion of a DomainID.
type Type uint16

const (
	TypeCPU Type = iota
	TypeCUDA
	TypeOpenCL
	TypeFPGA
	TypeDSP
)

func (t Type) String() string {
	switch t {
	case TypeCPU:
		return "cpu"
	case TypeCUDA:
		return "cuda"
	case TypeOpenCL:
		return "opencl"
	case TypeFPGA:
		return "fpga"
	case TypeDSP:
		return "dsp"
	default:
		return "unknown"
	}
}

// ID is a 32-bit tag composed of a device type (high 16 bits) and a device
// index (low 16 bits). CPU is always the canonical identifier 0 and, by
// invariant, always occupies column 0 of every topic.
type ID uint32

// CPU is the canonical host-memory domain. It always maps to column 0.
const CPU ID = 0

// New builds a domain id from a device type and a zero-based device index.
func New(t Type, index uint16) ID {
	return ID(uint32(t)<<16 | uint32(index))
}

// Type returns the device family encoded in the id.
func (d ID) Type() Type {
	return Type(uint32(d) >> 16)
}

// Index returns the device index encoded in the id.
func (d ID) Index() uint16 {
	return uint16(uint32(d) & 0xFFFF)
}

func (d ID) String() string {
	if d == CPU {
		return "cpu"
	}
	return d.Type().String() + ":" + itoa(d.Index())
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

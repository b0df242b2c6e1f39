package kvm

import "yalnix/defs"

// AddrSpace is a process's view of its own Region 1 table plus the
// physical memory backing it, used to move bytes between a kernel buffer
// and user virtual addresses without the caller needing to walk the page
// table itself. Grounded on vm/userbuf.go's Userbuf_t (teacher): a small
// wrapper pairing a page table with the raw memory it maps.
type AddrSpace struct {
	pt   *PageTable
	phys PhysMem
}

// NewAddrSpace returns an AddrSpace over pt backed by phys.
func NewAddrSpace(pt *PageTable, phys PhysMem) *AddrSpace {
	return &AddrSpace{pt: pt, phys: phys}
}

// ReadAt copies len(dst) bytes starting at user virtual address vaddr into
// dst, stopping early (and returning defs.EINVAL) at the first unmapped or
// unreadable page.
func (as *AddrSpace) ReadAt(vaddr int, dst []byte) (int, defs.Errno) {
	n := 0
	for n < len(dst) {
		a := vaddr + n
		vpn := as.pt.PageOf(a)
		pte, ok := as.pt.Lookup(vpn)
		if !ok || !pte.Valid || pte.Prot&defs.ProtRead == 0 {
			return n, defs.EINVAL
		}
		off := a % defs.PageSize
		frame := as.phys.ReadFrame(pte.Pfn)
		c := copy(dst[n:], frame[off:])
		n += c
	}
	return n, 0
}

// WriteAt copies src into user virtual addresses starting at vaddr,
// stopping early (and returning defs.EINVAL) at the first unmapped or
// unwritable page. The underlying PhysMem.ReadFrame slice is assumed
// mutable, matching machine.Physical's flat-memory backing.
func (as *AddrSpace) WriteAt(vaddr int, src []byte) (int, defs.Errno) {
	n := 0
	for n < len(src) {
		a := vaddr + n
		vpn := as.pt.PageOf(a)
		pte, ok := as.pt.Lookup(vpn)
		if !ok || !pte.Valid || pte.Prot&defs.ProtWrite == 0 {
			return n, defs.EINVAL
		}
		off := a % defs.PageSize
		frame := as.phys.ReadFrame(pte.Pfn)
		c := copy(frame[off:], src[n:])
		n += c
	}
	return n, 0
}

// Uio is a defs.UserIO cursor over an AddrSpace, advancing a fixed virtual
// address as each call consumes bytes — the shape a syscall handler wants
// when copying a single contiguous user buffer.
type Uio struct {
	as    *AddrSpace
	vaddr int
}

// NewUio returns a cursor starting at vaddr within as.
func (as *AddrSpace) NewUio(vaddr int) *Uio {
	return &Uio{as: as, vaddr: vaddr}
}

func (u *Uio) Uioread(dst []byte) (int, defs.Errno) {
	n, err := u.as.ReadAt(u.vaddr, dst)
	u.vaddr += n
	return n, err
}

func (u *Uio) Uiowrite(src []byte) (int, defs.Errno) {
	n, err := u.as.WriteAt(u.vaddr, src)
	u.vaddr += n
	return n, err
}

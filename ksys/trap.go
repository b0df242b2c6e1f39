package ksys

import (
	"yalnix/defs"
	"yalnix/kproc"
)

// MemoryTrap services a MEMORY trap at faulting address addr (§4.7). An
// ACCERR (a present mapping accessed in a disallowed way) is always
// illegal and kills the process. A MAPERR within
// [heap_page, sp_page] is implicit user-stack growth: every unmapped page
// from the faulting page up to sp_page is mapped R+W and flushed. A MAPERR
// outside that range is also illegal.
func (c *Context) MemoryTrap(pcb *kproc.PCB, addr int, code defs.MemCode) defs.Errno {
	if code == defs.AccErr {
		c.Exit(pcb, -1)
		return defs.EPERM
	}

	page := pcb.Region1.PageOf(addr)
	spPage := pcb.Region1.PageOf(int(pcb.UCtxt.SP))
	heapPage := pcb.Region1.FirstHole()
	if pcb.Brk != 0 {
		heapPage = pcb.Region1.PageOf(pcb.Brk)
	}

	if addr < defs.Vmem1Base || page < heapPage || page > spPage {
		c.Exit(pcb, -1)
		return defs.EINVAL
	}

	var mapped []int
	for p := page; p <= spPage; p++ {
		if pte, ok := pcb.Region1.Lookup(p); ok && pte.Valid {
			continue
		}
		pfn := c.Frames.GetFree()
		if pfn == defs.ERROR {
			for _, mp := range mapped {
				if f, ok := pcb.Region1.Unmap(mp); ok {
					c.Frames.FreeFrame(f)
				}
			}
			c.Exit(pcb, -1)
			return defs.ENOMEM
		}
		pcb.Region1.Map(p, pfn, defs.ProtRead|defs.ProtWrite)
		c.TLB.FlushPage(pcb.Region1.AddrOf(p))
		mapped = append(mapped, p)
	}
	return 0
}

// IllegalTrap terminates pcb for executing an illegal instruction (§7).
func (c *Context) IllegalTrap(pcb *kproc.PCB, code int) {
	c.Exit(pcb, code)
}

// MathTrap terminates pcb for a math trap (e.g. divide by zero) (§7).
func (c *Context) MathTrap(pcb *kproc.PCB, code int) {
	c.Exit(pcb, code)
}

// DiskTrap terminates pcb for a disk trap (§7) — this kernel has no disk
// device, so any DISK trap delivered is necessarily an error condition for
// whatever process triggered it.
func (c *Context) DiskTrap(pcb *kproc.PCB, code int) {
	c.Exit(pcb, code)
}

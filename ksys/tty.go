package ksys

import (
	"yalnix/defs"
	"yalnix/kproc"
)

// TtyRead reads up to n bytes from terminal termID for pcb (§4.10).
func (c *Context) TtyRead(pcb *kproc.PCB, termID, n int) (int, defs.Errno) {
	term := c.TTYs.Terminal(termID)
	if term == nil {
		return 0, defs.ENOTFOUND
	}
	return term.Read(pcb, n), 0
}

// TtyWrite writes buf to terminal termID on pcb's behalf (§4.10).
func (c *Context) TtyWrite(pcb *kproc.PCB, termID int, buf []byte) (int, defs.Errno) {
	term := c.TTYs.Terminal(termID)
	if term == nil {
		return 0, defs.ENOTFOUND
	}
	return term.Write(pcb, buf), 0
}

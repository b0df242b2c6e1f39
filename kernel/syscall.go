package kernel

import (
	"yalnix/defs"
	"yalnix/kproc"
	"yalnix/ktrap"
	"yalnix/kvm"
	"yalnix/util"
)

// maxCString bounds how many bytes HandleSyscall will read hunting for a
// NUL terminator, so a user string with no terminator in mapped memory
// can't keep the kernel reading without limit (an unmapped byte already
// ends the read).
const maxCString = 4096

// HandleSyscall demultiplexes a TrapKernel trap by syscall number (carried
// in info.Code, §6) and invokes the matching ksys handler, following the
// classic Yalnix register convention: arguments in regs[1..], the result
// written back into regs[0]. Syscalls that carry a byte buffer (tty/pipe
// read/write) copy between the caller's address space and a kernel-owned
// scratch slice via kvm.AddrSpace, exactly the boundary defs.UserIO exists
// to cross — pcb.Region1 is never walked directly outside that package.
func (k *Kernel) HandleSyscall(p *kproc.PCB, info ktrap.Info) {
	as := kvm.NewAddrSpace(p.Region1, k.Phys)
	regs := &p.UCtxt.Regs

	switch defs.Syscall(info.Code) {
	case defs.SysFork:
		regs[0] = int64(k.Sys.Fork(p))

	case defs.SysExec:
		filename, ok := readCString(as, int(regs[1]))
		if !ok {
			regs[0] = int64(defs.ERROR)
			break
		}
		if err := k.Sys.Exec(p, filename, nil); err != 0 {
			k.Sys.Exit(p, int(err))
		}

	case defs.SysExit:
		k.Sys.Exit(p, int(regs[1]))

	case defs.SysWait:
		pid, status, err := k.Sys.Wait(p)
		if err != 0 {
			regs[0] = int64(defs.ERROR)
			break
		}
		statusOut := make([]byte, 4)
		util.Writen(statusOut, 4, 0, status)
		as.WriteAt(int(regs[1]), statusOut)
		regs[0] = int64(pid)

	case defs.SysGetPid:
		regs[0] = int64(k.Sys.GetPid(p))

	case defs.SysBrk:
		regs[0] = int64(k.Sys.Brk(p, int(regs[1])))

	case defs.SysDelay:
		regs[0] = int64(k.Sys.Delay(p, int(regs[1])))

	case defs.SysTtyRead:
		regs[0] = int64(k.ttyRead(p, as, int(regs[1]), int(regs[2]), int(regs[3])))

	case defs.SysTtyWrite:
		regs[0] = int64(k.ttyWrite(p, as, int(regs[1]), int(regs[2]), int(regs[3])))

	case defs.SysPipeInit:
		id, err := k.Sys.PipeInit()
		regs[0] = int64(result(id, err))

	case defs.SysPipeRead:
		regs[0] = int64(k.pipeRead(p, as, int(regs[1]), int(regs[2]), int(regs[3])))

	case defs.SysPipeWrite:
		regs[0] = int64(k.pipeWrite(p, as, int(regs[1]), int(regs[2]), int(regs[3])))

	case defs.SysLockInit:
		id, err := k.Sys.LockInit()
		regs[0] = int64(result(id, err))

	case defs.SysLockAcquire:
		regs[0] = int64(result(0, k.Sys.LockAcquire(p, int(regs[1]))))

	case defs.SysLockRelease:
		regs[0] = int64(result(0, k.Sys.LockRelease(p, int(regs[1]))))

	case defs.SysCvarInit:
		id, err := k.Sys.CvarInit()
		regs[0] = int64(result(id, err))

	case defs.SysCvarSignal:
		regs[0] = int64(result(0, k.Sys.CvarSignal(int(regs[1]))))

	case defs.SysCvarBroadcast:
		regs[0] = int64(result(0, k.Sys.CvarBroadcast(int(regs[1]))))

	case defs.SysCvarWait:
		regs[0] = int64(result(0, k.Sys.CvarWait(p, int(regs[1]), int(regs[2]))))

	case defs.SysReclaim:
		regs[0] = int64(result(0, k.Sys.Reclaim(int(regs[1]))))

	default:
		k.Sys.Exit(p, -1)
	}
}

// result collapses an (id, Errno) pair down to the wire ABI: the id on
// success, defs.ERROR on any failure (§6: "the syscall layer is the only
// place that collapses an Errno down to the wire ERROR sentinel").
func result(id int, err defs.Errno) int {
	if err != 0 {
		return defs.ERROR
	}
	return id
}

func (k *Kernel) ttyRead(p *kproc.PCB, as *kvm.AddrSpace, termID, dstVaddr, n int) int {
	got, err := k.Sys.TtyRead(p, termID, n)
	if err != 0 {
		return defs.ERROR
	}
	as.WriteAt(dstVaddr, p.KernelReadBuffer)
	return got
}

func (k *Kernel) ttyWrite(p *kproc.PCB, as *kvm.AddrSpace, termID, srcVaddr, n int) int {
	buf := make([]byte, n)
	if _, err := as.ReadAt(srcVaddr, buf); err != 0 {
		return defs.ERROR
	}
	got, terr := k.Sys.TtyWrite(p, termID, buf)
	if terr != 0 {
		return defs.ERROR
	}
	return got
}

func (k *Kernel) pipeRead(p *kproc.PCB, as *kvm.AddrSpace, id, dstVaddr, n int) int {
	buf := make([]byte, n)
	got, err := k.Sys.PipeRead(p, id, buf)
	if err != 0 {
		return defs.ERROR
	}
	as.WriteAt(dstVaddr, buf[:got])
	return got
}

func (k *Kernel) pipeWrite(p *kproc.PCB, as *kvm.AddrSpace, id, srcVaddr, n int) int {
	buf := make([]byte, n)
	if _, err := as.ReadAt(srcVaddr, buf); err != 0 {
		return defs.ERROR
	}
	got, werr := k.Sys.PipeWrite(p, id, buf)
	if werr != 0 {
		return defs.ERROR
	}
	return got
}

// readCString reads a NUL-terminated string out of the caller's address
// space one byte at a time, stopping at the terminator or maxCString,
// whichever comes first. ok is false if vaddr faults before a terminator
// is found.
func readCString(as *kvm.AddrSpace, vaddr int) (s string, ok bool) {
	var buf []byte
	one := make([]byte, 1)
	for i := 0; i < maxCString; i++ {
		if _, err := as.ReadAt(vaddr+i, one); err != 0 {
			return "", false
		}
		if one[0] == 0 {
			return string(buf), true
		}
		buf = append(buf, one[0])
	}
	return "", false
}

// Package loader is a stand-in for the external program-loader
// collaborator spec.md §1 and §6 name only at the interface level ("an
// executable file with (entry, text_vaddr, text_npg, ...)" — the ABI is
// fixed, but supplying a real binary reader is out of scope). StaticLoader
// satisfies ksys.Loader with a fixed one-page text region and a one-page
// stack, registered per named guest program rather than parsed from a
// file on disk, so the kernel and cmd/yalnixsim have something concrete
// to Exec without pulling in an ELF/linker toolchain that no pack repo's
// *kernel* packages retrieve (chentry.go, the one ELF-handling file
// retrieved from the teacher, is a build-time tool, not kernel code).
package loader

import (
	"yalnix/defs"
	"yalnix/kmem"
	"yalnix/ksys"
	"yalnix/kvm"
)

// Program is a guest program's entry point, as the kernel would see it
// after a real loader finished placing bytes in Region 1. Name is matched
// against the filename Exec is given.
type Program struct {
	Name  string
	Entry int
}

// StaticLoader is a fixed table of named programs. Any filename not
// present in Table falls back to the text page's base address (the
// conventional "first byte of text"), so Exec always succeeds against a name it
// doesn't specifically recognize (matching the teacher's permissive
// `init` bring-up rather than failing unknown-program boots).
type StaticLoader struct {
	Table map[string]Program
}

// NewStaticLoader returns a StaticLoader seeded with progs, indexed by
// name.
func NewStaticLoader(progs ...Program) *StaticLoader {
	t := make(map[string]Program, len(progs))
	for _, p := range progs {
		t[p.Name] = p
	}
	return &StaticLoader{Table: t}
}

// Load implements ksys.Loader (§4.6 exec, §6 Loader ABI): it allocates one
// text frame and one stack frame, maps them R+W (Exec flips text to R+X
// once loading — here, trivially, nothing — has "completed"), and returns
// the entry/stack-pointer pair Exec resumes the process at.
func (l *StaticLoader) Load(filename string, argv []string, pt *kvm.PageTable, frames *kmem.Frames, phys kvm.PhysMem) (ksys.LoadResult, defs.Errno) {
	textPfn := frames.GetFree()
	if textPfn == defs.ERROR {
		return ksys.LoadResult{}, defs.ENOMEM
	}
	if err := pt.Map(0, textPfn, defs.ProtRead|defs.ProtWrite); err != 0 {
		frames.FreeFrame(textPfn)
		return ksys.LoadResult{}, err
	}

	stackVpn := pt.NumPages() - 1
	stackPfn := frames.GetFree()
	if stackPfn == defs.ERROR {
		pt.Unmap(0)
		frames.FreeFrame(textPfn)
		return ksys.LoadResult{}, defs.ENOMEM
	}
	if err := pt.Map(stackVpn, stackPfn, defs.ProtRead|defs.ProtWrite); err != 0 {
		pt.Unmap(0)
		frames.FreeFrame(textPfn)
		frames.FreeFrame(stackPfn)
		return ksys.LoadResult{}, err
	}

	entry := pt.AddrOf(0)
	if prog, ok := l.Table[filename]; ok {
		entry = prog.Entry
	}

	return ksys.LoadResult{
		Entry:     entry,
		SP:        pt.AddrOf(stackVpn) + defs.PageSize,
		TextBase:  0,
		TextPages: 1,
	}, 0
}

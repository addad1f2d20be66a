package main

import (
	"github.com/jnwu/bkernel/pkg/kernel/proc"
	"github.com/jnwu/bkernel/pkg/kernel/sysno"
)

// demoRootEntry plays the part of the original kernel's root(): it seeds a
// couple of worker processes and then idles, the same shape user.c's root
// takes once producer/consumer are created.
func demoRootEntry(t proc.Trap) {
	t.Syscall(sysno.Create, proc.Entry(demoSleeperEntry), 0)
	t.Syscall(sysno.Create, proc.Entry(demoGreeterEntry), 0)
	for {
		t.Syscall(sysno.Yield)
	}
}

func demoSleeperEntry(t proc.Trap) {
	unslept := t.Syscall(sysno.Sleep, uint(250))
	if unslept == 0 {
		t.Syscall(sysno.Puts, "sleeper: woke up after a full sleep\n")
	} else {
		t.Syscall(sysno.Puts, "sleeper: woke up early\n")
	}
	t.Syscall(sysno.Stop)
}

func demoGreeterEntry(t proc.Trap) {
	t.Syscall(sysno.Puts, "greeter: hello from bkernel\n")
	t.Syscall(sysno.Stop)
}

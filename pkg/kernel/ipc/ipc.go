// Package ipc implements a synchronous rendezvous facility. No message is
// ever buffered: send and recv only ever complete by meeting a peer that is
// already waiting, or by blocking until one arrives.
//
// original_source/ carries no ipc.c — only xeroskernel.h's send/recv/
// deadlock/release extern declarations and syscall.c's syssend/sysrecv
// trampolines survived distillation — so the rendezvous and deadlock-chain
// algorithms here are built directly from the design documents rather than
// ported from a reference implementation.
package ipc

import (
	"github.com/jnwu/bkernel/pkg/kernel/klog"
	"github.com/jnwu/bkernel/pkg/kernel/proc"
	"github.com/jnwu/bkernel/pkg/kernel/sysno"
)

// Facility holds the one piece of IPC state that doesn't live on a PCB: the
// queue of receivers waiting on "any" sender (from_pid == 0), which has no
// single source PCB to queue against.
type Facility struct {
	table    *proc.Table
	anyRecvs proc.Queue
	maxChain int
}

// New constructs a Facility backed by table. maxChain bounds deadlock-chain
// traversal; the dispatcher passes the process table's capacity, since a
// blocked-on chain is bounded by the number of live processes.
func New(table *proc.Table, maxChain int) *Facility {
	if maxChain <= 0 {
		maxChain = proc.DefaultMaxProc
	}
	return &Facility{table: table, maxChain: maxChain}
}

// Send implements syssend. On success it returns the
// number of bytes transferred without blocking s, plus the receiver that
// was released by the rendezvous so the caller can put it back on Ready —
// Facility has no ready queue of its own to append to. If no receiver is
// waiting, it blocks s (setting its state, buffer and peer) and reports
// blocked = true; the caller must leave s off the ready queue.
func (f *Facility) Send(s *proc.PCB, destPID uint32, buf []byte) (transferred int, woken *proc.PCB, blocked bool) {
	if destPID == s.PID {
		s.ReturnCode = sysno.Loopback
		return 0, nil, false
	}

	dest := f.table.Lookup(destPID)
	if dest == nil {
		s.ReturnCode = sysno.ErrDest
		return 0, nil, false
	}

	if r := f.matchReceiver(s, dest); r != nil {
		n := rendezvous(s, buf, r, r.IPCBuffer)
		r.IPCBufferLen = n
		r.ReturnCode = n
		r.State = proc.Ready
		r.BlockedPeer = nil
		return n, r, false
	}

	if f.wouldDeadlock(dest, s) {
		s.ReturnCode = sysno.ErrIPC
		return 0, nil, false
	}

	s.State = proc.BlockedOnSend
	s.IPCBuffer = buf
	s.IPCBufferLen = len(buf)
	s.BlockedPeer = dest
	dest.BlockedSenders.Append(s)
	return 0, nil, true
}

// Recv implements sysrecv. fromPID == 0 requests "receive from any".
// Return shape mirrors Send, with the released sender
// (if any) taking the place of the released receiver.
func (f *Facility) Recv(r *proc.PCB, fromPID uint32, buf []byte) (transferred int, fromActual uint32, woken *proc.PCB, blocked bool) {
	if fromPID == r.PID {
		r.ReturnCode = sysno.Loopback
		return 0, 0, nil, false
	}

	var src *proc.PCB
	if fromPID != 0 {
		src = f.table.Lookup(fromPID)
		if src == nil {
			r.ReturnCode = sysno.ErrPid
			return 0, 0, nil, false
		}
	}

	if s := f.matchSender(r, fromPID); s != nil {
		n := rendezvous(s, s.IPCBuffer, r, buf)
		s.State = proc.Ready
		s.BlockedPeer = nil
		r.ReturnCode = n
		return n, s.PID, s, false
	}

	if src != nil && f.wouldDeadlock(src, r) {
		r.ReturnCode = sysno.ErrIPC
		return 0, 0, nil, false
	}

	r.State = proc.BlockedOnRecv
	r.IPCBuffer = buf
	r.IPCBufferLen = len(buf)
	r.BlockedPeer = src
	if src != nil {
		src.BlockedReceivers.Append(r)
	} else {
		f.anyRecvs.Append(r)
	}
	return 0, 0, nil, true
}

// matchReceiver reports dest if it is already blocked-on-recv and willing
// to take a message from s: either waiting on s specifically (queued on
// s.BlockedReceivers, not on dest) or waiting on "any" sender (queued on
// anyRecvs). dest is unlinked from whichever queue held it. Any other
// receiver is never matched, since the message is addressed to dest.
func (f *Facility) matchReceiver(s, dest *proc.PCB) *proc.PCB {
	if dest.State != proc.BlockedOnRecv {
		return nil
	}
	switch dest.BlockedPeer {
	case s:
		s.BlockedReceivers.Remove(dest)
	case nil:
		f.anyRecvs.Remove(dest)
	default:
		return nil
	}
	return dest
}

// matchSender finds a PCB already blocked-on-send for receiver r. If
// fromPID is 0, any sender queued on r will do; otherwise only the sender
// with that PID.
func (f *Facility) matchSender(r *proc.PCB, fromPID uint32) *proc.PCB {
	if fromPID == 0 {
		return r.BlockedSenders.Pop()
	}
	for s := r.BlockedSenders.Peek(); s != nil; s = s.Next {
		if s.PID == fromPID {
			r.BlockedSenders.Remove(s)
			return s
		}
	}
	return nil
}

// rendezvous performs the copy: min(len(sendBuf), len(recvBuf)) bytes, and
// returns that count.
func rendezvous(s *proc.PCB, sendBuf []byte, r *proc.PCB, recvBuf []byte) int {
	n := len(sendBuf)
	if len(recvBuf) < n {
		n = len(recvBuf)
	}
	copy(recvBuf, sendBuf[:n])
	s.ReturnCode = n
	klog.Debugf("ipc: %d -> %d, %d byte(s)", s.PID, r.PID, n)
	return n
}

// wouldDeadlock walks the "blocked on whom" chain starting at start. If the
// chain reaches caller, blocking caller on start would close a cycle.
func (f *Facility) wouldDeadlock(start, caller *proc.PCB) bool {
	cur := start
	for i := 0; i < f.maxChain; i++ {
		if cur == caller {
			return true
		}
		if cur.BlockedPeer == nil {
			return false
		}
		switch cur.State {
		case proc.BlockedOnSend, proc.BlockedOnRecv:
			cur = cur.BlockedPeer
		default:
			return false
		}
	}
	return false
}

// ReleasePeers implements peer-stop propagation: when p is destroyed,
// every PCB blocked waiting on p specifically is released to
// Ready with ERR_IPC. The caller (the dispatcher's stop handler) is
// responsible for appending the returned PCBs to the ready queue.
func (f *Facility) ReleasePeers(p *proc.PCB) []*proc.PCB {
	var released []*proc.PCB
	for q := p.BlockedSenders.Pop(); q != nil; q = p.BlockedSenders.Pop() {
		q.State = proc.Ready
		q.ReturnCode = sysno.ErrIPC
		q.BlockedPeer = nil
		released = append(released, q)
	}
	for q := p.BlockedReceivers.Pop(); q != nil; q = p.BlockedReceivers.Pop() {
		q.State = proc.Ready
		q.ReturnCode = sysno.ErrIPC
		q.BlockedPeer = nil
		released = append(released, q)
	}
	if len(released) > 0 {
		klog.Debugf("ipc: released %d peer(s) blocked on pid %d", len(released), p.PID)
	}
	return released
}

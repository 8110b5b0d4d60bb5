//go:build linux

package infra

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// Proc connector protocol constants (linux/connector.h, linux/cn_proc.h).
const (
	cnIdxProc         = 1
	cnValProc         = 1
	procCnMcastListen = 1

	procEventExec = 0x00000002
	procEventExit = 0x80000000

	// cn_msg is 20 bytes; proc_event payload starts after it. Within
	// proc_event: what at +0, event_data at +16 (u64 timestamp alignment).
	cnMsgLen        = 20
	procEventWhat   = cnMsgLen
	procEventPid    = cnMsgLen + 16
	procEventMinLen = cnMsgLen + 20
)

// NetlinkWatcher is the subscription detection backend. It binds the kernel
// proc connector multicast group and emits EventExec for watch-list matches
// and EventExit for every exit.
type NetlinkWatcher struct {
	matcher *Matcher
	logger  *zap.Logger

	fd      int
	events  chan domain.ProcessEvent
	closing atomic.Bool
}

// NewNetlinkWatcher creates an unsubscribed watcher for the given watch names.
func NewNetlinkWatcher(names []string, logger *zap.Logger) *NetlinkWatcher {
	return &NetlinkWatcher{
		matcher: NewMatcher(names),
		logger:  logger,
		fd:      -1,
	}
}

// Subscribe binds the netlink socket, requests proc events, and starts the
// reader. Binding the CN_IDX_PROC group needs CAP_NET_ADMIN; a denied bind
// surfaces as domain.ErrCapabilityMissing.
func (w *NetlinkWatcher) Subscribe() error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return fmt.Errorf("netlink socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: cnIdxProc,
		Pid:    uint32(os.Getpid()),
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return fmt.Errorf("%w: netlink bind: %v", domain.ErrCapabilityMissing, err)
		}
		return fmt.Errorf("netlink bind: %w", err)
	}

	if err := sendMcastOp(fd, procCnMcastListen); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return fmt.Errorf("%w: netlink subscribe: %v", domain.ErrCapabilityMissing, err)
		}
		return fmt.Errorf("netlink subscribe: %w", err)
	}

	w.fd = fd
	w.events = make(chan domain.ProcessEvent, 64)
	go w.readLoop()
	return nil
}

// Events returns the delivery channel. Closed on subscription loss or Close.
func (w *NetlinkWatcher) Events() <-chan domain.ProcessEvent {
	return w.events
}

// Close tears down the socket; the reader exits and closes the channel.
func (w *NetlinkWatcher) Close() error {
	if w.fd < 0 {
		return nil
	}
	w.closing.Store(true)
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}

// sendMcastOp sends the PROC_CN_MCAST_* control message:
// nlmsghdr + cn_msg + one u32 op.
func sendMcastOp(fd int, op uint32) error {
	buf := make([]byte, unix.NLMSG_HDRLEN+cnMsgLen+4)
	ne := binary.NativeEndian

	ne.PutUint32(buf[0:4], uint32(len(buf)))   // nlmsg_len
	ne.PutUint16(buf[4:6], unix.NLMSG_DONE)    // nlmsg_type
	ne.PutUint32(buf[12:16], uint32(os.Getpid())) // nlmsg_pid

	cn := buf[unix.NLMSG_HDRLEN:]
	ne.PutUint32(cn[0:4], cnIdxProc) // cb_id.idx
	ne.PutUint32(cn[4:8], cnValProc) // cb_id.val
	ne.PutUint16(cn[16:18], 4)       // len
	ne.PutUint32(cn[20:24], op)

	return unix.Sendto(fd, buf, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

func (w *NetlinkWatcher) readLoop() {
	defer close(w.events)

	buf := make([]byte, 8192)
	for {
		n, _, err := unix.Recvfrom(w.fd, buf, 0)
		if err != nil {
			if err == unix.EINTR || err == unix.ENOBUFS {
				// Transient: kernel dropped events under load; the
				// liveness sweep reconciles anything we missed.
				continue
			}
			if w.closing.Load() {
				return
			}
			w.logger.Error("netlink receive failed", zap.Error(err))
			return
		}

		msgs, err := syscall.ParseNetlinkMessage(buf[:n])
		if err != nil {
			w.logger.Warn("malformed netlink datagram", zap.Error(err))
			continue
		}
		for _, m := range msgs {
			if m.Header.Type != unix.NLMSG_DONE {
				continue
			}
			w.handleProcEvent(m.Data)
		}
	}
}

func (w *NetlinkWatcher) handleProcEvent(data []byte) {
	if len(data) < procEventMinLen {
		return
	}
	ne := binary.NativeEndian
	what := ne.Uint32(data[procEventWhat : procEventWhat+4])
	pid := int(ne.Uint32(data[procEventPid : procEventPid+4]))

	switch what {
	case procEventExec:
		if !w.matchesPid(pid) {
			return
		}
		w.emit(domain.ProcessEvent{Kind: domain.EventExec, PID: pid})
	case procEventExit:
		w.emit(domain.ProcessEvent{Kind: domain.EventExit, PID: pid})
	}
}

// matchesPid reads the exec'd process's comm and cmdline. The process may
// already be gone by the time we look; that reads as no match.
func (w *NetlinkWatcher) matchesPid(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	if name, err := p.Name(); err == nil && w.matcher.MatchesName(name) {
		return true
	}
	if cmdline, err := p.Cmdline(); err == nil && w.matcher.MatchesCmdline(cmdline) {
		return true
	}
	return false
}

// emit never blocks the reader. A full channel means the loop is mid
// transition; dropped exits are reconciled by the liveness sweep.
func (w *NetlinkWatcher) emit(ev domain.ProcessEvent) {
	select {
	case w.events <- ev:
	default:
		w.logger.Debug("event channel full, dropping",
			zap.Int("pid", ev.PID), zap.Int("kind", int(ev.Kind)))
	}
}

// Ensure NetlinkWatcher implements domain.ProcessEventSource.
var _ domain.ProcessEventSource = (*NetlinkWatcher)(nil)

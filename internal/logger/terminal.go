package logger

import (
	"syscall"
	"unsafe"
)

// tcgets is the Linux ioctl number for reading terminal attributes
// (TCGETS); unlike dittofs, which ran on operator workstations and needed
// macOS/Windows terminal detection too, netimpaird only ever runs where its
// CAP_NET_ADMIN/netns privileges apply — Linux (spec.md §6) — so there is
// exactly one isTerminal, not a build-tag family per OS.
const tcgets = 0x5401

// isTerminal reports whether fd refers to a terminal, used to decide
// whether stdout/stderr output should be colorized.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		tcgets,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return err == 0
}

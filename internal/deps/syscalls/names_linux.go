//go:build linux && (amd64 || arm64 || 386)

package syscalls

import "golang.org/x/sys/unix"

// known maps syscall names to numbers and the argument holding the output
// buffer, for the host's Linux ABI.
var known = map[string]signature{
	"read":      {Number: unix.SYS_READ, BufArg: 1},
	"pread64":   {Number: unix.SYS_PREAD64, BufArg: 1},
	"recvfrom":  {Number: unix.SYS_RECVFROM, BufArg: 1},
	"getrandom": {Number: unix.SYS_GETRANDOM, BufArg: 0},
}

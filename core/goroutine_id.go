package core

import "runtime"

// currentGoroutineID parses the calling goroutine's id out of its own
// stack trace header ("goroutine 123 [running]:"). It exists so
// Context.validateContext can tell whether a thread-blocking wait is being
// made by the same goroutine that is running this chain's active stage
// body (a programming error, since that body can only be resumed by
// someone else) rather than by an unrelated caller. Not for general use:
// it is a last resort in the absence of real goroutine-local storage.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			break
		}
		id = id*10 + uint64(b[i]-'0')
	}
	return id
}

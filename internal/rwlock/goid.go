package rwlock

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// gid returns the current goroutine's id, parsed from the first line of the
// runtime stack header ("goroutine N [running]:"). The runtime does not
// expose this directly; the header format has been stable since Go 1.4.
func gid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	head := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(head, ' '); i > 0 {
		head = head[:i]
	}
	id, err := strconv.ParseInt(string(head), 10, 64)
	if err != nil {
		panic("rwlock: cannot parse goroutine id from stack header: " + string(buf[:n]))
	}
	return id
}

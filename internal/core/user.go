package core

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// Conn is the slice of net.Conn the graph needs for outbound delivery.
// Tests inject an in-memory implementation.
type Conn interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// User is one connected participant. Name is provisional ("user-N") until
// username selection succeeds and the user is published to the graph.
//
// Groups is a back-reference: group membership lists are authoritative.
// BanList holds users this user has banned from whispering them or from
// joining groups this user administers.
//
// All fields except the socket pair are guarded by the state's RW lock.
type User struct {
	Name    string
	Groups  []*Group
	BanList []*User

	conn    Conn
	writeMu sync.Mutex
}

// NewUser wraps a freshly accepted connection. conn may be nil for the
// system user, whose sends always fail (and are suppressed by the fanout).
func NewUser(conn Conn) *User {
	return &User{
		Name: fmt.Sprintf("user-%d", rand.Intn(9999)+1),
		conn: conn,
	}
}

// SendBytes writes one whole frame to the user's socket under the per-user
// write lock, so concurrent sends to the same socket never interleave.
func (u *User) SendBytes(data []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	if u.conn == nil {
		return errors.New("user has no socket")
	}
	_, err := u.conn.Write(data)
	return err
}

// Close closes the user's socket if any.
func (u *User) Close() {
	if u.conn != nil {
		u.conn.Close()
	}
}

// HasBanned reports whether other is on this user's ban list.
// Caller must hold at least a read lock.
func (u *User) HasBanned(other *User) bool {
	for _, b := range u.BanList {
		if b == other {
			return true
		}
	}
	return false
}

// MemberOf reports whether this user is in g.
// Caller must hold at least a read lock.
func (u *User) MemberOf(g *Group) bool {
	for _, m := range u.Groups {
		if m == g {
			return true
		}
	}
	return false
}

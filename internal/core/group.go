package core

// Invite is a pending permission for Invitee to join a group. It is
// consumed on accept and purged on invitee leave, kick, disconnect, or
// when the group locks (unless the inviter is the admin).
type Invite struct {
	Invitee   *User
	InvitedBy *User
}

// Group is a named channel. Users preserves join order; Users[0] inherits
// admin when the admin leaves. Admin is the system user only for the
// global group. While Locked, only the admin may issue invites.
//
// All fields are guarded by the state's RW lock.
type Group struct {
	Name    string
	Users   []*User
	Admin   *User
	Locked  bool
	Invites []Invite
}

// Contains reports whether u is a member.
// Caller must hold at least a read lock.
func (g *Group) Contains(u *User) bool {
	for _, m := range g.Users {
		if m == u {
			return true
		}
	}
	return false
}

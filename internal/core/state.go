// Package core holds the server's shared graph of users, groups and
// invites. Read helpers take their own read holds on State.Lock and are
// safe under a caller's write hold (read acquisition by the writer is a
// no-op). Mutating methods never touch the lock: the caller takes the
// write hold once at the command boundary and keeps it across the whole
// compound operation. Write release is not counted, so a mutator that
// acquired the lock itself would open its caller's critical section on
// release; centralizing the hold at the boundary rules that out.
package core

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Eboubaker/chat/internal/fanout"
	"github.com/Eboubaker/chat/internal/metrics"
	"github.com/Eboubaker/chat/internal/rwlock"
	"github.com/Eboubaker/chat/internal/wire"
)

// GlobalGroupName is the entry group every named user joins.
const GlobalGroupName = "global"

// SystemUserName is the sender of all server-originated frames.
const SystemUserName = "system"

// ReservedNames may be used by neither users nor groups.
var ReservedNames = []string{GlobalGroupName, SystemUserName, "admin", "null", "none", "program"}

// NamePattern constrains user and group names: lowercase token, at least
// two characters, inner '-' and '_' allowed.
var NamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*[a-z0-9]$`)

// IsReserved reports whether name is in the reserved set.
func IsReserved(name string) bool {
	for _, r := range ReservedNames {
		if name == r {
			return true
		}
	}
	return false
}

// ValidateName checks name against NamePattern and the wire length limit.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > wire.MaxNameLength {
		return fmt.Errorf("name must be between 1 and %d bytes", wire.MaxNameLength)
	}
	if !NamePattern.MatchString(name) {
		return fmt.Errorf("name must begin with a-z letter and contain a-z0-9 '_' or '-' and end with a-z0-9")
	}
	return nil
}

// Target is a resolved frame destination: exactly one of User or Group is
// set, or neither when Name did not resolve.
type Target struct {
	User  *User
	Group *Group
	Name  string
}

// Resolved reports whether the name matched a live user or group.
func (t Target) Resolved() bool { return t.User != nil || t.Group != nil }

// State is the process-wide graph plus the machinery to deliver frames.
type State struct {
	// Lock guards users, groups, and every field reachable from them.
	Lock *rwlock.Lock

	pool   *fanout.Pool
	system *User
	global *Group
	users  []*User  // includes the system user
	groups []*Group // groups[0] is the global group
}

// NewState builds the initial graph: the system user and the locked global
// group with system as admin.
func NewState(pool *fanout.Pool) *State {
	system := NewUser(nil)
	system.Name = SystemUserName
	global := &Group{Name: GlobalGroupName, Admin: system, Locked: true}
	metrics.Groups.Set(1)
	return &State{
		Lock:   rwlock.New(),
		pool:   pool,
		system: system,
		global: global,
		users:  []*User{system},
		groups: []*Group{global},
	}
}

func (s *State) System() *User  { return s.system }
func (s *State) Global() *Group { return s.global }

// UserCount returns the size of the user list, system user included.
func (s *State) UserCount() int {
	s.Lock.AcquireRead()
	defer s.Lock.ReleaseRead()
	return len(s.users)
}

// LookupUser finds a user by name, or nil.
func (s *State) LookupUser(name string) *User {
	s.Lock.AcquireRead()
	defer s.Lock.ReleaseRead()
	for _, u := range s.users {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// LookupGroup finds a group by name, or nil.
func (s *State) LookupGroup(name string) *Group {
	s.Lock.AcquireRead()
	defer s.Lock.ReleaseRead()
	for _, g := range s.groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Resolve maps a target name to a group first, then a user.
func (s *State) Resolve(name string) Target {
	s.Lock.AcquireRead()
	defer s.Lock.ReleaseRead()
	if g := s.LookupGroup(name); g != nil {
		return Target{Group: g, Name: name}
	}
	if u := s.LookupUser(name); u != nil {
		return Target{User: u, Name: name}
	}
	return Target{Name: name}
}

// NameTaken reports whether name collides with a user, a group, or the
// reserved set.
func (s *State) NameTaken(name string) bool {
	s.Lock.AcquireRead()
	defer s.Lock.ReleaseRead()
	return IsReserved(name) || s.LookupUser(name) != nil || s.LookupGroup(name) != nil
}

// PublishUser makes a named user visible in the graph and a member of the
// global group. The uniqueness check is repeated under the write hold; a
// false return means the name was taken in the meantime and the caller
// should solicit another one. Caller must hold the write lock.
func (s *State) PublishUser(u *User) bool {
	if s.NameTaken(u.Name) {
		return false
	}
	s.users = append(s.users, u)
	s.global.Users = append(s.global.Users, u)
	u.Groups = append(u.Groups, s.global)
	metrics.ConnectedUsers.Inc()
	slog.Info("user published", "username", u.Name, "total_users", len(s.users)-1)
	return true
}

// JoinUser adds u to g on both sides of the relation and fans out report
// as a SYSTEM group notice. Precondition: u is not a member. Caller must
// hold the write lock.
func (s *State) JoinUser(g *Group, u *User, report string) {
	g.Users = append(g.Users, u)
	u.Groups = append(u.Groups, g)
	slog.Debug("user joined group", "username", u.Name, "group", g.Name, "members", len(g.Users))
	s.NotifyGroup(g, report)
}

// RemoveUser removes u from g on both sides, purges u's pending invites on
// g, and fans out report to the remaining members. If u was admin, the
// oldest remaining member inherits and the group is told.
// Precondition: u is a member. The group is not deleted here even if it
// empties; callers decide (see DeleteGroupIfEmpty and Disconnect).
// Caller must hold the write lock.
func (s *State) RemoveUser(g *Group, u *User, report string) {
	for i, m := range g.Users {
		if m == u {
			g.Users = append(g.Users[:i], g.Users[i+1:]...)
			break
		}
	}
	for i, m := range u.Groups {
		if m == g {
			u.Groups = append(u.Groups[:i], u.Groups[i+1:]...)
			break
		}
	}
	s.purgeInvites(g, u)
	slog.Debug("user removed from group", "username", u.Name, "group", g.Name, "members", len(g.Users))

	if len(g.Users) == 0 {
		return
	}
	s.NotifyGroup(g, report)
	if g.Admin == u {
		g.Admin = g.Users[0]
		slog.Info("group admin changed", "group", g.Name, "admin", g.Admin.Name)
		s.NotifyGroup(g, fmt.Sprintf("%s is now the group admin", g.Admin.Name))
	}
}

// purgeInvites drops every pending invite for u on g. Write hold required.
func (s *State) purgeInvites(g *Group, u *User) {
	kept := g.Invites[:0]
	for _, inv := range g.Invites {
		if inv.Invitee != u {
			kept = append(kept, inv)
		}
	}
	g.Invites = kept
}

// CreateGroup makes an unlocked group with creator as admin and sole
// member, re-validating name uniqueness under the caller's write hold.
// Caller must hold the write lock.
func (s *State) CreateGroup(name string, creator *User) (*Group, error) {
	if s.NameTaken(name) {
		return nil, fmt.Errorf("%s name is taken", name)
	}
	g := &Group{Name: name, Admin: creator}
	s.groups = append(s.groups, g)
	metrics.Groups.Inc()
	slog.Info("group created", "group", name, "admin", creator.Name)
	s.JoinUser(g, creator, fmt.Sprintf("you have created the group %s", name))
	return g, nil
}

// DeleteGroupIfEmpty removes g from the graph when its last member is
// gone. The global group is never deleted. Caller must hold the write
// lock.
func (s *State) DeleteGroupIfEmpty(g *Group) bool {
	if g == s.global || len(g.Users) > 0 {
		return false
	}
	for i, x := range s.groups {
		if x == g {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			metrics.Groups.Dec()
			slog.Info("abandoned group removed", "group", g.Name)
			return true
		}
	}
	return false
}

// LockGroup locks g against non-admin invites, purging pending invites
// whose inviter is not the admin, and tells the group. Caller must hold
// the write lock.
func (s *State) LockGroup(g *Group) {
	g.Locked = true
	kept := g.Invites[:0]
	for _, inv := range g.Invites {
		if inv.InvitedBy == g.Admin {
			kept = append(kept, inv)
		}
	}
	dropped := len(g.Invites) - len(kept)
	g.Invites = kept
	slog.Info("group locked", "group", g.Name, "invites_purged", dropped)
	s.NotifyGroup(g, "group invites are now locked")
}

// UnlockGroup reopens g for member invites and tells the group. Caller
// must hold the write lock.
func (s *State) UnlockGroup(g *Group) {
	g.Locked = false
	slog.Info("group unlocked", "group", g.Name)
	s.NotifyGroup(g, "group is now open for invites")
}

// AddInvite queues an invite on g. Caller must hold the write lock.
func (s *State) AddInvite(g *Group, inv Invite) {
	g.Invites = append(g.Invites, inv)
	slog.Debug("invite queued", "group", g.Name, "invitee", inv.Invitee.Name, "inviter", inv.InvitedBy.Name)
}

// ConsumeInvites removes every pending invite for u on g and returns the
// best of them: one issued by the group admin when present, otherwise an
// arbitrary one. ok is false when none existed. Caller must hold the
// write lock.
func (s *State) ConsumeInvites(g *Group, u *User) (chosen Invite, ok bool) {
	kept := g.Invites[:0]
	for _, inv := range g.Invites {
		if inv.Invitee != u {
			kept = append(kept, inv)
			continue
		}
		if !ok || inv.InvitedBy == g.Admin {
			chosen, ok = inv, true
		}
	}
	g.Invites = kept
	return chosen, ok
}

// BanUser puts target on caller's ban list and removes target from every
// group caller administers that they share, notifying each group and the
// banned user. Caller must hold the write lock.
func (s *State) BanUser(caller, target *User) {
	if !caller.HasBanned(target) {
		caller.BanList = append(caller.BanList, target)
	}
	slog.Info("user banned", "by", caller.Name, "banned", target.Name)

	adminOf := append([]*Group(nil), caller.Groups...)
	for _, g := range adminOf {
		if g.Admin == caller && g.Contains(target) {
			s.RemoveUser(g, target, fmt.Sprintf("%s was banned by the admin", target.Name))
			s.SendSystemAsync(target, fmt.Sprintf("you were kicked from group %s, because the admin banned you", g.Name))
		}
	}
}

// Disconnect tears a user out of the graph: membership in every group
// (announcing the disconnect to remaining members), deletion of groups
// that emptied, the user's pending invites everywhere, and the user list
// entry. Safe to call for users that were never published. Caller must
// hold the write lock.
func (s *State) Disconnect(u *User) {
	published := false
	for i, x := range s.users {
		if x == u {
			s.users = append(s.users[:i], s.users[i+1:]...)
			published = true
			break
		}
	}

	for _, g := range append([]*Group(nil), s.groups...) {
		if g.Contains(u) {
			s.RemoveUser(g, u, fmt.Sprintf("%s has disconnected", u.Name))
			s.DeleteGroupIfEmpty(g)
		} else {
			s.purgeInvites(g, u)
		}
	}

	if published {
		metrics.ConnectedUsers.Dec()
		slog.Info("user disconnected", "username", u.Name, "remaining_users", len(s.users)-1)
	}
}

// SendAsync ships one frame buffer to a user via the worker pool.
// Failures are logged and suppressed.
func (s *State) SendAsync(u *User, data []byte) {
	s.pool.Submit(func() {
		if err := u.SendBytes(data); err != nil {
			metrics.SendFailures.Inc()
			slog.Debug("send failed", "username", u.Name, "err", err)
		}
	})
}

// FanoutGroup submits one send task per member, in member-list order.
// Submission order is not a delivery-order guarantee: two frames queued
// for the same receiver may be picked up by different workers and written
// in either sequence. Each write is still atomic per frame (User.SendBytes
// serializes on the socket).
func (s *State) FanoutGroup(g *Group, data []byte) {
	metrics.Broadcasts.Inc()
	for _, u := range g.Users {
		s.SendAsync(u, data)
	}
}

// NotifyGroup fans out a SYSTEM→GROUP notice to every member of g.
// Caller must hold at least a read lock (fanout snapshots nothing; it
// walks g.Users in place).
func (s *State) NotifyGroup(g *Group, msg string) {
	data, err := (&wire.ServerFrame{
		SenderContext: wire.ContextSystem,
		TargetContext: wire.ContextGroup,
		Sender:        s.system.Name,
		Target:        g.Name,
		Content:       msg,
	}).Encode()
	if err != nil {
		slog.Error("encode group notice", "group", g.Name, "err", err)
		return
	}
	s.FanoutGroup(g, data)
}

// SendSystem synchronously delivers a SYSTEM→USER message. The target
// field carries the user's current (possibly provisional) name.
func (s *State) SendSystem(u *User, msg string) error {
	data, err := s.systemFrame(u, msg)
	if err != nil {
		return err
	}
	return u.SendBytes(data)
}

// SendSystemAsync delivers a SYSTEM→USER message via the worker pool.
func (s *State) SendSystemAsync(u *User, msg string) {
	data, err := s.systemFrame(u, msg)
	if err != nil {
		slog.Error("encode system message", "username", u.Name, "err", err)
		return
	}
	s.SendAsync(u, data)
}

func (s *State) systemFrame(u *User, msg string) ([]byte, error) {
	return (&wire.ServerFrame{
		SenderContext: wire.ContextSystem,
		TargetContext: wire.ContextUser,
		Sender:        s.system.Name,
		Target:        u.Name,
		Content:       msg,
	}).Encode()
}

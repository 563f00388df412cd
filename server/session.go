package main

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/Eboubaker/chat/internal/core"
	"github.com/Eboubaker/chat/internal/metrics"
	"github.com/Eboubaker/chat/internal/wire"
)

const helpText = `chat commands:
/create <group_name>    create a new group
/leave                  leave this group
/invite <user_name>     send a group invite
/accept <group_name>    accept a group invite
/users                  show users in this group
/banned                 show ban list
/ban <user_name>        ban user
/kick <user_name>       kick user from this group
/help                   show commands
`

// session is one connection's state machine: username selection, then the
// command dispatch loop until the peer goes away.
type session struct {
	state *core.State
	user  *core.User
	conn  net.Conn
	in    *wire.Reader
}

func runSession(state *core.State, conn net.Conn) {
	s := &session{
		state: state,
		user:  core.NewUser(conn),
		conn:  conn,
		in:    wire.NewReader(conn),
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session panic", "username", s.user.Name, "panic", r)
		}
		s.state.Lock.WithWrite(func() {
			s.state.Disconnect(s.user)
		})
		s.conn.Close()
	}()

	if err := s.chooseUsername(); err != nil {
		slog.Info("session ended during naming", "username", s.user.Name, "cause", err)
		return
	}
	if err := s.dispatchLoop(); err != nil {
		slog.Info("session ended", "username", s.user.Name, "cause", err)
	}
}

// chooseUsername solicits names until one is unique, well-formed, and not
// reserved, then publishes the user, confirms with the /set username
// sentinel, and announces the arrival on the global group.
func (s *session) chooseUsername() error {
	if err := s.state.SendSystem(s.user, "choose a username"); err != nil {
		return err
	}
	if err := s.state.SendSystem(s.user, "/req username"); err != nil {
		return err
	}

	for {
		f, err := wire.DecodeClientFrame(s.in)
		if err != nil {
			return err
		}
		name := strings.ToLower(strings.TrimSpace(f.Content))

		if s.state.NameTaken(name) {
			if err := s.state.SendSystem(s.user, fmt.Sprintf("username %s already taken", name)); err != nil {
				return err
			}
			continue
		}
		if err := core.ValidateName(name); err != nil {
			if err := s.state.SendSystem(s.user, err.Error()); err != nil {
				return err
			}
			continue
		}
		s.user.Name = name
		published := false
		s.state.Lock.WithWrite(func() {
			published = s.state.PublishUser(s.user)
		})
		if published {
			break
		}
		// Lost the publish race; solicit again.
		if err := s.state.SendSystem(s.user, fmt.Sprintf("username %s already taken", name)); err != nil {
			return err
		}
	}

	if err := s.state.SendSystem(s.user, "/set username "+s.user.Name); err != nil {
		return err
	}
	s.state.Lock.WithRead(func() {
		s.state.NotifyGroup(s.state.Global(), s.user.Name+" has connected")
	})
	return nil
}

// dispatchLoop reads frames until the connection dies, resolving each
// frame's target and dispatching its content. Command precondition
// failures are reported to the caller and the loop continues; only
// transport and protocol errors end the session.
func (s *session) dispatchLoop() error {
	for {
		f, err := wire.DecodeClientFrame(s.in)
		if err != nil {
			return err
		}
		metrics.FramesIn.Inc()

		tgt := s.state.Resolve(f.Target)
		if !tgt.Resolved() {
			if f.TargetContext == wire.ContextGroup {
				s.state.SendSystemAsync(s.user, fmt.Sprintf("group %s does not exist, or not subscribed", f.Target))
				if err := s.state.SendSystem(s.user, "/switch "+core.GlobalGroupName); err != nil {
					return err
				}
			} else {
				s.state.SendSystemAsync(s.user, fmt.Sprintf("user %s does not exist", f.Target))
			}
			continue
		}
		if err := s.handle(f, tgt); err != nil {
			return err
		}
	}
}

func (s *session) handle(f wire.ClientFrame, tgt core.Target) error {
	content := f.Content
	switch {
	case strings.HasPrefix(content, "/create "):
		return s.cmdCreate(strings.TrimSpace(content[len("/create "):]))
	case content == "/lock":
		s.cmdLock(tgt)
	case content == "/unlock":
		s.cmdUnlock(tgt)
	case content == "/leave":
		s.cmdLeave(tgt)
	case content == "/users":
		s.cmdUsers(tgt)
	case content == "/banned":
		s.cmdBanned(tgt)
	case content == "/help":
		s.state.SendSystemAsync(s.user, helpText)
	case strings.HasPrefix(content, "/invite "):
		s.cmdInvite(tgt, strings.TrimSpace(content[len("/invite "):]))
	case strings.HasPrefix(content, "/kick "):
		s.cmdKick(tgt, strings.TrimSpace(content[len("/kick "):]))
	case strings.HasPrefix(content, "/ban "):
		s.cmdBan(tgt, strings.TrimSpace(content[len("/ban "):]))
	case strings.HasPrefix(content, "/accept "):
		return s.cmdAccept(strings.TrimSpace(content[len("/accept "):]))
	default:
		s.forward(f, tgt)
	}
	return nil
}

func (s *session) cmdCreate(name string) error {
	if name == "" {
		s.state.SendSystemAsync(s.user, "no group name provided try /help command")
		return nil
	}
	if s.state.NameTaken(name) {
		s.state.SendSystemAsync(s.user, name+" name is taken")
		return nil
	}
	if err := core.ValidateName(name); err != nil {
		s.state.SendSystemAsync(s.user, err.Error())
		return nil
	}
	var g *core.Group
	var createErr error
	s.state.Lock.WithWrite(func() {
		g, createErr = s.state.CreateGroup(name, s.user)
	})
	if createErr != nil {
		s.state.SendSystemAsync(s.user, createErr.Error())
		return nil
	}
	return s.state.SendSystem(s.user, "/switch "+g.Name)
}

func (s *session) cmdLock(tgt core.Target) {
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	g := tgt.Group
	s.state.Lock.WithWrite(func() {
		switch {
		case g.Admin != s.user:
			s.state.SendSystemAsync(s.user, "you are not the group admin")
		case g.Locked:
			s.state.SendSystemAsync(s.user, "group is already locked")
		default:
			s.state.LockGroup(g)
		}
	})
}

func (s *session) cmdUnlock(tgt core.Target) {
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	g := tgt.Group
	s.state.Lock.WithWrite(func() {
		switch {
		case g.Admin != s.user:
			s.state.SendSystemAsync(s.user, "you are not the group admin")
		case !g.Locked:
			s.state.SendSystemAsync(s.user, "group is not locked")
		default:
			s.state.UnlockGroup(g)
		}
	})
}

func (s *session) cmdLeave(tgt core.Target) {
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	g := tgt.Group
	s.state.Lock.WithWrite(func() {
		if !g.Contains(s.user) {
			s.state.SendSystemAsync(s.user, fmt.Sprintf("group %s does not exist, or not subscribed", g.Name))
			return
		}
		s.state.RemoveUser(g, s.user, s.user.Name+" has left")
		if g == s.state.Global() {
			// The way back in is a standing self-invite from system.
			s.state.AddInvite(g, core.Invite{Invitee: s.user, InvitedBy: s.state.System()})
			s.state.SendSystemAsync(s.user, fmt.Sprintf(
				"you have unsubscribed from the global group use %q to come back", "/accept "+g.Name))
			return
		}
		s.state.SendSystemAsync(s.user, "you left the group "+g.Name)
		s.state.DeleteGroupIfEmpty(g)
	})
}

func (s *session) cmdUsers(tgt core.Target) {
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	g := tgt.Group
	s.state.Lock.WithRead(func() {
		if !g.Contains(s.user) {
			s.state.SendSystemAsync(s.user, fmt.Sprintf("group %s does not exist, or not subscribed", g.Name))
			return
		}
		s.replyOnGroupContext(g.Name, formatUserList(g, s.user))
	})
}

func (s *session) cmdBanned(tgt core.Target) {
	s.state.Lock.WithRead(func() {
		s.replyOnGroupContext(tgt.Name, formatBanList(s.user))
	})
}

// replyOnGroupContext sends a SYSTEM→GROUP frame to this user only, so
// the client renders it in the current group's pane.
func (s *session) replyOnGroupContext(target, content string) {
	data, err := (&wire.ServerFrame{
		SenderContext: wire.ContextSystem,
		TargetContext: wire.ContextGroup,
		Sender:        core.SystemUserName,
		Target:        target,
		Content:       content,
	}).Encode()
	if err != nil {
		slog.Error("encode reply", "username", s.user.Name, "err", err)
		return
	}
	s.state.SendAsync(s.user, data)
}

func (s *session) cmdInvite(tgt core.Target, name string) {
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	if name == "" {
		s.state.SendSystemAsync(s.user, "no username provided try /help command")
		return
	}
	g := tgt.Group
	s.state.Lock.WithWrite(func() {
		if g.Locked && g.Admin != s.user {
			s.state.SendSystemAsync(s.user, "you can't send invites, this group is locked and you are not the admin")
			return
		}
		invitee := s.state.LookupUser(name)
		switch {
		case invitee == nil:
			s.state.SendSystemAsync(s.user, "user not found:"+name)
		case invitee == s.user:
			s.state.SendSystemAsync(s.user, fmt.Sprintf("you can't invite yourself, you're already in group %s", g.Name))
		case s.user.HasBanned(invitee):
			s.state.SendSystemAsync(s.user, invitee.Name+" is in your ban list")
		default:
			s.state.AddInvite(g, core.Invite{Invitee: invitee, InvitedBy: s.user})
			s.state.SendSystemAsync(invitee, fmt.Sprintf(
				"you were invited by %s to join group %s type %q to join", s.user.Name, g.Name, "/accept "+g.Name))
			s.state.SendSystemAsync(s.user, "invite was sent to "+invitee.Name)
		}
	})
}

func (s *session) cmdKick(tgt core.Target, rest string) {
	name := rest
	reason := ""
	if head, tail, found := strings.Cut(rest, " "); found {
		name = head
		reason = "reason: " + strings.TrimSpace(tail)
	}
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	if name == "" {
		s.state.SendSystemAsync(s.user, "no username provided try /help command")
		return
	}
	g := tgt.Group
	s.state.Lock.WithWrite(func() {
		if g.Admin != s.user {
			s.state.SendSystemAsync(s.user, fmt.Sprintf("can't kick %s you are not the admin of %s", name, g.Name))
			return
		}
		var target *core.User
		for _, m := range g.Users {
			if m.Name == name {
				target = m
				break
			}
		}
		switch {
		case target == nil:
			s.state.SendSystemAsync(s.user, fmt.Sprintf("%s is not in your group %s", name, g.Name))
		case target == s.user:
			s.state.SendSystemAsync(s.user, "you can't kick yourself, use /leave")
		default:
			s.state.RemoveUser(g, target, target.Name+" was kicked from the group")
			msg := "you were kicked by the admin from group " + g.Name
			if reason != "" {
				msg += " " + reason
			}
			s.state.SendSystemAsync(target, msg)
			s.state.SendSystemAsync(target, "/switch "+core.GlobalGroupName)
			s.state.SendSystemAsync(s.user, target.Name+" was kicked")
		}
	})
}

func (s *session) cmdBan(tgt core.Target, name string) {
	if tgt.Group == nil {
		s.state.SendSystemAsync(s.user, "target is not a group")
		return
	}
	if name == "" {
		s.state.SendSystemAsync(s.user, "no username provided try /help command")
		return
	}
	s.state.Lock.WithWrite(func() {
		target := s.state.LookupUser(name)
		if target == nil {
			s.state.SendSystemAsync(s.user, fmt.Sprintf("user %s does not exist", name))
			return
		}
		s.state.BanUser(s.user, target)
		s.state.SendSystemAsync(s.user, target.Name+" is now in your ban list")
	})
}

func (s *session) cmdAccept(name string) error {
	if name == "" {
		s.state.SendSystemAsync(s.user, "no group name provided try /help command")
		return nil
	}
	var joined *core.Group
	var sendErr error
	s.state.Lock.WithWrite(func() {
		g := s.state.LookupGroup(name)
		var inv core.Invite
		ok := false
		if g != nil {
			// All of this user's invites are consumed, valid or not.
			inv, ok = s.state.ConsumeInvites(g, s.user)
		}
		if g == nil || !ok || (g.Locked && inv.InvitedBy != g.Admin) {
			s.state.SendSystemAsync(s.user, "invite expired or group does not exist")
			return
		}
		if g.Admin.HasBanned(s.user) {
			sendErr = s.state.SendSystem(s.user, fmt.Sprintf("You are banned by the group admin and can't join %s", g.Name))
			return
		}
		report := s.user.Name + " has entered the group"
		if g == s.state.Global() {
			report = s.user.Name + " has re-entered the group"
		}
		s.state.JoinUser(g, s.user, report)
		joined = g
	})
	if sendErr != nil {
		return sendErr
	}
	if joined != nil {
		return s.state.SendSystem(s.user, "/switch "+joined.Name)
	}
	return nil
}

// forward relays plain content to the resolved target, rewriting the
// sender to this user. Whispers echo back to the caller.
func (s *session) forward(f wire.ClientFrame, tgt core.Target) {
	s.state.Lock.WithRead(func() {
		if tgt.Group != nil && !tgt.Group.Contains(s.user) {
			s.state.SendSystemAsync(s.user, fmt.Sprintf("group %s does not exist, or not subscribed", tgt.Name))
			return
		}
		if tgt.User != nil {
			if tgt.User.HasBanned(s.user) {
				s.state.SendSystemAsync(s.user, "you are banned by "+tgt.User.Name)
				return
			}
			if s.user.HasBanned(tgt.User) {
				s.state.SendSystemAsync(s.user, "you banned "+tgt.User.Name)
				return
			}
		}
		if tgt.Group != nil && tgt.Group.Admin.HasBanned(s.user) {
			s.state.SendSystemAsync(s.user, fmt.Sprintf("you are banned by %s's admin", tgt.Group.Name))
			return
		}

		data, err := (&wire.ServerFrame{
			SenderContext: wire.ContextUser,
			TargetContext: f.TargetContext,
			Sender:        s.user.Name,
			Target:        f.Target,
			Content:       f.Content,
		}).Encode()
		if err != nil {
			slog.Error("encode relay", "username", s.user.Name, "err", err)
			return
		}
		if tgt.Group != nil {
			s.state.FanoutGroup(tgt.Group, data)
			return
		}
		s.state.SendAsync(tgt.User, data)
		s.state.SendSystemAsync(s.user, fmt.Sprintf("You're whispering to %s: %s", tgt.User.Name, f.Content))
	})
}

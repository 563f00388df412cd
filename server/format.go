package main

import (
	"strings"

	"github.com/fatih/color"

	"github.com/Eboubaker/chat/internal/core"
)

var (
	selfColor   = color.New(color.FgGreen)
	adminColor  = color.New(color.FgYellow)
	bannedColor = color.New(color.FgRed)
)

// formatMember renders one /users row from viewer's perspective: the
// viewer's own name in green, an [ADMIN] tag on the group admin, a
// [BANNED] tag on members the viewer has banned.
// Caller must hold at least a read lock.
func formatMember(g *core.Group, viewer, member *core.User) string {
	txt := member.Name
	if viewer == member {
		txt = selfColor.Sprint(txt)
	}
	if g.Admin == member {
		txt += adminColor.Sprint("[ADMIN]")
	}
	if viewer.HasBanned(member) {
		txt += bannedColor.Sprint("[BANNED]")
	}
	return txt
}

// formatUserList builds the /users reply body.
// Caller must hold at least a read lock.
func formatUserList(g *core.Group, viewer *core.User) string {
	rows := make([]string, 0, len(g.Users))
	for _, m := range g.Users {
		rows = append(rows, formatMember(g, viewer, m))
	}
	return "users in " + g.Name + ":\n" + strings.Join(rows, "\n")
}

// formatBanList builds the /banned reply body.
// Caller must hold at least a read lock.
func formatBanList(viewer *core.User) string {
	rows := make([]string, 0, len(viewer.BanList))
	for _, b := range viewer.BanList {
		rows = append(rows, b.Name)
	}
	return "banned users:\n" + strings.Join(rows, "\n")
}

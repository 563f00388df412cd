package core

// GroupStatus is one group's row in a status snapshot.
type GroupStatus struct {
	Name           string `json:"name"`
	Members        int    `json:"members"`
	Admin          string `json:"admin"`
	Locked         bool   `json:"locked"`
	PendingInvites int    `json:"pending_invites"`
}

// Status is a point-in-time view of the graph for the ops endpoint.
type Status struct {
	Users  []string      `json:"users"`
	Groups []GroupStatus `json:"groups"`
}

// Snapshot copies the graph shape under a read hold.
func (s *State) Snapshot() Status {
	s.Lock.AcquireRead()
	defer s.Lock.ReleaseRead()

	st := Status{Users: make([]string, 0, len(s.users)-1)}
	for _, u := range s.users {
		if u == s.system {
			continue
		}
		st.Users = append(st.Users, u.Name)
	}
	for _, g := range s.groups {
		st.Groups = append(st.Groups, GroupStatus{
			Name:           g.Name,
			Members:        len(g.Users),
			Admin:          g.Admin.Name,
			Locked:         g.Locked,
			PendingInvites: len(g.Invites),
		})
	}
	return st
}

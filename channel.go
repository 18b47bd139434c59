package main

import (
	"sort"
	"strconv"
)

// Channel holds everything to do with a channel.
//
// Membership is tracked by ClientID. Resolve IDs through the server's client
// registry.
type Channel struct {
	// Display name. The name used when the channel was created.
	Name string

	Members map[ClientID]struct{}

	// Members with channel operator status. Always a subset of Members.
	Ops map[ClientID]struct{}

	// Clients who may join while the channel is invite only. An invite is used
	// up by the join.
	Invited map[ClientID]struct{}

	// Ban masks in the order they were set.
	Bans []ban

	Topic       string
	TopicSetter string
	TopicTS     int64

	Modes channelModes

	// Creation time. Unix seconds.
	TS int64
}

// channelModes are a channel's mode flags.
//
// Key is meaningless unless KeyProtected is set. Likewise Limit and Limited.
type channelModes struct {
	InviteOnly     bool
	TopicProtected bool
	KeyProtected   bool
	Key            string
	Limited        bool
	Limit          int
}

// ban is a mask in nick!user@host form.
type ban struct {
	Mask  string
	SetBy string
	SetAt int64
}

// newChannel creates an empty channel.
func newChannel(name string, ts int64) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[ClientID]struct{}),
		Ops:     make(map[ClientID]struct{}),
		Invited: make(map[ClientID]struct{}),
		TS:      ts,
	}
}

func (ch *Channel) isMember(id ClientID) bool {
	_, exists := ch.Members[id]
	return exists
}

func (ch *Channel) isOp(id ClientID) bool {
	_, exists := ch.Ops[id]
	return exists
}

func (ch *Channel) isInvited(id ClientID) bool {
	_, exists := ch.Invited[id]
	return exists
}

// addMember adds a member, using up any invite they had.
func (ch *Channel) addMember(id ClientID, op bool) {
	ch.Members[id] = struct{}{}
	delete(ch.Invited, id)
	if op {
		ch.Ops[id] = struct{}{}
	}
}

// removeMember removes a member along with their operator status.
func (ch *Channel) removeMember(id ClientID) {
	delete(ch.Members, id)
	delete(ch.Ops, id)
}

// forget drops every trace of a client, including invites.
func (ch *Channel) forget(id ClientID) {
	ch.removeMember(id)
	delete(ch.Invited, id)
}

func (ch *Channel) setOp(id ClientID, op bool) {
	if !ch.isMember(id) {
		return
	}
	if op {
		ch.Ops[id] = struct{}{}
		return
	}
	delete(ch.Ops, id)
}

func (ch *Channel) empty() bool {
	return len(ch.Members) == 0
}

// isFull is true if a user limit is set and reached.
func (ch *Channel) isFull() bool {
	return ch.Modes.Limited && len(ch.Members) >= ch.Modes.Limit
}

// memberIDs returns members in join order (IDs are allocated increasing).
func (ch *Channel) memberIDs() []ClientID {
	ids := make([]ClientID, 0, len(ch.Members))
	for id := range ch.Members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// modeString builds the channel's current modes and their arguments. The key
// is only revealed to members.
func (ch *Channel) modeString(showKey bool) (string, []string) {
	modes := "+"
	var params []string

	if ch.Modes.InviteOnly {
		modes += "i"
	}
	if ch.Modes.TopicProtected {
		modes += "t"
	}
	if ch.Modes.KeyProtected {
		modes += "k"
		if showKey {
			params = append(params, ch.Modes.Key)
		}
	}
	if ch.Modes.Limited {
		modes += "l"
		params = append(params, strconv.Itoa(ch.Modes.Limit))
	}

	return modes, params
}

func (ch *Channel) removeBan(mask string) bool {
	for i, b := range ch.Bans {
		if b.Mask == mask {
			ch.Bans = append(ch.Bans[:i], ch.Bans[i+1:]...)
			return true
		}
	}
	return false
}

// isBanned checks the client against every ban mask.
func (ch *Channel) isBanned(c *Client) bool {
	for _, b := range ch.Bans {
		if c.matchesMask(b.Mask) {
			return true
		}
	}
	return false
}

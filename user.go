package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"
)

func (c *Client) String() string {
	return fmt.Sprintf("%d %s", c.ID, c.nickUhost())
}

// nickUhost is the nick!user@host prefix used on messages the client causes.
func (c *Client) nickUhost() string {
	nick := c.Nick
	if nick == "" {
		nick = "*"
	}
	user := c.Username
	if user == "" {
		user = "*"
	}
	return fmt.Sprintf("%s!%s@%s", nick, user, c.Hostname)
}

// matchesMask checks the client against a nick!user@host glob. Comparison is
// case insensitive.
func (c *Client) matchesMask(mask string) bool {
	return glob.Glob(strings.ToLower(mask), strings.ToLower(c.nickUhost()))
}

// normalizeBanMask expands a partial mask to nick!user@host form.
//
// "bob" becomes "bob!*@*", "bob@host" becomes "*!bob@host", and "bob!x"
// becomes "bob!x@*".
func normalizeBanMask(mask string) string {
	if mask == "" {
		return ""
	}

	bang := strings.IndexByte(mask, '!')
	at := strings.IndexByte(mask, '@')

	switch {
	case bang == -1 && at == -1:
		return mask + "!*@*"
	case bang == -1:
		return "*!" + mask
	case at == -1:
		return mask + "@*"
	default:
		return mask
	}
}

// sharedChannelPeers returns the IDs of every other client on at least one of
// the client's channels. Each appears once.
func (c *Client) sharedChannelPeers() []ClientID {
	seen := make(map[ClientID]struct{})
	var peers []ClientID

	for _, ch := range c.Channels {
		for _, id := range ch.memberIDs() {
			if id == c.ID {
				continue
			}
			if _, exists := seen[id]; exists {
				continue
			}
			seen[id] = struct{}{}
			peers = append(peers, id)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

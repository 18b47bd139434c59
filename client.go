package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/horgh/irc"
)

// ClientID identifies a connection for its lifetime. IDs are never reused
// within one run and increase in accept order.
type ClientID uint64

// Client holds state about a local connection.
type Client struct {
	// Locally unique identifier.
	ID ClientID

	Conn Conn

	// Their IP. We don't do reverse lookups.
	Hostname string

	ConnectionStartTime time.Time

	Server *Server

	// Inbound bytes not yet split into lines.
	frames frameReader

	// Encoded lines waiting for the socket to become writable.
	outbound []byte

	// What the poller is currently watching for.
	interest interest

	Nick     string
	Username string
	RealName string

	// Registration facts. They may be satisfied in any order.
	hasPassword bool
	hasNick     bool
	hasUser     bool

	// Set once, when all required facts hold. Never unset.
	registered bool

	// User mode +i.
	invisible bool

	// Canonical channel name to Channel.
	Channels map[string]*Channel

	// Set when the client is gone. Nothing more may be processed for it.
	closed bool

	// Track if we overflow our send queue. If we do, we'll kill the client.
	sendQueueExceeded bool
}

// newClient creates a Client for an accepted connection.
func newClient(s *Server, id ClientID, conn Conn, hostname string) *Client {
	return &Client{
		ID:                  id,
		Conn:                conn,
		Hostname:            hostname,
		ConnectionStartTime: s.now(),
		Server:              s,
		frames: frameReader{
			lenient: s.Config.LenientFraming,
			maxLen:  s.Config.MaxLineLength,
		},
		interest: interestRead,
		Channels: make(map[string]*Channel),
	}
}

// queue encodes a message and appends it to the outbound buffer. It goes out
// when the socket next reports writable.
func (c *Client) queue(m irc.Message) {
	if c.closed || c.sendQueueExceeded {
		return
	}

	buf, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		c.Server.Logger.Warn("unable to encode message", "client", c.ID,
			"message", m, "error", err)
		return
	}

	if c.Server.Config.MaxSendQueue > 0 &&
		len(c.outbound)+len(buf) > c.Server.Config.MaxSendQueue {
		c.sendQueueExceeded = true
		c.Server.markDirty(c)
		return
	}

	c.Server.Logger.Debug("queued", "client", c.ID,
		"line", strings.TrimRight(buf, "\r\n"))

	c.outbound = append(c.outbound, buf...)
	c.Server.markDirty(c)
}

// messageFromServer sends a message prefixed by our server name.
//
// Numeric replies get the client's nick as the first parameter, or * if it
// has none yet.
func (c *Client) messageFromServer(command string, params []string) {
	if isNumericCommand(command) {
		nick := "*"
		if c.Nick != "" {
			nick = c.Nick
		}
		params = append([]string{nick}, params...)
	}

	c.queue(irc.Message{
		Prefix:  c.Server.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// messageFrom queues a message with another client as its source.
func (c *Client) messageFrom(from *Client, command string, params []string) {
	c.queue(irc.Message{
		Prefix:  from.nickUhost(),
		Command: command,
		Params:  params,
	})
}

// passwordSatisfied is true if the client gave the right password or if none
// is required.
func (c *Client) passwordSatisfied() bool {
	return c.hasPassword || !c.Server.Config.PasswordRequired
}

// maybeRegister completes registration if every required fact holds. It does
// nothing once the client is registered.
func (c *Client) maybeRegister() {
	if c.registered {
		return
	}

	if !c.passwordSatisfied() || !c.hasNick || !c.hasUser {
		return
	}

	c.registered = true
	c.Server.metrics.registered.Inc()

	c.Server.Logger.Info("client registered", "client", c.ID, "nick", c.Nick,
		"uhost", c.nickUhost())

	c.welcome()
}

// welcome sends the fixed burst a client gets when it registers.
func (c *Client) welcome() {
	cfg := c.Server.Config

	// 001 RPL_WELCOME
	c.messageFromServer(rplWelcome, []string{
		fmt.Sprintf("Welcome to the Internet Relay Network %s", c.nickUhost()),
	})

	// 002 RPL_YOURHOST
	c.messageFromServer(rplYourHost, []string{
		fmt.Sprintf("Your host is %s, running version %s", cfg.ServerName,
			cfg.Version),
	})

	// 003 RPL_CREATED
	c.messageFromServer(rplCreated, []string{
		fmt.Sprintf("This server was created %s", cfg.CreatedDate),
	})

	// 004 RPL_MYINFO
	// <servername> <version> <available user modes> <available channel modes>
	c.messageFromServer(rplMyInfo, []string{
		cfg.ServerName,
		cfg.Version,
		"i",
		"biklot",
	})

	c.motd()
}

func (c *Client) motd() {
	motd := c.Server.Config.MOTD
	if motd == "" {
		// 422 ERR_NOMOTD
		c.messageFromServer(errNoMOTDNumeric, []string{"MOTD File is missing"})
		return
	}

	// 375 RPL_MOTDSTART
	c.messageFromServer(rplMOTDStart, []string{
		fmt.Sprintf("- %s Message of the day - ", c.Server.Config.ServerName),
	})

	for _, line := range strings.Split(motd, "\n") {
		// 372 RPL_MOTD
		c.messageFromServer(rplMOTD, []string{"- " + strings.TrimRight(line, "\r")})
	}

	// 376 RPL_ENDOFMOTD
	c.messageFromServer(rplEndOfMOTD, []string{"End of MOTD command"})
}

// onChannel checks if the client is a member of the channel.
func (c *Client) onChannel(ch *Channel) bool {
	_, exists := c.Channels[canonicalizeChannel(ch.Name)]
	return exists
}

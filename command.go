package main

import (
	"strings"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// command is an entry in the dispatch table.
type command struct {
	handler func(*Client, irc.Message) error

	// May be used before registration completes.
	preRegistration bool
}

// commands maps an upper case verb to its handler. It is filled in init to
// avoid an initialization cycle through the handlers.
var commands map[string]command

func init() {
	commands = map[string]command{
		"CAP":  {(*Client).capCommand, true},
		"PASS": {(*Client).passCommand, true},
		"NICK": {(*Client).nickCommand, true},
		"USER": {(*Client).userCommand, true},
		"PING": {(*Client).pingCommand, true},
		"QUIT": {(*Client).quitCommand, true},

		"PONG":    {(*Client).pongCommand, false},
		"JOIN":    {(*Client).joinCommand, false},
		"PART":    {(*Client).partCommand, false},
		"PRIVMSG": {(*Client).privmsgCommand, false},
		"NOTICE":  {(*Client).noticeCommand, false},
		"TOPIC":   {(*Client).topicCommand, false},
		"MODE":    {(*Client).modeCommand, false},
		"KICK":    {(*Client).kickCommand, false},
		"INVITE":  {(*Client).inviteCommand, false},
		"NAMES":   {(*Client).namesCommand, false},
		"MOTD":    {(*Client).motdCommand, false},
	}
}

// handleLine runs one line received from the client. Blank and verbless lines
// are ignored.
func (c *Client) handleLine(line string) {
	if c.closed {
		return
	}

	if strings.TrimSpace(line) == "" {
		return
	}

	m, ok := parseLine(line)
	if !ok {
		return
	}

	c.Server.Logger.Debug("received", "client", c.ID, "line", line)
	c.Server.metrics.countCommand(m.Command)

	c.handleMessage(m)
}

// handleMessage dispatches a parsed message. Any rejection becomes a single
// numeric reply and the client stays connected.
func (c *Client) handleMessage(m irc.Message) {
	cmd, exists := commands[m.Command]
	if !exists {
		// 421 ERR_UNKNOWNCOMMAND
		c.replyError(replyError(ProtocolError, errUnknownCommandNumeric,
			m.Command, "Unknown command"))
		return
	}

	if !cmd.preRegistration && !c.registered {
		// 451 ERR_NOTREGISTERED
		c.replyError(errNotRegistered())
		return
	}

	if err := cmd.handler(c, m); err != nil {
		c.replyError(err)
	}
}

// replyError reports a rejected command to the client. Errors that are not
// protocol replies are logged only.
func (c *Client) replyError(err error) {
	var re *ReplyError
	if errors.As(err, &re) {
		// Params often echo what the client sent. Anything that can't be a
		// middle parameter becomes *.
		params := make([]string, len(re.Params))
		for i, param := range re.Params {
			if i+1 < len(re.Params) && !isMiddleParam(param) {
				param = "*"
			}
			params[i] = param
		}

		c.messageFromServer(re.Numeric, params)
		return
	}

	c.Server.Logger.Error("command failed", "client", c.ID, "error", err)
}

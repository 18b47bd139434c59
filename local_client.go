package main

import (
	"crypto/subtle"
	"strings"

	"github.com/horgh/irc"
	"golang.org/x/crypto/bcrypt"
)

// Commands a client may send before registration completes. Registered
// clients may use them too.

func (c *Client) passCommand(m irc.Message) error {
	// Parameters: <password>

	if c.registered {
		// 462 ERR_ALREADYREGISTRED
		return errAlreadyRegistered()
	}

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("PASS")
	}

	if !passwordMatches(c.Server.Config.Password, m.Params[0]) {
		// 464 ERR_PASSWDMISMATCH
		return errPasswordMismatch()
	}

	c.hasPassword = true
	c.maybeRegister()
	return nil
}

// passwordMatches checks a password against the configured one. The
// configured password may be a bcrypt hash.
func passwordMatches(configured, given string) bool {
	if isBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(given)) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func (c *Client) nickCommand(m irc.Message) error {
	// Parameters: <nickname>

	if len(m.Params) == 0 || m.Params[0] == "" {
		// 431 ERR_NONICKNAMEGIVEN
		return replyError(ParameterError, errNoNicknameGivenNumeric,
			"No nickname given")
	}

	nick := m.Params[0]

	if !isValidNick(c.Server.Config.MaxNickLength, nick) {
		// 432 ERR_ERRONEUSNICKNAME
		return replyError(ParameterError, errErroneusNicknameNumeric, nick,
			"Erroneous nickname")
	}

	// Nicks are case sensitive. Only an exact match is a collision.
	if id, exists := c.Server.nicks[nick]; exists {
		if id == c.ID {
			return nil
		}
		// 433 ERR_NICKNAMEINUSE
		return replyError(ResourceConflict, errNicknameInUseNumeric, nick,
			"Nickname is already in use")
	}

	oldPrefix := c.nickUhost()
	oldNick := c.Nick

	if c.hasNick {
		delete(c.Server.nicks, oldNick)
	}
	c.Server.nicks[nick] = c.ID
	c.Nick = nick
	c.hasNick = true

	if c.registered {
		nickMsg := irc.Message{
			Prefix:  oldPrefix,
			Command: "NICK",
			Params:  []string{nick},
		}

		c.queue(nickMsg)
		for _, id := range c.sharedChannelPeers() {
			if peer, exists := c.Server.clients[id]; exists {
				peer.queue(nickMsg)
			}
		}

		c.Server.Logger.Info("nick change", "client", c.ID, "old", oldNick,
			"new", nick)
		return nil
	}

	c.maybeRegister()
	return nil
}

func (c *Client) userCommand(m irc.Message) error {
	// Parameters: <user> <mode> <unused> <realname>

	if c.registered {
		// 462 ERR_ALREADYREGISTRED
		return errAlreadyRegistered()
	}

	if !c.passwordSatisfied() {
		// 464 ERR_PASSWDMISMATCH
		return errPasswordMismatch()
	}

	if len(m.Params) != 4 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("USER")
	}

	c.Username = m.Params[0]
	c.RealName = m.Params[3]
	c.hasUser = true

	c.maybeRegister()
	return nil
}

// capCommand answers capability negotiation. We have no capabilities.
func (c *Client) capCommand(m irc.Message) error {
	// Parameters: <subcommand> [param]

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("CAP")
	}

	nick := "*"
	if c.Nick != "" {
		nick = c.Nick
	}

	subCommand := strings.ToUpper(m.Params[0])
	switch subCommand {
	case "LS", "LIST":
		c.messageFromServer("CAP", []string{nick, subCommand, ""})
	case "REQ":
		requested := ""
		if len(m.Params) > 1 {
			requested = m.Params[1]
		}
		c.messageFromServer("CAP", []string{nick, "NAK", requested})
	case "END":
	default:
		// 410 ERR_INVALIDCAPCMD
		return replyError(ParameterError, errInvalidCapCmdNumeric, m.Params[0],
			"Invalid CAP command")
	}

	return nil
}

func (c *Client) pingCommand(m irc.Message) error {
	// Parameters: <server1> [<server2>]

	if len(m.Params) == 0 {
		// 409 ERR_NOORIGIN
		return replyError(ParameterError, errNoOriginNumeric, "No origin specified")
	}

	c.messageFromServer("PONG", []string{c.Server.Config.ServerName,
		m.Params[0]})
	return nil
}

func (c *Client) pongCommand(m irc.Message) error {
	return nil
}

func (c *Client) quitCommand(m irc.Message) error {
	// Parameters: [ <Quit Message> ]

	msg := "Client Quit"
	if len(m.Params) > 0 && m.Params[0] != "" {
		msg = "Quit: " + m.Params[0]
	}

	c.Server.quitClient(c, msg)
	return nil
}

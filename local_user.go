package main

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/horgh/irc"
)

// Commands that require a registered client.

func (c *Client) joinCommand(m irc.Message) error {
	// Parameters: ( <channel> *( "," <channel> ) [ <key> *( "," <key> ) ] ) / "0"

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("JOIN")
	}

	// JOIN 0 is a special case. Client leaves all channels.
	if m.Params[0] == "0" {
		c.partAll()
		return nil
	}

	var keys []string
	if len(m.Params) > 1 {
		keys = strings.Split(m.Params[1], ",")
	}

	// May have multiple channels in a single command. Each gets its own reply.
	// Keys pair with channels by position, empty slots included.
	for i, name := range strings.Split(m.Params[0], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		if err := c.join(name, key); err != nil {
			c.replyError(err)
		}
	}

	return nil
}

func (c *Client) join(name, key string) error {
	if !isValidChannel(name) {
		// 403 ERR_NOSUCHCHANNEL
		return errNoSuchChannel(name)
	}

	canonical := canonicalizeChannel(name)
	channel, exists := c.Server.channels[canonical]

	if exists && c.onChannel(channel) {
		return nil
	}

	if len(c.Channels) >= c.Server.Config.MaxChannels {
		// 405 ERR_TOOMANYCHANNELS
		return replyError(ResourceConflict, errTooManyChannelsNumeric, name,
			"You have joined too many channels")
	}

	if exists {
		if channel.Modes.KeyProtected && key != channel.Modes.Key {
			// 475 ERR_BADCHANNELKEY
			return replyError(AuthorizationError, errBadChannelKeyNumeric,
				channel.Name, "Cannot join channel (+k)")
		}

		if channel.isFull() {
			// 471 ERR_CHANNELISFULL
			return replyError(ResourceConflict, errChannelIsFullNumeric,
				channel.Name, "Cannot join channel (+l)")
		}

		invited := channel.isInvited(c.ID)

		if channel.Modes.InviteOnly && !invited {
			// 473 ERR_INVITEONLYCHAN
			return replyError(AuthorizationError, errInviteOnlyChanNumeric,
				channel.Name, "Cannot join channel (+i)")
		}

		// An invite gets you past a ban.
		if !invited && channel.isBanned(c) {
			// 474 ERR_BANNEDFROMCHAN
			return replyError(AuthorizationError, errBannedFromChanNumeric,
				channel.Name, "Cannot join channel (+b)")
		}
	}

	if !exists {
		channel = newChannel(name, c.Server.now().Unix())
		c.Server.channels[canonical] = channel
		c.Server.metrics.channels.Inc()
		c.Server.Logger.Info("channel created", "channel", channel.Name,
			"creator", c.Nick)
	}

	// The creator is the first operator.
	channel.addMember(c.ID, !exists)
	c.Channels[canonical] = channel

	// Tell everyone in the channel, including the client.
	c.Server.broadcast(channel, c, "JOIN", []string{channel.Name}, nil)

	if channel.Topic != "" {
		c.sendTopic(channel)
	} else {
		// 331 RPL_NOTOPIC
		c.messageFromServer(rplNoTopic, []string{channel.Name, "No topic is set"})
	}

	c.sendNames(channel)
	return nil
}

// partAll leaves every channel the client is on.
func (c *Client) partAll() {
	for _, channel := range c.channelList() {
		if err := c.part(channel.Name, ""); err != nil {
			c.replyError(err)
		}
	}
}

// channelList returns the client's channels ordered by name.
func (c *Client) channelList() []*Channel {
	names := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	channels := make([]*Channel, 0, len(names))
	for _, name := range names {
		channels = append(channels, c.Channels[name])
	}
	return channels
}

func (c *Client) partCommand(m irc.Message) error {
	// Parameters: <channel> *( "," <channel> ) [ <Part Message> ]

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("PART")
	}

	partMessage := ""
	if len(m.Params) >= 2 {
		partMessage = m.Params[1]
	}

	// May have multiple channels in a single command.
	for _, name := range commaList(m.Params[0]) {
		if err := c.part(name, partMessage); err != nil {
			c.replyError(err)
		}
	}

	return nil
}

func (c *Client) part(name, message string) error {
	channel, exists := c.Server.channels[canonicalizeChannel(name)]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		return errNoSuchChannel(name)
	}

	if !c.onChannel(channel) {
		// 442 ERR_NOTONCHANNEL
		return errNotOnChannel(channel.Name)
	}

	params := []string{channel.Name}
	if message != "" {
		params = append(params, message)
	}

	// Members hear it before the client is removed, so the client gets it too.
	c.Server.broadcast(channel, c, "PART", params, nil)

	c.Server.removeFromChannel(c, channel)
	return nil
}

// Per RFC 2812, PRIVMSG and NOTICE are essentially the same. NOTICE never
// generates error replies.
func (c *Client) privmsgCommand(m irc.Message) error {
	return c.message(m, false)
}

func (c *Client) noticeCommand(m irc.Message) error {
	return c.message(m, true)
}

func (c *Client) message(m irc.Message, notice bool) error {
	// Parameters: <msgtarget> <text to be sent>

	if len(m.Params) == 0 {
		if notice {
			return nil
		}
		// 411 ERR_NORECIPIENT
		return replyError(ParameterError, errNoRecipientNumeric,
			fmt.Sprintf("No recipient given (%s)", m.Command))
	}

	if len(m.Params) == 1 || m.Params[1] == "" {
		if notice {
			return nil
		}
		// 412 ERR_NOTEXTTOSEND
		return replyError(ParameterError, errNoTextToSendNumeric, "No text to send")
	}

	text := m.Params[1]

	for _, target := range commaList(m.Params[0]) {
		if err := c.messageTarget(m.Command, target, text); err != nil && !notice {
			c.replyError(err)
		}
	}

	return nil
}

func (c *Client) messageTarget(command, target, text string) error {
	if target[0] == '#' {
		channel, exists := c.Server.channels[canonicalizeChannel(target)]
		if !exists {
			// 403 ERR_NOSUCHCHANNEL
			return errNoSuchChannel(target)
		}

		if !c.onChannel(channel) || channel.isBanned(c) {
			// 404 ERR_CANNOTSENDTOCHAN
			return replyError(AuthorizationError, errCannotSendToChanNumeric,
				channel.Name, "Cannot send to channel")
		}

		// Send to all members of the channel. Except the client itself.
		c.Server.broadcast(channel, c, command, []string{channel.Name, text}, c)
		return nil
	}

	targetClient := c.Server.clientByNick(target)
	if targetClient == nil {
		// 401 ERR_NOSUCHNICK
		return errNoSuchNick(target)
	}

	targetClient.messageFrom(c, command, []string{targetClient.Nick, text})
	return nil
}

func (c *Client) topicCommand(m irc.Message) error {
	// Parameters: <channel> [ <topic> ]

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("TOPIC")
	}

	channel, exists := c.Server.channels[canonicalizeChannel(m.Params[0])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		return errNoSuchChannel(m.Params[0])
	}

	if !c.onChannel(channel) {
		// 442 ERR_NOTONCHANNEL
		return errNotOnChannel(channel.Name)
	}

	// If there is no new topic, then just send back the current one.
	if len(m.Params) < 2 {
		if channel.Topic == "" {
			// 331 RPL_NOTOPIC
			c.messageFromServer(rplNoTopic, []string{channel.Name, "No topic is set"})
			return nil
		}

		c.sendTopic(channel)
		return nil
	}

	if channel.Modes.TopicProtected && !channel.isOp(c.ID) {
		// 482 ERR_CHANOPRIVSNEEDED
		return errChanOPrivsNeeded(channel.Name)
	}

	topic := m.Params[1]
	if len(topic) > maxTopicLength {
		// Cut on a rune boundary.
		cut := maxTopicLength
		for cut > 0 && !utf8.RuneStart(topic[cut]) {
			cut--
		}
		topic = topic[:cut]
	}

	channel.Topic = topic
	channel.TopicSetter = c.nickUhost()
	channel.TopicTS = c.Server.now().Unix()

	c.Server.broadcast(channel, c, "TOPIC", []string{channel.Name, topic}, nil)
	return nil
}

// sendTopic sends the channel's topic and who set it.
func (c *Client) sendTopic(channel *Channel) {
	// 332 RPL_TOPIC
	c.messageFromServer(rplTopic, []string{channel.Name, channel.Topic})

	// 333 RPL_TOPICWHOTIME
	c.messageFromServer(rplTopicWhoTime, []string{
		channel.Name,
		channel.TopicSetter,
		fmt.Sprintf("%d", channel.TopicTS),
	})
}

func (c *Client) kickCommand(m irc.Message) error {
	// Parameters: <channel> <user> *( "," <user> ) [<comment>]

	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("KICK")
	}

	channel, exists := c.Server.channels[canonicalizeChannel(m.Params[0])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		return errNoSuchChannel(m.Params[0])
	}

	if !c.onChannel(channel) {
		// 442 ERR_NOTONCHANNEL
		return errNotOnChannel(channel.Name)
	}

	if !channel.isOp(c.ID) {
		// 482 ERR_CHANOPRIVSNEEDED
		return errChanOPrivsNeeded(channel.Name)
	}

	comment := c.Nick
	if len(m.Params) > 2 && m.Params[2] != "" {
		comment = m.Params[2]
	}

	canonical := canonicalizeChannel(channel.Name)

	for _, nick := range commaList(m.Params[1]) {
		// The channel goes away once the last member is kicked.
		if _, exists := c.Server.channels[canonical]; !exists {
			break
		}

		target := c.Server.clientByNick(nick)
		if target == nil || !channel.isMember(target.ID) {
			// 441 ERR_USERNOTINCHANNEL
			c.replyError(errUserNotInChannel(nick, channel.Name))
			continue
		}

		// Everyone including the target hears it before they are removed.
		c.Server.broadcast(channel, c, "KICK",
			[]string{channel.Name, target.Nick, comment}, nil)

		c.Server.removeFromChannel(target, channel)
	}

	return nil
}

func (c *Client) inviteCommand(m irc.Message) error {
	// Parameters: <nickname> <channel>

	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("INVITE")
	}

	nick := m.Params[0]

	channel, exists := c.Server.channels[canonicalizeChannel(m.Params[1])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		return errNoSuchChannel(m.Params[1])
	}

	if !c.onChannel(channel) {
		// 442 ERR_NOTONCHANNEL
		return errNotOnChannel(channel.Name)
	}

	if channel.Modes.InviteOnly && !channel.isOp(c.ID) {
		// 482 ERR_CHANOPRIVSNEEDED
		return errChanOPrivsNeeded(channel.Name)
	}

	target := c.Server.clientByNick(nick)
	if target == nil {
		// 401 ERR_NOSUCHNICK
		return errNoSuchNick(nick)
	}

	if channel.isMember(target.ID) {
		// 443 ERR_USERONCHANNEL
		return replyError(ResourceConflict, errUserOnChannelNumeric, target.Nick,
			channel.Name, "is already on channel")
	}

	channel.Invited[target.ID] = struct{}{}

	target.messageFrom(c, "INVITE", []string{target.Nick, channel.Name})

	// 341 RPL_INVITING
	c.messageFromServer(rplInviting, []string{target.Nick, channel.Name})
	return nil
}

func (c *Client) namesCommand(m irc.Message) error {
	// Parameters: [ <channel> *( "," <channel> ) ]

	if len(m.Params) == 0 || m.Params[0] == "" {
		// 366 RPL_ENDOFNAMES
		c.messageFromServer(rplEndOfNames, []string{"*", "End of /NAMES list"})
		return nil
	}

	for _, name := range commaList(m.Params[0]) {
		channel, exists := c.Server.channels[canonicalizeChannel(name)]
		if !exists {
			// 366 RPL_ENDOFNAMES
			c.messageFromServer(rplEndOfNames, []string{name, "End of /NAMES list"})
			continue
		}
		c.sendNames(channel)
	}

	return nil
}

// sendNames sends the channel's member list. Operators are prefixed with @.
// Invisible users are only listed to other members.
func (c *Client) sendNames(channel *Channel) {
	member := c.onChannel(channel)

	var names []string
	for _, id := range channel.memberIDs() {
		memberClient, exists := c.Server.clients[id]
		if !exists {
			continue
		}
		if !member && memberClient.invisible {
			continue
		}

		name := memberClient.Nick
		if channel.isOp(id) {
			name = "@" + name
		}
		names = append(names, name)
	}

	// Split so each 353 fits in a protocol line.
	prefixLen := len(":") + len(c.Server.Config.ServerName) + len(" 353 ") +
		len(c.Nick) + len(" = ") + len(channel.Name) + len(" :") + len("\r\n")
	maxLen := irc.MaxLineLength - prefixLen

	var line []string
	lineLen := 0
	for _, name := range names {
		if lineLen > 0 && lineLen+1+len(name) > maxLen {
			// 353 RPL_NAMREPLY
			c.messageFromServer(rplNamReply, []string{"=", channel.Name,
				strings.Join(line, " ")})
			line = nil
			lineLen = 0
		}
		if lineLen > 0 {
			lineLen++
		}
		lineLen += len(name)
		line = append(line, name)
	}
	if len(line) > 0 {
		// 353 RPL_NAMREPLY
		c.messageFromServer(rplNamReply, []string{"=", channel.Name,
			strings.Join(line, " ")})
	}

	// 366 RPL_ENDOFNAMES
	c.messageFromServer(rplEndOfNames, []string{channel.Name,
		"End of /NAMES list"})
}

func (c *Client) motdCommand(m irc.Message) error {
	c.motd()
	return nil
}

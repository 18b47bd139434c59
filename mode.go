package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/horgh/irc"
)

func (c *Client) modeCommand(m irc.Message) error {
	// Parameters: <channel> *( ( "-" / "+" ) *<modes> *<modeparams> )
	//         or: <nickname> *( ( "+" / "-" ) *( "i" / "w" / "o" / "O" / "r" ) )

	if len(m.Params) == 0 || m.Params[0] == "" {
		// 461 ERR_NEEDMOREPARAMS
		return errNeedMoreParams("MODE")
	}

	target := m.Params[0]

	if target[0] == '#' {
		channel, exists := c.Server.channels[canonicalizeChannel(target)]
		if !exists {
			// 403 ERR_NOSUCHCHANNEL
			return errNoSuchChannel(target)
		}

		if !c.onChannel(channel) {
			// 442 ERR_NOTONCHANNEL
			return errNotOnChannel(channel.Name)
		}

		return c.channelModeCommand(channel, m.Params[1:])
	}

	targetClient := c.Server.clientByNick(target)
	if targetClient == nil {
		// 401 ERR_NOSUCHNICK
		return errNoSuchNick(target)
	}

	modes := ""
	if len(m.Params) > 1 {
		modes = m.Params[1]
	}
	return c.userModeCommand(targetClient, modes)
}

// userModeCommand handles MODE on a nick. We support +i only.
func (c *Client) userModeCommand(target *Client, modes string) error {
	if target != c {
		// 502 ERR_USERSDONTMATCH
		return replyError(AuthorizationError, errUsersDontMatchNumeric,
			"Cannot change mode for other users")
	}

	if modes == "" {
		current := "+"
		if c.invisible {
			current += "i"
		}
		// 221 RPL_UMODEIS
		c.messageFromServer(rplUModeIs, []string{current})
		return nil
	}

	invisible := c.invisible
	unknown := false
	sign := byte('+')

	for i := 0; i < len(modes); i++ {
		switch modes[i] {
		case '+', '-':
			sign = modes[i]
		case 'i':
			invisible = sign == '+'
		default:
			unknown = true
		}
	}

	if invisible != c.invisible {
		c.invisible = invisible
		change := "-i"
		if invisible {
			change = "+i"
		}
		c.messageFrom(c, "MODE", []string{c.Nick, change})
	}

	if unknown {
		// 501 ERR_UMODEUNKNOWNFLAG
		return replyError(ParameterError, errUModeUnknownFlagNumeric,
			"Unknown MODE flag")
	}

	return nil
}

// channelModeCommand queries or changes a channel's modes. The client is a
// member.
func (c *Client) channelModeCommand(channel *Channel, params []string) error {
	if len(params) == 0 {
		modes, args := channel.modeString(true)

		// 324 RPL_CHANNELMODEIS
		c.messageFromServer(rplChannelModes,
			append([]string{channel.Name, modes}, args...))

		// 329 RPL_CREATIONTIME
		c.messageFromServer(rplCreationTime, []string{
			channel.Name,
			strconv.FormatInt(channel.TS, 10),
		})
		return nil
	}

	modes := params[0]
	args := params[1:]

	if len(args) == 0 && strings.Trim(modes, "+") == "b" {
		c.sendBanList(channel)
		return nil
	}

	if !channel.isOp(c.ID) {
		// 482 ERR_CHANOPRIVSNEEDED
		return errChanOPrivsNeeded(channel.Name)
	}

	change, err := c.Server.parseChannelModes(channel, modes, args)
	if err != nil {
		return err
	}

	change.apply(channel, c)

	if change.modes == "" {
		return nil
	}

	c.Server.broadcast(channel, c, "MODE",
		append([]string{channel.Name, change.modes}, change.args...), nil)
	return nil
}

// modeChange is a validated set of channel mode changes. Nothing is applied
// until the whole mode string checks out.
type modeChange struct {
	// Flag state after the change.
	next channelModes

	ops  []opChange
	bans []banChange

	// What we tell members. Only what actually changed.
	modes string
	args  []string

	lastSign byte
}

type opChange struct {
	id   ClientID
	give bool
}

type banChange struct {
	mask string
	add  bool
}

func (mc *modeChange) emit(sign, mode byte, arg string) {
	if sign != mc.lastSign {
		mc.modes += string(sign)
		mc.lastSign = sign
	}
	mc.modes += string(mode)
	if arg != "" {
		mc.args = append(mc.args, arg)
	}
}

// parseChannelModes validates a mode string against a copy of the channel's
// state.
//
// Parameters are taken in order by +k, +l, o, and b. Missing parameters,
// unknown flags, bad values, or a bad o target reject the whole command.
func (s *Server) parseChannelModes(channel *Channel, modes string,
	args []string) (*modeChange, error) {
	mc := &modeChange{next: channel.Modes}

	// Copy the ban list so repeated masks within one command are seen.
	banned := make(map[string]bool, len(channel.Bans))
	for _, b := range channel.Bans {
		banned[b.Mask] = true
	}

	// Operator status as this command leaves it.
	ops := map[ClientID]bool{}
	isOp := func(id ClientID) bool {
		if op, ok := ops[id]; ok {
			return op
		}
		return channel.isOp(id)
	}

	sign := byte('+')
	argIndex := 0
	paramModes := 0

	nextArg := func() (string, bool) {
		if argIndex >= len(args) {
			return "", false
		}
		arg := args[argIndex]
		argIndex++
		return arg, true
	}

	for i := 0; i < len(modes); i++ {
		mode := modes[i]

		switch mode {
		case '+', '-':
			sign = mode

		case 'i':
			if mc.next.InviteOnly != (sign == '+') {
				mc.next.InviteOnly = sign == '+'
				mc.emit(sign, mode, "")
			}

		case 't':
			if mc.next.TopicProtected != (sign == '+') {
				mc.next.TopicProtected = sign == '+'
				mc.emit(sign, mode, "")
			}

		case 'k':
			if sign == '-' {
				if mc.next.KeyProtected {
					mc.next.KeyProtected = false
					mc.next.Key = ""
					mc.emit(sign, mode, "")
				}
				continue
			}

			if paramModes >= maxModeParams {
				continue
			}
			key, ok := nextArg()
			if !ok {
				// 461 ERR_NEEDMOREPARAMS
				return nil, errNeedMoreParams("MODE")
			}
			paramModes++

			if mc.next.KeyProtected {
				// 467 ERR_KEYSET
				return nil, replyError(ResourceConflict, errKeySetNumeric,
					channel.Name, "Channel key already set")
			}

			if !isValidKey(key) {
				// 696 ERR_INVALIDMODEPARAM
				return nil, replyError(ParameterError, errInvalidModeParamNumeric,
					channel.Name, "k", key, "Invalid key")
			}

			mc.next.KeyProtected = true
			mc.next.Key = key
			mc.emit(sign, mode, key)

		case 'l':
			if sign == '-' {
				if mc.next.Limited {
					mc.next.Limited = false
					mc.next.Limit = 0
					mc.emit(sign, mode, "")
				}
				continue
			}

			if paramModes >= maxModeParams {
				continue
			}
			arg, ok := nextArg()
			if !ok {
				// 461 ERR_NEEDMOREPARAMS
				return nil, errNeedMoreParams("MODE")
			}
			paramModes++

			limit, err := strconv.Atoi(arg)
			if err != nil || limit <= 0 {
				// 696 ERR_INVALIDMODEPARAM
				return nil, replyError(ParameterError, errInvalidModeParamNumeric,
					channel.Name, "l", arg, "Invalid limit")
			}

			mc.next.Limited = true
			mc.next.Limit = limit
			mc.emit(sign, mode, strconv.Itoa(limit))

		case 'o':
			if paramModes >= maxModeParams {
				continue
			}
			nick, ok := nextArg()
			if !ok {
				// 461 ERR_NEEDMOREPARAMS
				return nil, errNeedMoreParams("MODE")
			}
			paramModes++

			target := s.clientByNick(nick)
			if target == nil {
				// 401 ERR_NOSUCHNICK
				return nil, errNoSuchNick(nick)
			}

			if !channel.isMember(target.ID) {
				// 441 ERR_USERNOTINCHANNEL
				return nil, errUserNotInChannel(nick, channel.Name)
			}

			if isOp(target.ID) == (sign == '+') {
				continue
			}
			ops[target.ID] = sign == '+'

			mc.ops = append(mc.ops, opChange{id: target.ID, give: sign == '+'})
			mc.emit(sign, mode, target.Nick)

		case 'b':
			// A bare b is a list request. We only list when it is the whole
			// command so ignore it here.
			if argIndex >= len(args) || paramModes >= maxModeParams {
				continue
			}
			arg, _ := nextArg()
			paramModes++

			mask := normalizeBanMask(arg)
			if strings.ContainsAny(mask, " ,") || strings.HasPrefix(mask, ":") {
				// 696 ERR_INVALIDMODEPARAM
				return nil, replyError(ParameterError, errInvalidModeParamNumeric,
					channel.Name, "b", arg, "Invalid ban mask")
			}

			if sign == '+' && banned[mask] || sign == '-' && !banned[mask] {
				continue
			}
			banned[mask] = sign == '+'

			mc.bans = append(mc.bans, banChange{mask: mask, add: sign == '+'})
			mc.emit(sign, mode, mask)

		default:
			// 472 ERR_UNKNOWNMODE
			return nil, replyError(ParameterError, errUnknownModeNumeric,
				string(mode), fmt.Sprintf("is unknown mode char to me for %s",
					channel.Name))
		}
	}

	return mc, nil
}

// apply commits a validated change.
func (mc *modeChange) apply(channel *Channel, by *Client) {
	channel.Modes = mc.next

	for _, op := range mc.ops {
		channel.setOp(op.id, op.give)
	}

	for _, b := range mc.bans {
		if b.add {
			channel.Bans = append(channel.Bans, ban{
				Mask:  b.mask,
				SetBy: by.nickUhost(),
				SetAt: by.Server.now().Unix(),
			})
			continue
		}
		channel.removeBan(b.mask)
	}
}

func (c *Client) sendBanList(channel *Channel) {
	for _, b := range channel.Bans {
		// 367 RPL_BANLIST
		c.messageFromServer(rplBanList, []string{
			channel.Name,
			b.Mask,
			b.SetBy,
			strconv.FormatInt(b.SetAt, 10),
		})
	}

	// 368 RPL_ENDOFBANLIST
	c.messageFromServer(rplEndOfBanList, []string{channel.Name,
		"End of channel ban list"})
}

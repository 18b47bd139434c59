package main

import "fmt"

// ErrorKind classifies why a command was rejected.
type ErrorKind int

// Error kinds. Handler-level kinds become a numeric reply. Transport and
// startup kinds never reach a client.
const (
	ProtocolError ErrorKind = iota
	PreconditionError
	ParameterError
	AuthorizationError
	ResourceConflict
	NotFoundError
	TransportError
	FatalStartupError
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolError:
		return "protocol"
	case PreconditionError:
		return "precondition"
	case ParameterError:
		return "parameter"
	case AuthorizationError:
		return "authorization"
	case ResourceConflict:
		return "conflict"
	case NotFoundError:
		return "not found"
	case TransportError:
		return "transport"
	case FatalStartupError:
		return "startup"
	default:
		return "unknown"
	}
}

// ReplyError is a rejected command. The dispatcher sends it to the client as
// one numeric reply.
type ReplyError struct {
	Kind    ErrorKind
	Numeric string
	Params  []string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s error: %s %q", e.Kind, e.Numeric, e.Params)
}

func replyError(kind ErrorKind, numeric string, params ...string) *ReplyError {
	return &ReplyError{Kind: kind, Numeric: numeric, Params: params}
}

func errNeedMoreParams(command string) *ReplyError {
	return replyError(ParameterError, errNeedMoreParamsNumeric, command,
		"Not enough parameters")
}

func errNotRegistered() *ReplyError {
	return replyError(PreconditionError, errNotRegisteredNumeric,
		"You have not registered")
}

func errAlreadyRegistered() *ReplyError {
	return replyError(PreconditionError, errAlreadyRegisteredNumeric,
		"You may not reregister")
}

func errPasswordMismatch() *ReplyError {
	return replyError(AuthorizationError, errPasswdMismatchNumeric,
		"Password incorrect")
}

func errNoSuchNick(nick string) *ReplyError {
	return replyError(NotFoundError, errNoSuchNickNumeric, nick,
		"No such nick/channel")
}

func errNoSuchChannel(name string) *ReplyError {
	return replyError(NotFoundError, errNoSuchChannelNumeric, name,
		"No such channel")
}

func errNotOnChannel(name string) *ReplyError {
	return replyError(PreconditionError, errNotOnChannelNumeric, name,
		"You're not on that channel")
}

func errChanOPrivsNeeded(name string) *ReplyError {
	return replyError(AuthorizationError, errChanOPrivsNeededNumeric, name,
		"You're not channel operator")
}

func errUserNotInChannel(nick, name string) *ReplyError {
	return replyError(NotFoundError, errUserNotInChannelNumeric, nick, name,
		"They aren't on that channel")
}

package main

import (
	"strings"

	"github.com/horgh/irc"
)

// parseLine turns one protocol line into a message.
//
// Grammar: [':' <prefix> SP] <verb> *( SP <param> ) [ SP ':' <trailing> ]
//
// The verb is upper cased. Any prefix a client sends is dropped. If there is
// no verb the second return value is false and the line should be ignored.
func parseLine(line string) (irc.Message, bool) {
	rest := strings.TrimLeft(line, " \t")

	if strings.HasPrefix(rest, ":") {
		idx := strings.IndexByte(rest, ' ')
		if idx == -1 {
			return irc.Message{}, false
		}
		rest = strings.TrimLeft(rest[idx:], " ")
	}

	verb := rest
	if idx := strings.IndexByte(rest, ' '); idx != -1 {
		verb = rest[:idx]
		rest = rest[idx:]
	} else {
		rest = ""
	}

	if verb == "" {
		return irc.Message{}, false
	}

	m := irc.Message{Command: strings.ToUpper(verb)}

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}

		if rest[0] == ':' {
			m.Params = append(m.Params, rest[1:])
			break
		}

		idx := strings.IndexByte(rest, ' ')
		if idx == -1 {
			m.Params = append(m.Params, rest)
			break
		}

		m.Params = append(m.Params, rest[:idx])
		rest = rest[idx:]
	}

	return m, true
}

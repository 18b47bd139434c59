package main

import (
	"strings"
)

// 50 from RFC
const maxChannelLength = 50

// Arbitrary. Something low enough we won't hit message limit.
const maxTopicLength = 300

// Most parameterised channel modes we accept in one MODE command.
const maxModeParams = 6

// canonicalizeChannel converts the given channel to its canonical
// representation (which must be unique).
//
// Note: We don't check validity or strip whitespace.
func canonicalizeChannel(c string) string {
	return strings.ToLower(c)
}

// isValidNick checks if a nickname is valid.
//
// First character is a letter or a special, the rest may also be digits or
// '-'.
func isValidNick(maxLen int, n string) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}

	for i := 0; i < len(n); i++ {
		char := n[i]
		if isLetter(char) || isSpecial(char) {
			continue
		}

		if i == 0 {
			return false
		}

		if (char >= '0' && char <= '9') || char == '-' {
			continue
		}

		return false
	}

	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpecial(c byte) bool {
	return strings.IndexByte("[]\\`_^{|}", c) != -1
}

// isValidChannel checks a channel name for validity.
//
// Names start with '#' and may not contain spaces, commas, BEL, or other
// control characters.
func isValidChannel(c string) bool {
	if len(c) < 2 || len(c) > maxChannelLength {
		return false
	}

	if c[0] != '#' {
		return false
	}

	for i := 1; i < len(c); i++ {
		if c[i] == ' ' || c[i] == ',' || c[i] < 0x20 || c[i] == 0x7f {
			return false
		}
	}

	return true
}

// isValidKey checks a channel key. Keys end up as a middle parameter so they
// can't hold spaces.
func isValidKey(k string) bool {
	if len(k) == 0 || len(k) > 23 {
		return false
	}
	return !strings.ContainsAny(k, " ,:") && !strings.ContainsAny(k, "\x00\r\n")
}

// commaList splits a comma separated parameter, dropping blank entries.
func commaList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

func isNumericCommand(command string) bool {
	if command == "" {
		return false
	}
	for _, c := range command {
		if c < 48 || c > 57 {
			return false
		}
	}
	return true
}

// isMiddleParam checks if a parameter can go out anywhere but last.
func isMiddleParam(s string) bool {
	return s != "" && s[0] != ':' && !strings.ContainsAny(s, " \r\n\x00")
}

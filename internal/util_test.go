package internal

import (
	"slices"
	"testing"

	"github.com/horgh/irc"
)

// messageIsEqual fails the test unless the messages match exactly.
func messageIsEqual(t *testing.T, got, wanted *irc.Message) {
	t.Helper()

	if got.Prefix != wanted.Prefix || got.Command != wanted.Command ||
		!slices.Equal(got.Params, wanted.Params) {
		t.Fatalf("message = %s %s %q, wanted %s %s %q", got.Prefix, got.Command,
			got.Params, wanted.Prefix, wanted.Command, wanted.Params)
	}
}

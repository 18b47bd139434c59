package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegistrationWelcome(t *testing.T) {
	s := newTestServer(t, nil)
	c := addClient(s)

	send(s, c, "PASS secret\r\nNICK alice\r\nUSER alice 0 * :Alice\r\n")

	require.True(t, c.registered)

	msgs := drain(t, c)
	assert.Equal(t, []string{"001", "002", "003", "004", "422"},
		commandsOf(msgs))

	welcome := msgs[0]
	assert.Equal(t, "irc.example.org", welcome.Source)
	assert.Equal(t, "alice", welcome.Params[0])
	assert.True(t, strings.HasSuffix(welcome.Params[1], "alice!alice@127.0.0.1"))
}

func TestRegistrationAnyOrder(t *testing.T) {
	steps := map[string]string{
		"P": "PASS secret",
		"N": "NICK alice",
		"U": "USER alice 0 * :Alice",
	}

	// USER is rejected until PASS arrives, so orders with U before P don't
	// register until USER is sent again.
	orders := []struct {
		order      string
		registered bool
	}{
		{"PNU", true},
		{"PUN", true},
		{"NPU", true},
		{"NUP", false},
		{"UNP", false},
		{"UPN", false},
		{"NUPU", true},
		{"PNUN", true},
	}

	for _, test := range orders {
		t.Run(test.order, func(t *testing.T) {
			s := newTestServer(t, nil)
			c := addClient(s)

			for _, step := range test.order {
				send(s, c, steps[string(step)]+"\r\n")
			}

			assert.Equal(t, test.registered, c.registered)

			welcomes := 0
			for _, m := range drain(t, c) {
				if m.Command == rplWelcome {
					welcomes++
				}
			}
			if test.registered {
				assert.Equal(t, 1, welcomes)
			} else {
				assert.Zero(t, welcomes)
			}
		})
	}
}

func TestRegistrationWithoutPassword(t *testing.T) {
	cfg := testConfig()
	cfg.Password = ""
	s := newTestServer(t, cfg)
	c := addClient(s)

	send(s, c, "NICK bob\r\nUSER bob 0 * :Bob\r\n")
	assert.True(t, c.registered)
	assert.Equal(t, "001", drain(t, c)[0].Command)
}

func TestRegistrationPasswordOptional(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordRequired = false
	s := newTestServer(t, cfg)

	c := addClient(s)
	send(s, c, "NICK bob\r\nUSER bob 0 * :Bob\r\n")
	assert.True(t, c.registered)

	// A wrong password is still refused.
	c2 := addClient(s)
	send(s, c2, "PASS nope\r\n")
	assert.Equal(t, "464", find(t, drain(t, c2), "464").Command)
}

func TestPASS(t *testing.T) {
	s := newTestServer(t, nil)
	c := addClient(s)

	send(s, c, "PASS\r\n")
	m := find(t, drain(t, c), "461")
	assert.Equal(t, []string{"*", "PASS", "Not enough parameters"}, m.Params)

	send(s, c, "PASS wrong\r\n")
	find(t, drain(t, c), "464")
	assert.False(t, c.hasPassword)

	send(s, c, "PASS secret\r\n")
	assert.Empty(t, drain(t, c))
	assert.True(t, c.hasPassword)

	send(s, c, "NICK a\r\nUSER a 0 * :A\r\n")
	drain(t, c)

	send(s, c, "PASS secret\r\n")
	find(t, drain(t, c), "462")
}

func TestPASSBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Password = string(hash)
	s := newTestServer(t, cfg)

	c := addClient(s)
	send(s, c, "PASS secret\r\n")
	find(t, drain(t, c), "464")

	send(s, c, "PASS hunter2\r\n")
	assert.True(t, c.hasPassword)
}

func TestUSER(t *testing.T) {
	s := newTestServer(t, nil)
	c := addClient(s)

	send(s, c, "USER alice 0 * :Alice\r\n")
	find(t, drain(t, c), "464")
	assert.False(t, c.hasUser)

	send(s, c, "PASS secret\r\nUSER alice 0 *\r\n")
	find(t, drain(t, c), "461")

	send(s, c, "USER alice 0 * Alice extra\r\n")
	find(t, drain(t, c), "461")
	assert.False(t, c.hasUser)

	send(s, c, "USER alice 0 * :Alice Smith\r\n")
	assert.True(t, c.hasUser)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, "Alice Smith", c.RealName)

	send(s, c, "NICK alice\r\n")
	drain(t, c)
	send(s, c, "USER alice 0 * :Alice\r\n")
	find(t, drain(t, c), "462")
}

func TestNICK(t *testing.T) {
	s := newTestServer(t, nil)
	alice := registerClient(t, s, "alice")
	bob := registerClient(t, s, "bob")
	carol := registerClient(t, s, "carol")

	send(s, alice, "NICK\r\n")
	find(t, drain(t, alice), "431")

	send(s, alice, "NICK 9lives\r\n")
	find(t, drain(t, alice), "432")

	send(s, alice, "NICK bob\r\n")
	m := find(t, drain(t, alice), "433")
	assert.Equal(t, []string{"alice", "bob", "Nickname is already in use"},
		m.Params)
	assert.Equal(t, "alice", alice.Nick)

	// Case sensitive. Bob is not bob.
	send(s, alice, "NICK Bob\r\n")
	assert.Equal(t, "Bob", alice.Nick)
	m = find(t, drain(t, alice), "NICK")
	assert.Equal(t, "alice!alice@127.0.0.1", m.Source)
	assert.Equal(t, []string{"Bob"}, m.Params)

	// Only clients sharing a channel see it.
	send(s, alice, "JOIN #x\r\n")
	send(s, bob, "JOIN #x\r\n")
	drain(t, alice)
	drain(t, bob)
	drain(t, carol)

	send(s, alice, "NICK al\r\n")
	assert.Equal(t, "Bob!alice@127.0.0.1", find(t, drain(t, bob), "NICK").Source)
	assert.True(t, has(drain(t, alice), "NICK"))
	assert.Empty(t, drain(t, carol))

	// The old nick is free again. The new one is taken.
	assert.Nil(t, s.clientByNick("Bob"))
	assert.Equal(t, alice, s.clientByNick("al"))

	// Changing to your own nick does nothing.
	send(s, alice, "NICK al\r\n")
	assert.Empty(t, drain(t, alice))
}

func TestNICKUniqueness(t *testing.T) {
	s := newTestServer(t, nil)
	a := addClient(s)
	b := addClient(s)

	send(s, a, "NICK same\r\n")
	send(s, b, "NICK same\r\n")

	assert.Equal(t, "same", a.Nick)
	assert.Equal(t, "", b.Nick)
	find(t, drain(t, b), "433")

	// Once a leaves the nick may be reused.
	send(s, a, "QUIT\r\n")
	send(s, b, "NICK same\r\n")
	assert.Equal(t, "same", b.Nick)
}

func TestPreRegistrationAllowList(t *testing.T) {
	s := newTestServer(t, nil)
	c := addClient(s)

	for _, line := range []string{
		"JOIN #x", "PRIVMSG bob hi", "MODE #x", "TOPIC #x", "KICK #x bob",
		"INVITE bob #x", "PART #x", "PONG x",
	} {
		send(s, c, line+"\r\n")
		msgs := drain(t, c)
		require.Len(t, msgs, 1, line)
		assert.Equal(t, "451", msgs[0].Command, line)
	}
	assert.Empty(t, s.channels)

	send(s, c, "PING tok\r\n")
	m := find(t, drain(t, c), "PONG")
	assert.Equal(t, []string{"irc.example.org", "tok"}, m.Params)
}

func TestUnknownCommand(t *testing.T) {
	s := newTestServer(t, nil)
	c := registerClient(t, s, "alice")

	send(s, c, "FROB x\r\n")
	m := find(t, drain(t, c), "421")
	assert.Equal(t, []string{"alice", "FROB", "Unknown command"}, m.Params)

	// Blank lines and lone prefixes produce nothing.
	send(s, c, "\r\n   \r\n:x\r\n")
	assert.Empty(t, drain(t, c))
}

func TestPING(t *testing.T) {
	s := newTestServer(t, nil)
	c := registerClient(t, s, "alice")

	send(s, c, "PING\r\n")
	find(t, drain(t, c), "409")

	send(s, c, "PING :some token\r\n")
	m := find(t, drain(t, c), "PONG")
	assert.Equal(t, []string{"irc.example.org", "some token"}, m.Params)

	send(s, c, "PONG x\r\n")
	assert.Empty(t, drain(t, c))
}

func TestCAP(t *testing.T) {
	s := newTestServer(t, nil)
	c := addClient(s)

	send(s, c, "CAP LS 302\r\n")
	m := find(t, drain(t, c), "CAP")
	assert.Equal(t, []string{"*", "LS", ""}, m.Params)

	send(s, c, "CAP REQ :multi-prefix\r\n")
	m = find(t, drain(t, c), "CAP")
	assert.Equal(t, []string{"*", "NAK", "multi-prefix"}, m.Params)

	send(s, c, "CAP END\r\n")
	assert.Empty(t, drain(t, c))

	send(s, c, "CAP FOO\r\n")
	find(t, drain(t, c), "410")
}

func TestQUIT(t *testing.T) {
	s := newTestServer(t, nil)
	alice := registerClient(t, s, "alice")
	bob := registerClient(t, s, "bob")

	send(s, alice, "JOIN #a,#b\r\n")
	send(s, bob, "JOIN #a,#b\r\n")
	drain(t, alice)
	drain(t, bob)

	send(s, bob, "QUIT :gone fishing\r\n")

	// One QUIT even though they shared two channels.
	quits := 0
	for _, m := range drain(t, alice) {
		if m.Command == "QUIT" {
			quits++
			assert.Equal(t, "bob!bob@127.0.0.1", m.Source)
			assert.Equal(t, []string{"Quit: gone fishing"}, m.Params)
		}
	}
	assert.Equal(t, 1, quits)

	m := find(t, drain(t, bob), "ERROR")
	assert.Equal(t, "Closing Link: 127.0.0.1 (Quit: gone fishing)", m.Params[0])

	assert.True(t, bob.closed)
	assert.True(t, bob.Conn.(*fakeConn).closed)
	assert.NotContains(t, s.clients, bob.ID)
	assert.Nil(t, s.clientByNick("bob"))
	for _, channel := range s.channels {
		assert.False(t, channel.isMember(bob.ID))
	}

	// Last member leaving destroys the channels.
	send(s, alice, "QUIT\r\n")
	assert.Empty(t, s.channels)
	assert.Empty(t, s.clients)
}

func TestQUITStopsProcessing(t *testing.T) {
	s := newTestServer(t, nil)
	c := registerClient(t, s, "alice")

	send(s, c, "QUIT\r\nJOIN #x\r\n")
	assert.Empty(t, s.channels)
	assert.True(t, c.closed)
}

func TestSendQueueExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSendQueue = 600
	s := newTestServer(t, cfg)

	alice := registerClient(t, s, "alice")
	bob := registerClient(t, s, "bob")

	long := strings.Repeat("x", 300)
	send(s, alice, "PRIVMSG bob :"+long+"\r\nPRIVMSG bob :"+long+"\r\n"+
		"PRIVMSG bob :"+long+"\r\n")

	assert.True(t, bob.closed)
	assert.NotContains(t, s.clients, bob.ID)
	assert.False(t, alice.closed)
}

func TestInputLineTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLineLength = 512
	s := newTestServer(t, cfg)
	c := addClient(s)

	send(s, c, strings.Repeat("a", 600))
	assert.True(t, c.closed)

	m := find(t, drain(t, c), "ERROR")
	assert.Contains(t, m.Params[0], "Input line too long")
}

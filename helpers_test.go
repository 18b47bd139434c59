package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/require"
)

// fakeConn is a connection that never has input and accepts all output.
type fakeConn struct {
	fd      int
	written bytes.Buffer
	closed  bool
}

func (f *fakeConn) Read(p []byte) (int, error) { return 0, errWouldBlock }

func (f *fakeConn) Write(p []byte) (int, error) {
	return f.written.Write(p)
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) Fd() int { return f.fd }

const testPassword = "secret"

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *Config {
	cfg := defaultConfig()
	cfg.ServerName = "irc.example.org"
	cfg.Version = "ircserv-test"
	cfg.CreatedDate = "today"
	cfg.Password = testPassword
	cfg.PasswordRequired = true
	return cfg
}

// newTestServer creates a server with no sockets. Clients are attached with
// fake connections and driven by calling their handlers directly.
func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	require.NoError(t, cfg.finalize())

	s := newServer(cfg, log.New(io.Discard))
	s.now = func() time.Time { return testTime }
	return s
}

func addClient(s *Server) *Client {
	id := s.nextClientID
	s.nextClientID++

	c := newClient(s, id, &fakeConn{fd: 100 + int(id)}, "127.0.0.1")
	s.clients[id] = c
	s.metrics.clients.Inc()
	return c
}

// send feeds raw bytes as if read from the socket, then settles like the
// event loop does after an event.
func send(s *Server, c *Client, raw string) {
	lines, err := c.frames.feed([]byte(raw))
	for _, line := range lines {
		if c.closed {
			break
		}
		c.handleLine(line)
	}
	if err != nil && !c.closed {
		s.quitClient(c, errorToQuitMessage(err))
	}
	s.settle()
}

// registerClient connects a client and completes registration. Its output
// so far is discarded.
func registerClient(t *testing.T, s *Server, nick string) *Client {
	t.Helper()
	c := addClient(s)
	send(s, c, "PASS "+testPassword+"\r\nNICK "+nick+"\r\nUSER "+nick+
		" 0 * :Real "+nick+"\r\n")
	require.True(t, c.registered, "%s registered", nick)
	drain(t, c)
	return c
}

// drain returns everything sent to the client so far, decoded with an
// independent parser, and forgets it.
func drain(t *testing.T, c *Client) []ircmsg.Message {
	t.Helper()

	conn := c.Conn.(*fakeConn)
	raw := conn.written.String() + string(c.outbound)
	conn.written.Reset()
	c.outbound = nil

	var msgs []ircmsg.Message
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" {
			continue
		}
		m, err := ircmsg.ParseLine(line)
		require.NoError(t, err, "parsing %q", line)
		msgs = append(msgs, m)
	}
	return msgs
}

func commandsOf(msgs []ircmsg.Message) []string {
	var cmds []string
	for _, m := range msgs {
		cmds = append(cmds, m.Command)
	}
	return cmds
}

// find returns the first message with the command, or fails.
func find(t *testing.T, msgs []ircmsg.Message, command string) ircmsg.Message {
	t.Helper()
	for _, m := range msgs {
		if m.Command == command {
			return m
		}
	}
	require.Failf(t, "message not found", "no %s in %v", command,
		commandsOf(msgs))
	return ircmsg.Message{}
}

func has(msgs []ircmsg.Message, command string) bool {
	for _, m := range msgs {
		if m.Command == command {
			return true
		}
	}
	return false
}

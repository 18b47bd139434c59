package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/horgh/irc"
)

// Client is a raw connection to a harnessed ircserv.
//
// A goroutine reads and parses everything the server sends onto recvChan.
// Writes happen on the test's goroutine.
type Client struct {
	nick     string
	password string

	conn net.Conn
	w    *bufio.Writer

	recvChan  chan irc.Message
	doneChan  chan struct{}
	closeOnce sync.Once
}

// dialClient connects to ircserv. The connection is closed when the test
// ends. It sends PASS first on registration if password is not blank.
func dialClient(t *testing.T, ircserv *Ircserv, nick, password string) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", ircserv.Port),
		10*time.Second)
	if err != nil {
		t.Fatalf("error dialing ircserv: %s", err)
	}

	c := &Client{
		nick:     nick,
		password: password,
		conn:     conn,
		w:        bufio.NewWriter(conn),
		recvChan: make(chan irc.Message, 512),
		doneChan: make(chan struct{}),
	}

	go c.reader(bufio.NewReader(conn))
	t.Cleanup(c.close)

	return c
}

// reader closes recvChan once the connection ends.
func (c *Client) reader(r *bufio.Reader) {
	defer close(c.recvChan)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("client %s: error reading: %s", c.nick, err)
			}
			return
		}

		log.Printf("client %s: read: %s", c.nick, strings.TrimRight(line, "\r\n"))

		m, err := irc.ParseMessage(line)
		if err != nil && err != irc.ErrTruncated {
			log.Printf("client %s: unable to parse message: %q: %s", c.nick, line,
				err)
			continue
		}

		select {
		case c.recvChan <- m:
		case <-c.doneChan:
			return
		}
	}
}

func (c *Client) send(t *testing.T, m irc.Message) {
	t.Helper()

	buf, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		t.Fatalf("unable to encode message: %s", err)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		t.Fatalf("unable to set deadline: %s", err)
	}

	if _, err := c.w.WriteString(buf); err != nil {
		t.Fatalf("client %s: error writing: %s", c.nick, err)
	}
	if err := c.w.Flush(); err != nil {
		t.Fatalf("client %s: flush error: %s", c.nick, err)
	}

	log.Printf("client %s: sent: %s", c.nick, strings.TrimRight(buf, "\r\n"))
}

// register sends PASS (if we have one), NICK, and USER, and returns the
// server's verdict: 001 on success, 464 on a bad or missing password.
func (c *Client) register(t *testing.T) *irc.Message {
	t.Helper()

	if c.password != "" {
		c.send(t, irc.Message{Command: "PASS", Params: []string{c.password}})
	}
	c.send(t, irc.Message{Command: "NICK", Params: []string{c.nick}})
	c.send(t, irc.Message{Command: "USER", Params: []string{c.nick, "0", "*",
		c.nick}})

	return c.waitFor(t, irc.ReplyWelcome, "464")
}

// waitFor discards messages until one has one of the commands.
func (c *Client) waitFor(t *testing.T, commands ...string) *irc.Message {
	t.Helper()

	timeoutChan := time.After(10 * time.Second)

	for {
		select {
		case <-timeoutChan:
			t.Fatalf("client %s: timeout waiting for %s", c.nick, commands)
		case m, ok := <-c.recvChan:
			if !ok {
				t.Fatalf("client %s: connection closed waiting for %s", c.nick,
					commands)
			}
			for _, command := range commands {
				if m.Command == command {
					return &m
				}
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.doneChan)
		_ = c.conn.Close()
		for range c.recvChan {
		}
	})
}

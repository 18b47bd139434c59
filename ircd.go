package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Tokens the poller reports for our own descriptors. Clients use their ID.
const (
	listenerToken int32 = -1
	wakeToken     int32 = -2
)

// Server holds the state for the server. The event loop goroutine owns all of
// it. Nothing else may touch the registries.
type Server struct {
	Config *Config
	Logger *log.Logger

	// Client ID to Client. Every accepted connection, registered or not.
	clients map[ClientID]*Client

	// Nickname to the client holding it. Exact, case sensitive.
	nicks map[string]ClientID

	// Canonical channel name to Channel.
	channels map[string]*Channel

	nextClientID ClientID

	poller      poller
	listenFD    int
	waker       *waker
	wakerClosed bool

	// Clients whose outbound buffer or state changed during the current event.
	dirty map[ClientID]struct{}

	shuttingDown bool

	metrics       *metrics
	metricsServer *metricsServer

	// Clock. Replaced in tests.
	now func() time.Time
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newServer creates a Server with empty registries. It does not open any
// sockets.
func newServer(cfg *Config, logger *log.Logger) *Server {
	return &Server{
		Config:       cfg,
		Logger:       logger,
		clients:      make(map[ClientID]*Client),
		nicks:        make(map[string]ClientID),
		channels:     make(map[string]*Channel),
		nextClientID: 1,
		listenFD:     -1,
		dirty:        make(map[ClientID]struct{}),
		metrics:      newMetrics(),
		now:          time.Now,
	}
}

// newLogger builds the process logger.
func newLogger(debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "ircserv",
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// start opens the listening socket and poller. Any failure here is fatal.
func (s *Server) start() error {
	p, err := newEpoller()
	if err != nil {
		return err
	}
	s.poller = p

	w, err := newWaker()
	if err != nil {
		_ = p.Close()
		return err
	}
	s.waker = w

	if s.listenFD == -1 {
		fd, err := listen(s.Config.ListenHost, s.Config.ListenPort,
			s.Config.Backlog)
		if err != nil {
			s.closeDescriptors()
			return err
		}
		s.listenFD = fd
	}

	if err := s.poller.Add(s.listenFD, listenerToken, interestRead); err != nil {
		s.closeDescriptors()
		return err
	}

	if err := s.poller.Add(s.waker.fd, wakeToken, interestRead); err != nil {
		s.closeDescriptors()
		return err
	}

	port, err := listenerPort(s.listenFD)
	if err != nil {
		s.closeDescriptors()
		return err
	}
	s.Config.ListenPort = port

	if s.Config.MetricsListen != "" {
		ms, err := startMetricsServer(s.metrics, s.Config.MetricsListen,
			func(err error) {
				s.Logger.Error("metrics server failed", "error", err)
			})
		if err != nil {
			s.closeDescriptors()
			return err
		}
		s.metricsServer = ms
		s.Logger.Info("serving metrics", "addr", ms.Addr())
	}

	return nil
}

// useListener adopts an already listening socket instead of opening one.
func (s *Server) useListener(fd int) error {
	if err := setNonblock(fd); err != nil {
		return err
	}
	s.listenFD = fd
	return nil
}

// Shutdown asks the event loop to stop. It is safe to call from any
// goroutine.
func (s *Server) Shutdown() {
	if s.waker == nil {
		return
	}
	if err := s.waker.wake(); err != nil {
		s.Logger.Error("unable to wake event loop", "error", err)
	}
}

// handleSignals requests shutdown on SIGINT or SIGTERM.
func (s *Server) handleSignals() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.Logger.Info("received signal", "signal", sig)
		s.Shutdown()
	}()
}

// eventLoop services ready descriptors until shutdown is requested.
func (s *Server) eventLoop() error {
	s.Logger.Info("ircserv started", "port", s.Config.ListenPort,
		"server", s.Config.ServerName)

	for !s.shuttingDown {
		events, err := s.poller.Wait()
		if err != nil {
			s.shutdown()
			return err
		}

		// Service in registration order. Our own descriptors first, then clients
		// in the order they connected.
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Token < events[j].Token
		})

		for _, ev := range events {
			s.handleEvent(ev)
			s.settle()
			if s.shuttingDown {
				break
			}
		}
	}

	s.shutdown()
	return nil
}

func (s *Server) handleEvent(ev readyEvent) {
	switch ev.Token {
	case listenerToken:
		s.acceptConnection()
		return
	case wakeToken:
		s.waker.drain()
		s.shuttingDown = true
		return
	}

	// The client may have gone away earlier in this batch.
	c, exists := s.clients[ClientID(ev.Token)]
	if !exists {
		return
	}

	if ev.Readable || ev.Hangup {
		s.readFromClient(c)
	}

	if !c.closed && ev.Writable {
		s.flushClient(c)
	}
}

func (s *Server) acceptConnection() {
	conn, host, err := accept(s.listenFD)
	if err != nil {
		if err != errWouldBlock {
			s.Logger.Error("accept failed", "error", err)
		}
		return
	}

	id := s.nextClientID
	s.nextClientID++

	c := newClient(s, id, conn, host)

	if err := s.poller.Add(conn.Fd(), int32(id), interestRead); err != nil {
		s.Logger.Error("unable to watch client", "host", host, "error", err)
		_ = conn.Close()
		return
	}

	s.clients[id] = c
	s.metrics.connections.Inc()
	s.metrics.clients.Inc()

	s.Logger.Info("client connected", "client", id, "host", host)
}

// readFromClient reads until the socket would block, running each complete
// line as it arrives. It stops as soon as the client is gone.
func (s *Server) readFromClient(c *Client) {
	buf := make([]byte, 4096)

	for !c.closed {
		n, err := c.Conn.Read(buf)
		if err != nil {
			if err == errWouldBlock {
				return
			}
			s.quitClient(c, errorToQuitMessage(err))
			return
		}

		s.metrics.bytesIn.Add(float64(n))

		lines, err := c.frames.feed(buf[:n])
		for _, line := range lines {
			if c.closed {
				return
			}
			c.handleLine(line)
		}

		if err != nil && !c.closed {
			s.Logger.Debug("dropping client input", "client", c.ID,
				"pending", c.frames.pending(), "error", err)
			s.quitClient(c, errorToQuitMessage(err))
			return
		}
	}
}

// flushClient writes as much of the outbound buffer as the socket takes.
func (s *Server) flushClient(c *Client) {
	for len(c.outbound) > 0 {
		n, err := c.Conn.Write(c.outbound)
		if n > 0 {
			s.metrics.bytesOut.Add(float64(n))
			c.outbound = c.outbound[n:]
		}
		if err != nil {
			if err == errWouldBlock {
				break
			}
			s.quitClient(c, errorToQuitMessage(err))
			return
		}
		if n == 0 {
			break
		}
	}

	if len(c.outbound) == 0 {
		c.outbound = nil
	}
	s.markDirty(c)
}

func (s *Server) markDirty(c *Client) {
	s.dirty[c.ID] = struct{}{}
}

// settle runs after each event. It drops clients that overflowed their send
// queue and rearms each changed client's interest: always readable, writable
// only while output is pending.
func (s *Server) settle() {
	for len(s.dirty) > 0 {
		ids := make([]ClientID, 0, len(s.dirty))
		for id := range s.dirty {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		s.dirty = make(map[ClientID]struct{})

		for _, id := range ids {
			c, exists := s.clients[id]
			if !exists {
				continue
			}

			if c.sendQueueExceeded {
				s.quitClient(c, "SendQ exceeded")
				continue
			}

			s.updateInterest(c)
		}
	}
}

func (s *Server) updateInterest(c *Client) {
	want := interestRead
	if len(c.outbound) > 0 {
		want |= interestWrite
	}

	if want == c.interest {
		return
	}

	if s.poller != nil {
		if err := s.poller.Modify(c.Conn.Fd(), int32(c.ID), want); err != nil {
			s.Logger.Error("unable to update interest", "client", c.ID,
				"error", err)
			s.quitClient(c, "I/O error")
			return
		}
	}
	c.interest = want
}

// quitClient is the one way clients leave. Peers on shared channels see a
// QUIT once each, the client leaves every channel, its nick is freed, and the
// connection is closed.
func (s *Server) quitClient(c *Client, reason string) {
	if c.closed {
		return
	}

	for _, id := range c.sharedChannelPeers() {
		if peer, exists := s.clients[id]; exists {
			peer.messageFrom(c, "QUIT", []string{reason})
		}
	}

	for _, channel := range c.channelList() {
		s.removeFromChannel(c, channel)
	}

	for _, channel := range s.channels {
		channel.forget(c.ID)
	}

	// Best effort. Anything queued plus the closing notice.
	c.queue(irc.Message{
		Command: "ERROR",
		Params:  []string{fmt.Sprintf("Closing Link: %s (%s)", c.Hostname, reason)},
	})
	c.closed = true
	s.writeFinal(c)

	if c.hasNick {
		if id, exists := s.nicks[c.Nick]; exists && id == c.ID {
			delete(s.nicks, c.Nick)
		}
	}

	delete(s.clients, c.ID)
	delete(s.dirty, c.ID)

	if s.poller != nil {
		if err := s.poller.Remove(c.Conn.Fd()); err != nil {
			s.Logger.Warn("unable to stop watching client", "client", c.ID,
				"error", err)
		}
	}

	if err := c.Conn.Close(); err != nil {
		s.Logger.Warn("error closing connection", "client", c.ID, "error", err)
	}

	s.metrics.clients.Dec()
	if c.registered {
		s.metrics.registered.Dec()
	}

	s.Logger.Info("client disconnected", "client", c, "reason", reason,
		"connected", s.now().Sub(c.ConnectionStartTime).Round(time.Second))
}

// writeFinal tries once to send whatever is left. It never blocks.
func (s *Server) writeFinal(c *Client) {
	for len(c.outbound) > 0 {
		n, err := c.Conn.Write(c.outbound)
		if n > 0 {
			s.metrics.bytesOut.Add(float64(n))
			c.outbound = c.outbound[n:]
		}
		if err != nil || n == 0 {
			break
		}
	}
	c.outbound = nil
}

// removeFromChannel takes a client out of a channel. An empty channel is
// destroyed.
func (s *Server) removeFromChannel(c *Client, channel *Channel) {
	canonical := canonicalizeChannel(channel.Name)

	channel.removeMember(c.ID)
	delete(c.Channels, canonical)

	if channel.empty() {
		delete(s.channels, canonical)
		s.metrics.channels.Dec()
		s.Logger.Info("channel destroyed", "channel", channel.Name)
	}
}

// broadcast sends a message from a client to every member of a channel,
// optionally skipping one.
func (s *Server) broadcast(channel *Channel, from *Client, command string,
	params []string, except *Client) {
	for _, id := range channel.memberIDs() {
		if except != nil && id == except.ID {
			continue
		}
		member, exists := s.clients[id]
		if !exists {
			continue
		}
		member.messageFrom(from, command, params)
	}
}

// clientByNick finds the client holding a nick. It returns nil if there is
// none.
func (s *Server) clientByNick(nick string) *Client {
	id, exists := s.nicks[nick]
	if !exists {
		return nil
	}
	return s.clients[id]
}

// shutdown disconnects everyone and closes our descriptors. State is
// discarded.
func (s *Server) shutdown() {
	s.Logger.Info("server shutting down", "clients", len(s.clients))

	ids := make([]ClientID, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if c, exists := s.clients[id]; exists {
			s.quitClient(c, "Server shutting down")
		}
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.stop(); err != nil {
			s.Logger.Warn("error stopping metrics server", "error", err)
		}
	}

	s.closeDescriptors()
}

func (s *Server) closeDescriptors() {
	if s.listenFD != -1 {
		if err := closeFD(s.listenFD); err != nil {
			s.Logger.Warn("error closing listener", "error", err)
		}
		s.listenFD = -1
	}

	if s.waker != nil && !s.wakerClosed {
		_ = s.waker.close()
		s.wakerClosed = true
	}

	if s.poller != nil {
		_ = s.poller.Close()
		s.poller = nil
	}
}

// run starts the server and blocks until it shuts down.
func (s *Server) run() error {
	if err := s.start(); err != nil {
		return errors.Wrap(err, "unable to start")
	}

	s.handleSignals()
	return s.eventLoop()
}

package internal

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Ircserv is a running ircserv process listening on a loopback port.
type Ircserv struct {
	Name     string
	Password string
	Port     int
	Command  *exec.Cmd

	dir    string
	exited chan struct{}
}

// The server logs this once it is in its event loop. Signals before that
// kill it.
var startedRE = regexp.MustCompile(`ircserv started port=\d+`)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

// buildIrcserv compiles the module once per test run and returns the binary.
func buildIrcserv() (string, error) {
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "ircserv-bin-")
		if err != nil {
			buildErr = fmt.Errorf("error making binary directory: %s", err)
			return
		}

		// The module root is one up from this file.
		_, file, _, _ := runtime.Caller(0)

		binPath = filepath.Join(dir, "ircserv")
		cmd := exec.Command("go", "build", "-o", binPath, ".")
		cmd.Dir = filepath.Dir(filepath.Dir(file))

		log.Printf("building %s in %s", binPath, cmd.Dir)
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("go build: %s: %s", err, output)
		}
	})
	return binPath, buildErr
}

// harnessIrcserv starts ircserv with a pre-opened listener on fd 3 and waits
// for it to be ready. The caller must call stop.
func harnessIrcserv(name, password string) (*Ircserv, error) {
	bin, err := buildIrcserv()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "ircserv-")
	if err != nil {
		return nil, fmt.Errorf("error making config directory: %s", err)
	}

	i, err := spawn(bin, dir, name, password)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	return i, nil
}

func spawn(bin, dir, name, password string) (*Ircserv, error) {
	conf := filepath.Join(dir, "ircserv.conf")
	if err := writeConf(conf, name); err != nil {
		return nil, err
	}

	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, fmt.Errorf("error listening: %s", err)
	}
	// The child gets a duplicate. We keep neither.
	defer func() {
		_ = ln.Close()
	}()

	f, err := ln.File()
	if err != nil {
		return nil, fmt.Errorf("error duplicating listener: %s", err)
	}
	defer func() {
		_ = f.Close()
	}()

	port := ln.Addr().(*net.TCPAddr).Port

	cmd := exec.Command(bin,
		"--config", conf,
		"--listen-fd", "3",
		strconv.Itoa(port),
		password,
	)
	// Away from any .env in the source tree.
	cmd.Dir = dir
	cmd.ExtraFiles = []*os.File{f}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting ircserv: %s", err)
	}

	i := &Ircserv{
		Name:     name,
		Password: password,
		Port:     port,
		Command:  cmd,
		dir:      dir,
		exited:   make(chan struct{}),
	}

	started := make(chan struct{})
	go i.readOutput(pr, started)

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("%s exited: %s", name, err)
		}
		_ = pw.Close()
		close(i.exited)
	}()

	select {
	case <-started:
		return i, nil
	case <-i.exited:
		return nil, fmt.Errorf("ircserv exited before starting")
	case <-time.After(10 * time.Second):
		i.kill()
		return nil, fmt.Errorf("timeout waiting for ircserv to start")
	}
}

func writeConf(conf, name string) error {
	lines := []string{
		"server-name = " + name,
		"version = ircserv-harness",
		"motd = Welcome to " + name,
	}

	if err := os.WriteFile(conf, []byte(strings.Join(lines, "\n")+"\n"),
		0644); err != nil {
		return fmt.Errorf("error writing %s: %s", conf, err)
	}
	return nil
}

// readOutput logs everything the process writes and closes started when the
// start line goes by. It keeps draining so the process never blocks on us.
func (i *Ircserv) readOutput(r io.Reader, started chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		log.Printf("%s: %s", i.Name, line)

		if started != nil && startedRE.MatchString(line) {
			close(started)
			started = nil
		}
	}
}

// stop asks ircserv to shut down and waits for it to exit.
func (i *Ircserv) stop() {
	if err := i.Command.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("error signalling %s: %s", i.Name, err)
	}

	select {
	case <-i.exited:
	case <-time.After(10 * time.Second):
		log.Printf("%s did not exit, killing it", i.Name)
		i.kill()
	}

	if err := os.RemoveAll(i.dir); err != nil {
		log.Printf("error removing %s: %s", i.dir, err)
	}
}

func (i *Ircserv) kill() {
	if err := i.Command.Process.Kill(); err != nil {
		log.Printf("error killing %s: %s", i.Name, err)
	}
	<-i.exited
}

package launcher

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/benchctl/benchctl/internal/registry"
	"github.com/benchctl/benchctl/pkg/models"
)

const (
	// DefaultSSHConnectTimeout bounds connection establishment per spawn
	DefaultSSHConnectTimeout = 30 * time.Second

	// DefaultSSHPort is the target port when none is configured
	DefaultSSHPort = 22
)

// SSH places processes on nodes over plain SSH, for clusters reached without
// a step launcher. One connection is opened per spawned process and held for
// the process's lifetime.
type SSH struct {
	user           string
	signer         ssh.Signer
	port           int
	connectTimeout time.Duration
}

// SSHOption configures the SSH launch primitive.
type SSHOption func(*SSH)

// WithSSHPort overrides the target port.
func WithSSHPort(port int) SSHOption {
	return func(s *SSH) { s.port = port }
}

// WithSSHConnectTimeout overrides the connection timeout.
func WithSSHConnectTimeout(d time.Duration) SSHOption {
	return func(s *SSH) { s.connectTimeout = d }
}

// NewSSH returns an SSH-backed launch primitive authenticating as user with
// the given private key.
func NewSSH(user, privateKey string, opts ...SSHOption) (*SSH, error) {
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}
	signer, err := ssh.ParsePrivateKey([]byte(privateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	s := &SSH{
		user:           user,
		signer:         signer,
		port:           DefaultSSHPort,
		connectTimeout: DefaultSSHConnectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Spawn connects to the spec's node and starts the command under a remote
// shell, with output redirected to the spec's log paths on that node.
func (s *SSH) Spawn(ctx context.Context, spec models.LaunchSpec) (registry.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("spec %s has an empty command", spec.Name)
	}

	client, err := s.connect(ctx, spec.Node)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create session on %s: %w", spec.Node, err)
	}

	if err := session.Start(remoteCommand(spec)); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to start %s on %s: %w", spec.Name, spec.Node, err)
	}

	h := &sshHandle{client: client, session: session, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

func (s *SSH) connect(ctx context.Context, host string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(s.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // cluster nodes have dynamic host keys
		Timeout:         s.connectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", host, s.port)
	dialer := net.Dialer{Timeout: s.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake failed for %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// remoteCommand renders the spec as a single shell line: environment exports,
// log directory creation, then the command with output redirected.
func remoteCommand(spec models.LaunchSpec) string {
	var b strings.Builder

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s; ", k, shellQuote([]string{spec.Env[k]}))
	}

	logDir := spec.StdoutPath[:strings.LastIndex(spec.StdoutPath, "/")+1]
	if logDir != "" {
		fmt.Fprintf(&b, "mkdir -p %s; ", shellQuote([]string{logDir}))
	}

	fmt.Fprintf(&b, "exec %s >> %s 2>> %s",
		shellQuote(spec.Command),
		shellQuote([]string{spec.StdoutPath}),
		shellQuote([]string{spec.StderrPath}))
	return b.String()
}

// sshHandle supervises a process running under a held SSH session.
type sshHandle struct {
	client  *ssh.Client
	session *ssh.Session
	done    chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (h *sshHandle) wait() {
	err := h.session.Wait()
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	h.session.Close()
	h.client.Close()
	close(h.done)
}

func (h *sshHandle) Done() <-chan struct{} { return h.done }

func (h *sshHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *sshHandle) Terminate() error {
	return h.session.Signal(ssh.SIGTERM)
}

func (h *sshHandle) Kill() error {
	if err := h.session.Signal(ssh.SIGKILL); err != nil {
		// The session may already be gone; dropping the connection reaps it.
		return h.client.Close()
	}
	return nil
}

// Package ssh checks SSH reachability of testbed instances and manages the testbed key pair
package ssh

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/celestiaorg/testbed/internal/logger"
)

// DefaultConnectTimeout bounds a single reachability check
const DefaultConnectTimeout = 5 * time.Second

// Checker defines the interface for checking SSH connectivity
type Checker interface {
	// CheckSSH opens a connection to address as username and runs a no-op command.
	// It returns nil only if the machine accepted the session.
	CheckSSH(ctx context.Context, address, username, keyPath string) error
}

// DefaultChecker checks instances with golang.org/x/crypto/ssh.
// Parsed private keys are cached per path.
type DefaultChecker struct {
	timeout time.Duration

	mu      sync.Mutex
	signers map[string]ssh.Signer
}

// NewDefaultChecker creates a new DefaultChecker
func NewDefaultChecker() *DefaultChecker {
	return &DefaultChecker{
		timeout: DefaultConnectTimeout,
		signers: make(map[string]ssh.Signer),
	}
}

// WithTimeout overrides the per-check connection timeout
func (c *DefaultChecker) WithTimeout(timeout time.Duration) *DefaultChecker {
	c.timeout = timeout
	return c
}

// CheckSSH implements Checker.CheckSSH
func (c *DefaultChecker) CheckSSH(ctx context.Context, address, username, keyPath string) error {
	signer, err := c.signer(keyPath)
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// #nosec G106 -- testbed machines are ephemeral and their host keys are never known in advance
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", address, err)
	}
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set deadline on %s: %w", address, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", address, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.Debugf("closing ssh client for %s: %v", address, cerr)
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open ssh session on %s: %w", address, err)
	}
	defer func() { _ = session.Close() }()

	if err := session.Run("echo 'SSH is ready'"); err != nil {
		return fmt.Errorf("ssh command on %s failed: %w", address, err)
	}
	return nil
}

func (c *DefaultChecker) signer(keyPath string) (ssh.Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if signer, ok := c.signers[keyPath]; ok {
		return signer, nil
	}
	signer, err := loadSigner(keyPath)
	if err != nil {
		return nil, err
	}
	c.signers[keyPath] = signer
	return signer, nil
}

// Package remotefile implements a resource.Resource that manages a file's
// content on a remote host over SFTP, grounded on the teacher's SSH
// transport package.
package remotefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/pkg/sftp"

	"github.com/latticectl/lattice/internal/telemetry"
	"github.com/latticectl/lattice/internal/txn"
)

// AuthMethod selects how Connection authenticates to the remote host.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodKey      AuthMethod = "key"
)

// Config holds the SSH connection parameters for one remote host, shared
// by every remotefile.Resource targeting it.
type Config struct {
	Host                  string
	Port                  int
	User                  string
	AuthMethod            AuthMethod
	Password              string
	PrivateKeyPath        string
	PrivateKeyPassphrase  string
	KnownHostsPath        string
	StrictHostKeyChecking bool
	ConnectionTimeout     time.Duration
}

// Address returns the formatted SSH address (host:port).
func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

func (c Config) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))
	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, txn.NewPermanentError("failed to read private key", err).WithOperation("auth")
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, txn.NewPermanentError("failed to parse private key", err).WithOperation("auth")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	default:
		return nil, txn.NewPermanentError(fmt.Sprintf("unsupported auth method: %s", c.AuthMethod), nil).WithOperation("auth")
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, txn.NewPermanentError("failed to load known_hosts", err).WithOperation("auth")
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	timeout := c.ConnectionTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// Connection is the resource.Provider shared by every remotefile.Resource
// targeting the same host: one SSH session, one SFTP client, lazily
// dialed by Prefetch.
type Connection struct {
	cfg Config
	log *telemetry.Logger

	mu   sync.Mutex
	ssh  *ssh.Client
	sftp *sftp.Client
}

// NewConnection returns a Connection that will dial cfg.Address() on
// first Prefetch. log may be nil.
func NewConnection(cfg Config, log *telemetry.Logger) *Connection {
	return &Connection{cfg: cfg, log: log}
}

func (c *Connection) Name() string { return "remotefile:" + c.cfg.Address() }

// Prefetch dials the remote host once per Connection, regardless of how
// many resources share it.
func (c *Connection) Prefetch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp != nil {
		return nil
	}

	clientConfig, err := c.cfg.clientConfig()
	if err != nil {
		return err
	}

	conn, err := ssh.Dial("tcp", c.cfg.Address(), clientConfig)
	if err != nil {
		return txn.NewTransientError(fmt.Sprintf("dial %s failed", c.cfg.Address()), err).WithOperation("prefetch")
	}

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return txn.NewTransientError("sftp init failed", err).WithOperation("prefetch")
	}

	c.ssh = conn
	c.sftp = sftpClient
	if c.log != nil {
		c.log.WithField("host", c.cfg.Address()).Info("remotefile: connected")
	}
	return nil
}

func (c *Connection) client() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp == nil {
		return nil, fmt.Errorf("remotefile: %s: not connected, Prefetch was never called", c.cfg.Address())
	}
	return c.sftp, nil
}

func (c *Connection) readFile(path string) (string, error) {
	client, err := c.client()
	if err != nil {
		return "", err
	}
	f, err := client.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}

func (c *Connection) writeFile(path, content string, mode os.FileMode) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if err := client.MkdirAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("remotefile: mkdir %s failed: %w", filepath.Dir(path), err)
	}
	f, err := client.Create(path)
	if err != nil {
		return fmt.Errorf("remotefile: create %s failed: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("remotefile: write %s failed: %w", path, err)
	}
	if mode != 0 {
		if err := client.Chmod(path, mode); err != nil {
			return fmt.Errorf("remotefile: chmod %s failed: %w", path, err)
		}
	}
	return nil
}

func (c *Connection) removeFile(path string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if err := client.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remotefile: remove %s failed: %w", path, err)
	}
	return nil
}

func (c *Connection) chmod(path string, mode os.FileMode) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if err := client.Chmod(path, mode); err != nil {
		return fmt.Errorf("remotefile: chmod %s failed: %w", path, err)
	}
	return nil
}

func (c *Connection) statMode(path string) (os.FileMode, bool, error) {
	client, err := c.client()
	if err != nil {
		return 0, false, err
	}
	info, err := client.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return info.Mode().Perm(), true, nil
}

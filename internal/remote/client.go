// Package remote implements the SFTP listing collaborator: one
// authenticated session per account, directory listings on demand, and
// an explicit close. Password-only authentication is used so local SSH
// agents and keys never interfere with the configured credentials.
package remote

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"sftpaudit/pkg/contracts/domain"
)

// Options controls connection behavior shared by all accounts.
type Options struct {
	// ConnectTimeout bounds the TCP/SSH handshake so one unreachable
	// host cannot hang the whole run.
	ConnectTimeout time.Duration
	// AcceptAnyHostKey skips host key verification. This is the
	// historical behavior of the tool; it is logged as a caveat and
	// can be replaced by a known_hosts file.
	AcceptAnyHostKey bool
	// KnownHostsFile is consulted when AcceptAnyHostKey is false.
	KnownHostsFile string
}

// Client is one open SFTP session.
type Client struct {
	account domain.Account
	conn    *ssh.Client
	sftp    *sftp.Client
}

// Dialer opens SFTP sessions for accounts. It exists so the orchestrator
// can be tested without a network.
type Dialer struct {
	opts   Options
	logger *slog.Logger
}

// NewDialer creates a dialer with the given connection options.
func NewDialer(opts Options, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{opts: opts, logger: logger}
}

// Dial opens an authenticated SFTP session for the account.
func (d *Dialer) Dial(account domain.Account) (*Client, error) {
	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	host, port := account.Addr()
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	sshConfig := &ssh.ClientConfig{
		User: account.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(account.Password),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.opts.ConnectTimeout,
	}

	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open sftp session on %s: %w", addr, err)
	}

	d.logger.Debug("SFTP session established",
		slog.String("account", account.Name),
		slog.String("addr", addr))

	return &Client{account: account, conn: conn, sftp: sftpClient}, nil
}

// hostKeyCallback resolves the configured host key policy.
func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.opts.AcceptAnyHostKey {
		d.logger.Warn("Host key verification disabled; any host key will be accepted")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(d.opts.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts file %s: %w", d.opts.KnownHostsFile, err)
	}
	return callback, nil
}

// ListEntries lists the entries of a remote directory. A missing remote
// path is treated as an empty listing; any other failure is returned as
// an error for this call only.
func (c *Client) ListEntries(path string) ([]domain.RemoteEntry, error) {
	infos, err := c.sftp.ReadDir(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s on %s: %w", path, c.account.Host, err)
	}

	entries := make([]domain.RemoteEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, domain.RemoteEntry{
			Name:    info.Name(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}
	return entries, nil
}

// Close tears down the SFTP session and the underlying SSH connection.
func (c *Client) Close() error {
	var firstErr error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			firstErr = err
		}
		c.sftp = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.conn = nil
	}
	return firstErr
}

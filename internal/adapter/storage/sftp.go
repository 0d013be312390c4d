package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// SFTPStorage dials SSH per call. Host keys are checked against a
// known_hosts file; with trust_on_first_use an unknown host is appended.
type SFTPStorage struct {
	cfg    config.TargetConfig
	logger domain.Logger

	// serializes known_hosts appends
	mu sync.Mutex
}

func NewSFTP(cfg config.TargetConfig, logger domain.Logger) *SFTPStorage {
	return &SFTPStorage{cfg: cfg, logger: logger}
}

func (s *SFTPStorage) Name() string { return s.cfg.Name }
func (s *SFTPStorage) Type() string { return "sftp" }

func (s *SFTPStorage) knownHostsPath() string {
	if s.cfg.KnownHostsPath != "" {
		return s.cfg.KnownHostsPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

func (s *SFTPStorage) hostKeyCallback() (ssh.HostKeyCallback, error) {
	khPath := s.knownHostsPath()
	if khPath == "" {
		return nil, errors.New("cannot locate known_hosts file")
	}

	if _, err := os.Stat(khPath); os.IsNotExist(err) {
		if !s.cfg.TrustOnFirstUse {
			return nil, fmt.Errorf("known_hosts file %s does not exist", khPath)
		}
		if err := os.MkdirAll(filepath.Dir(khPath), 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(khPath, nil, 0600); err != nil {
			return nil, err
		}
	}

	verify, err := knownhosts.New(khPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !errors.As(err, &keyErr) || len(keyErr.Want) > 0 || !s.cfg.TrustOnFirstUse {
			// a changed key is never accepted
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		f, ferr := os.OpenFile(khPath, os.O_APPEND|os.O_WRONLY, 0600)
		if ferr != nil {
			return ferr
		}
		defer f.Close()

		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		if _, ferr := fmt.Fprintln(f, line); ferr != nil {
			return ferr
		}
		s.logger.Warnf("[%s] Trusting new host key for %s", s.cfg.Name, hostname)
		return nil
	}, nil
}

func (s *SFTPStorage) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if s.cfg.PrivateKey != "" {
		pem, err := os.ReadFile(s.cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if s.cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(s.cfg.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if s.cfg.Password != "" {
		methods = append(methods, ssh.Password(s.cfg.Password))
	}
	return methods, nil
}

func (s *SFTPStorage) connect(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, nil, domain.NewTargetError(s.cfg.Name, domain.ErrAuth, err)
	}
	hostKey, err := s.hostKeyCallback()
	if err != nil {
		return nil, nil, domain.NewTargetError(s.cfg.Name, domain.ErrConnect, err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, domain.NewTargetError(s.cfg.Name, domain.ErrConnect, fmt.Errorf("failed to dial %s: %w", addr, err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.cfg.Timeout,
	})
	if err != nil {
		netConn.Close()
		kind := domain.ErrConnect
		if strings.Contains(err.Error(), "unable to authenticate") {
			kind = domain.ErrAuth
		}
		return nil, nil, domain.NewTargetError(s.cfg.Name, kind, fmt.Errorf("ssh handshake failed: %w", err))
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, nil, domain.NewTargetError(s.cfg.Name, domain.ErrConnect, fmt.Errorf("failed to start sftp session: %w", err))
	}

	return client, sftpClient, nil
}

func (s *SFTPStorage) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.NewTargetError(s.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	remoteDir := path.Clean("/" + s.cfg.Path)
	if err := client.MkdirAll(remoteDir); err != nil {
		return domain.NewTargetError(s.cfg.Name, domain.ErrMkdir, fmt.Errorf("failed to create %s: %w", remoteDir, err))
	}

	remotePath := path.Join(remoteDir, filepath.Base(localPath))
	remote, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return domain.NewTargetError(s.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to create %s: %w", remotePath, err))
	}

	if _, err := io.Copy(remote, file); err != nil {
		remote.Close()
		return domain.NewTargetError(s.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to write %s: %w", remotePath, err))
	}
	if err := remote.Close(); err != nil {
		return domain.NewTargetError(s.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to close %s: %w", remotePath, err))
	}

	return nil
}

func (s *SFTPStorage) TestConnection(ctx context.Context) error {
	sshClient, client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	client.Close()
	return sshClient.Close()
}

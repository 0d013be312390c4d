package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// FTPStorage opens a fresh control connection for every call.
type FTPStorage struct {
	cfg config.TargetConfig
}

func NewFTP(cfg config.TargetConfig) *FTPStorage {
	return &FTPStorage{cfg: cfg}
}

func (f *FTPStorage) Name() string { return f.cfg.Name }
func (f *FTPStorage) Type() string { return "ftp" }

func (f *FTPStorage) connect(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.cfg.Timeout),
	}
	if f.cfg.UseTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: f.cfg.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, domain.NewTargetError(f.cfg.Name, domain.ErrConnect, fmt.Errorf("failed to dial %s: %w", addr, err))
	}

	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		conn.Quit()
		return nil, domain.NewTargetError(f.cfg.Name, domain.ErrAuth, fmt.Errorf("login failed: %w", err))
	}

	return conn, nil
}

// ensureDir creates every segment of dir that does not exist yet.
func ensureDir(conn *ftp.ServerConn, dir string) error {
	dir = remoteDir(dir)
	if dir == "/" {
		return conn.ChangeDir("/")
	}

	current := ""
	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		current += "/" + segment
		if err := conn.ChangeDir(current); err == nil {
			continue
		}
		if err := conn.MakeDir(current); err != nil {
			return fmt.Errorf("failed to create %s: %w", current, err)
		}
	}
	return conn.ChangeDir(dir)
}

func (f *FTPStorage) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.NewTargetError(f.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	conn, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := ensureDir(conn, f.cfg.Path); err != nil {
		return domain.NewTargetError(f.cfg.Name, domain.ErrMkdir, err)
	}

	if err := conn.Stor(filepath.Base(localPath), file); err != nil {
		return domain.NewTargetError(f.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to store file: %w", err))
	}

	return nil
}

// List returns the file names in the target directory.
func (f *FTPStorage) List(ctx context.Context) ([]string, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.NameList(remoteDir(f.cfg.Path))
	if err != nil {
		return nil, domain.NewTargetError(f.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to list: %w", err))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		// some servers answer NLST with full paths
		name := path.Base(entry)
		if name == "." || name == ".." {
			continue
		}
		names = append(names, name)
	}
	return sortedNames(names), nil
}

// Download retrieves name from the target directory into localPath.
func (f *FTPStorage) Download(ctx context.Context, name, localPath string) error {
	if err := remoteName(name); err != nil {
		return domain.NewTargetError(f.cfg.Name, domain.ErrTransfer, err)
	}

	conn, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	resp, err := conn.Retr(path.Join(remoteDir(f.cfg.Path), name))
	if err != nil {
		return domain.NewTargetError(f.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to retrieve %s: %w", name, err))
	}
	defer resp.Close()

	if err := saveTo(localPath, resp); err != nil {
		return domain.NewTargetError(f.cfg.Name, domain.ErrTransfer, err)
	}
	return nil
}

func remoteDir(dir string) string {
	return path.Clean("/" + strings.TrimSpace(dir))
}

func (f *FTPStorage) TestConnection(ctx context.Context) error {
	conn, err := f.connect(ctx)
	if err != nil {
		return err
	}
	return conn.Quit()
}

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/docuscan/docuscan/internal/common"
)

// FTPConfig for the remote blob store.
type FTPConfig struct {
	Addr     string // host:port
	User     string
	Password string
	BasePath string // remote directory all refs resolve under
	Timeout  time.Duration
}

// FTPStore stores blobs on a remote FTP server, one connection per
// operation so no session state leaks across calls.
type FTPStore struct {
	cfg    FTPConfig
	logger *slog.Logger
}

func NewFTPStore(cfg FTPConfig, logger *slog.Logger) *FTPStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FTPStore{cfg: cfg, logger: logger}
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.cfg.Addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.cfg.Timeout),
	)
	if err != nil {
		return nil, common.WrapError(err, "ftp dial")
	}
	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, common.WrapError(err, "ftp login")
	}
	return conn, nil
}

func (s *FTPStore) remotePath(ref string) string {
	return path.Join(s.cfg.BasePath, path.Clean("/"+ref))
}

func (s *FTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	start := time.Now()
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.quit(conn)

	resp, err := conn.Retr(s.remotePath(ref))
	if err != nil {
		if isNotFound(err) {
			return nil, common.NewAppError("BLOB_ERROR", fmt.Sprintf("blob %q not found", ref), common.ErrNotFound)
		}
		return nil, common.WrapError(err, "ftp retr")
	}
	defer func() {
		if cerr := resp.Close(); cerr != nil {
			s.logger.Warn("blob.ftp.close_error", "ref", ref, "error", cerr)
		}
	}()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, common.WrapError(err, "ftp read")
	}
	s.logger.Info("blob.ftp.fetch", "ref", ref, "bytes", len(data), "elapsed_ms", time.Since(start).Milliseconds())
	return data, nil
}

func (s *FTPStore) Put(ctx context.Context, ref string, data []byte) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer s.quit(conn)

	remote := s.remotePath(ref)
	s.ensureDir(conn, path.Dir(remote))
	if err := conn.Stor(remote, bytes.NewReader(data)); err != nil {
		return common.WrapError(err, "ftp stor")
	}
	s.logger.Info("blob.ftp.put", "ref", ref, "bytes", len(data))
	return nil
}

func (s *FTPStore) Delete(ctx context.Context, ref string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer s.quit(conn)

	if err := conn.Delete(s.remotePath(ref)); err != nil && !isNotFound(err) {
		return common.WrapError(err, "ftp delete")
	}
	return nil
}

func (s *FTPStore) Exists(ctx context.Context, ref string) (bool, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return false, err
	}
	defer s.quit(conn)

	if _, err := conn.FileSize(s.remotePath(ref)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, common.WrapError(err, "ftp size")
	}
	return true, nil
}

// ensureDir best-effort creates the remote directory chain; Stor will
// report the real failure if creation did not work.
func (s *FTPStore) ensureDir(conn *ftp.ServerConn, dir string) {
	if dir == "/" || dir == "." {
		return
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		_ = conn.MakeDir(cur)
	}
}

func (s *FTPStore) quit(conn *ftp.ServerConn) {
	if err := conn.Quit(); err != nil {
		s.logger.Warn("blob.ftp.quit_error", "error", err)
	}
}

// isNotFound matches the FTP 550 "file unavailable" reply.
func isNotFound(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable
	}
	return err != nil && strings.Contains(err.Error(), "550")
}

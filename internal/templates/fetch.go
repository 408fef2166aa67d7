package templates

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"dlgen/internal/config"
	"dlgen/internal/services"
)

// Fetcher retrieves template and signature artifacts from the shared
// repository.
type Fetcher interface {
	LetterTemplate(ctx context.Context, file string) ([]byte, error)
	HeaderFooter(ctx context.Context, file string) ([]byte, error)
	Transmittal(ctx context.Context, file string) ([]byte, error)
	SignatureImage(ctx context.Context, day time.Time) ([]byte, time.Time, error)
}

// FTPFetcher pulls templates over FTP. Each retrieval dials a fresh
// connection; template fetches happen a handful of times per run and cached
// prototypes absorb the rest.
type FTPFetcher struct {
	cfg      config.FTP
	fallback int
	retrieve func(ctx context.Context, remotePath string) ([]byte, error)
}

// Option configures the fetcher.
type Option func(*FTPFetcher)

// WithRetriever injects a custom retrieval function (primarily for tests).
func WithRetriever(fn func(ctx context.Context, remotePath string) ([]byte, error)) Option {
	return func(f *FTPFetcher) {
		if fn != nil {
			f.retrieve = fn
		}
	}
}

// NewFTPFetcher builds a fetcher for the configured FTP repository.
// signatureFallbackDays bounds how many days back SignatureImage searches.
func NewFTPFetcher(cfg config.FTP, signatureFallbackDays int, opts ...Option) (*FTPFetcher, error) {
	if cfg.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "templates", "ftp", "host required", nil)
	}
	fetcher := &FTPFetcher{cfg: cfg, fallback: signatureFallbackDays}
	fetcher.retrieve = fetcher.retrieveFTP
	for _, opt := range opts {
		opt(fetcher)
	}
	return fetcher, nil
}

// LetterTemplate fetches a letter body template by catalog file name.
func (f *FTPFetcher) LetterTemplate(ctx context.Context, file string) ([]byte, error) {
	return f.fetchRequired(ctx, path.Join(f.cfg.TemplateRoot, file))
}

// HeaderFooter fetches a campaign's header/footer shell document.
func (f *FTPFetcher) HeaderFooter(ctx context.Context, file string) ([]byte, error) {
	return f.fetchRequired(ctx, path.Join(f.cfg.HeaderFooterDir, file))
}

// Transmittal fetches a campaign's transmittal manifest template.
func (f *FTPFetcher) Transmittal(ctx context.Context, file string) ([]byte, error) {
	return f.fetchRequired(ctx, path.Join(f.cfg.TransmittalDir, file))
}

// SignatureImage fetches the signatory image for a date, named
// "YYYY-MM-DD.png" in the signature directory. When the exact day has no
// image, earlier days are tried up to the fallback window; the date actually
// used is returned so the letter can print the matching signing date.
func (f *FTPFetcher) SignatureImage(ctx context.Context, day time.Time) ([]byte, time.Time, error) {
	for back := 0; back <= f.fallback; back++ {
		candidate := day.AddDate(0, 0, -back)
		remote := path.Join(f.cfg.SignatureDir, candidate.Format("2006-01-02")+".png")
		data, err := f.retrieve(ctx, remote)
		if err == nil {
			return data, candidate, nil
		}
		if ctx.Err() != nil {
			return nil, time.Time{}, ctx.Err()
		}
	}
	return nil, time.Time{}, services.Wrap(services.ErrNotFound, "templates", "signature",
		fmt.Sprintf("no signature image within %d days of %s", f.fallback, day.Format("2006-01-02")), nil)
}

func (f *FTPFetcher) fetchRequired(ctx context.Context, remotePath string) ([]byte, error) {
	data, err := f.retrieve(ctx, remotePath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "templates", "fetch "+remotePath, "", err)
	}
	return data, nil
}

func (f *FTPFetcher) retrieveFTP(ctx context.Context, remotePath string) ([]byte, error) {
	timeout := time.Duration(f.cfg.TimeoutSeconds) * time.Second
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", remotePath, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", remotePath, err)
	}
	return data, nil
}

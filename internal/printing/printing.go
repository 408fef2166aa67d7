// Package printing submits merged PDFs to CUPS printers and lists the
// printers available to the daemon host.
package printing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"dlgen/internal/logging"
	"dlgen/internal/services"
)

// Executor abstracts running the print tools for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the service.
type Option func(*Service)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *Service) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// Service wraps the CUPS command line tools.
type Service struct {
	listBinary     string
	printBinary    string
	defaultPrinter string
	exec           Executor
	logger         *slog.Logger
}

// New constructs a printing service.
func New(listBinary, printBinary, defaultPrinter string, logger *slog.Logger, opts ...Option) (*Service, error) {
	listBinary = strings.TrimSpace(listBinary)
	printBinary = strings.TrimSpace(printBinary)
	if listBinary == "" || printBinary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "printing", "",
			"list and print binaries required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	svc := &Service{
		listBinary:     listBinary,
		printBinary:    printBinary,
		defaultPrinter: strings.TrimSpace(defaultPrinter),
		exec:           commandExecutor{},
		logger:         logging.WithComponent(logger, "printing"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Printers returns the names of configured printers, parsed from
// "printer NAME ..." lines of lpstat -p output.
func (s *Service) Printers(ctx context.Context) ([]string, error) {
	output, err := s.exec.Run(ctx, s.listBinary, []string{"-p"})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "printing", "list printers", "", err)
	}

	var printers []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "printer" {
			printers = append(printers, fields[1])
		}
	}
	return printers, nil
}

// Print submits files to the named printer, falling back to the configured
// default when printer is empty. Files are submitted one job per file so a
// jammed document does not take the rest of the area down with it.
func (s *Service) Print(ctx context.Context, printer string, files []string) error {
	printer = strings.TrimSpace(printer)
	if printer == "" {
		printer = s.defaultPrinter
	}
	if printer == "" {
		return services.Wrap(services.ErrValidation, "printing", "",
			"no printer selected and no default configured", nil)
	}
	if len(files) == 0 {
		return services.Wrap(services.ErrValidation, "printing", "", "no files to print", nil)
	}

	for _, file := range files {
		if _, err := s.exec.Run(ctx, s.printBinary, []string{"-d", printer, file}); err != nil {
			return services.Wrap(services.ErrExternalTool, "printing",
				"submit "+file, "", err)
		}
		s.logger.Info("submitted print job",
			logging.String("printer", printer),
			logging.String("file", file))
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

package config

const (
	defaultDataDir          = "~/.local/share/dlgen"
	defaultWorkDir          = "~/.local/share/dlgen/work"
	defaultLogDir           = "~/.local/share/dlgen/logs"
	defaultAPIBind          = "127.0.0.1:5000"
	defaultFTPPort          = 21
	defaultFTPTimeout       = 30
	defaultTemplateRoot     = "/Templates"
	defaultHeaderFooterDir  = "/Templates/LetterHeads"
	defaultTransmittalDir   = "/Templates/Transmittal"
	defaultSignatureDir     = "/Signatures"
	defaultSheetName        = "LetterHeads"
	defaultConverterBinary  = "soffice"
	defaultBatchSize        = 300
	defaultConvertTimeout   = 180
	defaultMaxRetries       = 3
	defaultCooldownSeconds  = 2
	defaultConvertWorkers   = 2
	defaultListBinary       = "lpstat"
	defaultPrintBinary      = "lp"
	defaultSessionTTLHours  = 24
	defaultManifestPageSize = 4
	defaultSignatureDays    = 7
	defaultSweepMinutes     = 60
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		FTP: FTP{
			Port:            defaultFTPPort,
			TemplateRoot:    defaultTemplateRoot,
			HeaderFooterDir: defaultHeaderFooterDir,
			TransmittalDir:  defaultTransmittalDir,
			SignatureDir:    defaultSignatureDir,
			TimeoutSeconds:  defaultFTPTimeout,
		},
		Sheets: Sheets{
			SheetName: defaultSheetName,
		},
		Converter: Converter{
			Binary:          defaultConverterBinary,
			BatchSize:       defaultBatchSize,
			TimeoutSeconds:  defaultConvertTimeout,
			MaxRetries:      defaultMaxRetries,
			CooldownSeconds: defaultCooldownSeconds,
			Workers:         defaultConvertWorkers,
		},
		Printing: Printing{
			ListBinary:  defaultListBinary,
			PrintBinary: defaultPrintBinary,
		},
		Auth: Auth{
			SessionTTLHours: defaultSessionTTLHours,
		},
		Generation: Generation{
			ManifestPageSize:            defaultManifestPageSize,
			SignatureFallbackDays:       defaultSignatureDays,
			SessionSweepIntervalMinutes: defaultSweepMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

import "strings"

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.DataDir,
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
		&c.Sheets.CredentialsFile,
	} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.FTP.Host = strings.TrimSpace(c.FTP.Host)
	c.FTP.Username = strings.TrimSpace(c.FTP.Username)
	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	c.Printing.ListBinary = strings.TrimSpace(c.Printing.ListBinary)
	c.Printing.PrintBinary = strings.TrimSpace(c.Printing.PrintBinary)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.FTP.Port == 0 {
		c.FTP.Port = defaultFTPPort
	}
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultConverterBinary
	}
	if c.Converter.Workers == 0 {
		c.Converter.Workers = defaultConvertWorkers
	}
	if c.Generation.ManifestPageSize == 0 {
		c.Generation.ManifestPageSize = defaultManifestPageSize
	}
	return nil
}

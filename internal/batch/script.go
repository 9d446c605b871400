// Package batch builds the Windows batch scripts used for remote command
// execution and validates what comes back from running them.
package batch

import (
	"log/slog"
	"strings"
)

const (
	// DefaultDirectory is the working directory assumed to always exist. No
	// precondition is generated for it.
	DefaultDirectory = "%TMP%"

	// DefaultCompletionSentinel is echoed by the success label. Its absence
	// from the captured output means the run did not finish or the transfer
	// was cut short.
	DefaultCompletionSentinel = "Execution completed."

	// DefaultLineTerminator is the cmd.exe line ending.
	DefaultLineTerminator = "\r\n"
)

// Labels, in the order they appear in a generated script.
const (
	LabelExecution           = ":EXECUTION"
	LabelNullParameter       = ":ERROR_NULL_PARAMETER"
	LabelWorkingDirNotExists = ":ERROR_WORKING_DIR_NOT_EXISTS"
	LabelSuccess             = ":SUCCESS"
	LabelEnd                 = ":END"
)

// workdirVar holds the directory :EXECUTION changes into. The fallback label
// rewrites it before jumping back.
const workdirVar = "WORKDIR"

// Config holds the script constants.
type Config struct {
	DefaultDirectory   string `yaml:"default_directory"`
	CompletionSentinel string `yaml:"completion_sentinel"`
	LineTerminator     string `yaml:"line_terminator"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.DefaultDirectory == "" {
		c.DefaultDirectory = DefaultDirectory
	}
	if c.CompletionSentinel == "" {
		c.CompletionSentinel = DefaultCompletionSentinel
	}
	if c.LineTerminator == "" {
		c.LineTerminator = DefaultLineTerminator
	}
}

// Builder generates scripts and validates their output.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil logger uses slog.Default().
func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		cfg:    cfg,
		logger: logger.With("component", "batch"),
	}
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// BuildScript renders the script that runs commandLine inside
// workingDirectory. A missing working directory falls back to the default
// directory; an empty argument jumps straight to the null parameter label.
func (b *Builder) BuildScript(workingDirectory, commandLine string) string {
	s := &script{nl: b.cfg.LineTerminator}

	s.line("@ECHO OFF")
	if strings.TrimSpace(workingDirectory) == "" || strings.TrimSpace(commandLine) == "" {
		s.line("GOTO " + LabelNullParameter)
	} else {
		s.line(`SET "` + workdirVar + "=" + workingDirectory + `"`)
		if !strings.EqualFold(workingDirectory, b.cfg.DefaultDirectory) {
			s.line(`IF NOT EXIST "` + strings.TrimRight(workingDirectory, `\`) + `\" GOTO ` + LabelWorkingDirNotExists)
		}
	}
	s.blank()

	s.line(LabelExecution)
	s.line(`CD /D "%` + workdirVar + `%"`)
	s.line(commandLine + " 2>&1")
	s.line("GOTO " + LabelSuccess)
	s.blank()

	s.line(LabelNullParameter)
	s.line("ECHO ERROR- null batch parameter.")
	s.line("GOTO " + LabelEnd)
	s.blank()

	s.line(LabelWorkingDirNotExists)
	s.line("ECHO ERROR- working directory does not exist.")
	s.line(`SET "` + workdirVar + "=" + b.cfg.DefaultDirectory + `"`)
	s.line("GOTO " + LabelExecution)
	s.blank()

	s.line(LabelSuccess)
	s.line("ECHO " + b.cfg.CompletionSentinel)
	s.blank()

	s.line(LabelEnd)
	return s.String()
}

type script struct {
	sb strings.Builder
	nl string
}

func (s *script) line(text string) {
	s.sb.WriteString(text)
	s.sb.WriteString(s.nl)
}

func (s *script) blank() {
	s.sb.WriteString(s.nl)
}

func (s *script) String() string {
	return s.sb.String()
}

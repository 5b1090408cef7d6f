package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
)

// schema constrains the user configuration. Unifying it with the loaded
// file rejects unknown fields and out-of-range values before decoding.
const schema = `
#Config: close({
	computer_type?: "workstation" | "server"
	gpu?:           "auto" | "nvidia" | "amd" | "intel" | "none"
	capabilities?: [...string]
	unattended?:     bool
	action_timeout?: string & =~"^[0-9]+(ns|us|ms|s|m|h)$"
	log_level?:      "trace" | "debug" | "info" | "warn" | "error"
	log_format?:     "console" | "json"
	metrics_listen?: string
	trace_exporter?: "none" | "stdout" | "otlp"
	trace_endpoint?: string
})

#Config
`

// Parser loads and validates CUE configuration files.
type Parser struct {
	ctx      *cue.Context
	validate *validator.Validate
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	return &Parser{
		ctx:      cuecontext.New(),
		validate: validator.New(),
	}
}

// Load reads, unifies against the schema, and decodes the configuration
// file at path.
func (p *Parser) Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return p.LoadBytes(content, path)
}

// LoadBytes parses configuration from memory. The filename is used in
// error positions only.
func (p *Parser) LoadBytes(content []byte, filename string) (*Config, error) {
	schemaVal := p.ctx.CompileString(schema, cue.Filename("rigup-schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return nil, fmt.Errorf("internal schema error: %w", err)
	}

	val := p.ctx.CompileString(string(content), cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	unified := schemaVal.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{}
	if err := unified.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := p.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.ActionTimeout != "" {
		if _, err := time.ParseDuration(cfg.ActionTimeout); err != nil {
			return nil, fmt.Errorf("invalid action_timeout: %w", err)
		}
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		GPU:       "auto",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

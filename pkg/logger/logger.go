package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Level        string `split_words:"true"`
	Service      string `split_words:"true" default:"pizzeria-agent"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
	Service:      "pizzeria-agent",
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

func Init(opts ...Config) {
	conf := safe(opts...)

	var out io.Writer = os.Stdout
	if conf.PrettyFormat {
		out = zerolog.NewConsoleWriter()
	}
	log.Logger = New(out, *conf)
}

// New builds a logger writing to out. Level wins over Debug when it parses.
func New(out io.Writer, conf Config) zerolog.Logger {
	ctx := zerolog.New(out).With().Timestamp()
	if conf.Service != "" {
		ctx = ctx.Str("service", conf.Service)
	}
	logger := ctx.Caller().Stack().Logger()

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(conf.Level))); err == nil && conf.Level != "" {
		level = parsed
	}
	return logger.Level(level)
}

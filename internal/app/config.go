package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rtspgrab/rtspgrab/pkg/shell"
	"github.com/rtspgrab/rtspgrab/pkg/yaml"
)

// DefaultConfig used when no -config flag passed
const DefaultConfig = "rtspgrab.yaml"

// LoadConfig applies all configs to v in flag order, later values win.
func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Msg("[app] read config")
		}
	}
}

type flagConfig []string

func (c *flagConfig) String() string {
	return strings.Join(*c, " ")
}

func (c *flagConfig) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var configs [][]byte

// configErrs are logged after the logger is ready
var configErrs []error

func initConfig(confs flagConfig) {
	// missing default file is OK, missing file from flag is not
	optional := confs == nil
	if optional {
		confs = flagConfig{DefaultConfig}
	}

	for _, conf := range confs {
		data, err := readConfig(conf)
		if err != nil {
			if !(optional && errors.Is(err, fs.ErrNotExist)) {
				configErrs = append(configErrs, err)
			}
			continue
		}
		if data != nil {
			configs = append(configs, data)
		}
	}

	if ConfigPath != "" {
		if !filepath.IsAbs(ConfigPath) {
			if cwd, err := os.Getwd(); err == nil {
				ConfigPath = filepath.Join(cwd, ConfigPath)
			}
		}
		Info["config_path"] = ConfigPath
	}
}

// readConfig from raw YAML/JSON, `key.sub=value` or file path.
// First file becomes ConfigPath even if it can't be read.
func readConfig(conf string) ([]byte, error) {
	switch {
	case conf == "":
		return nil, nil
	case conf[0] == '{':
		return []byte(conf), nil
	}

	if data := parseConfString(conf); data != nil {
		return data, nil
	}

	if ConfigPath == "" {
		ConfigPath = conf
	}

	data, err := os.ReadFile(conf)
	if err != nil {
		return nil, fmt.Errorf("app: read config: %w", err)
	}

	return []byte(shell.ReplaceEnvVars(string(data))), nil
}

// parseConfString: `rtsp.timeout=10s` => `{rtsp: {timeout: 10s}}`
func parseConfString(s string) []byte {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return nil
	}

	items := strings.Split(key, ".")
	if len(items) < 2 {
		return nil
	}

	return []byte("{" + strings.Join(items, ": {") + ": " + value + strings.Repeat("}", len(items)))
}

package conf

import (
	"path/filepath"
	"strings"

	"github.com/zjuerme/MiniSQL/logger"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

/*
[minisql]
data_file        = minisql.db
buffer_pool_pages = 1024
replacer_k       = 2

[logs]
log_error = logs/error.log
log_infos = logs/minisql.log
log_level = info
*/
type Cfg struct {
	Raw *ini.File

	// storage
	DataFile        string `default:"minisql.db" yaml:"data_file" json:"data_file,omitempty"`
	BufferPoolPages int    `default:"1024" yaml:"buffer_pool_pages" json:"buffer_pool_pages,omitempty"`
	ReplacerK       int    `default:"2" yaml:"replacer_k" json:"replacer_k,omitempty"`

	// logs
	LogError string `default:"logs/error.log" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"logs/minisql.log" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:             ini.Empty(),
		DataFile:        "minisql.db",
		BufferPoolPages: 1024,
		ReplacerK:       2,
		LogError:        "logs/error.log",
		LogInfos:        "logs/minisql.log",
		LogLevel:        "info",
	}
}

func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	setHomePath(args)
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		logger.Errorf("failed to load configuration: %v", err)
		return cfg
	}
	cfg.Raw = iniFile

	cfg.parseMinisqlCfg(cfg.Raw.Section("minisql"))
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	return cfg
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}
	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := "conf/minisql.ini"
	if args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	parsedFile, err := ini.Load(configFile)
	if err != nil {
		logger.Debugf("config file %s not loaded (%v), using defaults", configFile, err)
		return ini.Empty(), nil
	}

	logger.Debugf("loaded config file: %s", configFile)
	return parsedFile, nil
}

func (cfg *Cfg) parseMinisqlCfg(section *ini.Section) *Cfg {
	if section == nil {
		return cfg
	}

	dataFile, err := valueAsString(section, "data_file", cfg.DataFile)
	if err == nil {
		cfg.DataFile = dataFile
	}

	cfg.BufferPoolPages = section.Key("buffer_pool_pages").MustInt(cfg.BufferPoolPages)
	cfg.ReplacerK = section.Key("replacer_k").MustInt(cfg.ReplacerK)
	return cfg
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) *Cfg {
	if section == nil {
		return cfg
	}

	logError, err := valueAsString(section, "log_error", cfg.LogError)
	if err == nil {
		cfg.LogError = logError
	}

	logInfos, err := valueAsString(section, "log_infos", cfg.LogInfos)
	if err == nil {
		cfg.LogInfos = logInfos
	}

	logLevel, err := valueAsString(section, "log_level", cfg.LogLevel)
	if err == nil {
		cfg.LogLevel = strings.ToLower(logLevel)
		validLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
		isValid := false
		for _, level := range validLevels {
			if cfg.LogLevel == level {
				isValid = true
				break
			}
		}
		if !isValid {
			logger.Warnf("invalid log level '%s', using 'info'", logLevel)
			cfg.LogLevel = "info"
		}
	}

	return cfg
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) (string, error) {
	if section == nil {
		return defaultValue, nil
	}
	value := section.Key(keyName).MustString(defaultValue)
	if value == "" {
		value = defaultValue
	}
	return value, nil
}

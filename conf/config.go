package conf

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/logger"
)

// Cfg carries the engine configuration surface. Only the innodb section is
// read by the storage core; everything else stays with the embedding
// application.
type Cfg struct {
	Raw *ini.File

	DataDir string
	AppName string

	// logs
	LogError string
	LogInfos string
	LogLevel string

	// innodb
	InnodbDataDir         string
	InnodbBufferPoolSize  int
	InnodbPageSize        int
	InnodbForceRecovery   basic.RecoveryLevel
	InnodbFlushLogTimeout time.Duration
}

// NewDefaultCfg returns the configuration used when no ini file is given.
func NewDefaultCfg() *Cfg {
	return &Cfg{
		AppName:               "embedded-innodb",
		DataDir:               "data",
		LogLevel:              "info",
		InnodbDataDir:         "data",
		InnodbBufferPoolSize:  134217728,
		InnodbPageSize:        basic.UnivPageSize,
		InnodbForceRecovery:   basic.RecoveryDefault,
		InnodbFlushLogTimeout: time.Second,
	}
}

// Load reads an ini file and overlays it on the defaults.
func Load(path string) (*Cfg, error) {
	cfg := NewDefaultCfg()

	raw, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	cfg.Raw = raw

	sec := raw.Section("mysqld")

	if v := sec.Key("datadir").String(); v != "" {
		cfg.DataDir = v
	}
	if v := sec.Key("log_error").String(); v != "" {
		cfg.LogError = v
	}
	if v := sec.Key("log_level").String(); v != "" {
		cfg.LogLevel = v
		logger.SetLevel(v)
	}
	if v := sec.Key("innodb_data_dir").String(); v != "" {
		cfg.InnodbDataDir = v
	}
	if v, err := sec.Key("innodb_buffer_pool_size").Int(); err == nil && v > 0 {
		cfg.InnodbBufferPoolSize = v
	}
	if v, err := sec.Key("innodb_page_size").Int(); err == nil && v > 0 {
		if v != basic.UnivPageSize {
			return nil, errors.Errorf("unsupported innodb_page_size %d", v)
		}
		cfg.InnodbPageSize = v
	}
	if v, err := sec.Key("innodb_force_recovery").Int(); err == nil {
		if v < int(basic.RecoveryDefault) || v > int(basic.RecoveryNoLogRedo) {
			return nil, errors.Errorf("innodb_force_recovery out of range: %d", v)
		}
		cfg.InnodbForceRecovery = basic.RecoveryLevel(v)
	}

	return cfg, nil
}

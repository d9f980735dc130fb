package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Defaults applied when the config file leaves a key unset.
var defaults = map[string]interface{}{
	"SyncTimeout":         30,
	"MessageMaxAge":       0,
	"HistorySize":         256,
	"LogLevel":            "info",
	"DataDir":             ".",
	"Gateway.Listen":      "",
	"Gateway.MaxInFlight": 64,
}

func LoadConfig(cfgfile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(cfgfile)

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("matrixclient")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// use environment variables
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s", err)
	}

	// reload config on file changes
	if runtime.GOOS != "illumos" {
		v.WatchConfig()
	}

	return v, nil
}

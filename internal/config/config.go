// Package config loads the node's runtime knobs the way
// weed/util.Configuration does: a thin interface over viper so the
// rest of the core never imports viper directly.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/windkit/leo-storage/internal/glog"
)

// Configuration is the narrow surface the core depends on; a fake
// implementing this is all tests need to substitute.
type Configuration interface {
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

// Keys consumed by the core.
const (
	KeyWatchdogCPUEnabled      = "wd_cpu_enabled"
	KeyWatchdogDiskEnabled     = "wd_disk_enabled"
	KeyAutoCompactionInterval  = "auto_compaction_interval"
	KeyAutoCompactionParallel  = "auto_compaction_parallel_procs"
	KeyRequestTimeout          = "request_timeout"
	KeyWorkerPoolPendingLimit  = "worker_pool_pending_limit"
	KeyCompactionPreWaitMillis = "compaction_pre_wait_ms"
	KeyReplicationFactor       = "ring_n" // the ring's N
)

// Defaults mirrors stated defaults.
var Defaults = map[string]interface{}{
	KeyRequestTimeout:          5 * time.Second,
	KeyWorkerPoolPendingLimit:  200,
	KeyCompactionPreWaitMillis: 100,
}

// Load reads <name>.toml the way weed/util.LoadConfiguration does:
// search the working directory and a couple of conventional system
// paths, merging whatever is found. Missing files are not fatal;
// callers get viper's defaults plus whatever SetDefault calls they add.
func Load(name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.leo-storage")
	v.AddConfigPath("/etc/leo-storage/")

	for k, val := range Defaults {
		v.SetDefault(k, val)
	}

	if err := v.MergeInConfig(); err != nil {
		if strings.Contains(err.Error(), "Not Found") {
			glog.V(1).Infof("reading %s.toml: %v", name, err)
		} else {
			glog.Errorf("reading %s.toml: %v", name, err)
		}
	}
	return v
}

// viperConfiguration adapts *viper.Viper to Configuration.
type viperConfiguration struct{ v *viper.Viper }

func Wrap(v *viper.Viper) Configuration { return viperConfiguration{v} }

func (c viperConfiguration) GetString(key string) string          { return c.v.GetString(key) }
func (c viperConfiguration) GetBool(key string) bool               { return c.v.GetBool(key) }
func (c viperConfiguration) GetInt(key string) int                 { return c.v.GetInt(key) }
func (c viperConfiguration) GetDuration(key string) time.Duration   { return c.v.GetDuration(key) }
func (c viperConfiguration) GetStringSlice(key string) []string    { return c.v.GetStringSlice(key) }

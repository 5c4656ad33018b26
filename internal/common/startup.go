package common

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	commonconfig "github.com/socialseed/graphseed/internal/common/config"
)

const envPrefix = "GRAPHSEED"

// LoadConfig reads config.yaml from defaultPath, merges any user specified files on top of it and unmarshals the
// result into config. Environment variables prefixed with GRAPHSEED_ override file values.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		log.Errorf("Error reading base config path=%s: %v", defaultPath, err)
		os.Exit(-1)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		if overrideConfig == "" {
			continue
		}
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			log.Errorf("Error reading config from %s: %v", overrideConfig, err)
			os.Exit(-1)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		log.Error(err)
		os.Exit(-1)
	}
	return v
}

func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// ConfigureCommandLineLogging is a quieter variant for one-shot commands.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
}

// ServeMetrics exposes the default prometheus registry on the given port.
// The returned function shuts the server down. A zero port disables serving.
func ServeMetrics(port uint16) (shutdown func()) {
	if port == 0 {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Infof("Serving metrics on :%d/metrics", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return func() {
		if err := srv.Close(); err != nil {
			log.WithError(err).Warn("Failed to close metrics server cleanly")
		}
	}
}

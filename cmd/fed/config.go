package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FED"

type Config struct {
	Addr     string `mapstructure:"addr"`
	Endpoint string `mapstructure:"endpoint"`
	Debug    bool   `mapstructure:"debug"`

	Explorer           bool  `mapstructure:"explorer"`
	AllowQueriesViaGET bool  `mapstructure:"allow_queries_via_get"`
	EnableART          bool  `mapstructure:"enable_art"`
	MaxBodyBytes       int64 `mapstructure:"max_body_bytes"`

	Services        []ServiceConfig `mapstructure:"services"`
	PollingInterval time.Duration   `mapstructure:"polling_interval"`
	MaxConcurrency  int             `mapstructure:"max_concurrency"`

	Events string `mapstructure:"events"`
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("config", "", "path to a config file (yaml, json or toml)")
	flags.String("addr", ":10009", "listen address of the http server")
	flags.String("endpoint", "/query", "path the GraphQL endpoint is served on")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("explorer", true, "serve the GraphiQL explorer to browsers")
	flags.Bool("allow-queries-via-get", true, "allow query operations on GET requests")
	flags.Bool("enable-art", false, "include advanced request tracing in response extensions")
	flags.Int64("max-body-bytes", 1<<20, "maximum request body size")
	flags.StringArray("service", nil, "subgraph as name=url[,ws-url], repeatable")
	flags.Duration("polling-interval", 30*time.Second, "interval between subgraph SDL polls, 0 polls once")
	flags.Int("max-concurrency", 1024, "maximum number of concurrent resolver goroutines")
	flags.String("events", "rest", "lambda event format: rest, http or proxy")

	names := map[string]string{
		"config":                "config",
		"addr":                  "addr",
		"endpoint":              "endpoint",
		"debug":                 "debug",
		"explorer":              "explorer",
		"allow-queries-via-get": "allow_queries_via_get",
		"enable-art":            "enable_art",
		"max-body-bytes":        "max_body_bytes",
		"service":               "service",
		"polling-interval":      "polling_interval",
		"max-concurrency":       "max_concurrency",
		"events":                "events",
	}

	for flag, key := range names {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind flag %s", flag)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}

	services, err := parseServices(v.GetStringSlice("service"))
	if err != nil {
		return Config{}, err
	}
	config.Services = append(config.Services, services...)

	if len(config.Services) == 0 {
		return Config{}, errors.New("no subgraph services configured")
	}

	switch config.Events {
	case eventsREST, eventsHTTP, eventsProxy:
	default:
		return Config{}, errors.Errorf("unknown lambda event format %q", config.Events)
	}

	return config, nil
}

// parseServices reads name=url pairs, optionally followed by ",ws-url" for subscriptions.
func parseServices(values []string) ([]ServiceConfig, error) {
	services := make([]ServiceConfig, 0, len(values))

	for _, value := range values {
		name, urls, ok := strings.Cut(value, "=")
		url, ws, _ := strings.Cut(urls, ",")
		if !ok || name == "" || url == "" {
			return nil, errors.Errorf("invalid service %q, expected name=url[,ws-url]", value)
		}
		services = append(services, ServiceConfig{Name: name, URL: url, WS: ws})
	}

	return services, nil
}

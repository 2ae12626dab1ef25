// Copyright 2024 The Subvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package subvisor

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/BurntSushi/toml"
	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const EnvPrefix = "SUBVISOR_"

var ErrBadConfig = errors.New("bad configuration")

// Config is shared by the Supervisor and every worker.  Workers inherit
// the Supervisor's command line and environment, so they resolve the same
// values.
type Config struct {
	Registry    string `toml:"registry" env:"REGISTRY"`
	Profile     string `toml:"profile" env:"PROFILE"`
	Domain      string `toml:"domain" env:"DOMAIN"`
	SiteAlias   string `toml:"site_alias" env:"SITE_ALIAS"`
	ProxyHost   string `toml:"proxy_host" env:"PROXY_HOST"`
	ProxyPort   int    `toml:"proxy_port" env:"PROXY_PORT"`
	SitePort    int    `toml:"site_port" env:"SITE_PORT"`
	SiteRoot    string `toml:"site_root" env:"SITE_ROOT"`
	SourceURL   string `toml:"source_url" env:"SOURCE_URL"`
	MetricsAddr string `toml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `toml:"log_level" env:"LOG_LEVEL"`
	LogLines    int    `toml:"log_lines" env:"LOG_LINES"`
}

func DefaultConfig() Config {
	return Config{
		Registry:  "deployments.json",
		Profile:   Development.String(),
		SiteAlias: "www",
		ProxyHost: "0.0.0.0",
		ProxyPort: 3000,
		SitePort:  5000,
		SiteRoot:  ".",
		SourceURL: "https://github.com/dai-shi/waku/tree/main/examples/%s",
		LogLevel:  "info",
		LogLines:  MaxLogRecords,
	}
}

// LoadConfig layers the defaults, the TOML file at path (if path is not
// empty), a .env file in the working directory (if present), and finally
// SUBVISOR_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, e := toml.DecodeFile(path, &cfg); e != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, e)
		}
	}
	// A missing .env is normal.
	_ = godotenv.Load()
	if e := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); e != nil {
		return Config{}, fmt.Errorf("config env failed: %w", e)
	}
	if e := cfg.Validate(); e != nil {
		return Config{}, e
	}
	return cfg, nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func (c Config) Validate() error {
	if c.Registry == "" {
		return fmt.Errorf("%w: registry path is empty", ErrBadConfig)
	}
	if !validPort(c.ProxyPort) {
		return fmt.Errorf("%w: proxy_port %d", ErrBadConfig, c.ProxyPort)
	}
	if !validPort(c.SitePort) {
		return fmt.Errorf("%w: site_port %d", ErrBadConfig, c.SitePort)
	}
	if c.ProxyPort == c.SitePort {
		return fmt.Errorf("%w: proxy and site share port %d", ErrBadConfig, c.SitePort)
	}
	if c.SiteAlias == "" {
		return fmt.Errorf("%w: site_alias is empty", ErrBadConfig)
	}
	if c.MetricsAddr != "" {
		if _, _, e := net.SplitHostPort(c.MetricsAddr); e != nil {
			return fmt.Errorf("%w: metrics_addr: %v", ErrBadConfig, e)
		}
	}
	if _, e := zerolog.ParseLevel(c.LogLevel); e != nil {
		return fmt.Errorf("%w: log_level: %v", ErrBadConfig, e)
	}
	return nil
}

func (c Config) RuntimeProfile() RuntimeProfile {
	return ParseProfile(c.Profile)
}

// ProxyAddr is the public listen address of the router.
func (c Config) ProxyAddr() string {
	return net.JoinHostPort(c.ProxyHost, strconv.Itoa(c.ProxyPort))
}

// SiteAddr is the loopback listen address of the landing site.
func (c Config) SiteAddr() string {
	return net.JoinHostPort(loopback, strconv.Itoa(c.SitePort))
}

// DeploymentAddr is the loopback listen address for a deployment port.
func DeploymentAddr(port int) string {
	return net.JoinHostPort(loopback, strconv.Itoa(port))
}

const loopback = "127.0.0.1"

package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration. Tenant id, backend
// addresses and the auth secret are passed explicitly into components
// at startup, never read from ambient scope.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Tenant struct {
		ID string `yaml:"id"`
	} `yaml:"tenant"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

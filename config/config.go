package config

import (
	_ "embed"
)

// bridge config
//
//go:embed default.config.yml
var DefaultConfigYml string

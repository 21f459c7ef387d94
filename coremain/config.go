/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of nsrouter.
 *
 * nsrouter is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * nsrouter is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package coremain

import (
	"github.com/IrineSistiana/nsrouter/mlog"
	"github.com/IrineSistiana/nsrouter/pkg/nserver"
)

type Config struct {
	Log     mlog.LogConfig   `yaml:"log"`
	Include []string         `yaml:"include"`
	Server  nserver.Settings `yaml:"server"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Rules   []RuleConfig     `yaml:"rules"`

	// SuffixFile overrides the public suffix list used by wildcard
	// {base_domain} expansion. The file is watched and reloaded.
	SuffixFile string `yaml:"suffix_file"`
}

// RuleConfig is a static rule. Pattern is interpreted by rules.New, the
// records are zone file RR strings served as fixed answers.
type RuleConfig struct {
	// Pattern, required. A domain or a "*"/"**"/"{base_domain}" wildcard
	// pattern. Regular expressions are not supported here, a pattern
	// without wildcard tokens is matched as a static name.
	Pattern string `yaml:"pattern"`

	// Types are the record types this rule answers, e.g. ["A", "AAAA"].
	// Empty means all types.
	Types []string `yaml:"types"`

	// Records are RR strings in zone file syntax.
	Records []string `yaml:"records"`

	// File is a zone file to serve. Exactly one of Records and File must
	// be set.
	File string `yaml:"file"`
}

type MetricsConfig struct {
	// HTTP is the "host:port" addr of the metrics endpoint. Empty
	// disables it.
	HTTP string `yaml:"http"`
}

func exampleConfig() *Config {
	return &Config{
		Log: mlog.LogConfig{Level: "info"},
		Server: nserver.Settings{
			Address:    "127.0.0.1",
			Port:       53,
			Transports: []string{"udp", "tcp"},
		},
		Metrics: MetricsConfig{HTTP: "127.0.0.1:9100"},
		Rules: []RuleConfig{
			{
				Pattern: "example.com",
				Types:   []string{"A"},
				Records: []string{"example.com. 300 IN A 192.0.2.1"},
			},
			{
				Pattern: "**.example.org",
				File:    "/etc/nsrouter/example.org.zone",
			},
		},
	}
}

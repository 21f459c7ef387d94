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

// Package coremain loads a config file and runs a dns server from it.
package coremain

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/IrineSistiana/nsrouter/mlog"
	"github.com/kardianos/service"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var version = "dev/unknown"

var rootCmd = &cobra.Command{
	Use:     "nsrouter",
	Version: version,
}

func init() {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the nsrouter server.",
		Run:   StartServer,
	}
	rootCmd.AddCommand(startCmd)
	fs := startCmd.PersistentFlags()
	fs.StringVarP(&sf.c, "config", "c", "", "config file")
	fs.StringVar(&sf.dir, "dir", "", "working dir")
	fs.BoolVarP(&sf.debug, "debug", "d", false, "force debug logging")
	fs.IntVar(&sf.cpu, "cpu", 0, "set runtime.GOMAXPROCS")
	fs.BoolVar(&sf.asService, "as-service", false, "started by a service manager")
	fs.MarkHidden("as-service")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print an example config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := yaml.Marshal(exampleConfig())
			if err != nil {
				return err
			}
			fmt.Print(string(b))
			return nil
		},
	}
	rootCmd.AddCommand(configCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	serviceCmd := &cobra.Command{
		Use:               "service",
		Short:             "Manage nsrouter as a system service.",
		PersistentPreRunE: initService,
	}
	serviceCmd.AddCommand(
		newSvcInstallCmd(),
		newSvcUninstallCmd(),
		newSvcStartCmd(),
		newSvcStopCmd(),
		newSvcRestartCmd(),
		newSvcStatusCmd(),
	)
	rootCmd.AddCommand(serviceCmd)
}

func AddSubCmd(c *cobra.Command) {
	rootCmd.AddCommand(c)
}

func Run() error {
	return rootCmd.Execute()
}

type serverFlags struct {
	c         string
	dir       string
	debug     bool
	cpu       int
	asService bool
}

var sf = serverFlags{}

func StartServer(cmd *cobra.Command, args []string) {
	if sf.asService {
		svc, err := service.New(&serverService{f: &sf}, svcCfg)
		if err != nil {
			mlog.L().Fatal("failed to init service", zap.Error(err))
		}
		if err := svc.Run(); err != nil {
			mlog.L().Fatal("service exited", zap.Error(err))
		}
		return
	}

	app, err := newAppFromFlags(&sf)
	if err != nil {
		mlog.L().Fatal("failed to start", zap.Error(err))
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		sig := <-c
		app.Logger().Info("signal received, exiting", zap.Stringer("signal", sig))
		app.Close()
	}()

	if err := app.Run(); err != nil {
		app.Logger().Fatal("server exited", zap.Error(err))
	}
	app.Logger().Info("server exited")
}

func newAppFromFlags(sf *serverFlags) (*App, error) {
	if sf.cpu > 0 {
		runtime.GOMAXPROCS(sf.cpu)
	}
	if sf.debug {
		mlog.SetLevel(zap.DebugLevel)
	}

	if len(sf.dir) > 0 {
		if err := os.Chdir(sf.dir); err != nil {
			return nil, fmt.Errorf("failed to change the working directory, %w", err)
		}
		mlog.L().Info("working directory changed", zap.String("path", sf.dir))
	}

	cfg, err := loadConfig(sf.c)
	if err != nil {
		return nil, err
	}

	if sf.debug {
		cfg.Log.Level = zapcore.DebugLevel.String()
	}
	logger, err := mlog.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger, %w", err)
	}

	return NewApp(cfg, logger)
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	if len(path) > 0 {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file, %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to parse config file, %w", err)
	}

	cfgPath := v.ConfigFileUsed()
	if err := mergeInclude(cfg, 0, []string{cfgPath}, []string{tryGetAbsPath(cfgPath)}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decoderOpt(cfg *mapstructure.DecoderConfig) {
	cfg.ErrorUnused = true
	cfg.TagName = "yaml"
	cfg.WeaklyTypedInput = true
}

func mergeInclude(cfg *Config, depth int, paths, absPaths []string) error {
	depth++
	if depth > 8 {
		return fmt.Errorf("maximum include depth reached, include path is %s", strings.Join(paths, " -> "))
	}
	for _, subCfgFile := range cfg.Include {
		subPaths := append(paths, subCfgFile)
		subCfgAbsPath := tryGetAbsPath(subCfgFile)
		subAbsPaths := append(absPaths, subCfgAbsPath)
		for _, includedAbsPath := range absPaths {
			if includedAbsPath == subCfgAbsPath {
				return fmt.Errorf("include cycle detected, include path is %s", strings.Join(subPaths, " -> "))
			}
		}

		mlog.L().Info("reading sub config", zap.String("file", subCfgFile))
		subV := viper.New()
		subV.SetConfigFile(subCfgFile)
		if err := subV.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read sub config file %s, %w", subCfgFile, err)
		}
		subCfg := new(Config)
		if err := subV.Unmarshal(subCfg, decoderOpt); err != nil {
			return fmt.Errorf("failed to parse sub config file %s, %w", subCfgFile, err)
		}
		if err := mergeInclude(subCfg, depth, subPaths, subAbsPaths); err != nil {
			return err
		}

		cfg.Rules = append(cfg.Rules, subCfg.Rules...)
		if len(subCfg.Server.Transports) > 0 || subCfg.Server.Port != 0 {
			mlog.L().Warn("server config in sub config files will be ignored", zap.String("file", subCfgFile))
		}
	}
	return nil
}

func tryGetAbsPath(s string) string {
	p, err := filepath.Abs(s)
	if err != nil {
		return s
	}
	return p
}

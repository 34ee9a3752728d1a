// Package config finds and merges the `grant.yaml` CLI configuration.
package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/schema"
)

// LoadConfig loads `grant.yaml` from the following locations (from lower to
// higher priority):
// system dir (`/usr/local/etc/grant` on Linux)
// XDG config dir (`~/.config/grant`)
// home dir (`~/.grant`)
// current directory
// ENV vars (prefix `GRANT_`)
func LoadConfig() (schema.GrantConfiguration, error) {
	v := viper.New()
	var grantConfig schema.GrantConfiguration
	v.SetConfigType("yaml")
	v.SetTypeByDefaultValue(true)

	for _, dir := range searchDirs() {
		if err := mergeConfigDir(v, dir); err != nil {
			return grantConfig, err
		}
	}

	v.SetEnvPrefix("GRANT")
	v.AutomaticEnv()

	if v.ConfigFileUsed() == "" {
		log.Debug("'grant.yaml' CLI config was not found", "paths", "system dir, XDG config dir, home dir, current dir")
		log.Debug("Using the default CLI config")
		j, err := json.Marshal(defaultCliConfig)
		if err != nil {
			return grantConfig, err
		}
		if err := v.MergeConfig(bytes.NewReader(j)); err != nil {
			return grantConfig, err
		}
	}

	if err := v.Unmarshal(&grantConfig); err != nil {
		return grantConfig, err
	}

	applyProviderDefaults(&grantConfig)

	return grantConfig, nil
}

func searchDirs() []string {
	dirs := []string{SystemDirConfigFilePath}

	dirs = append(dirs, filepath.Join(xdg.ConfigHome, "grant"))

	if home, err := homedir.Dir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".grant"))
	}

	dirs = append(dirs, ".")
	return dirs
}

func mergeConfigDir(v *viper.Viper, dir string) error {
	v.AddConfigPath(dir)
	v.SetConfigName(CliConfigFileName)
	err := v.MergeInConfig()
	if err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			return nil
		default:
			return err
		}
	}
	log.Debug("merged CLI config", "file", v.ConfigFileUsed())
	return nil
}

// applyProviderDefaults fills in built-in provider settings for any provider
// the user's config does not mention, and backfills pattern sets the user's
// provider entry leaves empty.
func applyProviderDefaults(grantConfig *schema.GrantConfiguration) {
	if grantConfig.Providers == nil {
		grantConfig.Providers = map[string]schema.Provider{}
	}
	for name, def := range defaultCliConfig.Providers {
		p, ok := grantConfig.Providers[name]
		if !ok {
			grantConfig.Providers[name] = def
			continue
		}
		if p.Kind == "" {
			p.Kind = def.Kind
		}
		if len(p.ProxyCommand) == 0 {
			p.ProxyCommand = def.ProxyCommand
		}
		if len(p.UnprovisionedAccessPatterns) == 0 {
			p.UnprovisionedAccessPatterns = def.UnprovisionedAccessPatterns
		}
		if len(p.ValidAccessPatterns) == 0 {
			p.ValidAccessPatterns = def.ValidAccessPatterns
		}
		if p.LoginRequiredPattern == "" {
			p.LoginRequiredPattern = def.LoginRequiredPattern
		}
		if p.AuthSuccessPattern == "" {
			p.AuthSuccessPattern = def.AuthSuccessPattern
		}
		if p.LoginHint == "" {
			p.LoginHint = def.LoginHint
		}
		if p.PropagationTimeout == 0 {
			p.PropagationTimeout = def.PropagationTimeout
		}
		grantConfig.Providers[name] = p
	}
	if grantConfig.Backend.BaseURL == "" {
		grantConfig.Backend = defaultCliConfig.Backend
	}
	if grantConfig.Session.RetryDelay == 0 {
		grantConfig.Session.RetryDelay = defaultCliConfig.Session.RetryDelay
	}
	if grantConfig.Session.ValidationWindow == 0 {
		grantConfig.Session.ValidationWindow = defaultCliConfig.Session.ValidationWindow
	}
	if grantConfig.Backend.GrantWindow == 0 {
		grantConfig.Backend.GrantWindow = defaultCliConfig.Backend.GrantWindow
	}
}

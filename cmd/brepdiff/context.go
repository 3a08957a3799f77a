package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"brepdiff/internal/config"
)

type commandContext struct {
	configFlag *string
	setFlags   *[]string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, setFlags *[]string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		setFlags:   setFlags,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	return config.DefaultConfigPath()
}

func (c *commandContext) overrides() ([]config.Override, error) {
	if c.setFlags == nil {
		return nil, nil
	}
	overrides := make([]config.Override, 0, len(*c.setFlags))
	for _, raw := range *c.setFlags {
		ov, err := config.ParseOverride(raw)
		if err != nil {
			return nil, fmt.Errorf("parse --set %q: %w", raw, err)
		}
		overrides = append(overrides, ov)
	}
	return overrides, nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		overrides, err := c.overrides()
		if err != nil {
			c.configErr = err
			return
		}
		cfg, err := config.Load(c.configPath(), overrides...)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"cardforge/internal/client"
	"cardforge/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// serverAddress prefers the --server flag over the configured bind address.
func (c *commandContext) serverAddress() string {
	if c.serverFlag != nil {
		if addr := strings.TrimSpace(*c.serverFlag); addr != "" {
			return addr
		}
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return cfg.Paths.APIBind
	}
	return config.Default().Paths.APIBind
}

func (c *commandContext) client() *client.Client {
	return client.New(c.serverAddress())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

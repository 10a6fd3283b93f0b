package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/swcache/internal/config"
)

var (
	configPath string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "swcache",
	Short: "Static-asset cache worker in front of a storefront",
	Long: `swcache runs the asset cache worker as a caching reverse proxy.

Same-origin GET requests for static assets are served network-first and
copied into a versioned cache; when the upstream is unreachable they are
answered from cache, and page navigations fall back to the cached root page.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal-aware context.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "swcache:", err)
		cancel()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, configPath)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (env: SWCACHE_*)")
	rootCmd.PersistentFlags().String("origin", "", "public origin the worker controls, e.g. https://shop.example")
	_ = v.BindPFlag("origin", rootCmd.PersistentFlags().Lookup("origin"))

	rootCmd.Version = versionString()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInspectCmd())
}

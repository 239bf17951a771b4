package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tanq16/danzo-http/internal/config"
	"github.com/tanq16/danzo-http/internal/metrics"
	"github.com/tanq16/danzo-http/internal/output"
	"github.com/tanq16/danzo-http/internal/utils"
)

var (
	cfgFile       string
	connections   int
	workers       int
	retries       int
	chunkSize     string
	bufferSize    string
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	savePath      string
	metricsAddr   string
	debug         bool
	fileLog       bool
)

// Effective settings, resolved before any subcommand runs.
var (
	settings         config.Config
	globalHTTPConfig utils.HTTPClientConfig
	downloadSettings utils.DownloadSettings
)

var DanzoVersion = "dev"

var rootCmd = &cobra.Command{
	Use:               "danzo",
	Short:             "Danzo is a fast CLI download manager",
	Version:           DanzoVersion,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML config file (default .danzo.yaml if present)")
	flags.IntVarP(&connections, "connections", "c", 8, "Number of connections per download (above 5 enables high-thread-mode)")
	flags.IntVarP(&workers, "workers", "w", 1, "Number of links to download in parallel")
	flags.IntVarP(&retries, "retries", "r", 3, "Retries per segment before the download fails")
	flags.StringVar(&chunkSize, "chunk-size", "2MiB", "Size of each download segment (eg. 512KiB, 4MiB)")
	flags.StringVar(&bufferSize, "buffer-size", "64KiB", "Read buffer per connection")
	flags.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	flags.StringVar(&savePath, "save-path", "", "Directory for downloads whose output path is inferred")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (eg. 127.0.0.1:9090)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&fileLog, "log", false, "Write logs to "+utils.LogFile+" instead of the terminal")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := utils.InitLogger(cfg.Debug, cfg.LogFile); err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	settings = cfg
	globalHTTPConfig = httpConfigFrom(cfg)
	downloadSettings = utils.DownloadSettings{
		ChunkSize:  int64(cfg.ChunkSize),
		BufferSize: int(cfg.BufferSize),
		RetryCount: cfg.Retries,
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server stopped")
			}
		}()
	}
	return nil
}

// applyFlags copies flags set on the command line over cfg; defaults never override the
// config file or environment.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("connections") {
		cfg.Connections = connections
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("retries") {
		cfg.Retries = retries
	}
	if flags.Changed("chunk-size") {
		size, err := config.ParseSize(chunkSize)
		if err != nil {
			return err
		}
		cfg.ChunkSize = size
	}
	if flags.Changed("buffer-size") {
		size, err := config.ParseSize(bufferSize)
		if err != nil {
			return err
		}
		cfg.BufferSize = size
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.KATimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		cfg.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.ProxyPassword = proxyPassword
	}
	if flags.Changed("header") {
		cfg.Headers = append(cfg.Headers, headers...)
	}
	if flags.Changed("save-path") {
		cfg.SavePath = savePath
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("log") {
		cfg.LogFile = fileLog
	}
	return nil
}

func httpConfigFrom(cfg config.Config) utils.HTTPClientConfig {
	proxy, username, password := cfg.Proxy, cfg.ProxyUsername, cfg.ProxyPassword
	// Credentials embedded in the proxy URL are used unless given separately
	parsedProxy, err := u.Parse(proxy)
	if proxy != "" && err == nil && parsedProxy.User != nil {
		if username == "" {
			username = parsedProxy.User.Username()
			if pass, set := parsedProxy.User.Password(); set {
				password = pass
			}
		}
		parsedProxy.User = nil
		proxy = parsedProxy.String()
	}
	return utils.HTTPClientConfig{
		Timeout:       cfg.Timeout,
		KATimeout:     cfg.KATimeout,
		ProxyURL:      proxy,
		ProxyUsername: username,
		ProxyPassword: password,
		UserAgent:     cfg.UserAgent,
		Headers:       utils.ParseHeaderArgs(cfg.Headers),
	}
}

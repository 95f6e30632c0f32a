// Package main implements geobus-streams, the stream administration tool.
// It declares, inspects, purges and deletes the streams geobus services
// publish into.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/tokenism/geobus/bus"
	"github.com/tokenism/geobus/config"
)

// Build information constants
const (
	Version = "0.2.0"
	appName = "geobus-streams"
)

// cliFlags holds parsed command-line flags
type cliFlags struct {
	configPath  string
	url         string
	timeout     time.Duration
	jsonOut     bool
	verbose     bool
	showVersion bool
}

func main() {
	flags, args := parseCommandLineFlags()

	if flags.showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	setupLogger(flags.verbose)

	if err := run(flags, args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// parseCommandLineFlags parses and returns command-line flags plus the
// positional command arguments.
func parseCommandLineFlags() (*cliFlags, []string) {
	flags := &cliFlags{}

	flag.StringVar(&flags.configPath, "config",
		os.Getenv("GEOBUS_CONFIG"),
		"Path to configuration file, empty for defaults (env: GEOBUS_CONFIG)")
	flag.StringVar(&flags.configPath, "c",
		os.Getenv("GEOBUS_CONFIG"),
		"Path to configuration file, empty for defaults (env: GEOBUS_CONFIG)")
	flag.StringVar(&flags.url, "url", "", "Bus URL override")
	flag.DurationVar(&flags.timeout, "timeout", 30*time.Second, "Operation timeout")
	flag.BoolVar(&flags.jsonOut, "json", false, "Emit JSON instead of tables")
	flag.BoolVar(&flags.verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.showVersion, "version", false, "Show version information")

	flag.Usage = printUsage
	flag.Parse()

	return flags, flag.Args()
}

// setupLogger keeps stdout for command output; logs go to stderr, tagged
// with an operation id so scripted runs can be told apart.
func setupLogger(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler).With("op_id", uuid.NewString()))
}

func run(flags *cliFlags, args []string) error {
	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.url != "" {
		cfg.Bus.URL = flags.url
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client, err := connectBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	command, target := args[0], cfg.Stream.Name
	if len(args) > 1 {
		target = args[1]
	}

	switch command {
	case "ensure":
		return ensureStream(ctx, client, cfg, flags)
	case "info":
		return showStream(ctx, client, target, flags)
	case "list":
		return listStreams(ctx, client, flags)
	case "purge":
		return purgeStream(ctx, client, target)
	case "delete":
		return deleteStream(ctx, client, target)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// connectBus builds the bus client from configuration and waits for the
// connection to be ready.
func connectBus(ctx context.Context, cfg *config.Config) (*bus.Client, error) {
	opts, err := cfg.Bus.Options()
	if err != nil {
		return nil, fmt.Errorf("bus options: %w", err)
	}
	opts = append(opts, bus.WithSlog(slog.Default()))

	client, err := bus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create bus client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}
	if err := client.WaitForConnection(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bus connection timeout: %w", err)
	}
	return client, nil
}

// ensureStream declares the configured stream and prints its state.
func ensureStream(ctx context.Context, client *bus.Client, cfg *config.Config, flags *cliFlags) error {
	decl := cfg.Stream.Stream()
	if err := client.EnsureStream(ctx, decl); err != nil {
		return err
	}
	return showStream(ctx, client, decl.Name, flags)
}

func showStream(ctx context.Context, client *bus.Client, name string, flags *cliFlags) error {
	info, err := client.StreamInfo(ctx, name)
	if err != nil {
		return err
	}
	if flags.jsonOut {
		return printJSON(info)
	}

	fmt.Printf("Name:       %s\n", info.Name)
	fmt.Printf("Subjects:   %s\n", strings.Join(info.Subjects, ", "))
	fmt.Printf("Max age:    %s\n", info.MaxAge)
	fmt.Printf("Messages:   %d\n", info.Messages)
	fmt.Printf("Bytes:      %d\n", info.Bytes)
	fmt.Printf("Consumers:  %d\n", info.Consumers)
	fmt.Printf("Created:    %s\n", info.Created.Format(time.RFC3339))
	return nil
}

func listStreams(ctx context.Context, client *bus.Client, flags *cliFlags) error {
	infos, err := client.ListStreams(ctx)
	if err != nil {
		return err
	}
	if flags.jsonOut {
		return printJSON(infos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSUBJECTS\tMESSAGES\tBYTES\tCONSUMERS\tMAX AGE")
	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			info.Name, strings.Join(info.Subjects, ","),
			info.Messages, info.Bytes, info.Consumers, info.MaxAge)
	}
	return w.Flush()
}

func purgeStream(ctx context.Context, client *bus.Client, name string) error {
	if err := client.PurgeStream(ctx, name); err != nil {
		return err
	}
	fmt.Printf("stream %s purged\n", name)
	return nil
}

func deleteStream(ctx context.Context, client *bus.Client, name string) error {
	if err := client.DeleteStream(ctx, name); err != nil {
		return err
	}
	fmt.Printf("stream %s deleted\n", name)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Stream Administration

Usage: %s [options] <command> [stream]

Commands:
  ensure            declare the configured stream (create or update)
  info [stream]     show the state of a stream
  list              list all streams on the server
  purge [stream]    drop all retained messages, keeping the stream
  delete [stream]   remove a stream and everything it retains

The stream argument defaults to the configured stream name.

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Declare the GEOMETRY stream with its 30-day retention
  %s ensure

  # Inspect it
  %s info GEOMETRY

  # Drop retained packets before a reprocessing run
  %s purge GEOMETRY

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], Version)
}

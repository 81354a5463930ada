package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	app        *app.App
	ownsApp    bool
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	palette    *Palette
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	App        *app.App
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		app:        opts.App,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    styles,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, playlistsCommand, convertCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by the global --config flag unless one was injected.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}

	if r.config == nil {
		config, err := r.loadConfig()
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	shared.ConfigureLogger(r.logger, r.config.Logging)
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// loadConfig reads the config file, falling back to defaults plus the environment when it is missing.
func (r *Runner) loadConfig() (*shared.Config, error) {
	config, err := shared.LoadConfig(r.configPath)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, shared.ErrMissingConfig) {
		return nil, err
	}

	r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	config = shared.DefaultConfig()
	config.ApplyEnv()
	return config, config.Validate()
}

// open builds the application on first use and binds it to the current profile.
func (r *Runner) open(ctx context.Context) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	a, err := app.Open(ctx, r.config, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open application: %w", err)
	}
	r.app, r.ownsApp = a, true

	if _, err := a.LinkProfile(ctx); err != nil {
		r.logger.Warn("failed to link profile", "err", err)
	}
	return a, nil
}

// Close releases the application if the runner opened it.
func (r *Runner) Close() {
	if r.ownsApp && r.app != nil {
		if err := r.app.Close(); err != nil {
			r.logger.Warn("failed to close database", "err", err)
		}
		r.app, r.ownsApp = nil, false
	}
}

// provider parses the named positional provider argument.
func (r *Runner) provider(cmd *cli.Command, name string) (models.Provider, error) {
	return parseProvider(name, cmd.StringArg(name))
}

func parseProvider(name, value string) (models.Provider, error) {
	if value == "" {
		return "", fmt.Errorf("%w: %s (google or spotify)", shared.ErrMissingArgument, name)
	}

	p, err := models.ParseProvider(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return p, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", r.palette.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}

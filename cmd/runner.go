package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/desertthunder/heatx/internal/tasks"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Environment variables read when --token / --refresh-token are not given.
var tokenEnv = map[string][2]string{
	models.SourceStrava:      {"STRAVA_ACCESS_TOKEN", "STRAVA_REFRESH_TOKEN"},
	models.SourceRideWithGPS: {"RWGPS_ACCESS_TOKEN", "RWGPS_REFRESH_TOKEN"},
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	strava     *services.StravaService
	rwgps      *services.RideWithGPSService
	api        *services.ProxyClient
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	getenv     func(string) string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	Strava      *services.StravaService
	RideWithGPS *services.RideWithGPSService
	API         *services.ProxyClient
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Getenv      func(string) string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.API == nil {
		opts.API = services.NewProxyClient("http://"+opts.Config.Server.Addr(), opts.HTTPClient)
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	return &Runner{
		config:     opts.Config,
		strava:     opts.Strava,
		rwgps:      opts.RideWithGPS,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		getenv:     opts.Getenv,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, stravaCommand, rwgpsCommand, polylineCommand, syncCommand,
		heatmapCommand, exportCommand, serveCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// newEngine builds a heatmap engine from the heatmap config. cache and recorder may be nil.
func (r *Runner) newEngine(cache tasks.ActivityCacher, recorder tasks.SyncRecorder) (*tasks.HeatmapEngine, error) {
	return tasks.NewHeatmapEngine(tasks.EngineOpts{
		Cache:     cache,
		Recorder:  recorder,
		Logger:    r.logger,
		Precision: &r.config.Heatmap.Precision,
		Workers:   r.config.Heatmap.Workers,
		RateLimit: r.config.Heatmap.RateLimit,
	})
}

// source returns the configured upstream named name.
func (r *Runner) source(name string) (services.Source, error) {
	switch name {
	case models.SourceStrava, "":
		if r.strava == nil {
			return nil, fmt.Errorf("%w: Strava client_id and client_secret must be set in config.toml", shared.ErrServiceUnavailable)
		}
		return r.strava, nil
	case models.SourceRideWithGPS, "rwgps":
		if r.rwgps == nil {
			return nil, fmt.Errorf("%w: RideWithGPS client_id and client_secret must be set in config.toml", shared.ErrServiceUnavailable)
		}
		return r.rwgps, nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q (use strava or rwgps)", shared.ErrInvalidArgument, name)
	}
}

// normalizeSource maps the short "rwgps" alias to the cached source key.
func normalizeSource(name string) string {
	if name == "rwgps" {
		return models.SourceRideWithGPS
	}
	return name
}

func normalizeSources(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = normalizeSource(n)
	}
	return out
}

// token reads the caller's credentials for source from flags, falling back to the environment.
//
// A refresh token on its own yields a token that is refreshed before first use.
func (r *Runner) token(cmd *cli.Command, source string) (*oauth2.Token, error) {
	access, refresh := cmd.String("token"), cmd.String("refresh-token")
	env := tokenEnv[source]
	if access == "" {
		access = r.getenv(env[0])
	}
	if refresh == "" {
		refresh = r.getenv(env[1])
	}

	if access == "" && refresh != "" {
		return &oauth2.Token{RefreshToken: refresh}, nil
	}
	tok, err := shared.TokenFromEnv(access, refresh)
	if err != nil {
		return nil, fmt.Errorf("%w: pass --token or set %s", err, env[0])
	}
	return tok, nil
}

// session builds the per-call session for src. Tokens with a refresh token renew themselves.
func (r *Runner) session(ctx context.Context, cmd *cli.Command, src services.Source) (*services.Session, error) {
	tok, err := r.token(cmd, src.Name())
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" {
		r.logger.Debug("using refreshing session", "source", src.Name())
		return services.NewRefreshingSession(ctx, src.OAuthConfig(), tok), nil
	}
	return services.NewSession(tok), nil
}

// renderProgress draws updates until progress closes; the returned channel closes after the last one.
//
// Phases that report steps get a progress bar, everything else is printed as a line.
func (r *Runner) renderProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var bar *progressbar.ProgressBar
		phase := tasks.Phase(-1)
		finish := func() {
			if bar != nil {
				bar.Finish()
				r.writePlain("\n")
				bar = nil
			}
		}

		for update := range progress {
			if update.Phase != phase {
				finish()
				phase = update.Phase
			}

			switch {
			case update.Phase == tasks.FetchActivities:
				if bar == nil {
					bar = r.newBar(-1, update.Phase.String())
				}
				bar.Set(update.Step)
			case update.Total > 1 && update.Step > 0:
				if bar == nil {
					bar = r.newBar(update.Total, update.Phase.String())
				}
				bar.Set(update.Step)
			default:
				r.writePlain("%s\n", update.Message)
			}
		}
		finish()
	}()
	return done
}

func (r *Runner) newBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(r.output),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
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
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// writeOutput writes data to path, or to the runner's output when path is empty.
func (r *Runner) writeOutput(path string, data []byte) error {
	if path == "" {
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return r.writePlain("\n")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.logger.Info("wrote output", "path", path, "bytes", len(data))
	return nil
}

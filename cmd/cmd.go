// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// tokenFlags are shared by every command that calls an upstream service.
func tokenFlags(source string) []cli.Flag {
	env := tokenEnv[source]
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   fmt.Sprintf("Access token (default: $%s)", env[0]),
		},
		&cli.StringFlag{
			Name:  "refresh-token",
			Usage: fmt.Sprintf("Refresh token, enables automatic refresh (default: $%s)", env[1]),
		},
	}
}

func outputFlags(pretty bool) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: pretty,
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// stravaCommand handles Strava operations
func stravaCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "strava",
		Usage: "Strava account and activity operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authorize with Strava and print the issued tokens",
				Action: r.StravaAuth,
			},
			{
				Name:  "activities",
				Usage: "List Strava activities",
				Flags: flags(tokenFlags(models.SourceStrava), outputFlags(false), []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page to fetch; 0 fetches every page",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "per-page",
						Usage: "Activities per page (max 200)",
						Value: 30,
					},
				}),
				Action: r.StravaActivities,
			},
			{
				Name:  "activity",
				Usage: "Show one Strava activity",
				Flags: flags(tokenFlags(models.SourceStrava), outputFlags(true), []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Activity ID",
						Required: true,
					},
				}),
				Action: r.StravaActivity,
			},
		},
	}
}

// rwgpsCommand handles RideWithGPS operations
func rwgpsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "rwgps",
		Aliases: []string{"ridewithgps"},
		Usage:   "RideWithGPS account and trip operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authorize with RideWithGPS and print the issued tokens",
				Action: r.RWGPSAuth,
			},
			{
				Name:  "trips",
				Usage: "List RideWithGPS trips",
				Flags: flags(tokenFlags(models.SourceRideWithGPS), outputFlags(false), []cli.Flag{
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Index of the first trip",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Trips to fetch; 0 fetches every trip",
						Value: 20,
					},
				}),
				Action: r.RWGPSTrips,
			},
			{
				Name:  "trip",
				Usage: "Show one RideWithGPS trip",
				Flags: flags(tokenFlags(models.SourceRideWithGPS), outputFlags(true), []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Trip ID",
						Required: true,
					},
				}),
				Action: r.RWGPSTrip,
			},
			{
				Name:   "user",
				Usage:  "Show the authenticated RideWithGPS user",
				Flags:  flags(tokenFlags(models.SourceRideWithGPS), outputFlags(true)),
				Action: r.RWGPSUser,
			},
		},
	}
}

// polylineCommand handles local polyline encoding and decoding
func polylineCommand(r *Runner) *cli.Command {
	precision := &cli.IntFlag{
		Name:    "precision",
		Aliases: []string{"p"},
		Usage:   "Decimal digits kept per coordinate (0-10)",
		Value:   5,
	}
	return &cli.Command{
		Name:    "polyline",
		Aliases: []string{"pl"},
		Usage:   "Encode and decode polylines",
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Encode lat,lng pairs or a JSON array of [lat, lng] points",
				ArgsUsage: "<lat,lng>... | <json>",
				Flags:     []cli.Flag{precision},
				Action:    r.PolylineEncode,
			},
			{
				Name:      "decode",
				Usage:     "Decode a polyline into points",
				ArgsUsage: "<polyline>",
				Flags:     flags([]cli.Flag{precision}, outputFlags(false)),
				Action:    r.PolylineDecode,
			},
		},
	}
}

// syncCommand fetches activities into the local cache
func syncCommand(r *Runner) *cli.Command {
	sub := func(source, alias string) *cli.Command {
		return &cli.Command{
			Name:    alias,
			Aliases: []string{source},
			Usage:   fmt.Sprintf("Fetch every %s activity into the cache", source),
			Flags:   tokenFlags(source),
			Action:  r.Sync(source),
		}
	}
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch activities and their tracks into the local cache",
		Commands: []*cli.Command{
			sub(models.SourceStrava, "strava"),
			sub(models.SourceRideWithGPS, "rwgps"),
		},
	}
}

// heatmapCommand builds a heatmap from cached and local tracks
func heatmapCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "heatmap",
		Usage: "Build a heatmap from cached activities and GPX files",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "source",
				Usage: "Cached source to include (strava, ridewithgps); repeatable, default all",
			},
			&cli.StringSliceFlag{
				Name:  "gpx",
				Usage: "GPX file to include; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "polyline",
				Usage: "Encoded polyline to include; repeatable",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Ignore the cache and use only --gpx and --polyline input",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: " + strings.Join(heatmapFormats, ", "),
				Value:   "geojson",
			},
			&cli.BoolFlag{
				Name:  "density",
				Usage: "Bin points into H3 cells instead of emitting segments",
			},
			&cli.IntFlag{
				Name:  "resolution",
				Usage: "H3 resolution for --density (0-15; default from config)",
				Value: -1,
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "Segments listed by the text format",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout)",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Action: r.Heatmap,
	}
}

// exportCommand writes one file per cached activity
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export cached activities as one track file each",
		Flags: flags(tokenFlags(models.SourceRideWithGPS), []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Cached source to export (strava, ridewithgps); default all",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   fmt.Sprintf("File format: %s, %s, %s", tasks.FormatGeoJSON, tasks.FormatGPX, tasks.FormatJSON),
				Value:   tasks.FormatGeoJSON,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: heatx_export_{epoch})",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent workers (default from config)",
			},
			&cli.BoolFlag{
				Name:  "resolve",
				Usage: "Fetch missing RideWithGPS tracks with --token / $RWGPS_ACCESS_TOKEN",
			},
		}),
		Action: r.Export,
	}
}

// serveCommand runs the proxy server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP proxy for browser clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from config)",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Expose Prometheus metrics at /metrics",
				Value: true,
			},
		},
		Action: r.Serve,
	}
}

// apiCommand handles direct (proxy) API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to the heatx proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "token",
				Usage: "Bearer token forwarded to the proxy",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET to the proxy, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing cached activities.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse cached activities and build heatmaps interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Limit to one cached source (strava, ridewithgps)",
			},
			&cli.BoolFlag{
				Name:  "density",
				Usage: "Also bin points into H3 cells",
			},
			&cli.IntFlag{
				Name:  "resolution",
				Usage: "H3 resolution for --density (default from config)",
				Value: -1,
			},
		},
		Action: r.TUI,
	}
}

package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/desertthunder/heatx/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/heatx-tui.log"

// TUI launches the interactive terminal UI over the activity cache.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, logFile, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(fileLogger)

	c, err := r.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	engine, err := r.newEngine(c.adapter, nil)
	if err != nil {
		return err
	}

	resolution := cmd.Int("resolution")
	if resolution < 0 {
		resolution = r.config.Heatmap.H3Resolution
	}

	model := ui.NewModel(ctx, c.activities, engine, ui.Options{
		Source:     normalizeSource(cmd.String("source")),
		Density:    cmd.Bool("density"),
		Resolution: resolution,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

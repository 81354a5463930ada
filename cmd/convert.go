package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	"github.com/desertthunder/melodari/internal/tasks"
	"github.com/urfave/cli/v3"
)

// otherProvider returns the platform a playlist is copied to by default.
func otherProvider(p models.Provider) models.Provider {
	if p == models.Google {
		return models.Spotify
	}
	return models.Google
}

// Convert copies a playlist to the other platform and prints the match report.
func (r *Runner) Convert(ctx context.Context, cmd *cli.Command) error {
	source, err := r.provider(cmd, "provider")
	if err != nil {
		return err
	}

	target := otherProvider(source)
	if to := cmd.String("to"); to != "" {
		if target, err = parseProvider("to", to); err != nil {
			return err
		}
	}

	req := app.ConvertRequest{
		Source:           source,
		Target:           target,
		PlaylistID:       cmd.StringArg("id"),
		TargetPlaylistID: cmd.String("target-id"),
		FailOnEmpty:      cmd.Bool("fail-on-empty"),
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("starting conversion", "source", source, "target", target, "playlist", req.PlaylistID)

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	quiet := cmd.Bool("json")
	go func() {
		defer close(done)
		for update := range progress {
			if !quiet {
				r.writeProgress(update)
			}
		}
	}()

	result, err := a.Convert(ctx, req, progress)
	close(progress)
	<-done

	if quiet && result != nil {
		if werr := r.writeJSON(result, true); werr != nil {
			return werr
		}
	} else if result != nil {
		r.writeSummary(result)
	}

	if errors.Is(err, tasks.ErrNoMatches) {
		return fmt.Errorf("%w: the target playlist was kept", err)
	}
	return err
}

func (r *Runner) writeProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.FetchSource:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.FindTarget:
		r.writePlain("🔎 %s\n", update.Message)
	case tasks.CreatePlaylist:
		r.writePlain("📝 %s\n", update.Message)
	case tasks.SearchSongs:
		r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
	case tasks.AddSongs:
		r.writePlain("➕ %s\n", update.Message)
	}
}

func (r *Runner) writeSummary(result *tasks.ConvertResult) {
	r.writePlain("\n")
	r.writePlainHeader("Conversion Complete!")
	r.writePlain("Source: %s (%d songs)\n", result.Source.Title, result.Total)
	if result.Target != nil {
		verb := "Existing"
		if result.Created {
			verb = "Created"
		}
		r.writePlain("Target: %s %s %s\n", verb, result.Target.Title, r.palette.Help("("+result.Target.ID+")"))
	}

	pct := 0.0
	if result.Total > 0 {
		pct = float64(result.Matched) / float64(result.Total) * 100
	}
	r.writePlain("Matched: %d/%d (%.1f%%)\n", result.Matched, result.Total, pct)

	if missed := result.Missed(); len(missed) > 0 {
		r.writePlain("\n%s No match for %d songs:\n", r.palette.Warn("⚠"), len(missed))
		for _, s := range missed {
			r.writePlain("  - %s\n", s.Query())
		}
	}
}

// History shows the profile's recent conversions.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	if limit < 1 {
		return fmt.Errorf("%w: limit must be positive", shared.ErrInvalidArgument)
	}

	conversions, err := a.History(ctx, limit)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(conversions, cmd.Bool("pretty"))
	}

	if len(conversions) == 0 {
		return r.writePlain("No conversions yet\n")
	}

	for _, c := range conversions {
		mark := r.palette.OK("✓")
		if !c.Success {
			mark = r.palette.Err("✗")
		}
		r.writePlain("%s %s  %s → %s  %d/%d  %s\n",
			mark, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Source.Label(), c.Target.Label(), c.Matched, c.Total, c.Title)
		if c.Error != "" {
			r.writePlain("   %s\n", r.palette.Help(c.Error))
		}
	}
	return nil
}

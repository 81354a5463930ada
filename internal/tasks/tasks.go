// package tasks implements cross-platform playlist conversion and bulk export.
//
// Operations emit progress updates via channels for non-blocking status reporting to CLI/web layers.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/melodari/internal/metrics"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// MaxConcurrency caps parallel song searches during one conversion.
const MaxConcurrency = 8

// ErrNoMatches is returned by [PlaylistEngine.Convert] when [ConvertOptions.FailOnEmpty] is set
// and no source song was found on the target. The target playlist is kept.
var ErrNoMatches = errors.New("no songs matched")

// Library is the part of a playlist repository the engine borrows for one conversion.
// [library.Repository] implements it.
type Library interface {
	Provider() models.Provider
	FetchSongsForPlaylist(ctx context.Context, id string) ([]models.Song, error)
	FindPlaylist(ctx context.Context, title string) (*models.Playlist, error)
	CreatePlaylist(ctx context.Context, title, description string) (*models.Playlist, error)
	SearchSong(ctx context.Context, query string) (*models.Song, error)
	AddSongs(ctx context.Context, playlistID string, songs []models.Song) error
}

// ConvertOptions tunes a single conversion.
type ConvertOptions struct {
	// TargetPlaylistID skips the title lookup and populates this playlist
	TargetPlaylistID string
	// Concurrency is the number of searches in flight, clamped to 1..[MaxConcurrency]
	Concurrency int
	FailOnEmpty bool
}

// SongMatch pairs a source song with its top search hit on the target.
type SongMatch struct {
	Original models.Song  `json:"original"`
	Matched  *models.Song `json:"matched,omitempty"`
}

// ConvertResult describes a finished or failed conversion.
type ConvertResult struct {
	Source  models.Playlist  `json:"source"`
	Target  *models.Playlist `json:"target,omitempty"`
	Created bool             `json:"created"`
	Matches []SongMatch      `json:"matches"`
	Matched int              `json:"matched"`
	Total   int              `json:"total"`
}

// Missed returns the source songs without a match.
func (r *ConvertResult) Missed() []models.Song {
	var missed []models.Song
	for _, m := range r.Matches {
		if m.Matched == nil {
			missed = append(missed, m.Original)
		}
	}
	return missed
}

// PlaylistEngine converts playlists between providers.
//
// It never touches repository caches; callers refresh the target afterwards.
type PlaylistEngine struct {
	limiter *rate.Limiter
	config  shared.SyncConfig
	logger  *log.Logger
}

// NewPlaylistEngine creates an engine whose searches are spaced by config's rate limit.
// A zero rate disables throttling.
func NewPlaylistEngine(config shared.SyncConfig, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := max(config.Burst, 1)

	return &PlaylistEngine{
		limiter: rate.NewLimiter(limit, burst),
		config:  config,
		logger:  shared.WithLogger(logger, "component", "engine"),
	}
}

// DefaultOptions returns the conversion options from the engine's configuration.
func (e *PlaylistEngine) DefaultOptions() ConvertOptions {
	return ConvertOptions{Concurrency: e.config.Concurrency, FailOnEmpty: e.config.FailOnEmpty}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ConvertPlaylist reproduces playlist onto target with default options.
//
// Any failure is logged and reported as false. Success does not depend on how many songs matched.
func (e *PlaylistEngine) ConvertPlaylist(ctx context.Context, source Library, playlist models.Playlist, target Library, progress chan<- ProgressUpdate) bool {
	if _, err := e.Convert(ctx, source, playlist, target, e.DefaultOptions(), progress); err != nil {
		e.logger.Error("conversion failed", "playlist", playlist.Title, "target", target.Provider(), "err", err)
		return false
	}
	return true
}

// Convert finds or creates the target playlist, matches every source song by text search
// and adds the hits in source order. Songs without a hit are dropped.
//
// The returned result is non-nil whenever the target playlist was resolved, even on error.
func (e *PlaylistEngine) Convert(ctx context.Context, source Library, playlist models.Playlist, target Library, opts ConvertOptions, progress chan<- ProgressUpdate) (result *ConvertResult, err error) {
	if target == nil {
		return nil, fmt.Errorf("%w: target library not initialized", shared.ErrServiceUnavailable)
	}
	if playlist.Title == "" {
		return nil, fmt.Errorf("%w: playlist title", shared.ErrMissingArgument)
	}

	from, to := playlist.Source, target.Provider()
	if from == "" && source != nil {
		from = source.Provider()
	}
	defer func() {
		metrics.Conversions.WithLabelValues(string(from), string(to), metrics.Result(err)).Inc()
	}()

	logger := shared.WithLogger(e.logger, "playlist", playlist.Title, "target", to)

	songs := playlist.Songs
	if len(songs) == 0 && source != nil && playlist.ID != "" {
		e.sendProgress(progress, fetchSourceUpdate(playlist))
		songs, err = source.FetchSongsForPlaylist(ctx, playlist.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load source songs: %w", err)
		}
	}
	playlist.Songs = songs

	e.sendProgress(progress, findTargetUpdate(playlist.Title, to))
	dest, created, err := e.resolveTarget(ctx, target, playlist, opts)
	if err != nil {
		return nil, err
	}
	if created {
		e.sendProgress(progress, createPlaylistUpdate(dest))
	}

	result = &ConvertResult{Source: playlist, Target: dest, Created: created, Total: len(songs)}

	result.Matches, err = e.matchSongs(ctx, target, songs, opts.Concurrency, progress)
	if err != nil {
		return result, err
	}

	matched := make([]models.Song, 0, len(songs))
	for _, m := range result.Matches {
		if m.Matched != nil {
			matched = append(matched, *m.Matched)
		}
	}
	result.Matched = len(matched)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if len(matched) > 0 {
		e.sendProgress(progress, addSongsUpdate(len(matched), dest))
		if err := target.AddSongs(ctx, dest.ID, matched); err != nil {
			return result, err
		}
	}

	logger.Info("converted playlist", "matched", result.Matched, "total", result.Total, "created", created)
	e.sendProgress(progress, completeUpdate(result))

	if result.Matched == 0 && result.Total > 0 && opts.FailOnEmpty {
		return result, fmt.Errorf("%w: %q on %s", ErrNoMatches, playlist.Title, to.Label())
	}
	return result, nil
}

// resolveTarget returns the playlist to populate and whether it was created.
func (e *PlaylistEngine) resolveTarget(ctx context.Context, target Library, playlist models.Playlist, opts ConvertOptions) (*models.Playlist, bool, error) {
	if opts.TargetPlaylistID != "" {
		return &models.Playlist{
			ID:        opts.TargetPlaylistID,
			Title:     playlist.Title,
			Source:    target.Provider(),
			Platforms: []models.Provider{target.Provider()},
		}, false, nil
	}

	existing, err := target.FindPlaylist(ctx, playlist.Title)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	created, err := target.CreatePlaylist(ctx, playlist.Title, playlist.Description)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// matchSongs searches the target for every song. Results are stored by index so the
// output order follows the input regardless of concurrency.
func (e *PlaylistEngine) matchSongs(ctx context.Context, target Library, songs []models.Song, concurrency int, progress chan<- ProgressUpdate) ([]SongMatch, error) {
	matches := make([]SongMatch, len(songs))
	provider := string(target.Provider())
	total := len(songs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(max(concurrency, 1), MaxConcurrency))

	for i, song := range songs {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}

			e.sendProgress(progress, searchSongsUpdate(i+1, total, song))
			hit, err := target.SearchSong(gctx, song.Query())
			if err != nil {
				metrics.SongMatches.WithLabelValues(provider, "error").Inc()
				return err
			}

			matches[i] = SongMatch{Original: song, Matched: hit}
			if hit == nil {
				metrics.SongMatches.WithLabelValues(provider, "missed").Inc()
				e.logger.Debug("no match", "query", song.Query())
			} else {
				metrics.SongMatches.WithLabelValues(provider, "matched").Inc()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return matches, err
	}
	if err := ctx.Err(); err != nil {
		return matches, err
	}
	return matches, nil
}

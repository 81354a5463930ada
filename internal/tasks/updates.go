package tasks

import (
	"fmt"

	"github.com/desertthunder/melodari/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or web layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	FindTarget
	CreatePlaylist
	SearchSongs
	AddSongs
	Complete
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case FindTarget:
		return "find_target"
	case CreatePlaylist:
		return "create_playlist"
	case SearchSongs:
		return "search_songs"
	case AddSongs:
		return "add_songs"
	case Complete:
		return "complete"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func fetchSourceUpdate(pl models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching songs for %s from %s...", pl.Title, pl.Source.Label()),
	}
}

func findTargetUpdate(title string, target models.Provider) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FindTarget,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Looking for %q on %s...", title, target.Label()),
	}
}

func createPlaylistUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Title, pl.ID),
		Data:    pl,
	}
}

func searchSongsUpdate(step, total int, song models.Song) ProgressUpdate {
	label := song.Title
	if song.Artist != "" {
		label = song.Artist + " - " + song.Title
	}
	return ProgressUpdate{
		Phase:   SearchSongs,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, label),
	}
}

func addSongsUpdate(count int, pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddSongs,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Adding %d songs to %s...", count, pl.Title),
	}
}

func completeUpdate(result *ConvertResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    result.Matched,
		Total:   result.Total,
		Message: fmt.Sprintf("Matched %d of %d songs", result.Matched, result.Total),
		Data:    result,
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

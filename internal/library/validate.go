package library

import (
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

var validate = validator.New()

// checkPlaylist returns a [shared.ValidationError] naming the missing fields of p, or nil.
func checkPlaylist(p models.Playlist) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &shared.ValidationError{ID: p.ID, Fields: []string{err.Error()}}
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return &shared.ValidationError{ID: p.ID, Fields: fields}
}

// ValidatePlaylists deduplicates playlists by id in first-seen order.
//
// Duplicates are merged into the first occurrence: songs are concatenated and
// platforms unioned. Records missing an id, title or source are logged and kept.
// Records without an id are never merged.
func ValidatePlaylists(logger *log.Logger, playlists []models.Playlist) []models.Playlist {
	result := make([]models.Playlist, 0, len(playlists))
	index := make(map[string]int, len(playlists))

	for _, p := range playlists {
		if err := checkPlaylist(p); err != nil {
			logger.Error("invalid playlist record", "err", err)
		}

		if p.ID == "" {
			result = append(result, p)
			continue
		}

		i, seen := index[p.ID]
		if !seen {
			p.Songs = append([]models.Song(nil), p.Songs...)
			p.Platforms = append([]models.Provider(nil), p.Platforms...)
			index[p.ID] = len(result)
			result = append(result, p)
			continue
		}

		logger.Warn("duplicate playlist id", "id", p.ID, "title", p.Title)
		result[i].Songs = append(result[i].Songs, p.Songs...)
		result[i].AddPlatforms(p.Platforms...)
	}

	return result
}

// Combine builds a cross-platform view keyed by case-insensitive title.
//
// Same-titled playlists are folded into the first seen: platforms are unioned and
// songs concatenated. Title identity is a heuristic, not a stable key.
func Combine(lists ...[]models.Playlist) []models.Playlist {
	var result []models.Playlist
	index := make(map[string]int)

	for _, list := range lists {
		for _, p := range list {
			key := shared.NormalizeTitle(p.Title)
			platforms := p.Platforms
			if len(platforms) == 0 && p.Source != "" {
				platforms = []models.Provider{p.Source}
			}

			i, seen := index[key]
			if !seen {
				p.Songs = append([]models.Song(nil), p.Songs...)
				p.Platforms = append([]models.Provider(nil), platforms...)
				index[key] = len(result)
				result = append(result, p)
				continue
			}

			result[i].Songs = append(result[i].Songs, p.Songs...)
			result[i].AddPlatforms(platforms...)
		}
	}

	return result
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// LocalProfile is the google_id used before a Google account has been linked.
const LocalProfile = "local"

// ErrProfileNotFound is returned when no profile matches the lookup.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository persists [models.Profile] records.
//
// Each method updates a single column so concurrent writers only conflict per field,
// and the last write wins.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new [ProfileRepository] with the given database connection
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `
	id, google_id, username, avatar_url, platforms, play_count, friends,
	google_playlists, spotify_playlists, created_at, updated_at
`

// Resolve returns the profile keyed by googleID, creating it when missing.
// An empty googleID resolves to the [LocalProfile].
func (r *ProfileRepository) Resolve(ctx context.Context, googleID string) (*models.Profile, error) {
	if googleID == "" {
		googleID = LocalProfile
	}

	profile, err := r.GetByGoogleID(ctx, googleID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	sequence, err := NextSequence(ctx, r.db, "profiles")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO profiles (id, sequence, google_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(google_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, shared.GenerateID(), sequence, googleID, now, now); err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	return r.GetByGoogleID(ctx, googleID)
}

// Get retrieves a profile by its internal id.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = ?", id)
	return r.scan(row, id)
}

// GetByGoogleID retrieves a profile by the linked Google account id.
func (r *ProfileRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.Profile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE google_id = ?", googleID)
	return r.scan(row, googleID)
}

func (r *ProfileRepository) scan(row scanner, key string) (*models.Profile, error) {
	var (
		p                                 models.Profile
		platforms, playCount, friends     string
		googlePlaylists, spotifyPlaylists string
	)

	err := row.Scan(&p.ID, &p.GoogleID, &p.Username, &p.AvatarURL, &platforms, &playCount, &friends,
		&googlePlaylists, &spotifyPlaylists, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	if err := decodeJSON(platforms, &p.Platforms); err != nil {
		return nil, err
	}
	if err := decodeJSON(playCount, &p.PlayCount); err != nil {
		return nil, err
	}
	if err := decodeJSON(friends, &p.Friends); err != nil {
		return nil, err
	}
	if p.GooglePlaylists, err = decodePlaylists(googlePlaylists); err != nil {
		return nil, err
	}
	if p.SpotifyPlaylists, err = decodePlaylists(spotifyPlaylists); err != nil {
		return nil, err
	}

	return &p, nil
}

// decodePlaylists reads a playlist column. Playlists are stored keyed by id and returned
// sorted by id so repeated loads are stable.
func decodePlaylists(data string) ([]models.Playlist, error) {
	byID := map[string]models.Playlist{}
	if err := decodeJSON(data, &byID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	playlists := make([]models.Playlist, 0, len(ids))
	for _, id := range ids {
		playlists = append(playlists, byID[id])
	}
	return playlists, nil
}

func encodePlaylists(playlists []models.Playlist) (string, error) {
	byID := make(map[string]models.Playlist, len(playlists))
	for _, p := range playlists {
		byID[p.ID] = p
	}
	return encodeJSON(byID)
}

func playlistColumn(provider models.Provider) (string, error) {
	switch provider {
	case models.Google:
		return "google_playlists", nil
	case models.Spotify:
		return "spotify_playlists", nil
	default:
		return "", fmt.Errorf("%w: provider %q", shared.ErrInvalidArgument, provider)
	}
}

// setColumn writes one column of one profile.
func (r *ProfileRepository) setColumn(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, id, column string, value any) error {
	query := fmt.Sprintf("UPDATE profiles SET %s = ?, updated_at = ? WHERE id = ?", column)

	result, err := exec.ExecContext(ctx, query, value, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return nil
}

// UpdateUser sets the display name and avatar.
func (r *ProfileRepository) UpdateUser(ctx context.Context, id, username, avatarURL string) error {
	if err := r.setColumn(ctx, r.db, id, "username", username); err != nil {
		return err
	}
	return r.setColumn(ctx, r.db, id, "avatar_url", avatarURL)
}

// SetPlatforms replaces the set of linked platforms.
func (r *ProfileRepository) SetPlatforms(ctx context.Context, id string, platforms []models.Provider) error {
	if platforms == nil {
		platforms = []models.Provider{}
	}
	value, err := encodeJSON(platforms)
	if err != nil {
		return err
	}
	return r.setColumn(ctx, r.db, id, "platforms", value)
}

// IncrementPlayCount adds one to the play counter of a playlist.
func (r *ProfileRepository) IncrementPlayCount(ctx context.Context, id, playlistID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT play_count FROM profiles WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query play count: %w", err)
	}

	counts := map[string]int{}
	if err := decodeJSON(raw, &counts); err != nil {
		return 0, err
	}
	counts[playlistID]++

	value, err := encodeJSON(counts)
	if err != nil {
		return 0, err
	}
	if err := r.setColumn(ctx, tx, id, "play_count", value); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit play count: %w", err)
	}
	return counts[playlistID], nil
}

// LoadPlaylists returns the cached playlists of a provider, sorted by id.
func (r *ProfileRepository) LoadPlaylists(ctx context.Context, id string, provider models.Provider) ([]models.Playlist, error) {
	column, err := playlistColumn(provider)
	if err != nil {
		return nil, err
	}

	var raw string
	err = r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM profiles WHERE id = ?", column), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}

	return decodePlaylists(raw)
}

// SavePlaylists replaces the cached playlists of a provider.
func (r *ProfileRepository) SavePlaylists(ctx context.Context, id string, provider models.Provider, playlists []models.Playlist) error {
	column, err := playlistColumn(provider)
	if err != nil {
		return err
	}

	value, err := encodePlaylists(playlists)
	if err != nil {
		return err
	}
	return r.setColumn(ctx, r.db, id, column, value)
}

// SaveSongs stores the song list of one cached playlist.
func (r *ProfileRepository) SaveSongs(ctx context.Context, id string, provider models.Provider, playlistID string, songs []models.Song) error {
	column, err := playlistColumn(provider)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM profiles WHERE id = ?", column), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to query playlists: %w", err)
	}

	byID := map[string]models.Playlist{}
	if err := decodeJSON(raw, &byID); err != nil {
		return err
	}

	playlist, ok := byID[playlistID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	playlist.Songs = songs
	byID[playlistID] = playlist

	value, err := encodeJSON(byID)
	if err != nil {
		return err
	}
	if err := r.setColumn(ctx, tx, id, column, value); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit songs: %w", err)
	}
	return nil
}

// ClearPlaylists empties the cached playlists of a provider.
func (r *ProfileRepository) ClearPlaylists(ctx context.Context, id string, provider models.Provider) error {
	column, err := playlistColumn(provider)
	if err != nil {
		return err
	}
	return r.setColumn(ctx, r.db, id, column, "{}")
}

package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/library"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/repositories"
	"github.com/desertthunder/melodari/internal/server"
	"github.com/desertthunder/melodari/internal/shared"
)

const (
	statusRoute    = "GET /api/{provider}/status"
	playlistsRoute = "GET /api/{provider}/playlists"
	refreshRoute   = "POST /api/{provider}/playlists/refresh"
	songsRoute     = "GET /api/{provider}/playlists/{id}/songs"
	searchRoute    = "GET /api/{provider}/search"
	logoutRoute    = "POST /api/{provider}/logout"
	combinedRoute  = "GET /api/playlists"
	profileRoute   = "GET /api/profile"
	historyRoute   = "GET /api/history"
	convertRoute   = "POST /api/convert"
)

// API serves the JSON API.
type API struct {
	app    *app.App
	logger *log.Logger
}

// NewAPI creates the API handler over a.
func NewAPI(a *app.App, logger *log.Logger) *API {
	return &API{app: a, logger: shared.WithLogger(logger, "component", "api")}
}

// Routes returns the HTTP routes this handler serves.
func (h *API) Routes() []string {
	return []string{
		statusRoute, playlistsRoute, refreshRoute, songsRoute, searchRoute, logoutRoute,
		combinedRoute, profileRoute, historyRoute, convertRoute,
	}
}

func (h *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Pattern {
	case combinedRoute:
		h.combined(w, r)
		return
	case profileRoute:
		h.profile(w, r)
		return
	case historyRoute:
		h.history(w, r)
		return
	case convertRoute:
		h.convert(w, r)
		return
	}

	provider, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		server.WriteMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	repo, err := h.app.Library(provider)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	switch r.Pattern {
	case statusRoute:
		h.status(w, r, provider)
	case playlistsRoute:
		h.playlists(w, r, repo, false)
	case refreshRoute:
		h.playlists(w, r, repo, true)
	case songsRoute:
		h.songs(w, r, repo)
	case searchRoute:
		h.search(w, r, repo)
	case logoutRoute:
		h.logout(w, r, provider)
	default:
		http.NotFound(w, r)
	}
}

func (h *API) status(w http.ResponseWriter, r *http.Request, provider models.Provider) {
	status, err := h.app.Status(r.Context(), provider)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, status)
}

func (h *API) playlists(w http.ResponseWriter, r *http.Request, repo *library.Repository, refresh bool) {
	load := repo.LoadPlaylists
	if refresh {
		load = repo.RefreshPlaylists
	}

	playlists, err := load(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *API) songs(w http.ResponseWriter, r *http.Request, repo *library.Repository) {
	songs, err := repo.FetchSongsForPlaylist(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if songs == nil {
		songs = []models.Song{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"songs": songs})
}

func (h *API) search(w http.ResponseWriter, r *http.Request, repo *library.Repository) {
	query := r.URL.Query().Get("q")
	if query == "" {
		server.WriteMessage(w, http.StatusBadRequest, "missing query")
		return
	}

	song, err := repo.SearchSong(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"song": song})
}

func (h *API) logout(w http.ResponseWriter, r *http.Request, provider models.Provider) {
	if err := h.app.Logout(r.Context(), provider); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *API) combined(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.app.Combined(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *API) profile(w http.ResponseWriter, r *http.Request) {
	profile := h.app.Profile()
	if profile == nil {
		var err error
		if profile, err = h.app.LinkProfile(r.Context()); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	server.WriteJSON(w, http.StatusOK, profile)
}

func (h *API) history(w http.ResponseWriter, r *http.Request) {
	limit := repositories.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			server.WriteMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := h.app.History(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if history == nil {
		history = []*models.Conversion{}
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"conversions": history})
}

func (h *API) convert(w http.ResponseWriter, r *http.Request) {
	var req app.ConvertRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, err)
		return
	}

	if r.Header.Get("Accept") == eventStream {
		h.streamConvert(w, r, req)
		return
	}

	result, err := h.app.Convert(r.Context(), req, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, result)
}

// fail logs server-side failures and writes the mapped error.
func (h *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := server.StatusFor(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, r.Context().Err()) {
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	server.WriteMessage(w, status, err.Error())
}

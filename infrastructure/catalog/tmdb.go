// Package catalog fetches candidate movies from The Movie Database.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"match-lab/domain"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	imageBaseURL   = "https://image.tmdb.org/t/p/w500"
	youTubeURL     = "https://www.youtube.com/watch?v="
)

var genreNames = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Sci-Fi",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

type tmdbMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
	// trending answers carry ids, movie details carry full genres
	GenreIDs []int       `json:"genre_ids"`
	Genres   []tmdbGenre `json:"genres"`
}

type tmdbGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbVideo struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

type videoList struct {
	Results []tmdbVideo `json:"results"`
}

type trendingPage struct {
	Page    int         `json:"page"`
	Results []tmdbMovie `json:"results"`
}

// TMDBClient is a thin HTTP client for the endpoints the catalog needs.
type TMDBClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewTMDBClient(baseURL, apiKey string, client *http.Client) *TMDBClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &TMDBClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: client}
}

// Trending returns one page of the weekly trending movies.
func (c *TMDBClient) Trending(ctx context.Context, page int) ([]domain.Item, error) {
	var res trendingPage
	if err := c.get(ctx, "/trending/movie/week", url.Values{"page": {strconv.Itoa(page)}}, &res); err != nil {
		return nil, err
	}
	return lo.Map(res.Results, func(m tmdbMovie, _ int) domain.Item { return m.toItem() }), nil
}

func (c *TMDBClient) Movie(ctx context.Context, id domain.ItemID) (domain.Item, error) {
	var m tmdbMovie
	if err := c.get(ctx, "/movie/"+url.PathEscape(string(id)), nil, &m); err != nil {
		return domain.Item{}, err
	}
	return m.toItem(), nil
}

// Trailer picks the official YouTube trailer of a movie, or any YouTube
// trailer when there is no official one. It returns nil when there is none.
func (c *TMDBClient) Trailer(ctx context.Context, id domain.ItemID) (*domain.Trailer, error) {
	var res videoList
	if err := c.get(ctx, "/movie/"+url.PathEscape(string(id))+"/videos", nil, &res); err != nil {
		return nil, err
	}
	trailers := lo.Filter(res.Results, func(v tmdbVideo, _ int) bool {
		return v.Site == "YouTube" && v.Type == "Trailer" && v.Key != ""
	})
	if len(trailers) == 0 {
		return nil, nil
	}
	video, ok := lo.Find(trailers, func(v tmdbVideo) bool { return v.Official })
	if !ok {
		video = trailers[0]
	}
	return &domain.Trailer{Key: video.Key, Name: video.Name, URL: youTubeURL + video.Key}, nil
}

func (c *TMDBClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m tmdbMovie) toItem() domain.Item {
	genres := lo.FilterMap(m.GenreIDs, func(id int, _ int) (string, bool) {
		name, ok := genreNames[id]
		return name, ok
	})
	if len(genres) == 0 {
		genres = lo.Map(m.Genres, func(g tmdbGenre, _ int) string {
			if name, ok := genreNames[g.ID]; ok {
				return name
			}
			return g.Name
		})
	}

	year := 0
	if len(m.ReleaseDate) >= 4 {
		year, _ = strconv.Atoi(m.ReleaseDate[:4])
	}
	poster := ""
	if m.PosterPath != "" {
		poster = imageBaseURL + m.PosterPath
	}
	return domain.Item{
		ID:      domain.ItemID(strconv.Itoa(m.ID)),
		Title:   m.Title,
		Year:    year,
		Genres:  lo.Uniq(genres),
		Rating:  m.VoteAverage,
		Poster:  poster,
		Summary: m.Overview,
	}
}

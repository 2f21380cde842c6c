package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"movies-sync-service/internal/model"
	"movies-sync-service/pkg/httpclient"

	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned when no TMDB API key is set
var ErrNotConfigured = errors.New("TMDB API key not configured")

// TMDBService talks to the TMDB v3 API, rotating over the configured keys
type TMDBService struct {
	apiKeys   []string
	baseURL   string
	imageBase string
	client    *httpclient.Client
	keyIndex  uint64 // 原子计数器，用于轮询
}

// NewTMDBService creates a new TMDBService with multiple API keys
func NewTMDBService(apiKeys []string, baseURL, imageBase string, client *httpclient.Client) *TMDBService {
	if len(apiKeys) > 0 {
		log.Info().Int("count", len(apiKeys)).Msg("🔑 TMDB API Keys 已配置，启用轮询模式")
	} else {
		log.Warn().Msg("⚠️ TMDB API key not configured, catalog calls will fail")
	}
	if client == nil {
		client = httpclient.NewClient(httpclient.Options{})
	}
	return &TMDBService{
		apiKeys:   apiKeys,
		baseURL:   strings.TrimRight(baseURL, "/"),
		imageBase: strings.TrimRight(imageBase, "/"),
		client:    client,
	}
}

// nextKey returns the next API key using round-robin
func (s *TMDBService) nextKey() string {
	if len(s.apiKeys) == 0 {
		return ""
	}
	idx := atomic.AddUint64(&s.keyIndex, 1) - 1
	return s.apiKeys[idx%uint64(len(s.apiKeys))]
}

// IsConfigured reports whether at least one API key is set
func (s *TMDBService) IsConfigured() bool {
	return len(s.apiKeys) > 0
}

// KeyCount returns the number of configured API keys
func (s *TMDBService) KeyCount() int {
	return len(s.apiKeys)
}

// ImageURL resolves a TMDB image path against the configured image base
func (s *TMDBService) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.imageBase + path
}

// get performs one authenticated GET and decodes the JSON body into dest
func (s *TMDBService) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	apiKey := s.nextKey()
	if apiKey == "" {
		return ErrNotConfigured
	}

	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	body, err := s.client.Get(ctx, target, header)
	if err != nil {
		return fmt.Errorf("TMDB %s: %w", path, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse TMDB %s response: %w", path, err)
	}
	return nil
}

func listQuery(opts model.ListOptions) url.Values {
	q := url.Values{}
	q.Set("language", opts.LanguageOrDefault())
	q.Set("page", strconv.Itoa(opts.PageOrDefault()))
	return q
}

func languageQuery(language string) url.Values {
	if language == "" {
		language = model.DefaultLanguage
	}
	return url.Values{"language": {language}}
}

// SearchMovies runs a title search
func (s *TMDBService) SearchMovies(ctx context.Context, query string, opts model.ListOptions) (*model.PagedMovies, error) {
	q := listQuery(opts)
	q.Set("query", query)
	q.Set("include_adult", strconv.FormatBool(opts.IncludeAdult))

	var page model.PagedMovies
	if err := s.get(ctx, "/search/movie", q, &page); err != nil {
		return nil, err
	}
	log.Debug().Str("query", query).Int("results", len(page.Results)).Msg("TMDB: search")
	return &page, nil
}

// PopularMovies returns one page of the popular list
func (s *TMDBService) PopularMovies(ctx context.Context, opts model.ListOptions) (*model.PagedMovies, error) {
	var page model.PagedMovies
	if err := s.get(ctx, "/movie/popular", listQuery(opts), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MovieDetail fetches the full record of one movie
func (s *TMDBService) MovieDetail(ctx context.Context, id int, language string) (*model.MovieDetail, error) {
	var detail model.MovieDetail
	if err := s.get(ctx, "/movie/"+strconv.Itoa(id), languageQuery(language), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// SimilarMovies returns one page of movies similar to id
func (s *TMDBService) SimilarMovies(ctx context.Context, id int, opts model.ListOptions) (*model.PagedMovies, error) {
	var page model.PagedMovies
	if err := s.get(ctx, "/movie/"+strconv.Itoa(id)+"/similar", listQuery(opts), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Credits fetches the cast and crew of id
func (s *TMDBService) Credits(ctx context.Context, id int, language string) (*model.CreditSet, error) {
	var credits model.CreditSet
	if err := s.get(ctx, "/movie/"+strconv.Itoa(id)+"/credits", languageQuery(language), &credits); err != nil {
		return nil, err
	}
	if credits.ID == 0 {
		credits.ID = id
	}
	return &credits, nil
}

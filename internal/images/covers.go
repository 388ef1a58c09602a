// Package images finds cover images and basic metadata for books.
package images

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	books "google.golang.org/api/books/v1"
	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/shelfscan/internal/dedup"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

const openLibraryCovers = "https://covers.openlibrary.org"

// CoverLookup searches Google Books, falling back to the Open Library
// covers API when Google has no image for an ISBN.
type CoverLookup struct {
	volumes         *books.VolumesService
	HTTPClient      *http.Client
	OpenLibraryBase string

	cache *cache.Cache
}

// NewCoverLookup creates a CoverLookup. apiKey may be empty; Google Books
// allows a small anonymous quota.
func NewCoverLookup(ctx context.Context, apiKey string, opts ...option.ClientOption) (*CoverLookup, error) {
	base := []option.ClientOption{option.WithoutAuthentication()}
	if apiKey != "" {
		base = []option.ClientOption{option.WithAPIKey(apiKey)}
	}
	svc, err := books.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Books client: %w", err)
	}

	return &CoverLookup{
		volumes: svc.Volumes,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		OpenLibraryBase: openLibraryCovers,
		cache:           cache.New(24*time.Hour, time.Hour),
	}, nil
}

// FetchCover returns cover details for a book, or nil when nothing was found
func (c *CoverLookup) FetchCover(ctx context.Context, isbn, title, author string) (*models.CoverInfo, error) {
	isbn = dedup.NormalizeISBN(isbn)
	query := searchQuery(isbn, title, author)
	if query == "" {
		return nil, nil
	}

	if cached, ok := c.cache.Get(query); ok {
		slog.Debug("Cover cache hit", "query", query)
		return cached.(*models.CoverInfo), nil
	}

	info, err := c.searchGoogleBooks(ctx, query)
	if err != nil {
		slog.Warn("Google Books lookup failed", "query", query, "err", err)
	}

	if (info == nil || info.URL == "") && isbn != "" {
		if url, olErr := c.openLibraryCover(ctx, isbn); olErr != nil {
			slog.Debug("No Open Library cover", "isbn", isbn, "err", olErr)
		} else {
			if info == nil {
				info = &models.CoverInfo{}
			}
			info.URL = url
			err = nil
		}
	}

	if err != nil {
		return nil, err
	}
	c.cache.Set(query, info, cache.DefaultExpiration)
	return info, nil
}

func (c *CoverLookup) searchGoogleBooks(ctx context.Context, query string) (*models.CoverInfo, error) {
	res, err := c.volumes.List(query).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query Google Books: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].VolumeInfo == nil {
		return nil, nil
	}

	v := res.Items[0].VolumeInfo
	info := &models.CoverInfo{
		Description: v.Description,
		PageCount:   int(v.PageCount),
		Categories:  v.Categories,
	}
	if links := v.ImageLinks; links != nil {
		switch {
		case links.Thumbnail != "":
			info.URL = links.Thumbnail
		case links.SmallThumbnail != "":
			info.URL = links.SmallThumbnail
		}
	}
	return info, nil
}

// openLibraryCover checks that a large cover exists. default=false makes
// the API answer 404 instead of a blank placeholder.
func (c *CoverLookup) openLibraryCover(ctx context.Context, isbn string) (string, error) {
	url := fmt.Sprintf("%s/b/isbn/%s-L.jpg?default=false", strings.TrimSuffix(c.OpenLibraryBase, "/"), isbn)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover API returned status %d", resp.StatusCode)
	}
	return url, nil
}

func searchQuery(isbn, title, author string) string {
	if isbn != "" {
		return "isbn:" + isbn
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	q := fmt.Sprintf("intitle:%q", title)
	if author = strings.TrimSpace(author); author != "" {
		q += fmt.Sprintf(" inauthor:%q", author)
	}
	return q
}

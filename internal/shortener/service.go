package shortener

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/store"
)

// ErrNotFound means no link exists for the code.
var ErrNotFound = errors.New("shortener: link not found")

// ErrInvalidURL means the submitted URL is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("shortener: invalid url")

// Service creates and resolves short links with click tracking.
type Service struct {
	store      store.LinkStore
	codeLength int
	baseURL    string
}

func NewService(st store.LinkStore, cfg *config.ShortenerConfig) *Service {
	return &Service{
		store:      st,
		codeLength: cfg.CodeLength,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// Shorten stores a new link and returns it. Code collisions are retried
// with a fresh code.
func (s *Service) Shorten(ctx context.Context, rawURL string) (*domain.Link, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	for attempt := 0; attempt < 3; attempt++ {
		link := &domain.Link{
			Code:      newCode(s.codeLength),
			URL:       rawURL,
			CreatedAt: time.Now().UTC(),
		}
		err := s.store.CreateLink(ctx, link)
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating link: %w", err)
		}
		return link, nil
	}
	return nil, fmt.Errorf("could not allocate a unique code")
}

// Resolve returns the target URL for a code and counts the click in the
// background, so the redirect never waits on the counter write.
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	link, err := s.store.GetLink(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	go func() {
		clickCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.IncrementClicks(clickCtx, code); err != nil {
			logger.CtxWarn(clickCtx, "Click increment failed for %s: %v", code, err)
		}
	}()

	return link.URL, nil
}

// Stats returns the link with its current click count.
func (s *Service) Stats(ctx context.Context, code string) (*domain.Link, error) {
	link, err := s.store.GetLink(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return link, err
}

// ShortURL renders the public URL for a code.
func (s *Service) ShortURL(code string) string {
	return s.baseURL + "/" + code
}

// newCode derives a compact code from a fresh UUID.
func newCode(length int) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if length <= 0 || length > len(raw) {
		length = 8
	}
	return raw[:length]
}

package token

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oshokin/sso-keeper/internal/logger"
)

// DefaultParseCacheSize is the number of parsed tokens kept by default.
const DefaultParseCacheSize = 256

// Parser memoizes Parse results. Failures are never cached.
type Parser struct {
	cache *lru.Cache[string, Token]
}

// NewParser creates a Parser holding up to size parsed tokens.
// A non-positive size falls back to DefaultParseCacheSize.
func NewParser(size int) (*Parser, error) {
	if size <= 0 {
		size = DefaultParseCacheSize
	}

	cache, err := lru.New[string, Token](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create parsed tokens cache: %w", err)
	}

	return &Parser{cache: cache}, nil
}

// Parse returns the parsed token for raw, logging signatures that came without
// the refresh wrapper.
func (p *Parser) Parse(ctx context.Context, raw string) (*Token, error) {
	if cached, ok := p.cache.Get(raw); ok {
		return &cached, nil
	}

	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if parsed.Scheme == SchemeSharedAccessSignature && !parsed.Wrapped {
		logger.Debug(ctx, "Shared access signature has no refresh wrapper, using the whole value")
	}

	p.cache.Add(raw, *parsed)

	return parsed, nil
}

// Len returns the number of cached tokens.
func (p *Parser) Len() int {
	return p.cache.Len()
}

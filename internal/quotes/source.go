package quotes

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/screener/internal/domain"
)

// New creates the quote source named by cfg.Type.
func New(cfg domain.QuotesConfig) (Source, error) {
	switch cfg.Type {
	case "", "http":
		if cfg.BaseURL == "" {
			return nil, errors.New("quotes base url is required")
		}
		return NewClient(cfg), nil
	case "static":
		if cfg.StaticPath == "" {
			return NewStatic(nil)
		}
		return LoadStatic(cfg.StaticPath)
	default:
		return nil, fmt.Errorf("unsupported quotes type: %s", cfg.Type)
	}
}

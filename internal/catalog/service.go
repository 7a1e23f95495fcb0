package catalog

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/session-cart/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Service resolves products and options for carts. Concurrent lookups of the
// same key share a single query; nothing is cached between calls.
type Service struct {
	repo RepoInterface
	sfg  singleflight.Group
}

func NewService(repo RepoInterface) *Service {
	return &Service{repo: repo}
}

func (s *Service) Product(ctx context.Context, id int64) (*domain.Product, error) {
	v, err, _ := s.sfg.Do(fmt.Sprintf("product:%d", id), func() (interface{}, error) {
		return s.repo.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}

func (s *Service) Option(ctx context.Context, id int64) (*domain.Option, error) {
	v, err, _ := s.sfg.Do(fmt.Sprintf("option:%d", id), func() (interface{}, error) {
		return s.repo.GetOption(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Option), nil
}

// Options resolves every id in order, failing on the first one that is missing.
func (s *Service) Options(ctx context.Context, ids []int64) ([]*domain.Option, error) {
	options := make([]*domain.Option, 0, len(ids))
	for _, id := range ids {
		o, err := s.Option(ctx, id)
		if err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, nil
}

func (s *Service) Products(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.GetAllProducts(ctx)
}

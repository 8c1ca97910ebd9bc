package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

type Store struct {
	mock.Mock
}

func (s *Store) WriteLatest(ctx context.Context, device string, r domain.Reading) error {
	args := s.Called(ctx, device, r)
	return args.Error(0)
}

func (s *Store) AppendHistory(ctx context.Context, device string, r domain.Reading) error {
	args := s.Called(ctx, device, r)
	return args.Error(0)
}

func (s *Store) ListPins(ctx context.Context, device string) ([]domain.Pin, error) {
	args := s.Called(ctx, device)
	pins, _ := args.Get(0).([]domain.Pin)
	return pins, args.Error(1)
}

func (s *Store) CreatePin(ctx context.Context, device string, p domain.Pin) error {
	args := s.Called(ctx, device, p)
	return args.Error(0)
}

func (s *Store) UpdatePin(ctx context.Context, device string, p domain.Pin) error {
	args := s.Called(ctx, device, p)
	return args.Error(0)
}

func (s *Store) DeleteDevice(ctx context.Context, device string) error {
	args := s.Called(ctx, device)
	return args.Error(0)
}

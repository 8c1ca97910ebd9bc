package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

type Notifier struct {
	mock.Mock
}

func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	args := n.Called(ctx, note)
	return args.Error(0)
}

type Archiver struct {
	mock.Mock
}

func (a *Archiver) ArchiveHistory(ctx context.Context, device string, readings []domain.Reading) error {
	args := a.Called(ctx, device, readings)
	return args.Error(0)
}

package rest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/pkg/model"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Result), args.Error(1)
}

func (m *MockSearcher) BreakerState() flowcontrol.State {
	args := m.Called()
	return args.Get(0).(flowcontrol.State)
}

func (m *MockSearcher) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, msg model.UpsertMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docconvert/internal/model"
	"docconvert/internal/service"
)

type MockConversionService struct {
	mock.Mock
}

var _ service.ConversionService = (*MockConversionService)(nil)

func (m *MockConversionService) ConvertURL(ctx context.Context, rawURL string) (*model.Conversion, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversion), args.Error(1)
}

func (m *MockConversionService) ConvertUploads(ctx context.Context, uploads []model.Upload) (*model.Conversion, error) {
	args := m.Called(ctx, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversion), args.Error(1)
}

func (m *MockConversionService) ConvertFile(ctx context.Context, upload model.Upload) (*model.Conversion, error) {
	args := m.Called(ctx, upload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversion), args.Error(1)
}

func (m *MockConversionService) OpenFile(ctx context.Context, workspaceID, filename string) (string, error) {
	args := m.Called(ctx, workspaceID, filename)
	return args.String(0), args.Error(1)
}

package mocks

import (
	"context"

	"imgsquare/internal/imageproc"

	"github.com/stretchr/testify/mock"
)

type MockTransformer struct {
	mock.Mock
}

func (m *MockTransformer) Square(ctx context.Context, data []byte) (imageproc.Result, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(imageproc.Result), args.Error(1)
}

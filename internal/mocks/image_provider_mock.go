package mocks

import (
	"context"

	"storybook-server/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockImageProvider is a mock type for the ImageProvider type
type MockImageProvider struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, prompt
func (_m *MockImageProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string) string); ok {
		r0 = rf(ctx, prompt)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(string)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, prompt)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockImageProvider creates a new instance of MockImageProvider. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockImageProvider(t interface {
	mock.TestingT
	Helper()
}) *MockImageProvider {
	m := &MockImageProvider{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.ImageProvider = (*MockImageProvider)(nil)

package mocks

import (
	"context"

	"storybook-server/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock type for the BlobStore type
type MockBlobStore struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, name, data, contentType
func (_m *MockBlobStore) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	ret := _m.Called(ctx, name, data, contentType)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, []byte, string) string); ok {
		r0 = rf(ctx, name, data, contentType)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(string)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, []byte, string) error); ok {
		r1 = rf(ctx, name, data, contentType)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockBlobStore creates a new instance of MockBlobStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockBlobStore(t interface {
	mock.TestingT
	Helper()
}) *MockBlobStore {
	m := &MockBlobStore{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ storage.BlobStore = (*MockBlobStore)(nil)

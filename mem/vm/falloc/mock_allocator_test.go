package falloc_test

import (
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockAllocator is a mock of the Allocator capability set, in the shape
// mockgen would generate for it, hand-written here since this module
// never invokes a code generator.
type MockAllocator struct {
	ctrl     *gomock.Controller
	recorder *MockAllocatorMockRecorder
}

// MockAllocatorMockRecorder records expected calls on a MockAllocator.
type MockAllocatorMockRecorder struct {
	mock *MockAllocator
}

// NewMockAllocator returns a new mock controlled by ctrl.
func NewMockAllocator(ctrl *gomock.Controller) *MockAllocator {
	m := &MockAllocator{ctrl: ctrl}
	m.recorder = &MockAllocatorMockRecorder{mock: m}
	return m
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockAllocator) EXPECT() *MockAllocatorMockRecorder {
	return m.recorder
}

// AllocateFrame mocks base method.
func (m *MockAllocator) AllocateFrame(key uint64, keyWidth int) uint64 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AllocateFrame", key, keyWidth)
	return ret[0].(uint64)
}

// AllocateFrame indicates an expected call.
func (mr *MockAllocatorMockRecorder) AllocateFrame(key, keyWidth any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AllocateFrame",
		reflect.TypeOf((*MockAllocator)(nil).AllocateFrame), key, keyWidth)
}

// AllocateFrameWithTinyPointer mocks base method.
func (m *MockAllocator) AllocateFrameWithTinyPointer(key uint64, tinyPointerBits int) (uint8, uint64) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AllocateFrameWithTinyPointer", key, tinyPointerBits)
	return ret[0].(uint8), ret[1].(uint64)
}

// AllocateFrameWithTinyPointer indicates an expected call.
func (mr *MockAllocatorMockRecorder) AllocateFrameWithTinyPointer(key, tinyPointerBits any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AllocateFrameWithTinyPointer",
		reflect.TypeOf((*MockAllocator)(nil).AllocateFrameWithTinyPointer), key, tinyPointerBits)
}

// DecodeFrame mocks base method.
func (m *MockAllocator) DecodeFrame(key uint64, tinyPointer uint8, tinyPointerBits int) uint64 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DecodeFrame", key, tinyPointer, tinyPointerBits)
	return ret[0].(uint64)
}

// DecodeFrame indicates an expected call.
func (mr *MockAllocatorMockRecorder) DecodeFrame(key, tinyPointer, tinyPointerBits any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DecodeFrame",
		reflect.TypeOf((*MockAllocator)(nil).DecodeFrame), key, tinyPointer, tinyPointerBits)
}

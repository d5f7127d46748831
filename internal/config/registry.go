package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/capture/httpcam"
	"github.com/MrWong99/vigil/pkg/capture/mock"
	"github.com/MrWong99/vigil/pkg/capture/wavmic"
)

// ErrDeviceNotRegistered is returned by Create* methods when no factory has
// been registered under the requested kind.
var ErrDeviceNotRegistered = errors.New("config: device kind not registered")

// Registry maps camera and microphone kinds to their constructors.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	camera     map[string]func(CameraConfig) (capture.Camera, error)
	microphone map[string]func(MicrophoneConfig) (capture.Microphone, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		camera:     make(map[string]func(CameraConfig) (capture.Camera, error)),
		microphone: make(map[string]func(MicrophoneConfig) (capture.Microphone, error)),
	}
}

// NewDefaultRegistry returns a [Registry] with the built-in kinds:
// "http" and "mock" cameras, "wav" and "mock" microphones.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterCamera(CameraHTTP, func(c CameraConfig) (capture.Camera, error) {
		if c.URL == "" {
			return nil, errors.New("config: http camera needs a url")
		}
		return httpcam.New(c.URL, httpcam.WithTimeout(c.Timeout.Std())), nil
	})
	r.RegisterCamera(CameraMock, func(CameraConfig) (capture.Camera, error) {
		return &mock.Camera{}, nil
	})
	r.RegisterMicrophone(MicrophoneWAV, func(c MicrophoneConfig) (capture.Microphone, error) {
		if c.Path == "" {
			return nil, errors.New("config: wav microphone needs a path")
		}
		return wavmic.New(c.Path, wavmic.WithLoop(c.Loop)), nil
	})
	r.RegisterMicrophone(MicrophoneMock, func(MicrophoneConfig) (capture.Microphone, error) {
		return &mock.Microphone{}, nil
	})
	return r
}

// RegisterCamera registers a camera factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterCamera(kind string, factory func(CameraConfig) (capture.Camera, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera[kind] = factory
}

// RegisterMicrophone registers a microphone factory under kind.
func (r *Registry) RegisterMicrophone(kind string, factory func(MicrophoneConfig) (capture.Microphone, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.microphone[kind] = factory
}

// CreateCamera instantiates the camera registered under cfg.Kind.
// Returns [ErrDeviceNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateCamera(cfg CameraConfig) (capture.Camera, error) {
	r.mu.RLock()
	factory, ok := r.camera[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: camera/%q", ErrDeviceNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}

// CreateMicrophone instantiates the microphone registered under cfg.Kind.
func (r *Registry) CreateMicrophone(cfg MicrophoneConfig) (capture.Microphone, error) {
	r.mu.RLock()
	factory, ok := r.microphone[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: microphone/%q", ErrDeviceNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}

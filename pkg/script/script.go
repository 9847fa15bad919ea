// Package script turns JavaScript function expressions into processors.
//
// A script is compiled once. Each concurrent call runs on its own goja
// runtime taken from a pool, since a runtime must not be shared between
// goroutines.
package script

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
)

var (
	// ErrNotAFunction is returned when the source does not evaluate to a function
	ErrNotAFunction = errors.New("script does not evaluate to a function")

	// ErrTimeout is returned when a call exceeds the configured timeout
	ErrTimeout = errors.New("script execution timeout")
)

// Config configures a compiled script.
type Config struct {
	// PoolSize is the number of idle runtimes kept for reuse.
	// Default: 8
	PoolSize int

	// Timeout interrupts a call running longer than this (0 for no limit).
	// Default: 0
	Timeout time.Duration
}

// DefaultConfig returns the default script configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize: 8,
		Timeout:  0,
	}
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultConfig().PoolSize
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
}

// Script is a compiled JavaScript function of one argument.
type Script struct {
	source  string
	program *goja.Program
	config  Config
	idle    chan *runtime
	created atomic.Int64
}

type runtime struct {
	vm *goja.Runtime
	fn goja.Callable
}

// Compile compiles source, a function expression such as "x => x + 1",
// with the default configuration.
func Compile(source string) (*Script, error) {
	return CompileWithConfig(source, DefaultConfig())
}

// CompileWithConfig compiles source with the given configuration.
func CompileWithConfig(source string, config Config) (*Script, error) {
	config.Validate()

	program, err := goja.Compile("script", "("+source+")", true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}

	s := &Script{
		source:  source,
		program: program,
		config:  config,
		idle:    make(chan *runtime, config.PoolSize),
	}

	// Evaluate once so a non-function source fails here rather than per call
	rt, err := s.newRuntime()
	if err != nil {
		return nil, err
	}
	s.idle <- rt

	return s, nil
}

// Source returns the source the script was compiled from.
func (s *Script) Source() string {
	return s.source
}

// Runtimes returns how many runtimes the script has created.
func (s *Script) Runtimes() int64 {
	return s.created.Load()
}

func (s *Script) newRuntime() (*runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	value, err := vm.RunProgram(s.program)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}

	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAFunction, value.String())
	}

	s.created.Add(1)
	return &runtime{vm: vm, fn: fn}, nil
}

func (s *Script) acquire() (*runtime, error) {
	select {
	case rt := <-s.idle:
		return rt, nil
	default:
		return s.newRuntime()
	}
}

func (s *Script) release(rt *runtime) {
	rt.vm.ClearInterrupt()

	select {
	case s.idle <- rt:
	default:
		// Pool is full, drop this runtime
	}
}

// invoke calls the function with arg and hands the result to export while
// the runtime is still held.
func (s *Script) invoke(arg any, export func(vm *goja.Runtime, value goja.Value) error) error {
	rt, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.release(rt)

	if s.config.Timeout > 0 {
		timer := time.AfterFunc(s.config.Timeout, func() {
			rt.vm.Interrupt("execution timeout")
		})
		defer timer.Stop()
	}

	value, err := rt.fn(goja.Undefined(), rt.vm.ToValue(arg))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return fmt.Errorf("%w after %s", ErrTimeout, s.config.Timeout)
		}
		var exc *goja.Exception
		if errors.As(err, &exc) {
			return fmt.Errorf("script threw: %s", exc.Value().String())
		}
		return fmt.Errorf("script failed: %w", err)
	}

	return export(rt.vm, value)
}

// Call invokes the function with arg and returns the exported result.
func (s *Script) Call(arg any) (any, error) {
	var result any
	err := s.invoke(arg, func(_ *goja.Runtime, value goja.Value) error {
		result = value.Export()
		return nil
	})
	return result, err
}

// Processor adapts s into a processor whose result is converted to R.
func Processor[I, R any](s *Script) takeput.Processor[I, R] {
	return func(item I) (R, error) {
		var out R
		err := s.invoke(item, func(vm *goja.Runtime, value goja.Value) error {
			if err := vm.ExportTo(value, &out); err != nil {
				return fmt.Errorf("failed to convert script result: %w", err)
			}
			return nil
		})
		return out, err
	}
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openfroyo/froyo-age/pkg/hostval"
	"github.com/openfroyo/froyo-age/pkg/telemetry"
	"go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultTimeout bounds a script evaluation when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when an evaluation exceeds its timeout.
var ErrTimeout = errors.New("starlark execution timeout")

// StarlarkEvaluator executes Starlark scripts with timeout enforcement. It
// also serves as the host that decrypted content is parsed and evaluated
// by.
type StarlarkEvaluator struct {
	timeout  time.Duration
	fileOpts *syntax.FileOptions

	mu       sync.RWMutex
	builtins starlark.StringDict
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &StarlarkEvaluator{
		timeout:  timeout,
		fileOpts: &syntax.FileOptions{},
		builtins: make(starlark.StringDict),
	}
}

// Register adds builtins to the predeclared environment of every later
// evaluation, including evaluation of decrypted content.
func (se *StarlarkEvaluator) Register(builtins starlark.StringDict) {
	se.mu.Lock()
	defer se.mu.Unlock()
	for name, fn := range builtins {
		se.builtins[name] = fn
	}
}

// Evaluate executes a Starlark script with the given input and returns the
// result. Relative paths resolve against the working directory.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	baseDir, err := os.Getwd()
	if err != nil {
		baseDir = string(filepath.Separator)
	}
	return se.evaluate(ctx, "config.star", script, baseDir, input)
}

// EvaluateFile executes the script at path. Relative paths inside the
// script resolve against the script's directory.
func (se *StarlarkEvaluator) EvaluateFile(ctx context.Context, path string, input map[string]interface{}) (*StarlarkResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving script path: %w", err)
	}
	script, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return se.evaluate(ctx, abs, string(script), filepath.Dir(abs), input)
}

func (se *StarlarkEvaluator) evaluate(ctx context.Context, filename, script, baseDir string, input map[string]interface{}) (result *StarlarkResult, err error) {
	op := telemetry.StartOperation(ctx, "script.evaluate", telemetry.AttrScriptPath.String(filename))
	defer func() {
		op.End(err)
		telemetry.RecordEvaluation(op.Ctx, filename, op.Timer.Duration(), err)
	}()

	evalCtx, cancel := context.WithTimeout(op.Ctx, se.timeout)
	defer cancel()

	logger := op.Logger.WithScript(filename)
	thread := &starlark.Thread{
		Name: "froyo-age",
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts may handle secrets, so print output only reaches
			// debug logs.
			logger.Debugf("print: %s", msg)
		},
	}
	hostval.SetContext(thread, evalCtx)

	// Create channel to receive result or error
	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(thread, filename, script, baseDir, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	// Wait for result or timeout
	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		if errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return &StarlarkResult{
				ExecutionTime: op.Timer.Duration(),
				Error:         fmt.Sprintf("execution timeout after %v", se.timeout),
			}, ErrTimeout
		}
		return &StarlarkResult{
			ExecutionTime: op.Timer.Duration(),
			Error:         evalCtx.Err().Error(),
		}, evalCtx.Err()
	case err := <-errCh:
		return &StarlarkResult{
			ExecutionTime: op.Timer.Duration(),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = op.Timer.Duration()
		return result, nil
	}
}

// evaluateSync performs the actual Starlark evaluation synchronously.
func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, filename, script, baseDir string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := se.predeclared(baseDir)

	// Convert input to Starlark values and add to predeclared
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFileOptions(se.fileOpts, thread, filename, script, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, &ScriptError{Backtrace: evalErr.Backtrace(), Err: evalErr}
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	// Convert globals to output map
	output := make(map[string]interface{})
	for name, val := range globals {
		// Skip internal variables (starting with _)
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		// Functions are not configuration.
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// predeclared builds the environment for one evaluation. path() resolves
// relative arguments against baseDir.
func (se *StarlarkEvaluator) predeclared(baseDir string) starlark.StringDict {
	env := starlark.StringDict{
		"struct":    starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":      json.Module,
		"range":     starlark.NewBuiltin("range", builtinRange),
		"enumerate": starlark.NewBuiltin("enumerate", builtinEnumerate),
		"zip":       starlark.NewBuiltin("zip", builtinZip),
		"path":      hostval.PathBuiltin(baseDir),
	}

	se.mu.RLock()
	defer se.mu.RUnlock()
	for name, fn := range se.builtins {
		env[name] = fn
	}
	return env
}

// ParseExpr parses src as a single Starlark expression.
func (se *StarlarkEvaluator) ParseExpr(filename, src string) (syntax.Expr, error) {
	return se.fileOpts.ParseExpr(filename, src, 0)
}

// EvalExpr evaluates expr on thread with the predeclared environment and
// path() bound to baseDir.
func (se *StarlarkEvaluator) EvalExpr(thread *starlark.Thread, expr syntax.Expr, baseDir string) (starlark.Value, error) {
	return starlark.EvalExprOptions(se.fileOpts, thread, expr, se.predeclared(baseDir))
}

// NewThread returns a thread carrying ctx for callers that invoke builtins
// directly from Go.
func (se *StarlarkEvaluator) NewThread(ctx context.Context, name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name:  name,
		Print: func(*starlark.Thread, string) {},
	}
	hostval.SetContext(thread, ctx)
	return thread
}

// ToGo converts a Starlark value to plain Go values: nil, bool, int64,
// float64, string, []interface{} and map[string]interface{}.
func ToGo(v starlark.Value) (interface{}, error) {
	return fromStarlarkValue(v)
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case starlark.Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case hostval.Path:
		return hostval.PathText(val), nil
	case *starlark.List:
		return fromSequence(val)
	case starlark.Tuple:
		return fromSequence(val)
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromSequence(seq starlark.Indexable) ([]interface{}, error) {
	list := make([]interface{}, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		item, err := fromStarlarkValue(seq.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}

// Built-in Starlark functions

// builtinRange implements the range() built-in function.
func builtinRange(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var start, stop, step int64 = 0, 0, 1

	switch len(args) {
	case 1:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "stop", &stop); err != nil {
			return nil, err
		}
	case 2:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop); err != nil {
			return nil, err
		}
	case 3:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop, "step", &step); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
	}

	if step == 0 {
		return nil, fmt.Errorf("range step cannot be zero")
	}

	var list []starlark.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	} else {
		for i := start; i > stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	}

	return starlark.NewList(list), nil
}

// builtinEnumerate implements the enumerate() built-in function.
func builtinEnumerate(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start int64 = 0

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	var list []starlark.Value
	var x starlark.Value
	i := start
	for iter.Next(&x) {
		tuple := starlark.Tuple{starlark.MakeInt64(i), x}
		list = append(list, tuple)
		i++
	}

	return starlark.NewList(list), nil
}

// builtinZip implements the zip() built-in function.
func builtinZip(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return starlark.NewList(nil), nil
	}

	iters := make([]starlark.Iterator, len(args))
	for i, arg := range args {
		iterable, ok := arg.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("zip argument %d is not iterable", i)
		}
		iters[i] = iterable.Iterate()
		defer iters[i].Done()
	}

	var list []starlark.Value
	for {
		tuple := make(starlark.Tuple, len(iters))
		for i, iter := range iters {
			if !iter.Next(&tuple[i]) {
				// One iterator is exhausted, stop
				return starlark.NewList(list), nil
			}
		}
		list = append(list, tuple)
	}
}

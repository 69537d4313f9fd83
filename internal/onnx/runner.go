package onnx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// DefaultAPIVersion is the ORT C API version requested when none is configured.
const DefaultAPIVersion = 23

var ErrRunnerClosed = errors.New("onnx runner is closed")

// RunnerConfig selects the ORT shared library and C API version.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner owns the ORT runtime, environment and session of one model file.
type Runner struct {
	meta    Session
	rt      *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

var _ GraphRunner = (*Runner)(nil)

var (
	runnersMu   sync.Mutex
	openRunners = map[*Runner]struct{}{}
)

func track(r *Runner) {
	runnersMu.Lock()
	openRunners[r] = struct{}{}
	runnersMu.Unlock()
}

func untrack(r *Runner) {
	runnersMu.Lock()
	delete(openRunners, r)
	runnersMu.Unlock()
}

func NewRunner(meta Session, cfg RunnerConfig) (*Runner, error) {
	api := cfg.APIVersion
	if api == 0 {
		api = DefaultAPIVersion
	}

	r := &Runner{meta: meta}

	var err error
	if r.rt, err = ort.NewRuntime(cfg.LibraryPath, api); err != nil {
		return nil, fmt.Errorf("load onnx runtime %q (api %d): %w", cfg.LibraryPath, api, err)
	}
	if r.env, err = r.rt.NewEnv("kittentts", ort.LoggingLevelWarning); err != nil {
		r.Close()
		return nil, fmt.Errorf("create onnx env: %w", err)
	}
	if r.session, err = r.rt.NewSession(r.env, meta.Path, nil); err != nil {
		r.Close()
		return nil, fmt.Errorf("open model %s: %w", meta.Path, err)
	}

	track(r)

	return r, nil
}

// Run feeds the named tensors to the graph and copies every output back.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, ErrRunnerClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	feeds := make(map[string]*ort.Value, len(inputs))
	defer release(feeds)

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		v, err := toORT(r.rt, inputs[name])
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		feeds[name] = v
	}

	fetched, err := r.session.Run(ctx, feeds)
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", r.meta.Name, err)
	}
	defer release(fetched)

	out := make(map[string]*Tensor, len(fetched))
	for name, v := range fetched {
		t, err := fromORT(v)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		out[name] = t
	}

	return out, nil
}

// Close releases the session, environment and runtime. Repeated calls are no-ops.
func (r *Runner) Close() {
	_ = r.close()
}

func (r *Runner) close() error {
	untrack(r)

	if r.session != nil {
		r.session.Close()
		r.session = nil
	}
	if r.env != nil {
		r.env.Close()
		r.env = nil
	}
	if r.rt != nil {
		err := r.rt.Close()
		r.rt = nil
		return err
	}

	return nil
}

func (r *Runner) Name() string {
	return r.meta.Name
}

func toORT(rt *ort.Runtime, t *Tensor) (*ort.Value, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}

	switch data := t.Data().(type) {
	case []int64:
		return ort.NewTensorValue(rt, data, t.Shape())
	case []float32:
		return ort.NewTensorValue(rt, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor data %T", data)
	}
}

// fromORT copies the value's data so the tensor outlives the ORT value.
func fromORT(v *ort.Value) (*Tensor, error) {
	kind, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("element type: %w", err)
	}

	switch kind {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(slices.Clone(data), shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(slices.Clone(data), shape)
	default:
		return nil, fmt.Errorf("unsupported output element type %d", kind)
	}
}

func release(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}

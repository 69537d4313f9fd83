package onnx

import (
	"errors"
	"fmt"
	"math"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a dense row-major tensor owned by Go memory.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	dtype, err := dtypeFromSlice(data)
	if err != nil {
		return nil, err
	}
	if err := validateShapeAgainstData(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{
		dtype: dtype,
		shape: append([]int64(nil), shape...),
	}
	switch dtype {
	case DTypeFloat32:
		converted := make([]float32, len(data))
		for i, v := range data {
			converted[i] = float32(v)
		}
		t.data = converted
	case DTypeInt64:
		converted := make([]int64, len(data))
		for i, v := range data {
			converted[i] = int64(v)
		}
		t.data = converted
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %q", dtype)
	}
	return t, nil
}

func (t *Tensor) DType() TensorDType {
	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Len reports the number of elements.
func (t *Tensor) Len() int {
	switch v := t.data.(type) {
	case []float32:
		return len(v)
	case []int64:
		return len(v)
	default:
		return 0
	}
}

func (t *Tensor) Data() any {
	switch v := t.data.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	default:
		return nil
	}
}

// ExtractFloat32 returns a flattened copy of a float32 tensor.
func ExtractFloat32(t *Tensor) ([]float32, error) {
	if t == nil {
		return nil, errors.New("expected float32 tensor, got nil")
	}
	data, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("expected float32 tensor, got %s", t.dtype)
	}
	return append([]float32(nil), data...), nil
}

// ExtractInt64 returns a flattened copy of an int64 tensor.
func ExtractInt64(t *Tensor) ([]int64, error) {
	if t == nil {
		return nil, errors.New("expected int64 tensor, got nil")
	}
	data, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("expected int64 tensor, got %s", t.dtype)
	}
	return append([]int64(nil), data...), nil
}

func dtypeFromSlice[T ~int64 | ~float32](data []T) (TensorDType, error) {
	var zero T
	switch any(zero).(type) {
	case int64:
		return DTypeInt64, nil
	case float32:
		return DTypeFloat32, nil
	default:
		return "", fmt.Errorf("unsupported tensor data type %T", zero)
	}
}

func validateShapeAgainstData(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}
	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}
	return nil
}

func elementCount(shape []int64) (int, error) {
	if len(shape) == 0 {
		return 1, nil
	}
	count := int64(1)
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("shape[%d]=%d is negative", i, dim)
		}
		if dim == 0 {
			return 0, nil
		}
		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		count *= dim
	}
	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}
	return int(count), nil
}

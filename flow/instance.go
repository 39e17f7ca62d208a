// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"encoding/binary"

	"github.com/loom-org/loom/dtype"
	"github.com/pkg/errors"
)

// Instance is one execution of a cell. It owns an arena holding every
// tensor of the graph, with constants materialized; the remaining
// arena starts zeroed. Instances of the same cell are independent.
type Instance struct {
	cell *Cell
	data []byte
}

// NewInstance allocates an arena for one execution of the cell.
func (c *Cell) NewInstance() *Instance {
	data := make([]byte, c.size)
	for _, t := range c.graph.tensors {
		if t.IsConst() && t.shared == nil {
			copy(data[t.offset:], t.data)
		}
	}
	return &Instance{cell: c, data: data}
}

// Run executes the cell program against the instance arena.
func (i *Instance) Run() error {
	return i.cell.prog.Run(i.data)
}

// DataOffset returns the arena position of a tensor's data, resolving
// reference tensors through their address slot. A reference slot is
// only meaningful after Run.
func (i *Instance) DataOffset(t *Tensor) (int, error) {
	if t.offset < 0 {
		return 0, errors.Errorf("tensor %s has no arena position", t.Name())
	}
	if !t.Ref() {
		return t.offset, nil
	}
	if t.offset+8 > len(i.data) {
		return 0, errors.Errorf("reference slot of %s out of bounds", t.Name())
	}
	addr := int(binary.LittleEndian.Uint64(i.data[t.offset:]))
	if addr < 0 || addr+t.Size() > len(i.data) {
		return 0, errors.Errorf("reference %s points out of bounds at %d", t.Name(), addr)
	}
	return addr, nil
}

func (i *Instance) view(t *Tensor, dt dtype.DataType) ([]byte, error) {
	if t.Type() != dt {
		return nil, errors.Errorf("tensor %s is %s, not %s", t.Name(), t.Type(), dt)
	}
	off, err := i.DataOffset(t)
	if err != nil {
		return nil, err
	}
	return i.data[off : off+t.Size()], nil
}

// Int32s returns the int32 elements of a tensor. The slice shares the
// arena storage.
func (i *Instance) Int32s(t *Tensor) ([]int32, error) {
	data, err := i.view(t, dtype.Int32)
	if err != nil {
		return nil, err
	}
	return dtype.ToSlice[int32](data), nil
}

// Float32s returns the float32 elements of a tensor. The slice shares
// the arena storage.
func (i *Instance) Float32s(t *Tensor) ([]float32, error) {
	data, err := i.view(t, dtype.Float32)
	if err != nil {
		return nil, err
	}
	return dtype.ToSlice[float32](data), nil
}

func (i *Instance) write(t *Tensor, values []byte, dt dtype.DataType) error {
	if t.IsConst() {
		return errors.Errorf("tensor %s is constant", t.Name())
	}
	if t.Ref() {
		return errors.Errorf("tensor %s is a reference", t.Name())
	}
	data, err := i.view(t, dt)
	if err != nil {
		return err
	}
	if len(values) != len(data) {
		return errors.Errorf("tensor %s holds %d bytes, got %d", t.Name(), len(data), len(values))
	}
	copy(data, values)
	return nil
}

// SetInt32s writes the int32 elements of a tensor.
func (i *Instance) SetInt32s(t *Tensor, values ...int32) error {
	return i.write(t, dtype.ToBytes(values), dtype.Int32)
}

// SetFloat32s writes the float32 elements of a tensor.
func (i *Instance) SetFloat32s(t *Tensor, values ...float32) error {
	return i.write(t, dtype.ToBytes(values), dtype.Float32)
}

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

// Package dtype defines the element types of tensors.
package dtype

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// DataType is the element type of a tensor.
type DataType int

const (
	// Invalid is the type of a tensor before type inference has run.
	Invalid DataType = iota
	// Int32 is a 32-bit signed integer element.
	Int32
	// Int64 is a 64-bit signed integer element.
	Int64
	// Float32 is a 32-bit IEEE 754 element.
	Float32
	// Float64 is a 64-bit IEEE 754 element.
	Float64
)

// Value is the set of Go types that can back a tensor element.
type Value interface {
	constraints.Integer | constraints.Float
}

var names = map[DataType]string{
	Invalid: "invalid",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

// String returns the name of the data type.
func (dt DataType) String() string {
	name, ok := names[dt]
	if !ok {
		return "unknown"
	}
	return name
}

// Size returns the number of bytes used by one element.
func (dt DataType) Size() int {
	switch dt {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}

// ToSlice views a raw byte buffer as a slice of elements of type T.
// The returned slice shares its backing storage with data.
func ToSlice[T Value](data []byte) []T {
	if len(data) == 0 {
		return nil
	}
	var el T
	n := len(data) / int(unsafe.Sizeof(el))
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// ToBytes views a slice of elements as its raw byte buffer.
// The returned buffer shares its backing storage with els.
func ToBytes[T Value](els []T) []byte {
	if len(els) == 0 {
		return nil
	}
	var el T
	size := int(unsafe.Sizeof(el))
	return unsafe.Slice((*byte)(unsafe.Pointer(&els[0])), len(els)*size)
}

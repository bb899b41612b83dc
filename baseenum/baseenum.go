// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package baseenum defines the fixed 5-symbol base alphabet (A, C, G, T
// and a catch-all N/unknown) used throughout the pileup engine, and the
// table that maps an alignment library's packed 4-bit base code to it.
package baseenum

// These constants have two relevant meanings:
// 1. In the .bam seq[] encoding (sam.BaseA, sam.BaseC, etc.), it's the
//    position of A's set bit.
// 2. It's the natural index for A/C/G/T in an array keyed by base, with
//    BaseX serving as the catch-all "not a plain base" bucket.
const (
	// A represents an A base.
	A byte = iota
	// C represents a C base.
	C
	// G represents a G base.
	G
	// T represents a T base.
	T
	// X is the catch-all for N and any other ambiguity code.
	X
)

const (
	// N is the number of regular base types (A, C, G, T).
	N = 4
	// NEnum counts X in addition to the regular base types.
	NEnum = 5
)

// Seq8ToEnumTable is the .bam seq nibble -> A/C/G/T/X enum mapping.
var Seq8ToEnumTable = [16]byte{X, A, C, X, G, X, X, X, T, X, X, X, X, X, X, X}

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [NEnum]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnum maps an ASCII base character to its enum value, returning X
// for anything other than A/C/G/T (case-insensitive).
func ASCIIToEnum(c byte) byte {
	switch c {
	case 'A', 'a':
		return A
	case 'C', 'c':
		return C
	case 'G', 'g':
		return G
	case 'T', 't':
		return T
	default:
		return X
	}
}

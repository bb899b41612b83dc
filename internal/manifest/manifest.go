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

// Package manifest defines the small run-manifest message written
// alongside a run's outputs, recording the effective configuration and
// wall-clock bounds for later audit. protoc is not available in this
// environment, so the message is hand-written against the
// github.com/gogo/protobuf/proto reflection-based marshaler rather than
// generated.
package manifest

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
)

// Manifest is the run manifest written as cellSNP.manifest.pb.
type Manifest struct {
	Threads  int32 `protobuf:"varint,1,opt,name=threads" json:"threads"`
	MinCount uint32 `protobuf:"varint,2,opt,name=min_count" json:"min_count"`
	MinMaf   float64 `protobuf:"fixed64,3,opt,name=min_maf" json:"min_maf"`
	MinMapq  uint32 `protobuf:"varint,4,opt,name=min_mapq" json:"min_mapq"`
	MaxFlag  uint32 `protobuf:"varint,5,opt,name=max_flag" json:"max_flag"`
	MinLen   int32 `protobuf:"varint,6,opt,name=min_len" json:"min_len"`
	Genotype bool  `protobuf:"varint,7,opt,name=genotype" json:"genotype"`
	DoubleGl bool  `protobuf:"varint,8,opt,name=double_gl" json:"double_gl"`

	StartUnixNano int64 `protobuf:"varint,9,opt,name=start_unix_nano" json:"start_unix_nano"`
	EndUnixNano   int64 `protobuf:"varint,10,opt,name=end_unix_nano" json:"end_unix_nano"`
}

// Reset, String and ProtoMessage satisfy proto.Message.
func (m *Manifest) Reset()         { *m = Manifest{} }
func (m *Manifest) String() string { return fmt.Sprintf("%+v", *m) }
func (*Manifest) ProtoMessage()    {}

// Marshal serializes m using gogo/protobuf's reflection-based encoder.
func Marshal(m *Manifest) ([]byte, error) {
	return proto.Marshal(m)
}

// Unmarshal is the inverse of Marshal, used by tests and by any future
// manifest-inspection tooling.
func Unmarshal(data []byte, m *Manifest) error {
	return proto.Unmarshal(data, m)
}

// Copyright 2018 The gVisor Authors.
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

package sink

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/trailofbits/mttn/pkg/arch"
)

func TestJSONLEmitOmitsPreRegsByDefault(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONL(&buf, false)
	rec := arch.StepRecord{
		RegsPre:  arch.Regs{Eip: 0x8048000},
		RegsPost: arch.Regs{Eip: 0x8048002},
		Insn:     arch.Insn{Bytes: []byte{0x90}},
		Accesses: []arch.MemoryAccess{{Addr: 0x1000, Width: 4, Direction: arch.Write, Data: []byte{1, 2, 3, 4}}},
	}
	if err := j.Emit(rec); err != nil {
		t.Fatalf("emit: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := out["regs"]; present {
		t.Fatalf("want no regs field without -A, got %v", out["regs"])
	}
	if out["pc"].(float64) != float64(0x8048000) {
		t.Fatalf("pc mismatch: %v", out["pc"])
	}
	accesses := out["accesses"].([]interface{})
	if len(accesses) != 1 {
		t.Fatalf("want 1 access, got %d", len(accesses))
	}
	a := accesses[0].(map[string]interface{})
	if a["dir"] != "w" || a["data"] != "01020304" {
		t.Fatalf("access mismatch: %+v", a)
	}
}

func TestJSONLEmitIncludesPreRegsWhenRequested(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONL(&buf, true)
	rec := arch.StepRecord{RegsPre: arch.Regs{Eax: 7}, RegsPost: arch.Regs{Eax: 8}}
	if err := j.Emit(rec); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !strings.Contains(buf.String(), `"regs"`) {
		t.Fatalf("want regs field present with -A, got %s", buf.String())
	}
}

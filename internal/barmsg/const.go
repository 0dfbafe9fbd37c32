/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package barmsg

import "fmt"

const (
	// SuccessMarker is written by firmware into the payload status (table
	// protocol) or check byte (resource-info protocol) of a processed request.
	SuccessMarker uint8 = 0xAA

	// TableResponseCapacity is the size of the response buffer allocated for
	// a table protocol exchange.
	TableResponseCapacity = 512

	// ResourceContentMax is the largest payload the resource-info protocol
	// can carry.
	ResourceContentMax = 257 * 2

	// ResourceHeaderOffset is the fixed position of the resource-info header
	// in the response buffer. The bytes before it are channel framing.
	ResourceHeaderOffset = 4

	// ResourceResponseCapacity is the size of the response buffer allocated
	// for a resource-info exchange.
	ResourceResponseCapacity = ResourceContentMax + 8
)

// TableOp is the request type of a table message.
type TableOp uint8

const (
	TableRead  TableOp = 0
	TableWrite TableOp = 1
)

func (op TableOp) String() string {
	switch op {
	case TableRead:
		return "read"
	case TableWrite:
		return "write"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Field identifies a configuration value held by firmware.
type Field uint8

// Known field identifiers. The same numbering is used by the table and the
// resource-info protocols.
const (
	FieldPcieId      Field = 0
	FieldBdf         Field = 1
	FieldMsgChannel  Field = 2
	FieldDataChannel Field = 3
	FieldVport       Field = 4
	FieldPanelId     Field = 5
	FieldPhyPort     Field = 6
	FieldSerdesNum   Field = 7
	FieldNpPort      Field = 8
	FieldSpeed       Field = 9
	FieldHashId      Field = 10
)

// ModuleId selects the firmware subsystem that handles a message.
type ModuleId uint8

const (
	ModuleDbg       ModuleId = 0
	ModuleTbl       ModuleId = 1
	ModuleMisx      ModuleId = 2
	ModuleSda       ModuleId = 3
	ModuleRdma      ModuleId = 4
	ModuleDemo      ModuleId = 5
	ModuleSmmu      ModuleId = 6
	ModuleMac       ModuleId = 7
	ModuleVdpa      ModuleId = 8
	ModuleVqm       ModuleId = 9
	ModuleNp        ModuleId = 10
	ModuleVport     ModuleId = 11
	ModuleBdf       ModuleId = 12
	ModuleRiscReady ModuleId = 13
	ModuleReverse   ModuleId = 14
	ModuleNvme      ModuleId = 15
	ModuleNpSdk     ModuleId = 16
	ModuleNpTodo    ModuleId = 17
	ModuleMsgToPF   ModuleId = 18
	ModuleMsgToVF   ModuleId = 19
	ModuleFlash     ModuleId = 32
	ModuleOffsetGet ModuleId = 33
)

// ChannelEnd is one of the endpoints of a BAR channel.
type ChannelEnd uint8

const (
	ChannelEndMPF  ChannelEnd = 0
	ChannelEndPF   ChannelEnd = 1
	ChannelEndVF   ChannelEnd = 2
	ChannelEndRISC ChannelEnd = 3
)

func (e ChannelEnd) String() string {
	switch e {
	case ChannelEndMPF:
		return "MPF"
	case ChannelEndPF:
		return "PF"
	case ChannelEndVF:
		return "VF"
	case ChannelEndRISC:
		return "RISC"
	}
	return fmt.Sprintf("end(%d)", uint8(e))
}

// Status is the return code of the channel primitive.
type Status int

const (
	StatusOK Status = iota
	StatusErrMsgId
	StatusErrNull
	StatusErrType
	StatusErrModule
	StatusErrBodyNull
	StatusErrLen
	StatusErrTimeout
	StatusErrNotReady
	StatusErrNullFunc
	StatusErrRepeatRegister
	StatusErrUnregister
	StatusErrNullParam
	StatusErrRepsBuffLen
	StatusErrModuleNotExist
	StatusErrVirtAddrNull
	StatusErrReply
	StatusErrMpfNotScanned
	StatusErrKernelReady
	StatusErrUsrRet
	StatusErrPcieId
	StatusErrSocket
)

var statusNames = [...]string{
	StatusOK:                "ok",
	StatusErrMsgId:          "invalid message id",
	StatusErrNull:           "null pointer",
	StatusErrType:           "invalid message type",
	StatusErrModule:         "invalid module id",
	StatusErrBodyNull:       "empty message body",
	StatusErrLen:            "invalid message length",
	StatusErrTimeout:        "timed out",
	StatusErrNotReady:       "channel not ready",
	StatusErrNullFunc:       "no receive handler",
	StatusErrRepeatRegister: "module registered twice",
	StatusErrUnregister:     "module unregistered twice",
	StatusErrNullParam:      "null parameter",
	StatusErrRepsBuffLen:    "reply buffer too short",
	StatusErrModuleNotExist: "no handler for module",
	StatusErrVirtAddrNull:   "null channel address",
	StatusErrReply:          "bad reply",
	StatusErrMpfNotScanned:  "mpf not scanned",
	StatusErrKernelReady:    "kernel not ready",
	StatusErrUsrRet:         "user handler failed",
	StatusErrPcieId:         "invalid pcie id",
	StatusErrSocket:         "socket error",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

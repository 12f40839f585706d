// Package core sequences the device's fixed processing stages.
package core

import (
	"fmt"

	"mcu-image-pipeline/internal/buffer"
)

// Stage is the controller's cursor. Stages run in declaration order and
// StageIdle is terminal.
type Stage int

const (
	StageOtsuGray Stage = iota
	StageOtsuColor
	StageErosion
	StageDilation
	StageOpening
	StageClosing
	StageIdle
)

var stageNames = [...]string{
	StageOtsuGray:  "otsu_gray",
	StageOtsuColor: "otsu_color",
	StageErosion:   "erosion",
	StageDilation:  "dilation",
	StageOpening:   "opening",
	StageClosing:   "closing",
	StageIdle:      "idle",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage that follows s. StageIdle follows itself.
func (s Stage) Next() Stage {
	if s >= StageIdle || s < 0 {
		return StageIdle
	}
	return s + 1
}

// Stages returns the processing stages in execution order, without StageIdle.
func Stages() []Stage {
	out := make([]Stage, 0, int(StageIdle))
	for s := StageOtsuGray; s < StageIdle; s++ {
		out = append(out, s)
	}
	return out
}

// ParseStage resolves a stage by its String form.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return StageIdle, fmt.Errorf("unknown stage: %s", name)
}

// Workspace slot roles.
const (
	SlotColor  = "color"
	SlotGray   = "gray"
	SlotBinary = "binary"
	SlotTemp   = "temp"
)

var slotEncodings = map[string]buffer.Encoding{
	SlotColor:  buffer.RGB565,
	SlotGray:   buffer.Gray8,
	SlotBinary: buffer.Gray8,
	SlotTemp:   buffer.Gray8,
}

// slotOrder fixes allocation order so the arena layout is stable.
var slotOrder = []string{SlotColor, SlotGray, SlotBinary, SlotTemp}

// ProcessingStep runs one registered operation from one slot into another.
type ProcessingStep struct {
	Algorithm  string
	Input      string
	Output     string
	Parameters map[string]interface{}
}

// StagePlan describes a stage as data: where the inbound frame lands, the
// operations in order, and which slot is sent back.
type StagePlan struct {
	Stage    Stage
	Receive  string
	Steps    []ProcessingStep
	Transmit string
}

// Encoding returns the encoding the stage expects on the wire.
func (p StagePlan) Encoding() buffer.Encoding {
	return slotEncodings[p.Receive]
}

// slots returns every slot the plan writes or reads, in allocation order.
func (p StagePlan) slots() []string {
	used := map[string]bool{p.Receive: true, p.Transmit: true}
	for _, step := range p.Steps {
		used[step.Input] = true
		used[step.Output] = true
	}
	var out []string
	for _, name := range slotOrder {
		if used[name] {
			out = append(out, name)
		}
	}
	return out
}

// DefaultPlans mirrors the device firmware: binarize a gray frame, binarize
// a color frame, then the four morphology operations on a binary frame.
func DefaultPlans(kernelSize int) []StagePlan {
	kernel := func() map[string]interface{} {
		return map[string]interface{}{"kernel_size": kernelSize}
	}

	return []StagePlan{
		{
			Stage:   StageOtsuGray,
			Receive: SlotGray,
			Steps: []ProcessingStep{
				{Algorithm: "otsu", Input: SlotGray, Output: SlotBinary},
			},
			Transmit: SlotBinary,
		},
		{
			Stage:   StageOtsuColor,
			Receive: SlotColor,
			Steps: []ProcessingStep{
				{Algorithm: "grayscale", Input: SlotColor, Output: SlotGray},
				{Algorithm: "otsu", Input: SlotGray, Output: SlotBinary},
			},
			Transmit: SlotBinary,
		},
		{
			Stage:   StageErosion,
			Receive: SlotBinary,
			Steps: []ProcessingStep{
				{Algorithm: "erosion", Input: SlotBinary, Output: SlotTemp, Parameters: kernel()},
			},
			Transmit: SlotTemp,
		},
		{
			Stage:   StageDilation,
			Receive: SlotBinary,
			Steps: []ProcessingStep{
				{Algorithm: "dilation", Input: SlotBinary, Output: SlotTemp, Parameters: kernel()},
			},
			Transmit: SlotTemp,
		},
		{
			// Temp backs the intermediate image of opening and closing.
			Stage:   StageOpening,
			Receive: SlotBinary,
			Steps: []ProcessingStep{
				{Algorithm: "opening", Input: SlotBinary, Output: SlotBinary, Parameters: kernel()},
			},
			Transmit: SlotBinary,
		},
		{
			Stage:   StageClosing,
			Receive: SlotBinary,
			Steps: []ProcessingStep{
				{Algorithm: "closing", Input: SlotBinary, Output: SlotBinary, Parameters: kernel()},
			},
			Transmit: SlotBinary,
		},
	}
}

// Package configfile is the external TOML-parser boundary named in spec
// §6.1: it is the only place in the core that knows the on-disk file
// format, and it produces the typed mapping.ParsedConfig tree mapping.Compile
// consumes. Shaped like the teacher's config/config.go (directory creation,
// os.ReadFile), but parses TOML via github.com/BurntSushi/toml instead of
// encoding/json, and produces the mapping package's compile-ready tree
// instead of a controller auto-connect list.
package configfile

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"conductor/event"
	"conductor/mapping"
	"conductor/midi"
)

// fileConfig mirrors the TOML document shape (spec §6.1). Field names use
// TOML's default lower-snake-case convention via struct tags.
type fileConfig struct {
	Device struct {
		Name        string `toml:"name"`
		AutoConnect bool   `toml:"auto_connect"`
		InputMode   string `toml:"input_mode"`
	} `toml:"device"`

	AdvancedSettings struct {
		ChordTimeoutMs     int64 `toml:"chord_timeout_ms"`
		DoubleTapTimeoutMs int64 `toml:"double_tap_timeout_ms"`
		HoldThresholdMs    int64 `toml:"hold_threshold_ms"`
	} `toml:"advanced_settings"`

	Modes []fileMode `toml:"modes"`

	GlobalMappings []fileMapping `toml:"global_mappings"`
}

type fileMode struct {
	Name     string        `toml:"name"`
	Color    string        `toml:"color"`
	Mappings []fileMapping `toml:"mappings"`
}

type fileMapping struct {
	Description     string          `toml:"description"`
	Trigger         fileTrigger     `toml:"trigger"`
	VelocityMapping *fileVelocity   `toml:"velocity_mapping"`
	Action          fileAction      `toml:"action"`
}

type fileTrigger struct {
	Kind          string `toml:"kind"` // tap, long_press, double_tap, chord, encoder_delta, aftertouch, pitch_bend, program_change
	Id            int    `toml:"id"`
	Ids           []int  `toml:"ids"`
	Tier          string `toml:"tier"` // soft, medium, hard; empty = unconstrained
	MinDurationMs int64  `toml:"min_duration_ms"`
	Direction     string `toml:"direction"` // cw, ccw; empty = unconstrained
	MinBend       int    `toml:"min_bend"`
	HasMinBend    bool   `toml:"has_min_bend"`
}

type fileVelocity struct {
	Kind      string  `toml:"kind"` // pass_through, fixed, linear, curve
	Fixed     int     `toml:"fixed"`
	Min       int     `toml:"min"`
	Max       int     `toml:"max"`
	Shape     string  `toml:"shape"` // exponential, logarithmic, s_curve
	Intensity float64 `toml:"intensity"`
}

type fileAction struct {
	Kind string `toml:"kind"`

	Keys      []string `toml:"keys"`
	Modifiers []string `toml:"modifiers"`

	Text string `toml:"text"`

	App string `toml:"app"`

	Program string   `toml:"program"`
	Args    []string `toml:"args"`

	MouseButton string `toml:"mouse_button"`
	X           int    `toml:"x"`
	Y           int    `toml:"y"`
	HasCoords   bool   `toml:"has_coords"`

	VolumeOp       string `toml:"volume_op"`
	VolumeValue    int    `toml:"volume_value"`
	HasVolumeValue bool   `toml:"has_volume_value"`

	ModeTarget   string `toml:"mode_target"` // named, next, prev, index
	ModeName     string `toml:"mode_name"`
	ModeIndex    int    `toml:"mode_index"`
	ModeRelative bool   `toml:"mode_relative"`

	MidiPort     string `toml:"midi_port"`
	MidiType     string `toml:"midi_type"` // note_on, note_off, control_change
	MidiChannel  int    `toml:"midi_channel"`
	MidiNote     int    `toml:"midi_note"`
	MidiVelocity int    `toml:"midi_velocity"`

	DelayMs int64 `toml:"delay_ms"`

	Steps []fileAction `toml:"steps"`

	RepeatCount   int          `toml:"repeat_count"`
	RepeatAction  *fileAction  `toml:"repeat_action"`
	RepeatDelayMs int64        `toml:"repeat_delay_ms"`

	Condition  *fileCondition `toml:"condition"`
	ThenAction *fileAction    `toml:"then_action"`
	ElseAction *fileAction    `toml:"else_action"`
}

type fileCondition struct {
	Kind       string          `toml:"kind"`
	StartMs    int64           `toml:"start_ms"`
	EndMs      int64           `toml:"end_ms"`
	Days       []int           `toml:"days"`
	Name       string          `toml:"name"`
	Operands   []fileCondition `toml:"operands"`
	Operand    *fileCondition  `toml:"operand"`
}

// Load reads and parses path, returning the compile-ready configuration
// tree. It does not itself compile — callers pass the result to
// mapping.Compile (spec §6.1's single named interface between the parser
// boundary and the core).
func Load(path string) (mapping.ParsedConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return mapping.ParsedConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if _, err := toml.Decode(string(raw), &fc); err != nil {
		return mapping.ParsedConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return convert(fc), nil
}

func convert(fc fileConfig) mapping.ParsedConfig {
	var cfg mapping.ParsedConfig

	cfg.Device.Name = fc.Device.Name
	cfg.Device.AutoConnect = fc.Device.AutoConnect
	cfg.Device.InputMode = convertInputMode(fc.Device.InputMode)

	cfg.AdvancedSettings.ChordTimeoutMs = fc.AdvancedSettings.ChordTimeoutMs
	cfg.AdvancedSettings.DoubleTapTimeoutMs = fc.AdvancedSettings.DoubleTapTimeoutMs
	cfg.AdvancedSettings.HoldThresholdMs = fc.AdvancedSettings.HoldThresholdMs

	for _, m := range fc.Modes {
		cfg.Modes = append(cfg.Modes, mapping.Mode{
			Name:     m.Name,
			Color:    m.Color,
			Mappings: convertMappings(m.Mappings),
		})
	}
	cfg.GlobalMappings = convertMappings(fc.GlobalMappings)

	return cfg
}

func convertInputMode(s string) mapping.InputMode {
	switch s {
	case "midi_only":
		return mapping.InputModeMidiOnly
	case "gamepad_only":
		return mapping.InputModeGamepadOnly
	default:
		return mapping.InputModeBoth
	}
}

func convertMappings(fms []fileMapping) []mapping.Mapping {
	out := make([]mapping.Mapping, 0, len(fms))
	for _, fm := range fms {
		m := mapping.Mapping{
			Description: fm.Description,
			Trigger:     convertTrigger(fm.Trigger),
			Action:      convertAction(fm.Action),
		}
		if fm.VelocityMapping != nil {
			m.HasVelocity = true
			m.Velocity = convertVelocity(*fm.VelocityMapping)
		}
		out = append(out, m)
	}
	return out
}

func convertTrigger(ft fileTrigger) mapping.Trigger {
	tr := mapping.Trigger{Id: event.Id(ft.Id), MinDurationMs: ft.MinDurationMs}

	switch ft.Kind {
	case "long_press":
		tr.Kind = mapping.TriggerLongPress
	case "double_tap":
		tr.Kind = mapping.TriggerDoubleTap
	case "chord":
		tr.Kind = mapping.TriggerChord
		for _, id := range ft.Ids {
			tr.Ids = append(tr.Ids, event.Id(id))
		}
	case "encoder_delta":
		tr.Kind = mapping.TriggerEncoderDelta
		if ft.Direction != "" {
			tr.HasDirection = true
			if ft.Direction == "ccw" {
				tr.Direction = event.CCW
			} else {
				tr.Direction = event.CW
			}
		}
	case "aftertouch":
		tr.Kind = mapping.TriggerAftertouch
	case "pitch_bend":
		tr.Kind = mapping.TriggerPitchBend
		tr.HasMinBend = ft.HasMinBend
		tr.MinBend = int16(ft.MinBend)
	case "program_change":
		tr.Kind = mapping.TriggerProgramChange
	default:
		tr.Kind = mapping.TriggerTap
		if ft.Tier != "" {
			tr.HasTier = true
			tr.Tier = convertTier(ft.Tier)
		}
	}
	return tr
}

func convertTier(s string) event.Tier {
	switch s {
	case "hard":
		return event.TierHard
	case "medium":
		return event.TierMedium
	default:
		return event.TierSoft
	}
}

func convertVelocity(fv fileVelocity) mapping.VelocityMapping {
	vm := mapping.VelocityMapping{Intensity: fv.Intensity}
	switch fv.Kind {
	case "fixed":
		vm.Kind = mapping.VelocityFixed
		vm.Fixed = uint8(fv.Fixed)
	case "linear":
		vm.Kind = mapping.VelocityLinear
		vm.Min = uint8(fv.Min)
		vm.Max = uint8(fv.Max)
	case "curve":
		vm.Kind = mapping.VelocityCurve
		switch fv.Shape {
		case "logarithmic":
			vm.Shape = mapping.CurveLogarithmic
		case "s_curve":
			vm.Shape = mapping.CurveSCurve
		default:
			vm.Shape = mapping.CurveExponential
		}
	default:
		vm.Kind = mapping.VelocityPassThrough
	}
	return vm
}

func convertAction(fa fileAction) mapping.Action {
	a := mapping.Action{
		Keys: fa.Keys, Modifiers: fa.Modifiers,
		Text: fa.Text,
		App:  fa.App,
		Program: fa.Program, Args: fa.Args,
		MouseButton: fa.MouseButton, HasCoords: fa.HasCoords, X: fa.X, Y: fa.Y,
		VolumeOp: fa.VolumeOp, HasVolumeValue: fa.HasVolumeValue, VolumeValue: fa.VolumeValue,
		ModeName: fa.ModeName, ModeIndex: fa.ModeIndex, ModeRelative: fa.ModeRelative,
		MidiPort: fa.MidiPort,
		DelayMs:  fa.DelayMs,
		RepeatCount: fa.RepeatCount, RepeatDelayMs: fa.RepeatDelayMs,
	}

	switch fa.Kind {
	case "text":
		a.Kind = mapping.ActionText
	case "launch":
		a.Kind = mapping.ActionLaunch
	case "shell":
		a.Kind = mapping.ActionShell
	case "mouse_click":
		a.Kind = mapping.ActionMouseClick
	case "volume_control":
		a.Kind = mapping.ActionVolumeControl
	case "mode_change":
		a.Kind = mapping.ActionModeChange
		a.ModeTarget = convertModeTarget(fa.ModeTarget)
	case "send_midi":
		a.Kind = mapping.ActionSendMidi
		a.MidiMessage = convertMidiMessage(fa)
	case "delay":
		a.Kind = mapping.ActionDelay
	case "sequence":
		a.Kind = mapping.ActionSequence
		for _, step := range fa.Steps {
			a.Steps = append(a.Steps, convertAction(step))
		}
	case "repeat":
		a.Kind = mapping.ActionRepeat
		if fa.RepeatAction != nil {
			child := convertAction(*fa.RepeatAction)
			a.RepeatAction = &child
		}
	case "conditional":
		a.Kind = mapping.ActionConditional
		if fa.Condition != nil {
			a.Condition = convertCondition(*fa.Condition)
		}
		if fa.ThenAction != nil {
			then := convertAction(*fa.ThenAction)
			a.ThenAction = &then
		}
		if fa.ElseAction != nil {
			els := convertAction(*fa.ElseAction)
			a.ElseAction = &els
		}
	default:
		a.Kind = mapping.ActionKeystroke
	}
	return a
}

func convertModeTarget(s string) mapping.ModeChangeTarget {
	switch s {
	case "next":
		return mapping.ModeTargetNext
	case "prev":
		return mapping.ModeTargetPrev
	case "index":
		return mapping.ModeTargetIndex
	default:
		return mapping.ModeTargetNamed
	}
}

func convertMidiMessage(fa fileAction) midi.Message {
	var typ uint8
	switch fa.MidiType {
	case "note_off":
		typ = midi.NoteOff
	case "control_change":
		typ = midi.ControlChange
	default:
		typ = midi.NoteOn
	}
	return midi.Message{
		Type:     typ,
		Channel:  uint8(fa.MidiChannel),
		Note:     uint8(fa.MidiNote),
		Velocity: uint8(fa.MidiVelocity),
	}
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func convertCondition(fc fileCondition) mapping.Condition {
	c := mapping.Condition{
		Start: msToDuration(fc.StartMs),
		End:   msToDuration(fc.EndMs),
		Days:  fc.Days,
		Name:  fc.Name,
	}
	switch fc.Kind {
	case "never":
		c.Kind = mapping.ConditionNever
	case "time_range":
		c.Kind = mapping.ConditionTimeRange
	case "day_of_week":
		c.Kind = mapping.ConditionDayOfWeek
	case "app_running":
		c.Kind = mapping.ConditionAppRunning
	case "app_frontmost":
		c.Kind = mapping.ConditionAppFrontmost
	case "mode_is":
		c.Kind = mapping.ConditionModeIs
	case "and":
		c.Kind = mapping.ConditionAnd
		for _, op := range fc.Operands {
			c.Operands = append(c.Operands, convertCondition(op))
		}
	case "or":
		c.Kind = mapping.ConditionOr
		for _, op := range fc.Operands {
			c.Operands = append(c.Operands, convertCondition(op))
		}
	case "not":
		c.Kind = mapping.ConditionNot
		if fc.Operand != nil {
			operand := convertCondition(*fc.Operand)
			c.Operand = &operand
		}
	default:
		c.Kind = mapping.ConditionAlways
	}
	return c
}

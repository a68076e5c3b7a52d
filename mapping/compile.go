package mapping

import (
	"fmt"

	"conductor/event"
)

// CompileError describes one rejected mapping or mode (spec §6.1: "per
// trigger/action validation errors collected, not short-circuited").
type CompileError struct {
	Mode    string // empty for global_mappings or mode-level errors
	Index   int    // position within its mappings list, or -1
	Message string
}

func (e CompileError) Error() string {
	if e.Mode == "" {
		return fmt.Sprintf("global_mappings[%d]: %s", e.Index, e.Message)
	}
	return fmt.Sprintf("modes[%s].mappings[%d]: %s", e.Mode, e.Index, e.Message)
}

// CompileErrors aggregates every CompileError found during Compile. It
// satisfies the error interface so a caller can treat it as a single error
// while still inspecting every individual failure.
type CompileErrors []CompileError

func (e CompileErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d configuration errors (first: %s)", len(e), e[0].Error())
}

// primaryKey is the (event_kind, primary_id) pair Snapshot indexes on
// (spec §4.3).
type primaryKey struct {
	kind event.ProcessedKind
	id   event.Id
}

// compiledMapping is a Mapping annotated with its declaration order. Buckets
// are appended in declaration order, so Resolve's in-bucket scan follows it.
type compiledMapping struct {
	order int
	m     Mapping
}

// modeIndex is one mode's compiled candidate index.
type modeIndex struct {
	name  string
	color string
	index map[primaryKey][]compiledMapping
}

// Snapshot is the immutable compiled mapping table (spec §3.3): an ordered
// list of mode indexes plus one shared global index. Resolve is its only
// externally meaningful operation; a Snapshot is never mutated after
// Compile returns it, so concurrent readers need no locking (§3.5, §5).
type Snapshot struct {
	modes        []modeIndex
	globalIndex  map[primaryKey][]compiledMapping
	ChordWindowMs    int64
	DoubleTapWindowMs int64
	HoldThresholdMs   int64
}

// ModeCount reports how many modes the snapshot compiled.
func (s *Snapshot) ModeCount() int { return len(s.modes) }

// ModeName returns the name of the mode at idx, or "" if out of range.
func (s *Snapshot) ModeName(idx int) string {
	if idx < 0 || idx >= len(s.modes) {
		return ""
	}
	return s.modes[idx].name
}

// ModeColor returns the display color configured for the mode at idx.
func (s *Snapshot) ModeColor(idx int) string {
	if idx < 0 || idx >= len(s.modes) {
		return ""
	}
	return s.modes[idx].color
}

// ModeIndexByName returns the index of the mode named name, or -1.
func (s *Snapshot) ModeIndexByName(name string) int {
	for i, m := range s.modes {
		if m.name == name {
			return i
		}
	}
	return -1
}

// CompiledAction is what Resolve returns on a match: the action to run plus
// the velocity mapping (if any) attached to the winning mapping.
type CompiledAction struct {
	Action      Action
	HasVelocity bool
	Velocity    VelocityMapping
}

// Resolve implements spec §4.3's single operation: given the current mode
// index and a ProcessedEvent, find the first matching mapping — mode
// mappings first in declaration order, then global mappings in declaration
// order — and return its compiled action. A non-matching event is a no-op
// (ok=false), never an error (spec §8 invariant 5).
func (s *Snapshot) Resolve(modeIdx int, pe event.ProcessedEvent) (CompiledAction, bool) {
	key := primaryKeyOf(pe)

	if modeIdx >= 0 && modeIdx < len(s.modes) {
		if ca, ok := resolveIndex(s.modes[modeIdx].index, key, pe); ok {
			return ca, true
		}
	}
	return resolveIndex(s.globalIndex, key, pe)
}

func resolveIndex(idx map[primaryKey][]compiledMapping, key primaryKey, pe event.ProcessedEvent) (CompiledAction, bool) {
	for _, cm := range idx[key] {
		if matches(cm.m.Trigger, pe) {
			return CompiledAction{Action: cm.m.Action, HasVelocity: cm.m.HasVelocity, Velocity: cm.m.Velocity}, true
		}
	}
	return CompiledAction{}, false
}

// primaryKeyOf derives the (kind, primary id) index key for an event. Chord
// and pass-through events have no single primary id; Chord indexes on its
// lowest member id (the sorted set's first element, which Compile also
// keys chord mappings on) and pass-through kinds index on id 0 since there
// is at most one trigger shape per pass-through kind.
func primaryKeyOf(pe event.ProcessedEvent) primaryKey {
	switch pe.Kind {
	case event.KindChordDetected:
		if len(pe.Ids) == 0 {
			return primaryKey{kind: pe.Kind, id: 0}
		}
		return primaryKey{kind: pe.Kind, id: pe.Ids[0]}
	case event.KindPassAftertouch, event.KindPassPitchBend, event.KindPassProgramChange:
		return primaryKey{kind: pe.Kind, id: 0}
	default:
		return primaryKey{kind: pe.Kind, id: pe.Id}
	}
}

// matches evaluates a Trigger's secondary predicates against the event that
// already passed the primary-key lookup (spec §4.3: "cheaply-evaluated
// secondary predicate").
func matches(tr Trigger, pe event.ProcessedEvent) bool {
	switch tr.Kind {
	case TriggerTap:
		return pe.Kind == event.KindTap && (!tr.HasTier || tr.Tier == pe.Tier)
	case TriggerLongPress:
		return pe.Kind == event.KindLongPress && pe.DurationMs >= tr.MinDurationMs
	case TriggerDoubleTap:
		return pe.Kind == event.KindDoubleTap
	case TriggerChord:
		return pe.Kind == event.KindChordDetected && sameIdSet(tr.Ids, pe.Ids)
	case TriggerEncoderDelta:
		return pe.Kind == event.KindEncoderDelta && (!tr.HasDirection || tr.Direction == pe.Direction)
	case TriggerAftertouch:
		return pe.Kind == event.KindPassAftertouch
	case TriggerPitchBend:
		return pe.Kind == event.KindPassPitchBend && (!tr.HasMinBend || pe.Bend >= tr.MinBend)
	case TriggerProgramChange:
		return pe.Kind == event.KindPassProgramChange
	default:
		return false
	}
}

func sameIdSet(want, got []event.Id) bool {
	wantSorted := event.SortedIds(want)
	gotSorted := event.SortedIds(got)
	if len(wantSorted) != len(gotSorted) {
		return false
	}
	for i := range wantSorted {
		if wantSorted[i] != gotSorted[i] {
			return false
		}
	}
	return true
}

// Compile builds an indexed Snapshot from a parsed configuration (spec
// §4.3, §6.1). Every mapping is validated independently; failures are
// collected into a CompileErrors aggregate rather than aborting at the
// first one.
func Compile(cfg ParsedConfig) (*Snapshot, CompileErrors) {
	var errs CompileErrors

	if len(cfg.Modes) == 0 {
		errs = append(errs, CompileError{Index: -1, Message: "at least one mode is required"})
	}

	seenNames := make(map[string]bool, len(cfg.Modes))
	snap := &Snapshot{
		ChordWindowMs:     valueOrDefault(cfg.AdvancedSettings.ChordTimeoutMs, 50),
		DoubleTapWindowMs: valueOrDefault(cfg.AdvancedSettings.DoubleTapTimeoutMs, 300),
		HoldThresholdMs:   valueOrDefault(cfg.AdvancedSettings.HoldThresholdMs, 2000),
	}

	modeNames := make([]string, 0, len(cfg.Modes))
	for _, m := range cfg.Modes {
		modeNames = append(modeNames, m.Name)
	}

	for _, m := range cfg.Modes {
		if seenNames[m.Name] {
			errs = append(errs, CompileError{Mode: m.Name, Index: -1, Message: "duplicate mode name"})
			continue
		}
		seenNames[m.Name] = true

		idx, modeErrs := compileMappings(m.Name, m.Mappings, modeNames)
		errs = append(errs, modeErrs...)
		snap.modes = append(snap.modes, modeIndex{name: m.Name, color: m.Color, index: idx})
	}

	globalIdx, globalErrs := compileMappings("", cfg.GlobalMappings, modeNames)
	errs = append(errs, globalErrs...)
	snap.globalIndex = globalIdx

	if len(errs) > 0 {
		return snap, errs
	}
	return snap, nil
}

func valueOrDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func compileMappings(modeName string, mappings []Mapping, modeNames []string) (map[primaryKey][]compiledMapping, CompileErrors) {
	idx := make(map[primaryKey][]compiledMapping)
	var errs CompileErrors

	for i, m := range mappings {
		if err := validateTrigger(m.Trigger); err != "" {
			errs = append(errs, CompileError{Mode: modeName, Index: i, Message: err})
			continue
		}
		if err := validateAction(m.Action, modeNames); err != "" {
			errs = append(errs, CompileError{Mode: modeName, Index: i, Message: err})
			continue
		}

		key := indexKeyOf(m.Trigger)
		idx[key] = append(idx[key], compiledMapping{order: i, m: m})
	}

	return idx, errs
}

// indexKeyOf derives the primary index key a Trigger is stored under at
// compile time — mirroring primaryKeyOf's treatment of the corresponding
// ProcessedEvent kind.
func indexKeyOf(tr Trigger) primaryKey {
	switch tr.Kind {
	case TriggerTap:
		return primaryKey{kind: event.KindTap, id: tr.Id}
	case TriggerLongPress:
		return primaryKey{kind: event.KindLongPress, id: tr.Id}
	case TriggerDoubleTap:
		return primaryKey{kind: event.KindDoubleTap, id: tr.Id}
	case TriggerChord:
		sorted := event.SortedIds(tr.Ids)
		if len(sorted) == 0 {
			return primaryKey{kind: event.KindChordDetected, id: 0}
		}
		return primaryKey{kind: event.KindChordDetected, id: sorted[0]}
	case TriggerEncoderDelta:
		return primaryKey{kind: event.KindEncoderDelta, id: tr.Id}
	case TriggerAftertouch:
		return primaryKey{kind: event.KindPassAftertouch, id: 0}
	case TriggerPitchBend:
		return primaryKey{kind: event.KindPassPitchBend, id: 0}
	case TriggerProgramChange:
		return primaryKey{kind: event.KindPassProgramChange, id: 0}
	default:
		return primaryKey{}
	}
}

func validateTrigger(tr Trigger) string {
	switch tr.Kind {
	case TriggerChord:
		if len(event.SortedIds(tr.Ids)) < 2 {
			return "chord trigger requires at least 2 distinct ids"
		}
	case TriggerLongPress:
		if tr.MinDurationMs < 0 {
			return "long-press duration floor must be >= 0"
		}
	case TriggerTap, TriggerDoubleTap, TriggerEncoderDelta, TriggerAftertouch, TriggerPitchBend, TriggerProgramChange:
		// no additional constraints
	default:
		return "unknown trigger kind"
	}
	return ""
}

func validateAction(a Action, modeNames []string) string {
	switch a.Kind {
	case ActionKeystroke:
		if len(a.Keys) == 0 {
			return "keystroke action requires at least one key"
		}
	case ActionText:
		if a.Text == "" {
			return "text action requires non-empty text"
		}
	case ActionLaunch:
		if a.App == "" {
			return "launch action requires an app"
		}
	case ActionShell:
		if a.Program == "" {
			return "shell action requires a program"
		}
	case ActionMouseClick:
		if a.MouseButton == "" {
			return "mouse_click action requires a button"
		}
	case ActionVolumeControl:
		if a.VolumeOp == "" {
			return "volume_control action requires an op"
		}
		if a.HasVolumeValue && (a.VolumeValue < 0 || a.VolumeValue > 100) {
			return "volume_control value must be in 0..=100"
		}
	case ActionModeChange:
		if a.ModeTarget == ModeTargetNamed && !containsName(modeNames, a.ModeName) {
			return fmt.Sprintf("mode_change target %q does not resolve to a known mode", a.ModeName)
		}
		if a.ModeTarget == ModeTargetIndex && (a.ModeIndex < 0 || a.ModeIndex >= len(modeNames)) {
			return "mode_change index out of range"
		}
	case ActionSendMidi:
		if a.MidiPort == "" {
			return "send_midi action requires a port"
		}
	case ActionDelay:
		if a.DelayMs < 0 {
			return "delay action requires ms >= 0"
		}
	case ActionSequence:
		for i, step := range a.Steps {
			if err := validateAction(step, modeNames); err != "" {
				return fmt.Sprintf("sequence step %d: %s", i, err)
			}
		}
	case ActionRepeat:
		if a.RepeatCount < 0 {
			return "repeat count must be >= 0"
		}
		if a.RepeatAction == nil {
			return "repeat action requires a child action"
		}
		if err := validateAction(*a.RepeatAction, modeNames); err != "" {
			return fmt.Sprintf("repeat action: %s", err)
		}
	case ActionConditional:
		if a.ThenAction == nil {
			return "conditional requires a then action"
		}
		if err := validateAction(*a.ThenAction, modeNames); err != "" {
			return fmt.Sprintf("conditional then: %s", err)
		}
		if a.ElseAction != nil {
			if err := validateAction(*a.ElseAction, modeNames); err != "" {
				return fmt.Sprintf("conditional else: %s", err)
			}
		}
	default:
		return "unknown action kind"
	}
	return ""
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

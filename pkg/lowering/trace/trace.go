// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package trace is the structured trace channel of the lowering passes.
//
// Lowering code never logs directly: it is handed a Tracer and reports well-defined
// events (primitive selection, repeat decomposition, gather policy, emitted steps).
// Use Klog in binaries, Recorder in tests and Discard when nobody is listening.
package trace

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Kind of trace event.
type Kind int

//go:generate go tool enumer -type=Kind -trimprefix=Kind -output=gen_kind_enumer.go trace.go

const (
	KindInvalid Kind = iota
	KindPrimitiveSelected
	KindRepeatsDecomposed
	KindPolicySelected
	KindStepEmitted
	KindInvocationsSplit
	KindCopyLowered
	KindFillLowered
)

// Field is a key/value pair attached to an Event.
type Field struct {
	Key   string
	Value any
}

// F is a shortcut to create a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Event is a single trace point.
type Event struct {
	Kind Kind

	// Program is the ID of the program being lowered, if any.
	Program string

	Fields []Field
}

// Get returns the value of the field with the given key.
func (e Event) Get(key string) (value any, found bool) {
	idx := slices.IndexFunc(e.Fields, func(f Field) bool { return f.Key == key })
	if idx < 0 {
		return nil, false
	}
	return e.Fields[idx].Value, true
}

// String implements fmt.Stringer, in a "key=value" format.
func (e Event) String() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Program != "" {
		fmt.Fprintf(&sb, " program=%s", e.Program)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&sb, " %s=%v", f.Key, f.Value)
	}
	return sb.String()
}

// Tracer receives the trace events of a lowering.
//
// Implementations must be safe for concurrent use if the same Tracer is shared by
// lowerings running in different goroutines.
type Tracer interface {
	Trace(e Event)
}

type discard struct{}

func (discard) Trace(Event) {}

// Discard is a Tracer that drops every event.
var Discard Tracer = discard{}

// Klog logs the events with klog at the configured verbosity level.
type Klog struct {
	Level klog.Level
}

// Trace implements Tracer.
func (k Klog) Trace(e Event) {
	if v := klog.V(k.Level); v.Enabled() {
		v.Infof("gemmlower: %s", e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Trace implements Tracer.
func (r *Recorder) Trace(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events, in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// OfKind returns the recorded events of the given kind, in order.
func (r *Recorder) OfKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

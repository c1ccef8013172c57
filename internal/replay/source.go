package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// Source yields raw event records in ascending id order. domain.EventLog
// satisfies it.
type Source interface {
	Scan(ctx context.Context, filter domain.EventFilter, fn func(domain.RawEvent) error) error
}

// MemorySource is an in-memory Source, used for JSONL exports and tests.
type MemorySource struct {
	events []domain.RawEvent
}

// NewMemorySource copies events and orders them by id.
func NewMemorySource(events []domain.RawEvent) *MemorySource {
	cp := make([]domain.RawEvent, len(events))
	copy(cp, events)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	return &MemorySource{events: cp}
}

// Len returns the number of records held.
func (s *MemorySource) Len() int { return len(s.events) }

// Scan implements Source.
func (s *MemorySource) Scan(ctx context.Context, filter domain.EventFilter, fn func(domain.RawEvent) error) error {
	for _, ev := range s.events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filter.Matches(ev) {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// ReadJSONL decodes one RawEvent per line. Records exported without an id
// get their line number, which preserves file order.
func ReadJSONL(r io.Reader) (*MemorySource, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var events []domain.RawEvent
	var line int64
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var ev domain.RawEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, fmt.Errorf("replay: decode line %d: %w", line, err)
		}
		if ev.ID == 0 {
			ev.ID = line
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("replay: read jsonl: %w", err)
	}
	return NewMemorySource(events), nil
}

// WriteJSONL encodes events one per line.
func WriteJSONL(w io.Writer, events []domain.RawEvent) error {
	enc := json.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("replay: write jsonl: %w", err)
		}
	}
	return nil
}

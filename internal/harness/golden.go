package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tessera/internal/value"
)

// GoldenDir is the fixture directory of golden traces.
const GoldenDir = "testdata/golden"

// EncodeTrace renders a trace as one canonical JSON event per line.
func EncodeTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, event := range trace {
		line, err := value.MarshalCanonical(event.Encode())
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", event.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario, fails t unless it passes, and compares its
// trace with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) (*Result, error) {
	t.Helper()
	result, err := Run(context.Background(), s, opts...)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", s.Name, msg)
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares the trace of a result with a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	data, err := EncodeTrace(result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

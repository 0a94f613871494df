package monitor

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters_Enable(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(&buf, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	if opsLogger == nil {
		t.Fatal("opsLogger should be non-nil after SetLogWriters with a writer")
	}
	if diagLogger != nil {
		t.Fatal("diagLogger should be nil when passed nil writer")
	}
	if traceLogger != nil {
		t.Fatal("traceLogger should be nil when passed nil writer")
	}
}

func TestSetLogWriters_Disable(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(&buf, &buf, &buf)
	SetLogWriters(nil, nil, nil)

	if opsLogger != nil || diagLogger != nil || traceLogger != nil {
		t.Fatal("all loggers should be nil after SetLogWriters(nil, nil, nil)")
	}
}

func TestStreamsWritePrefixedLines(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	defer SetLogWriters(nil, nil, nil)

	opsf("ops %d", 1)
	diagf("diag %d", 2)
	tracef("trace %d", 3)

	for name, got := range map[string]string{
		"ops":   ops.String(),
		"diag":  diag.String(),
		"trace": trace.String(),
	} {
		if !strings.Contains(got, "[monitor] ") || !strings.Contains(got, name) {
			t.Errorf("%s stream output = %q, want prefixed %s line", name, got, name)
		}
	}
}

func TestStreamsNoopWhenDisabled(t *testing.T) {
	SetLogWriters(nil, nil, nil)
	// Must not panic with all streams disabled.
	opsf("ops")
	diagf("diag")
	tracef("trace")
}

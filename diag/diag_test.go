package diag

import "testing"

func TestFaultDedupReportsOnce(t *testing.T) {
	d := NewFaultDedup()
	if !d.First(0x1000) {
		t.Fatalf("expected the first occurrence to report true")
	}
	if d.First(0x1000) {
		t.Fatalf("expected a repeat occurrence to report false")
	}
	if !d.First(0x2000) {
		t.Fatalf("expected a distinct address to report true")
	}
}

func TestDisassembleValidInstruction(t *testing.T) {
	// 0x90 is NOP on x86; a trivial but always-valid instruction to decode.
	line := Disassemble([]byte{0x90}, 0x1000)
	if line == "" {
		t.Fatalf("expected a non-empty disassembly line")
	}
}

func TestDisassembleInvalidBytes(t *testing.T) {
	line := Disassemble(nil, 0x2000)
	if line == "" {
		t.Fatalf("expected a diagnostic line even for undecodable input")
	}
}

func TestReportFaultSkipsAfterFirst(t *testing.T) {
	d := NewFaultDedup()
	first := ReportFault(d, 0x4000, true, true, false, nil)
	if first == "" {
		t.Fatalf("expected a report on first occurrence")
	}
	second := ReportFault(d, 0x4000, true, true, false, nil)
	if second != "" {
		t.Fatalf("expected no report on repeat occurrence, got %q", second)
	}
}

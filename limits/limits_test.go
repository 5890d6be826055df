package limits

import "testing"

func TestTakeGiveRespectsCeiling(t *testing.T) {
	var s Sysatomic_t
	s.Given(2)

	if !s.Take() || !s.Take() {
		t.Fatalf("expected both takes within the ceiling to succeed")
	}
	if s.Take() {
		t.Fatalf("expected a third take beyond the ceiling to fail")
	}
	if s.Value() != 0 {
		t.Fatalf("expected value 0 after exhausting the ceiling, got %d", s.Value())
	}

	s.Give()
	if s.Value() != 1 {
		t.Fatalf("expected value 1 after giving one back, got %d", s.Value())
	}
}

func TestMkSysLimitCreditsBothCounters(t *testing.T) {
	sl := MkSysLimit(64, 256)
	if sl.Sysprocs.Value() != 64 {
		t.Fatalf("expected 64 process slots, got %d", sl.Sysprocs.Value())
	}
	if sl.Futexes.Value() != 256 {
		t.Fatalf("expected 256 futex slots, got %d", sl.Futexes.Value())
	}
}

func TestTakeFailureDoesNotUnderflow(t *testing.T) {
	var s Sysatomic_t
	before := Lhits
	if s.Take() {
		t.Fatalf("expected take on an empty counter to fail")
	}
	if s.Value() != 0 {
		t.Fatalf("expected value to stay 0, got %d", s.Value())
	}
	if Lhits != before+1 {
		t.Fatalf("expected Lhits to be incremented on a refused take")
	}
}

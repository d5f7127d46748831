package alarm

import "testing"

func TestMachine_EdgeTriggered(t *testing.T) {
	t.Parallel()
	m := New()

	if m.State() != Idle {
		t.Fatalf("initial state = %v, want idle", m.State())
	}
	if m.Observe(false) {
		t.Error("quiet sample reported an edge")
	}
	if !m.Observe(true) {
		t.Fatal("first anomaly did not report the Idle→Active edge")
	}
	for i := range 10 {
		if m.Observe(true) {
			t.Fatalf("anomaly %d while active reported an edge", i)
		}
	}
	if m.State() != Active {
		t.Errorf("state = %v, want active", m.State())
	}
}

func TestMachine_ReturnsToIdleAfterCapPlusOneTicks(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 3, DefaultCap} {
		m := New(WithCap(n))
		m.Observe(true)

		for i := 1; i <= n; i++ {
			if m.Tick() {
				t.Fatalf("cap %d: tick %d ended the episode early", n, i)
			}
			if m.Counter() != i {
				t.Errorf("cap %d: counter after tick %d = %d", n, i, m.Counter())
			}
		}
		if !m.Tick() {
			t.Fatalf("cap %d: tick %d did not end the episode", n, n+1)
		}
		if m.State() != Idle || m.Counter() != 0 {
			t.Errorf("cap %d: after episode state=%v counter=%d", n, m.State(), m.Counter())
		}
	}
}

func TestMachine_AnomaliesDuringEpisodeDoNotExtendIt(t *testing.T) {
	t.Parallel()
	m := New()
	m.Observe(true)

	ticks := 0
	for {
		m.Observe(true)
		ticks++
		if m.Tick() {
			break
		}
		if ticks > 100 {
			t.Fatal("episode never ended")
		}
	}
	if ticks != DefaultCap+1 {
		t.Errorf("episode lasted %d ticks, want %d", ticks, DefaultCap+1)
	}
}

func TestMachine_RearmsAfterEpisode(t *testing.T) {
	t.Parallel()
	m := New(WithCap(2))

	edges := 0
	for range 2 {
		if m.Observe(true) {
			edges++
		}
		for !m.Tick() {
		}
	}
	if edges != 2 {
		t.Errorf("edges = %d, want 2", edges)
	}
}

func TestMachine_TickWhileIdleIsNoop(t *testing.T) {
	t.Parallel()
	m := New()
	for range 20 {
		if m.Tick() {
			t.Fatal("idle tick reported an edge")
		}
	}
	if m.Counter() != 0 || m.Blink() {
		t.Errorf("idle ticks changed counter=%d blink=%v", m.Counter(), m.Blink())
	}
}

func TestMachine_BlinkToggles(t *testing.T) {
	t.Parallel()
	m := New()
	m.Observe(true)

	want := false
	for range DefaultCap {
		m.Tick()
		want = !want
		if m.Blink() != want {
			t.Fatalf("blink = %v, want %v", m.Blink(), want)
		}
	}
}

func TestMachine_ResetForcesIdle(t *testing.T) {
	t.Parallel()
	m := New(WithName("audio"))
	m.Observe(true)
	m.Tick()
	m.Reset()

	if m.State() != Idle || m.Counter() != 0 || m.Blink() {
		t.Errorf("after Reset: state=%v counter=%d blink=%v", m.State(), m.Counter(), m.Blink())
	}
	if m.Name() != "audio" {
		t.Errorf("Name = %q", m.Name())
	}
	if !m.Observe(true) {
		t.Error("anomaly after Reset did not report an edge")
	}
}

func TestWithCap_IgnoresNonPositive(t *testing.T) {
	t.Parallel()
	if got := New(WithCap(0)).Cap(); got != DefaultCap {
		t.Errorf("Cap = %d, want %d", got, DefaultCap)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	if Idle.String() != "idle" || Active.String() != "active" {
		t.Errorf("got %q %q", Idle, Active)
	}
}

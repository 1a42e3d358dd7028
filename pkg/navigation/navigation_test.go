package navigation

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/avoidance"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

func TestComputeDurationBounds(t *testing.T) {
	cfg := DefaultConfig()
	prev := time.Duration(0)
	for m := 0.0; m <= 20000; m += 7.5 {
		d := ComputeDuration(m, cfg)
		if d < cfg.MinMove || d > cfg.MaxMove {
			t.Fatalf("ComputeDuration(%v) = %v, outside [%v, %v]", m, d, cfg.MinMove, cfg.MaxMove)
		}
		if d < prev {
			t.Fatalf("ComputeDuration(%v) = %v, less than previous %v", m, d, prev)
		}
		prev = d
	}

	for _, m := range []float64{-5, math.NaN(), math.Inf(1)} {
		d := ComputeDuration(m, cfg)
		if d < cfg.MinMove || d > cfg.MaxMove {
			t.Errorf("ComputeDuration(%v) = %v, outside bounds", m, d)
		}
	}
	if got := ComputeDuration(50, cfg); got != cfg.MaxMove {
		t.Errorf("ComputeDuration(50) = %v, want saturation at %v", got, cfg.MaxMove)
	}
}

func TestSamplingPeriod(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		total time.Duration
		want  time.Duration
	}{
		{2 * time.Second, 500 * time.Millisecond},
		{time.Second, 250 * time.Millisecond},
		{20 * time.Millisecond, cfg.MinSamplePeriod},
	}
	for _, tt := range tests {
		if got := SamplingPeriod(tt.total, cfg); got != tt.want {
			t.Errorf("SamplingPeriod(%v) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

func TestDeriveCommand(t *testing.T) {
	tests := []struct {
		step route.Step
		want motor.Command
	}{
		{route.Step{Instruction: "Turn LEFT onto Main St", DistanceMeters: 40}, motor.Left},
		{route.Step{Instruction: "turn right at the light"}, motor.Right},
		{route.Step{Instruction: "Keep going", Maneuver: route.ManeuverTurnSlightLeft}, motor.Left},
		{route.Step{Instruction: "At the roundabout", Maneuver: route.ManeuverRoundaboutRight}, motor.Right},
		{route.Step{Instruction: "Turn left", Maneuver: route.ManeuverTurnRight}, motor.Left},
		{route.Step{Instruction: "Head north on Queen St", DistanceMeters: 200}, motor.Forward},
		{route.Step{Instruction: "Continue", Maneuver: route.ManeuverStraight}, motor.Forward},
	}
	for _, tt := range tests {
		if got := DeriveCommand(tt.step); got != tt.want {
			t.Errorf("DeriveCommand(%q, %q) = %s, want %s", tt.step.Instruction, tt.step.Maneuver, got, tt.want)
		}
	}
}

func TestRouteRunsToCompletion(t *testing.T) {
	f := newFixture(t, fastConfig())
	steps := []route.Step{
		{Instruction: "Head north on Queen St", DistanceMeters: 100},
		{Instruction: "Continue straight", DistanceMeters: 30},
		{Instruction: "Continue to destination", DistanceMeters: 5},
	}

	id, err := f.c.StartRoute(context.Background(), steps)
	if err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	st := f.c.State()
	if st.StepIndex != len(steps) {
		t.Errorf("StepIndex = %d, want %d", st.StepIndex, len(steps))
	}
	if st.Active || st.InProgress || st.StopOnlyMode {
		t.Errorf("flags not reset: %+v", st)
	}
	if st.Phase != PhaseComplete {
		t.Errorf("Phase = %s, want %s", st.Phase, PhaseComplete)
	}
	if st.Progress != 1 {
		t.Errorf("Progress = %v, want 1", st.Progress)
	}
	if st.Status != StatusReady {
		t.Errorf("Status = %q", st.Status)
	}

	ended := f.rec.of(EventEnded)
	if len(ended) != 1 {
		t.Fatalf("got %d end events, want 1", len(ended))
	}
	if !ended[0].Completed || ended[0].RunID != id {
		t.Errorf("end event = %+v", ended[0])
	}
	if n := len(f.rec.of(EventStarted)); n != 1 {
		t.Errorf("got %d start events, want 1", n)
	}
	if got := f.motor.Count(motor.Forward); got != 3 {
		t.Errorf("forward calls = %d, want 3", got)
	}

	spoken := f.rec.spoken()
	if len(spoken) == 0 || spoken[len(spoken)-1] != announce.ArrivalPhrase {
		t.Errorf("last announcement = %v, want arrival", spoken)
	}
}

func TestTurnLeftOntoMainStreet(t *testing.T) {
	f := newFixture(t, fastConfig())
	steps := []route.Step{{Instruction: "Turn left onto Main St", Maneuver: route.ManeuverTurnLeft, DistanceMeters: 40}}

	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	trace := f.rec.traced()
	if len(trace) < 3 {
		t.Fatalf("trace too short: %v", trace)
	}
	if !strings.HasPrefix(trace[0], "say:") || !strings.Contains(trace[0], "Main St") {
		t.Errorf("first action = %q, want announcement naming Main St", trace[0])
	}
	if trace[1] != "motor:left" || trace[2] != "motor:forward" {
		t.Errorf("motor sequence = %v, want left then forward", trace[1:3])
	}
	if st := f.c.State(); st.StepIndex != 1 || st.Active {
		t.Errorf("state = %+v, want completed at index 1", st)
	}
	if ended := f.rec.of(EventEnded); len(ended) != 1 || !ended[0].Completed {
		t.Errorf("end events = %+v", ended)
	}
}

func TestDangerousObstacleHandsOffToStrategist(t *testing.T) {
	f := newFixture(t, fastConfig())
	person := obstacle.Obstacle{Type: "person", Center: []float64{150, 100}, DangerLevel: obstacle.DangerHigh}
	f.mon.polls = [][]obstacle.Obstacle{{person}, nil}
	f.mon.fresh = []obstacle.Obstacle{}

	// The raw forward result is a failure that arrives after the stop.
	f.motor.Delay = func(c motor.Call) time.Duration {
		if c.Command == motor.Forward {
			return 200 * time.Millisecond
		}
		return 0
	}
	f.motor.Err = func(c motor.Call) error {
		if c.Command == motor.Forward {
			return errors.New("wheel slipped")
		}
		return nil
	}

	steps := []route.Step{{Instruction: "Head east on King St", DistanceMeters: 60}}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	if f.motor.Count(motor.Stop) == 0 {
		t.Error("expected the motor to be stopped")
	}
	attempts := f.rec.of(EventAvoidance)
	if len(attempts) == 0 || attempts[0].Attempt.Strategy != avoidance.StopAndWait {
		t.Fatalf("avoidance attempts = %+v, want stop_and_wait", attempts)
	}
	if obs := f.rec.of(EventObstacle); len(obs) != 1 || obs[0].Obstacles[0].Type != "person" {
		t.Errorf("obstacle events = %+v", obs)
	}
	ended := f.rec.of(EventEnded)
	if len(ended) != 1 || !ended[0].Completed {
		t.Errorf("route should complete on the strategist's outcome, got %+v", ended)
	}
}

func TestUnavoidableObstacleHalts(t *testing.T) {
	f := newFixture(t, fastConfig())
	box := obstacle.Obstacle{Type: "box", Center: []float64{160, 100}, DangerLevel: obstacle.DangerHigh}
	f.mon.polls = [][]obstacle.Obstacle{{box}}

	steps := []route.Step{{Instruction: "Turn right onto Bay St", DistanceMeters: 20}}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	st := f.c.State()
	if st.Active || st.InProgress || st.StopOnlyMode {
		t.Errorf("flags not reset: %+v", st)
	}
	if st.StepIndex != 0 {
		t.Errorf("StepIndex = %d, want 0", st.StepIndex)
	}
	if st.Phase != PhaseHalted {
		t.Errorf("Phase = %s, want %s", st.Phase, PhaseHalted)
	}
	if st.Status != StatusAssistance {
		t.Errorf("Status = %q, want %q", st.Status, StatusAssistance)
	}
	ended := f.rec.of(EventEnded)
	if len(ended) != 1 || ended[0].Completed {
		t.Errorf("end events = %+v, want one halt", ended)
	}
}

func TestMotorFailureHalts(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.motor.Err = func(motor.Call) error { return motor.ErrRejected }

	steps := []route.Step{
		{Instruction: "Head west", DistanceMeters: 10},
		{Instruction: "Continue", DistanceMeters: 10},
	}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	st := f.c.State()
	if st.Active || st.StepIndex != 0 {
		t.Errorf("state = %+v, want halted at step 0", st)
	}
	if !strings.HasPrefix(st.Status, statusHaltedPrefix) {
		t.Errorf("Status = %q", st.Status)
	}
	ended := f.rec.of(EventEnded)
	if len(ended) != 1 || ended[0].Completed || !strings.Contains(ended[0].Reason, "step 1") {
		t.Errorf("end events = %+v", ended)
	}
}

func TestStopDuringMove(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.motor.Delay = func(c motor.Call) time.Duration {
		if c.Command == motor.Forward {
			return time.Minute
		}
		return 0
	}

	if _, err := f.c.StartRoute(context.Background(), []route.Step{{Instruction: "Go", DistanceMeters: 500}}); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	waitFor(t, "forward command", func() bool { return f.motor.Count(motor.Forward) > 0 })

	if f.c.AcceptsVoiceCommand("turn left") {
		t.Error("non-stop command accepted while moving")
	}
	if !f.c.AcceptsVoiceCommand("please STOP") {
		t.Error("stop command rejected while moving")
	}
	if f.c.HandleVoiceCommand(context.Background(), "go faster") {
		t.Error("HandleVoiceCommand accepted a non-stop command")
	}

	if !f.c.HandleVoiceCommand(context.Background(), "stop now") {
		t.Fatal("stop command not accepted")
	}
	f.wait(t)

	st := f.c.State()
	if st.Active || st.InProgress || st.StopOnlyMode {
		t.Errorf("flags not reset: %+v", st)
	}
	if st.Status != StatusStopped {
		t.Errorf("Status = %q", st.Status)
	}
	if f.motor.Count(motor.Stop) == 0 {
		t.Error("motor not stopped")
	}
	ended := f.rec.of(EventEnded)
	if len(ended) != 1 || ended[0].Completed || ended[0].Reason != "voice stop" {
		t.Errorf("end events = %+v", ended)
	}
	if f.c.Stop(context.Background(), "again") {
		t.Error("second Stop reported an active route")
	}
	if !f.c.AcceptsVoiceCommand("turn left") {
		t.Error("commands should be accepted once navigation stops")
	}
}

func blockForward(f *fixture) {
	f.motor.Delay = func(c motor.Call) time.Duration {
		if c.Command == motor.Forward {
			return time.Minute
		}
		return 0
	}
}

func TestConcurrentCompletionAdvancesOnce(t *testing.T) {
	f := newFixture(t, fastConfig())
	blockForward(f)
	steps := []route.Step{{Instruction: "Go", DistanceMeters: 10}, {Instruction: "Go on", DistanceMeters: 10}}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	waitFor(t, "forward command", func() bool { return f.motor.Count(motor.Forward) > 0 })

	f.c.mu.Lock()
	r := f.c.run
	f.c.mu.Unlock()

	var advanced atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.completeStep(0, time.Hour) {
				advanced.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := advanced.Load(); got != 1 {
		t.Errorf("%d completions succeeded, want 1", got)
	}
	st := f.c.State()
	if st.StepIndex != 1 || !st.StepLocked {
		t.Errorf("state = %+v, want index 1 and locked", st)
	}
	if r.completeStep(1, 0) {
		t.Error("completion accepted while stepLocked")
	}
	if !r.finishStep(1) {
		t.Error("movement completion refused by the progress lock")
	}
	if st := f.c.State(); st.StepIndex != 2 || !st.StepLocked {
		t.Errorf("state = %+v, want index 2 with the lock kept", st)
	}
}

func TestCheckProgress(t *testing.T) {
	cfg := fastConfig()
	f := newFixture(t, cfg)
	blockForward(f)

	start := route.Coordinate{Lat: 43.6532, Lng: -79.3832}
	near := route.Coordinate{Lat: 43.6535, Lng: -79.3832}
	far := route.Coordinate{Lat: 43.6700, Lng: -79.3832}
	steps := []route.Step{
		{Instruction: "Go", DistanceMeters: 30, Start: &start, End: &near},
		{Instruction: "Go far", DistanceMeters: 2000, Start: &near, End: &far},
	}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	waitFor(t, "forward command", func() bool { return f.motor.Count(motor.Forward) > 0 })

	if !f.c.CheckProgress() {
		t.Fatal("CheckProgress did not complete a step within the radius")
	}
	if f.c.CheckProgress() {
		t.Error("CheckProgress advanced again while locked")
	}
	st := f.c.State()
	if st.StepIndex != 1 {
		t.Errorf("StepIndex = %d, want 1", st.StepIndex)
	}
	want := 30.0 / 2030.0
	if math.Abs(st.Progress-want) > 1e-9 {
		t.Errorf("Progress = %v, want %v", st.Progress, want)
	}

	f.c.mu.Lock()
	f.c.stepLocked = false
	f.c.mu.Unlock()
	if f.c.CheckProgress() {
		t.Error("CheckProgress completed a step whose end is out of range")
	}
}

func TestCheckProgressCooldown(t *testing.T) {
	cfg := fastConfig()
	cfg.ProgressCooldown = time.Hour
	cfg.ProgressUnlock = time.Millisecond
	f := newFixture(t, cfg)
	blockForward(f)

	p := route.Coordinate{Lat: 43.6532, Lng: -79.3832}
	steps := []route.Step{
		{Instruction: "Go", DistanceMeters: 1, Start: &p, End: &p},
		{Instruction: "Go", DistanceMeters: 1, Start: &p, End: &p},
	}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	if !f.c.CheckProgress() {
		t.Fatal("first CheckProgress should advance")
	}
	waitFor(t, "unlock", func() bool { return !f.c.State().StepLocked })
	if f.c.CheckProgress() {
		t.Error("CheckProgress advanced inside the cooldown")
	}
}

func TestProgressCheckMidMoveRunsEachStepOnce(t *testing.T) {
	cfg := fastConfig()
	cfg.ProgressUnlock = 300 * time.Millisecond
	f := newFixture(t, cfg)

	var forwards atomic.Int32
	f.motor.Delay = func(c motor.Call) time.Duration {
		if c.Command != motor.Forward {
			return 0
		}
		if forwards.Add(1) == 1 {
			return 100 * time.Millisecond
		}
		return 30 * time.Millisecond
	}

	start := route.Coordinate{Lat: 43.6532, Lng: -79.3832}
	near := route.Coordinate{Lat: 43.6535, Lng: -79.3832}
	next := route.Coordinate{Lat: 43.6538, Lng: -79.3832}
	steps := []route.Step{
		{Instruction: "Go", DistanceMeters: 30, Start: &start, End: &near},
		{Instruction: "Go on", DistanceMeters: 30, Start: &near, End: &next},
	}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	waitFor(t, "forward command", func() bool { return f.motor.Count(motor.Forward) > 0 })
	if !f.c.CheckProgress() {
		t.Fatal("CheckProgress did not complete step 1")
	}
	f.wait(t)

	if got := f.motor.Count(motor.Forward); got != len(steps) {
		t.Errorf("forward calls = %d, want one per step (%d)", got, len(steps))
	}
	if st := f.c.State(); st.StepIndex != len(steps) || st.Active {
		t.Errorf("state = %+v, want completed", st)
	}
	ended := f.rec.of(EventEnded)
	if len(ended) != 1 || !ended[0].Completed {
		t.Errorf("end events = %+v, want one completion", ended)
	}
	var completions int
	for _, e := range f.rec.of(EventStep) {
		if strings.HasPrefix(e.Message, "Completed step") {
			completions++
		}
	}
	if completions != len(steps) {
		t.Errorf("%d step completions, want %d", completions, len(steps))
	}
}

func TestStoppedRunLeavesPoseAlone(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.motor.Delay = func(c motor.Call) time.Duration {
		if c.Command == motor.Left {
			return time.Minute
		}
		return 0
	}

	steps := []route.Step{{Instruction: "Turn left", Maneuver: route.ManeuverTurnLeft, DistanceMeters: 10}}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	waitFor(t, "left turn", func() bool { return f.motor.Count(motor.Left) > 0 })
	before := f.c.Pose()

	f.c.Stop(context.Background(), "stop")
	f.wait(t)

	if after := f.c.Pose(); after != before {
		t.Errorf("pose moved after stop: %+v -> %+v", before, after)
	}
	if n := len(f.rec.of(EventPose)); n != 0 {
		t.Errorf("got %d pose events from a stopped run", n)
	}
	if st := f.c.State(); st.Phase != PhaseHalted {
		t.Errorf("Phase = %s, want %s", st.Phase, PhaseHalted)
	}
}

func TestDetourLegsMoveThePose(t *testing.T) {
	f := newFixture(t, fastConfig())
	box := obstacle.Obstacle{Type: "box", Center: []float64{160, 100}, DangerLevel: obstacle.DangerHigh}
	f.mon.polls = [][]obstacle.Obstacle{{box}, nil}
	f.mon.fresh = []obstacle.Obstacle{}
	f.motor.Delay = func(c motor.Call) time.Duration {
		if c.Command == motor.Forward && c.Duration > time.Millisecond {
			return 200 * time.Millisecond
		}
		return 0
	}

	steps := []route.Step{{Instruction: "Head north", DistanceMeters: 60}}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	var legs []motor.Command
	for _, e := range f.rec.of(EventPose) {
		legs = append(legs, e.Command)
	}
	want := []motor.Command{motor.Forward, motor.Right, motor.Forward, motor.Left}
	if !reflect.DeepEqual(legs, want) {
		t.Errorf("pose legs = %v, want %v", legs, want)
	}
	if b := f.c.Pose().Bearing; b != 0 {
		t.Errorf("Bearing = %v, want 0 after the return turn", b)
	}
}

func TestRunContextReleasedWhenRouteEnds(t *testing.T) {
	f := newFixture(t, fastConfig())
	if _, err := f.c.StartRoute(context.Background(), []route.Step{{Instruction: "Go", DistanceMeters: 5}}); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.c.mu.Lock()
	r := f.c.run
	f.c.mu.Unlock()
	f.wait(t)

	if r.ctx.Err() == nil {
		t.Error("run context still live after the route completed")
	}
}

func TestDistanceForInvertsComputeDuration(t *testing.T) {
	cfg := DefaultConfig()
	for _, m := range []float64{0.5, 1, 5} {
		got := DistanceFor(ComputeDuration(m, cfg), cfg)
		if math.Abs(got-m) > 0.01 {
			t.Errorf("DistanceFor(ComputeDuration(%v)) = %v", m, got)
		}
	}
	if DistanceFor(0, cfg) != 0 {
		t.Error("zero duration should map to zero meters")
	}
}

func TestStartRouteValidation(t *testing.T) {
	f := newFixture(t, fastConfig())
	if _, err := f.c.StartRoute(context.Background(), []route.Step{{Instruction: "Go", DistanceMeters: -1}}); !errors.Is(err, route.ErrInvalidDistance) {
		t.Errorf("StartRoute error = %v, want ErrInvalidDistance", err)
	}

	blockForward(f)
	if _, err := f.c.StartRoute(context.Background(), []route.Step{{Instruction: "Go", DistanceMeters: 5}}); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	if _, err := f.c.StartRoute(context.Background(), nil); !errors.Is(err, ErrActive) {
		t.Errorf("second StartRoute error = %v, want ErrActive", err)
	}
}

func TestEmptyRouteCompletesImmediately(t *testing.T) {
	f := newFixture(t, fastConfig())
	if _, err := f.c.StartRoute(context.Background(), nil); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	if st := f.c.State(); st.Active || st.Phase != PhaseComplete || st.Progress != 1 {
		t.Errorf("state = %+v", st)
	}
	if len(f.motor.Calls()) != 0 {
		t.Errorf("motor calls = %v, want none", f.motor.Commands())
	}
	if n := len(f.rec.of(EventEnded)); n != 1 {
		t.Errorf("got %d end events, want 1", n)
	}

	// A new route may start once the previous one has ended.
	if _, err := f.c.StartRoute(context.Background(), []route.Step{{Instruction: "Go", DistanceMeters: 1}}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	f.wait(t)
	if st := f.c.State(); st.StepIndex != 1 || st.Phase != PhaseComplete {
		t.Errorf("state after restart = %+v", st)
	}
}

func TestTurnsKeepBearingInRange(t *testing.T) {
	f := newFixture(t, fastConfig())
	var steps []route.Step
	for i := 0; i < 9; i++ {
		m := route.ManeuverTurnRight
		if i%3 == 0 {
			m = route.ManeuverTurnSharpLeft
		}
		steps = append(steps, route.Step{Instruction: "Turn", Maneuver: m})
	}
	if _, err := f.c.StartRoute(context.Background(), steps); err != nil {
		t.Fatalf("StartRoute: %v", err)
	}
	f.wait(t)

	for _, e := range f.rec.of(EventPose) {
		if b := e.Pose.Bearing; b < 0 || b >= 360 {
			t.Fatalf("bearing %v out of range", b)
		}
	}
	if got := f.motor.Count(motor.Forward); got != 0 {
		t.Errorf("zero-distance turns issued %d forward legs", got)
	}
}

func TestListenersFanOut(t *testing.T) {
	var got []EventType
	ls := Listeners{
		ListenerFunc(func(e Event) { got = append(got, e.Type) }),
		ListenerFunc(func(Event) { panic("boom") }),
		ListenerFunc(func(e Event) { got = append(got, e.Type) }),
	}
	ls.OnEvent(Event{Type: EventLog})
	if len(got) != 2 {
		t.Errorf("delivered to %d listeners, want 2", len(got))
	}
}

func TestPhaseMachine(t *testing.T) {
	var changes []string
	m := newPhaseMachine(func(from, to Phase) { changes = append(changes, string(from)+">"+string(to)) })
	ctx := context.Background()

	for _, ev := range []string{evAnnounce, evAvoid, evMove, evMove, evAdvance, evComplete} {
		if err := m.fire(ctx, ev); err != nil {
			t.Fatalf("fire(%s): %v", ev, err)
		}
	}
	if m.current() != PhaseComplete || !m.current().Terminal() {
		t.Errorf("current = %s", m.current())
	}
	want := "idle>announcing announcing>obstacle_handling obstacle_handling>moving moving>advancing advancing>complete"
	if got := strings.Join(changes, " "); got != want {
		t.Errorf("changes = %s\nwant %s", got, want)
	}
	if err := m.fire(ctx, evMove); err == nil {
		t.Error("move from complete should be rejected")
	}
	if err := m.fire(ctx, evReset); err != nil || m.current() != PhaseIdle {
		t.Errorf("reset: %v, current %s", err, m.current())
	}
}

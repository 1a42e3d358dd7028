package announce

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kibo-rover/go-kibo/internal/log"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/route"
	"github.com/kibo-rover/go-kibo/pkg/tts"
)

func TestMovementPhrases(t *testing.T) {
	tests := []struct {
		name string
		cmd  motor.Command
		step route.Step
		want string
	}{
		{
			"forward with street",
			motor.Forward,
			route.Step{Instruction: "Head north on Bay St", DistanceMeters: 120},
			"Kibo will now continue forward on Bay St for 120 meters, monitoring for obstacles",
		},
		{
			"forward without street",
			motor.Forward,
			route.Step{Instruction: "Continue straight", DistanceMeters: 35},
			"Kibo will now move forward 35 meters with obstacle detection active",
		},
		{
			"left with street",
			motor.Left,
			route.Step{Instruction: "Turn left onto Main St", Maneuver: route.ManeuverTurnLeft, DistanceMeters: 40},
			"Kibo will now turn left onto Main St and continue for 40 meters",
		},
		{
			"right with street no distance",
			motor.Right,
			route.Step{Instruction: "Turn right into Queen St W, then stop", DistanceMeters: 0},
			"Kibo will now turn right onto Queen St W",
		},
		{
			"right without street",
			motor.Right,
			route.Step{Instruction: "Turn right", DistanceMeters: 12.4},
			"Kibo will now turn right and continue 12 meters",
		},
		{
			"roundabout with exit and street",
			motor.Forward,
			route.Step{Instruction: "At the roundabout, take the 2nd exit onto King St", Maneuver: route.ManeuverRoundaboutRight, DistanceMeters: 80},
			"Kibo will navigate the roundabout, taking the 2nd exit onto King St, continuing for 80 meters",
		},
		{
			"roundabout without details",
			motor.Forward,
			route.Step{Instruction: "Enter the roundabout", DistanceMeters: 15},
			"Kibo will navigate the roundabout, taking the next exit, continuing for 15 meters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Movement(tt.cmd, tt.step); got != tt.want {
				t.Errorf("Movement() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}

func TestObstaclesPhrase(t *testing.T) {
	got := Obstacles([]string{"person", "dog"})
	if got != "Obstacles detected: person, dog. Finding safe path." {
		t.Errorf("Obstacles() = %q", got)
	}
}

func TestAnnouncerTimeout(t *testing.T) {
	a := NewAnnouncer(nil, 80*time.Millisecond, 2*time.Second, log.Discard())
	if got := a.Timeout("hello"); got != 2400*time.Millisecond {
		t.Errorf("Timeout = %v, want 2.4s", got)
	}
}

func TestAnnounceOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		speaker Speaker
		want    Outcome
	}{
		{"spoken", SpeakerFunc(func(ctx context.Context, text string) error { return nil }), Spoken},
		{"failed", SpeakerFunc(func(ctx context.Context, text string) error { return errors.New("no audio device") }), Failed},
		{"panics", SpeakerFunc(func(ctx context.Context, text string) error { panic("boom") }), Failed},
		{"hangs", SpeakerFunc(func(ctx context.Context, text string) error {
			time.Sleep(time.Second)
			return nil
		}), TimedOut},
		{"respects ctx", SpeakerFunc(func(ctx context.Context, text string) error {
			<-ctx.Done()
			return ctx.Err()
		}), TimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnnouncer(tt.speaker, time.Millisecond, 20*time.Millisecond, log.Discard())
			start := time.Now()
			if got := a.Announce(context.Background(), "hi"); got != tt.want {
				t.Errorf("Announce() = %v, want %v", got, tt.want)
			}
			if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
				t.Errorf("Announce blocked for %v", elapsed)
			}
		})
	}
}

type recordingSink struct {
	clips []*tts.Clip
}

func (r *recordingSink) Play(ctx context.Context, clip *tts.Clip) error {
	r.clips = append(r.clips, clip)
	return nil
}

func TestTTSSpeaker(t *testing.T) {
	provider := tts.NewMock()
	sink := &recordingSink{}
	s := NewTTSSpeaker(provider, sink)

	if err := s.Speak(context.Background(), "Turn left"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(sink.clips) != 1 || sink.clips[0].Text != "Turn left" {
		t.Errorf("sink got %+v", sink.clips)
	}

	provider.SynthesizeFunc = func(ctx context.Context, text string) (*tts.Clip, error) {
		return nil, tts.ErrProviderUnavailable
	}
	if err := s.Speak(context.Background(), "x"); !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Errorf("Speak err = %v", err)
	}
}

func TestHTTPSink(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/play" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	clip := &tts.Clip{Audio: []byte("mp3"), Format: tts.FormatMP3, Duration: 10 * time.Millisecond}
	if err := NewHTTPSink(srv.URL).Play(context.Background(), clip); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if gotType != "audio/mpeg" || gotBody != "mp3" {
		t.Errorf("got %q %q", gotType, gotBody)
	}
}

func TestStreet(t *testing.T) {
	if got := Street(motor.Left, "Turn LEFT onto Elm Ave, continue"); got != "Elm Ave" {
		t.Errorf("Street = %q", got)
	}
	if got := Street(motor.Forward, "Continue onto the highway"); strings.Contains(got, "highway") {
		t.Errorf("onto should not match the forward pattern, got %q", got)
	}
}

package ffmpeg

import (
	"time"

	"testing"

	"github.com/anacrolix/ffprobe"
)

func TestResultFromInfo(t *testing.T) {
	for _, tc := range []struct {
		ffprobe.Info               // Input data
		time.Duration              // Expected duration
		uint                       // Expected bitrate
		resolution          string // Expected resolution
	}{
		{ffprobe.Info{
			Format: map[string]interface{}{"duration": "N/A"},
		}, 0, 0, ""},
		{ffprobe.Info{Format: map[string]interface{}{"bit_rate": "128000.000000", "duration": "N/A"}}, 0, 128000, ""},
		{ffprobe.Info{}, 0, 0, ""},
		{ffprobe.Info{Format: map[string]interface{}{"duration": "1377.628452"}}, 1377628452000, 0, ""},
		{ffprobe.Info{
			Format: map[string]interface{}{"duration": "60.000000"},
			Streams: []map[string]interface{}{
				{"codec_type": "audio"},
				{"codec_type": "video", "width": float64(1920), "height": float64(1080)},
			},
		}, time.Minute, 0, "1920x1080"},
	} {
		r := resultFromInfo(&tc.Info)
		if r.Bitrate != tc.uint {
			t.Fatalf("bitrate is %d, but expected %d", r.Bitrate, tc.uint)
		}
		if r.Duration != tc.Duration {
			t.Fatalf("duration is %s but expected %s", r.Duration, tc.Duration)
		}
		if r.Resolution != tc.resolution {
			t.Fatalf("resolution is %q but expected %q", r.Resolution, tc.resolution)
		}
	}
}

func TestNPTDuration(t *testing.T) {
	if s := (Result{Duration: 90 * time.Second}).NPTDuration(); s != "00:01:30.000" {
		t.Fatal(s)
	}
	if s := (Result{}).NPTDuration(); s != "" {
		t.Fatal(s)
	}
}

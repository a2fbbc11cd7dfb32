package replay

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/test"

	"github.com/erh/camtrack/tracking"
)

var identity = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

const recording = `{"status":0}
{"status":1,"rotation":[1,0,0,0,1,0,0,0,1],"position":[1,2,3]}

{"status":2}
{"status":1,"rotation":[0,-1,0,1,0,0,0,0,1],"position":[4,5,6]}
`

func intrinsicsForTest() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{Width: 2, Height: 2, Fx: 2, Fy: 2, Ppx: 1, Ppy: 1}
}

func TestReadRecords(t *testing.T) {
	records, err := ReadRecords(strings.NewReader(recording))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(records), test.ShouldEqual, 4)
	test.That(t, records[1].Position, test.ShouldResemble, [3]float64{1, 2, 3})
	test.That(t, records[3].Rotation[1], test.ShouldEqual, -1)

	_, err = ReadRecords(strings.NewReader("{\"status\":1}\nnope\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line 2")
}

func TestEnginePlayback(t *testing.T) {
	logger := logging.NewTestLogger(t)
	records, err := ReadRecords(strings.NewReader(recording))
	test.That(t, err, test.ShouldBeNil)

	e := NewEngine(records, false, logger)
	frame := make([]byte, 6)

	// nothing before init
	test.That(t, e.ProcessFrame(frame, 3, 2), test.ShouldEqual, 0)
	test.That(t, e.InitTracking(1, 3, 2, 0, 3, 1.5, 1), test.ShouldBeFalse)
	test.That(t, e.InitTracking(1, 3, 2, 3, 3, 1.5, 1), test.ShouldBeTrue)

	var r [9]float64
	var p [3]float64

	test.That(t, e.ProcessFrame(frame, 3, 2), test.ShouldEqual, 0)
	test.That(t, e.WorldPose(&r, &p), test.ShouldBeFalse)

	test.That(t, e.ProcessFrame(frame, 3, 2), test.ShouldEqual, 1)
	test.That(t, e.WorldPose(&r, &p), test.ShouldBeTrue)
	test.That(t, r, test.ShouldResemble, identity)
	test.That(t, p, test.ShouldResemble, [3]float64{1, 2, 3})

	test.That(t, e.LocalPose(&r, &p), test.ShouldBeTrue)
	test.That(t, p, test.ShouldResemble, [3]float64{-1, -2, -3})

	test.That(t, e.ProcessFrame(frame, 3, 2), test.ShouldEqual, 2)
	test.That(t, e.WorldPose(&r, &p), test.ShouldBeFalse)

	test.That(t, e.ProcessFrame(frame, 3, 2), test.ShouldEqual, 1)
	test.That(t, e.LocalPose(&r, &p), test.ShouldBeTrue)
	// transpose of a 90 degree turn about z, position rotated back
	test.That(t, r, test.ShouldResemble, [9]float64{0, 1, 0, -1, 0, 0, 0, 0, 1})
	test.That(t, p[0], test.ShouldAlmostEqual, -5)
	test.That(t, p[1], test.ShouldAlmostEqual, 4)
	test.That(t, p[2], test.ShouldAlmostEqual, -6)

	test.That(t, e.Remaining(), test.ShouldEqual, 0)
	test.That(t, e.ProcessFrame(frame, 3, 2), test.ShouldEqual, 2)
	test.That(t, e.WorldPose(&r, &p), test.ShouldBeFalse)
}

func TestEngineLoop(t *testing.T) {
	records := []Record{{Status: 1, Rotation: identity}, {Status: 2}}
	e := NewEngine(records, true, logging.NewTestLogger(t))
	test.That(t, e.InitTracking(1, 1, 1, 1, 1, 0, 0), test.ShouldBeTrue)

	got := []int{}
	for i := 0; i < 5; i++ {
		got = append(got, e.ProcessFrame([]byte{0}, 1, 1))
	}
	test.That(t, got, test.ShouldResemble, []int{1, 2, 1, 2, 1})
}

func TestRegisteredFactory(t *testing.T) {
	logger := logging.NewTestLogger(t)
	test.That(t, tracking.RegisteredEngines(), test.ShouldContain, EngineName)

	_, err := tracking.NewEngine(EngineName, map[string]interface{}{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	fn := filepath.Join(t.TempDir(), "rec.jsonl")
	test.That(t, os.WriteFile(fn, []byte(recording), 0o644), test.ShouldBeNil)

	e, err := tracking.NewEngine(EngineName, map[string]interface{}{"file": fn, "loop": true}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.(*Engine).loop, test.ShouldBeTrue)

	empty := filepath.Join(t.TempDir(), "empty.jsonl")
	test.That(t, os.WriteFile(empty, nil, 0o644), test.ShouldBeNil)
	_, err = NewEngineFromFile(empty, false, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRecorderRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)
	records, err := ReadRecords(strings.NewReader(recording))
	test.That(t, err, test.ShouldBeNil)

	buf := &bytes.Buffer{}
	rec := NewRecorder(NewEngine(records, false, logger), buf)
	test.That(t, rec.InitTracking(1, 2, 2, 2, 2, 1, 1), test.ShouldBeTrue)

	for range records {
		rec.ProcessFrame(make([]byte, 4), 2, 2)
	}
	test.That(t, rec.Err(), test.ShouldBeNil)
	test.That(t, rec.Close(), test.ShouldBeNil)

	again, err := ReadRecords(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, records)
}

func TestRecorderInSession(t *testing.T) {
	logger := logging.NewTestLogger(t)
	records := []Record{{Status: 1, Rotation: identity, Position: [3]float64{1, 1, 1}}}

	fn := filepath.Join(t.TempDir(), "out.jsonl")
	rec, err := NewFileRecorder(NewEngine(records, false, logger), fn)
	test.That(t, err, test.ShouldBeNil)

	s := tracking.NewSession(rec, tracking.SessionConfig{}, logger)
	test.That(t, s.Initialize(intrinsicsForTest()), test.ShouldBeNil)

	status, err := s.ProcessFrame(make([]byte, 4), 2, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, tracking.StatusTracking)

	rp, ok, err := s.QueryWorldPose()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rp.Position.X, test.ShouldEqual, 1)

	test.That(t, s.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, `"position":[1,1,1]`)
}

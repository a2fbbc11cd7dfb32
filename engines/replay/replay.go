// Package replay plays recorded tracking engine output back, and records it.
//
// A recording is JSON lines, one per processed frame:
//
//	{"status":1,"rotation":[1,0,0,0,1,0,0,0,1],"position":[0,0,0]}
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.viam.com/rdk/logging"

	"github.com/erh/camtrack/tracking"
)

// EngineName is the name the replay engine registers under.
const EngineName = "replay"

func init() {
	tracking.RegisterEngine(EngineName, func(attrs map[string]interface{}, logger logging.Logger) (tracking.Engine, error) {
		fn, _ := attrs["file"].(string)
		if fn == "" {
			return nil, fmt.Errorf("replay engine needs a file")
		}
		loop, _ := attrs["loop"].(bool)
		return NewEngineFromFile(fn, loop, logger)
	})
}

// Record is one frame of engine output.
type Record struct {
	Status   int        `json:"status"`
	Rotation [9]float64 `json:"rotation"`
	Position [3]float64 `json:"position"`
}

// ReadRecords parses a recording.
func ReadRecords(r io.Reader) ([]Record, error) {
	records := []Record{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("bad record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Engine returns recorded results instead of looking at frames.
type Engine struct {
	logger  logging.Logger
	records []Record
	loop    bool

	width, height int
	next          int
	current       *Record
}

// NewEngine plays records in order. Once they run out every frame is lost, unless loop is set.
func NewEngine(records []Record, loop bool, logger logging.Logger) *Engine {
	return &Engine{records: records, loop: loop, logger: logger}
}

// NewEngineFromFile reads a recording from disk.
func NewEngineFromFile(fn string, loop bool, logger logging.Logger) (*Engine, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read recording (%s): %w", fn, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("recording (%s) is empty", fn)
	}
	logger.Infof("replaying %d frames from %s", len(records), fn)
	return NewEngine(records, loop, logger), nil
}

// InitTracking accepts any pinhole model and restarts playback.
func (e *Engine) InitTracking(modelType, width, height int, fx, fy, cx, cy float64) bool {
	if width <= 0 || height <= 0 || fx <= 0 || fy <= 0 {
		return false
	}
	e.width = width
	e.height = height
	e.next = 0
	e.current = nil
	return true
}

// ProcessFrame returns the next recorded status.
func (e *Engine) ProcessFrame(luminance []byte, width, height int) int {
	if e.width == 0 {
		return int(tracking.StatusUndefined)
	}
	if width != e.width || height != e.height {
		e.logger.Warnf("replay frame %dx%d doesn't match %dx%d", width, height, e.width, e.height)
	}

	if e.next >= len(e.records) {
		if !e.loop || len(e.records) == 0 {
			e.current = nil
			return int(tracking.StatusLost)
		}
		e.next = 0
	}

	e.current = &e.records[e.next]
	e.next++
	return e.current.Status
}

// WorldPose returns the recorded pose of the last frame.
func (e *Engine) WorldPose(rotation *[9]float64, position *[3]float64) bool {
	if e.current == nil || tracking.StatusFromCode(e.current.Status) != tracking.StatusTracking {
		return false
	}
	*rotation = e.current.Rotation
	*position = e.current.Position
	return true
}

// LocalPose is the inverse of the world pose, the camera-from-world transform.
func (e *Engine) LocalPose(rotation *[9]float64, position *[3]float64) bool {
	var r [9]float64
	var p [3]float64
	if !e.WorldPose(&r, &p) {
		return false
	}
	// R^T and -R^T p
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rotation[i*3+j] = r[j*3+i]
		}
	}
	for i := 0; i < 3; i++ {
		position[i] = -(rotation[i*3]*p[0] + rotation[i*3+1]*p[1] + rotation[i*3+2]*p[2])
	}
	return true
}

// Remaining is how many records are left before the end (or the next loop).
func (e *Engine) Remaining() int {
	return len(e.records) - e.next
}

// Recorder wraps an engine and writes every frame it reports.
type Recorder struct {
	tracking.Engine

	lock   sync.Mutex
	closer io.Closer
	enc    *json.Encoder
	err    error
}

// NewRecorder records e into w.
func NewRecorder(e tracking.Engine, w io.Writer) *Recorder {
	r := &Recorder{Engine: e, enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// NewFileRecorder records e into a new file.
func NewFileRecorder(e tracking.Engine, fn string) (*Recorder, error) {
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return NewRecorder(e, f), nil
}

// ProcessFrame forwards the frame and writes its result. The pose of a tracking frame is
// captured right away so the record is complete whether or not anyone queries it.
func (r *Recorder) ProcessFrame(luminance []byte, width, height int) int {
	status := r.Engine.ProcessFrame(luminance, width, height)

	rec := Record{Status: status}
	if tracking.StatusFromCode(status) == tracking.StatusTracking {
		r.Engine.WorldPose(&rec.Rotation, &rec.Position)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.enc.Encode(rec); err != nil && r.err == nil {
		r.err = err
	}
	return status
}

// Err is the first write error, recording stops being useful after one.
func (r *Recorder) Err() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.err
}

// Close closes the output and the wrapped engine when they can be closed.
func (r *Recorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	errs := []error{r.err}
	if r.closer != nil {
		errs = append(errs, r.closer.Close())
	}
	if c, ok := r.Engine.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

//go:build !(cgo && sonar)

// Package sonar binds the sonar visual tracking library through its C ABI.
package sonar

import (
	"errors"

	"go.viam.com/rdk/logging"

	"github.com/erh/camtrack/tracking"
)

// ErrNotBuilt is returned when the binary was built without the sonar tag.
var ErrNotBuilt = errors.New("sonar engine not built in, rebuild with cgo and -tags sonar")

func init() {
	tracking.RegisterEngine(EngineName, func(attrs map[string]interface{}, logger logging.Logger) (tracking.Engine, error) {
		return nil, ErrNotBuilt
	})
}

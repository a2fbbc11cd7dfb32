//go:build !(cgo && sonar)

package sonar

import (
	"errors"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/erh/camtrack/tracking"
)

func TestNotBuilt(t *testing.T) {
	test.That(t, tracking.RegisteredEngines(), test.ShouldContain, EngineName)
	_, err := tracking.NewEngine(EngineName, nil, logging.NewTestLogger(t))
	test.That(t, errors.Is(err, ErrNotBuilt), test.ShouldBeTrue)
}

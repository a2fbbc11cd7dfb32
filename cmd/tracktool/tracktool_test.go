package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/utils"
	"go.viam.com/test"

	"github.com/erh/camtrack/tracking"
)

func TestTuning(t *testing.T) {
	sc, err := tuning("", "mobile")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sc, test.ShouldResemble, tracking.MobileStabilizerConfig)

	fn := filepath.Join(t.TempDir(), "tuning.yaml")
	test.That(t, os.WriteFile(fn, []byte("profile: mobile\nposition_smooth_factor: 0.25\n"), 0o644), test.ShouldBeNil)

	sc, err = tuning(fn, "desktop")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sc.RotationSmoothFactor, test.ShouldEqual, tracking.MobileStabilizerConfig.RotationSmoothFactor)
	test.That(t, sc.PositionSmoothFactor, test.ShouldEqual, 0.25)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	test.That(t, os.WriteFile(bad, []byte("rotation_smooth_factor: 1.5\n"), 0o644), test.ShouldBeNil)
	_, err = tuning(bad, "desktop")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = tuning(filepath.Join(t.TempDir(), "missing.yaml"), "desktop")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConnectWithoutHostUsesEnv(t *testing.T) {
	t.Setenv(utils.MachineFQDNEnvVar, "")
	t.Setenv(utils.APIKeyIDEnvVar, "id")
	t.Setenv(utils.APIKeyEnvVar, "key")

	_, err := connect(context.Background(), "", logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, utils.MachineFQDNEnvVar)
}

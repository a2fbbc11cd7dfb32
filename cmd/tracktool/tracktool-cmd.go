package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/spatialmath"

	"github.com/erh/camtrack"
	"github.com/erh/camtrack/engines/replay"
	"github.com/erh/camtrack/imgutils"
	"github.com/erh/camtrack/intrinsics"
	"github.com/erh/camtrack/tracking"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	logger := logging.NewLogger("tracktool")
	ctx := context.Background()

	host := flag.String("host", "", "hostname, defaults to the machine in the module environment")
	cmd := flag.String("cmd", "", "command: intrinsics, replay, grab")
	cameraName := flag.String("camera", "", "camera to use")
	in := flag.String("in", "", "input file")
	out := flag.String("out", "", "output file")
	configFile := flag.String("config", "", "tuning file (profile, rotation_smooth_factor, position_smooth_factor)")

	width := flag.Int("width", 640, "")
	height := flag.Int("height", 480, "")
	vfov := flag.Float64("vfov", 0, "vertical field of view in degrees, 0 if unknown")
	aspect := flag.Float64("aspect", 0, "")
	profile := flag.String("profile", "desktop", "desktop or mobile")

	flag.Parse()

	if *cmd == "" {
		return fmt.Errorf("need a cmd")
	}

	intr, err := intrinsics.Build(intrinsics.Params{
		Width:              *width,
		Height:             *height,
		VerticalFovDegrees: *vfov,
		AspectRatio:        *aspect,
	})
	if err != nil {
		return err
	}

	if *cmd == "intrinsics" {
		fmt.Printf("width: %d height: %d\n", intr.Width, intr.Height)
		fmt.Printf("fx: %0.3f fy: %0.3f ppx: %0.1f ppy: %0.1f\n", intr.Fx, intr.Fy, intr.Ppx, intr.Ppy)
		fmt.Printf("horizontal view angle: %0.2f\n", intrinsics.HorizontalViewAngle(intr))
		if *aspect > 0 {
			fmt.Printf("render vertical fov: %0.2f\n", intrinsics.RenderVerticalFov(intr, *aspect))
		}
		return nil
	}

	if *cmd == "replay" {
		if *in == "" {
			return fmt.Errorf("need an 'in'")
		}

		sc, err := tuning(*configFile, *profile)
		if err != nil {
			return err
		}

		engine, err := replay.NewEngineFromFile(*in, false, logger)
		if err != nil {
			return err
		}
		return replayRecording(engine, intr, sc, logger)
	}

	if *cmd == "grab" {
		if *out == "" {
			return fmt.Errorf("need an 'out'")
		}

		machine, err := connect(ctx, *host, logger)
		if err != nil {
			return err
		}
		defer machine.Close(ctx)

		cam, err := camera.FromRobot(machine, *cameraName)
		if err != nil {
			return err
		}

		imgs, _, err := cam.Images(ctx, nil, nil)
		if err != nil {
			return err
		}
		if len(imgs) == 0 {
			return fmt.Errorf("no images from %s", *cameraName)
		}

		img, err := imgs[0].Image(ctx)
		if err != nil {
			return err
		}

		lum := imgutils.Luminance(img)
		logger.Infof("grabbed %dx%d, mean luminance %0.1f", img.Bounds().Dx(), img.Bounds().Dy(), imgutils.AverageLuminance(lum))

		return rimage.WriteImageToFile(*out, imgutils.LuminanceImage(lum, img.Bounds().Dx(), img.Bounds().Dy()))
	}

	return fmt.Errorf("unknown command [%s]", *cmd)
}

// connect uses the viam cli token for a named host, otherwise the api key in the environment.
func connect(ctx context.Context, host string, logger logging.Logger) (robot.Robot, error) {
	if host == "" {
		return camtrack.ConnectToMachineFromEnv(ctx, logger)
	}
	return camtrack.ConnectToHostFromCLIToken(ctx, host, logger)
}

func tuning(fn, profile string) (tracking.StabilizerConfig, error) {
	if fn == "" {
		return tracking.StabilizerProfile(profile)
	}

	v := viper.New()
	v.SetConfigFile(fn)
	v.SetDefault("profile", profile)
	if err := v.ReadInConfig(); err != nil {
		return tracking.StabilizerConfig{}, err
	}

	sc, err := tracking.StabilizerProfile(v.GetString("profile"))
	if err != nil {
		return sc, err
	}
	if v.IsSet("rotation_smooth_factor") {
		sc.RotationSmoothFactor = v.GetFloat64("rotation_smooth_factor")
	}
	if v.IsSet("position_smooth_factor") {
		sc.PositionSmoothFactor = v.GetFloat64("position_smooth_factor")
	}
	return sc, sc.Validate()
}

func replayRecording(engine *replay.Engine, intr *transform.PinholeCameraIntrinsics, sc tracking.StabilizerConfig, logger logging.Logger) error {
	session := tracking.NewSession(engine, tracking.SessionConfig{}, logger)
	defer session.Close()

	if err := session.Initialize(intr); err != nil {
		return err
	}

	stabilizer, err := tracking.NewStabilizer(sc)
	if err != nil {
		return err
	}
	state := tracking.NewStabilizerState()

	frame := make([]byte, intr.Width*intr.Height)
	for i := 0; engine.Remaining() > 0; i++ {
		status, err := session.ProcessFrame(frame, intr.Width, intr.Height)
		if err != nil {
			return err
		}

		var raw spatialmath.Pose
		if status == tracking.StatusTracking {
			rp, ok, err := session.QueryWorldPose()
			if err != nil {
				return err
			}
			if ok {
				raw = rp.Pose()
			}
		}

		p, ok := stabilizer.Step(state, status, raw)
		if !ok {
			fmt.Fprintf(os.Stdout, "%d\t%s\n", i, status)
			continue
		}
		o := p.Orientation().OrientationVectorDegrees()
		fmt.Fprintf(os.Stdout, "%d\t%s\t%0.3f %0.3f %0.3f\t%0.3f %0.3f %0.3f %0.2f\n",
			i, status, p.Point().X, p.Point().Y, p.Point().Z, o.OX, o.OY, o.OZ, o.Theta)
	}
	return nil
}

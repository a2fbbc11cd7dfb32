package camtrack

import (
	"context"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/utils"
	"go.viam.com/test"
)

func TestUpdateComponentOrServiceConfig(t *testing.T) {
	robotConfig := map[string]interface{}{
		"components": []interface{}{
			map[string]interface{}{"name": "cam", "attributes": map[string]interface{}{"a": 1}},
		},
		"services": []interface{}{
			map[string]interface{}{"name": "tracker", "attributes": map[string]interface{}{"camera": "cam"}},
		},
	}

	name := resource.NewName(genericservice.API, "tracker")
	newAttr := utils.AttributeMap{"camera": "cam", "reference_point": map[string]float64{"x": 1}}

	found, err := updateComponentOrServiceConfig(robotConfig, name, newAttr)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)

	svc := robotConfig["services"].([]interface{})[0].(map[string]interface{})
	test.That(t, svc["attributes"], test.ShouldResemble, newAttr)

	found, err = updateComponentOrServiceConfig(robotConfig, resource.NewName(genericservice.API, "other"), newAttr)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)

	_, err = updateComponentOrServiceConfig(map[string]interface{}{"components": []interface{}{"bad"}}, name, newAttr)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMergeAttributes(t *testing.T) {
	old := utils.AttributeMap{"camera": "cam", "profile": "desktop"}
	merged := MergeAttributes(old, map[string]interface{}{"profile": "mobile", "strict": true})

	test.That(t, merged, test.ShouldResemble, utils.AttributeMap{"camera": "cam", "profile": "mobile", "strict": true})
	test.That(t, old["profile"], test.ShouldEqual, "desktop")
}

func TestNamespaceFamily(t *testing.T) {
	m := NamespaceFamily.WithModel("camera-pose-tracker")
	test.That(t, m.String(), test.ShouldEqual, "erh:camtrack:camera-pose-tracker")
}

func TestConnectToMachineFromEnvMissing(t *testing.T) {
	t.Setenv(utils.MachineFQDNEnvVar, "host.local")
	t.Setenv(utils.APIKeyIDEnvVar, "")
	t.Setenv(utils.APIKeyEnvVar, "key")

	_, err := ConnectToMachineFromEnv(context.Background(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, utils.APIKeyIDEnvVar)
}

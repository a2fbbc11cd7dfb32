package camtrack

import (
	"context"
	"fmt"
	"os"

	"go.viam.com/rdk/app"
	"go.viam.com/rdk/cli"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/rdk/utils"
	"go.viam.com/utils/rpc"
)

// NamespaceFamily is the model family every model in this module belongs to.
var NamespaceFamily = resource.NewModelFamily("erh", "camtrack")

func ConnectToMachineFromEnv(ctx context.Context, logger logging.Logger) (robot.Robot, error) {
	params := []string{}
	for _, pp := range []string{utils.MachineFQDNEnvVar, utils.APIKeyIDEnvVar, utils.APIKeyEnvVar} {
		x := os.Getenv(pp)
		if x == "" {
			return nil, fmt.Errorf("no environment variable for %s", pp)
		}
		params = append(params, x)
	}
	return ConnectToMachine(ctx, logger, params[0], params[1], params[2])
}

func ConnectToMachine(ctx context.Context, logger logging.Logger, host, apiKeyId, apiKey string) (robot.Robot, error) {
	return client.New(
		ctx,
		host,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			apiKeyId,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: apiKey,
			},
		)),
	)
}

// ConnectToHostFromCLIToken uses the viam cli token to login to a machine with just a hostname.
// use "viam login" to setup the token.
func ConnectToHostFromCLIToken(ctx context.Context, host string, logger logging.Logger) (robot.Robot, error) {
	if host == "" {
		return nil, fmt.Errorf("need to specify host")
	}

	c, err := cli.ConfigFromCache(nil)
	if err != nil {
		return nil, err
	}

	dopts, err := c.DialOptions()
	if err != nil {
		return nil, err
	}

	return client.New(
		ctx,
		host,
		logger,
		client.WithDialOptions(dopts...),
	)
}

// UpdateComponentCloudAttributesFromModuleEnv rewrites the attributes of a resource in the cloud
// config of the machine part this module runs on.
func UpdateComponentCloudAttributesFromModuleEnv(ctx context.Context, name resource.Name, newAttr utils.AttributeMap, logger logging.Logger) error {
	id := os.Getenv(utils.MachinePartIDEnvVar)
	if id == "" {
		return fmt.Errorf("no %s in env", utils.MachinePartIDEnvVar)
	}

	c, err := app.CreateViamClientFromEnvVars(ctx, nil, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	return UpdateComponentCloudAttributes(ctx, c.AppClient(), id, name, newAttr)
}

func UpdateComponentCloudAttributes(ctx context.Context, c *app.AppClient, id string, name resource.Name, newAttr utils.AttributeMap) error {
	part, _, err := c.GetRobotPart(ctx, id)
	if err != nil {
		return err
	}

	found, err := updateComponentOrServiceConfig(part.RobotConfig, name, newAttr)
	if err != nil {
		return err
	}
	if !found {
		// resources that come from a fragment aren't in the part config
		return fmt.Errorf("didn't find component or service with name %v in part config", name.ShortName())
	}

	_, err = c.UpdateRobotPart(ctx, id, part.Name, part.RobotConfig)
	return err
}

func updateComponentOrServiceConfig(robotConfig map[string]interface{}, name resource.Name, newAttr utils.AttributeMap) (bool, error) {
	cs, ok := robotConfig["components"].([]interface{})
	if !ok {
		cs = []interface{}{}
	}
	services, ok := robotConfig["services"].([]interface{})
	if ok {
		cs = append(cs, services...)
	}

	found := false

	for idx, cc := range cs {
		ccc, ok := cc.(map[string]interface{})
		if !ok {
			return false, fmt.Errorf("config bad %d: %T", idx, cc)
		}
		if ccc["name"] != name.ShortName() {
			continue
		}

		ccc["attributes"] = newAttr
		found = true
	}
	return found, nil
}

// MergeAttributes returns a copy of old with every key of changes set.
func MergeAttributes(old utils.AttributeMap, changes map[string]interface{}) utils.AttributeMap {
	merged := utils.AttributeMap{}
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}
	return merged
}

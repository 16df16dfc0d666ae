package config

import "fmt"

type Config struct {
	RunningEnvironment RunningEnvironment
	DebugMode          bool
	Server             ServerConfig
	API                APIConfig
	Sessions           SessionConfig
	Credentials        CredentialsConfig
	Redis              RedisConfig
	Monitoring         MonitoringConfig
}

type RunningEnvironment string

const (
	Development RunningEnvironment = "development"
	Production  RunningEnvironment = "production"
)

func (e RunningEnvironment) Validate() error {
	switch e {
	case Development, Production:
		return nil
	default:
		return fmt.Errorf("unknown running environment %q (must be one of %s, %s)", e, Development, Production)
	}
}

func (c *Config) Validate() error {
	err := c.RunningEnvironment.Validate()
	if err != nil {
		return err
	}
	err = c.Server.Validate()
	if err != nil {
		return err
	}
	err = c.API.Validate()
	if err != nil {
		return err
	}
	err = c.Sessions.Validate(c.RunningEnvironment)
	if err != nil {
		return err
	}
	err = c.Credentials.Validate()
	if err != nil {
		return err
	}
	err = c.Redis.Validate(c.RunningEnvironment)
	if err != nil {
		return err
	}
	return nil
}

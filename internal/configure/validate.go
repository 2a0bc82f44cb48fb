package configure

import (
	"fmt"

	"go.uber.org/multierr"
)

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var err error

	if c.Gateway.Bind == "" {
		err = multierr.Append(err, fmt.Errorf("gateway.bind is required"))
	}

	if c.Http.Bind == "" {
		err = multierr.Append(err, fmt.Errorf("http.bind is required"))
	}

	if c.Mongo.URI == "" {
		err = multierr.Append(err, fmt.Errorf("mongo.uri is required"))
	}

	if c.Mongo.DB == "" {
		err = multierr.Append(err, fmt.Errorf("mongo.db is required"))
	}

	return err
}

package events

import "errors"

var errRequiredRoutingKey = errors.New("envelope missing a required routing key")

package bootstrap

import (
	"github.com/kbukum/playurl/config"
)

// Config is the constraint on application config types. Structs embedding
// config.ServiceConfig by value satisfy it through promoted methods once they
// add their own ApplyDefaults and Validate.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}

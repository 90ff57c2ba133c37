package host

import (
	"fmt"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
)

// serverModelProvider is implemented by configurations that carry an
// application-server model outside of their View
type serverModelProvider interface {
	ServerModel() (runconfig.ServerModel, bool)
}

// ServerModels reaches the server model behind a View. Views that do not
// expose one yield runconfig.ErrReflectiveAccess.
type ServerModels struct{}

func (ServerModels) ServerModel(view runconfig.View) (runconfig.ServerModel, error) {
	provider, ok := view.(serverModelProvider)
	if !ok {
		return runconfig.ServerModel{}, fmt.Errorf("%w: %T has no server model", runconfig.ErrReflectiveAccess, view)
	}
	model, ok := provider.ServerModel()
	if !ok {
		return runconfig.ServerModel{}, fmt.Errorf("%w: server model is not set", runconfig.ErrReflectiveAccess)
	}
	return model, nil
}

var _ ports.ServerModelResolver = ServerModels{}

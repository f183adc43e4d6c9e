package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// Module is one crawler or builder unit of work. A module owns its status
// triple and enforces single-flight execution: Start while a run is in
// progress is a silent no-op, and only an explicit Start clears an Error.
type Module interface {
	ID() models.ModuleID

	// Start launches the module's pipeline in the background. It returns
	// immediately; overlapping starts are dropped, not queued.
	Start(ctx context.Context, params models.StartParams)

	// Stop cancels the in-flight run, if any. No-op otherwise.
	Stop()

	// State returns a consistent snapshot of the module's observable state
	State() models.ModuleState

	// ConsumeDirty reports whether the module changed the registry since the
	// last call, clearing the flag
	ConsumeDirty() bool
}

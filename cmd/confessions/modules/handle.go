package modules

import (
	"go.uber.org/fx"

	"github.com/memohai/confessions/internal/handlers"
	"github.com/memohai/confessions/internal/server"
)

var HandlersModule = fx.Module(
	"handlers",
	fx.Provide(
		annotateHandler(handlers.NewPingHandler),
		annotateHandler(handlers.NewChannelsHandler),
		annotateHandler(handlers.NewSettingsHandler),
		annotateHandler(handlers.NewReconcileHandler),
	),
)

// annotateHandler registers a handler constructor as a server.Handler in the
// server_handlers group.
func annotateHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

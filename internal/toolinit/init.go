package toolinit

import (
	"github.com/nachoal/kitgpt-go/tools"
	"github.com/nachoal/kitgpt-go/tools/registry"
)

// Options selects the built-in tools
type Options struct {
	Calculate bool
	Wikipedia bool

	// WikipediaEndpoint overrides the public API, mainly for tests
	WikipediaEndpoint string
}

// DefaultOptions enables every built-in tool
func DefaultOptions() Options {
	return Options{Calculate: true, Wikipedia: true}
}

// RegisterAll registers the selected built-in tools followed by any extra tools
func RegisterAll(r *registry.Registry, opts Options, extra ...tools.Tool) error {
	var builtins []tools.Tool
	if opts.Calculate {
		builtins = append(builtins, tools.NewCalculateTool())
	}
	if opts.Wikipedia {
		builtins = append(builtins, tools.NewWikipediaTool(opts.WikipediaEndpoint))
	}

	for _, t := range append(builtins, extra...) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

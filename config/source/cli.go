package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/skekre98/contentagent/config"
)

// CLISource loads configuration from dotted command-line flags:
//
//	--server.addr=:9000 --modules.disabled web_scraping
//	  -> {server: {addr: ":9000"}, modules: {disabled: "web_scraping"}}
//
// Both --flag=value and --flag value forms work, as does a single dash for
// long names. Empty values and positional arguments are ignored. Flags the
// process itself defines (such as --config) are also collected; the binder
// ignores keys that match no field.
type CLISource struct {
	// Args overrides os.Args[1:], for tests.
	Args []string
}

func (c *CLISource) Name() string { return "cli" }

func (c *CLISource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := c.Args
	if args == nil {
		args = os.Args[1:]
	}
	return parseCliFlags(args), nil
}

// Watch is a no-op; arguments are fixed for the process lifetime.
func (c *CLISource) Watch(context.Context, chan<- config.Event) error {
	return nil
}

func parseCliFlags(raw []string) map[string]any {
	result := make(map[string]any)
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	args := normalizeArgs(raw)
	registered := make(map[string]bool)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := extractFlagName(arg)
		if name == "" {
			continue
		}
		if !registered[name] {
			fs.String(name, "", fmt.Sprintf("config value for %s", name))
			registered[name] = true
		}
		if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
		}
	}
	_ = fs.Parse(args)

	fs.VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			return
		}
		if value := flag.Value.String(); value != "" {
			setNestedValue(result, strings.Split(flag.Name, "."), value)
		}
	})
	return result
}

// normalizeArgs turns single-dash long flags into double-dash ones.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") {
			rest := strings.TrimPrefix(arg, "-")
			if len(rest) > 1 && rest[0] != '=' {
				out[i] = "-" + arg
			}
		}
	}
	return out
}

func extractFlagName(arg string) string {
	arg = strings.TrimLeft(arg, "-")
	if name, _, found := strings.Cut(arg, "="); found {
		return name
	}
	return arg
}

package source

import (
	"context"
	"os"
	"strings"

	"github.com/skekre98/contentagent/config"
)

// EnvPrefix is the default prefix for configuration variables.
const EnvPrefix = "CONTENTAGENT_"

// EnvSource loads configuration from environment variables.
//
// Variables carrying the prefix are lowercased and split on underscores into
// a nested map:
//
//	CONTENTAGENT_SERVER_ADDR=:9000         -> {server: {addr: ":9000"}}
//	CONTENTAGENT_MODULES_INITTIMEOUT=5s    -> {modules: {inittimeout: "5s"}}
//	CONTENTAGENT_PROVIDERS_OPENAIKEY=sk-.. -> {providers: {openaikey: "sk-.."}}
//
// Values stay strings; the binder converts them. When a leaf and a branch
// collide (FOO=1 and FOO_BAR=2) the first one seen wins.
type EnvSource struct {
	// Prefix overrides EnvPrefix.
	Prefix string
	// Environ overrides os.Environ, for tests.
	Environ func() []string
}

func (e *EnvSource) Name() string { return "env" }

func (e *EnvSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	environ := e.Environ
	if environ == nil {
		environ = os.Environ
	}

	result := make(map[string]any)
	for _, kv := range environ() {
		key, value, found := strings.Cut(kv, "=")
		if !found || !strings.HasPrefix(key, prefix) {
			continue
		}
		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		setNestedValue(result, strings.Split(key, "_"), value)
	}
	return result, nil
}

// Watch is a no-op; the environment is fixed for the process lifetime.
func (e *EnvSource) Watch(context.Context, chan<- config.Event) error {
	return nil
}

func setNestedValue(m map[string]any, segments []string, value string) {
	current := m
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if i == len(segments)-1 {
			current[segment] = value
			return
		}
		existing, exists := current[segment]
		if !exists {
			nested := make(map[string]any)
			current[segment] = nested
			current = nested
			continue
		}
		nested, ok := existing.(map[string]any)
		if !ok {
			return
		}
		current = nested
	}
}

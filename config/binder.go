package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
)

// Binder decodes merged source data into a config struct and validates it.
//
// Fields map by `config` tag, falling back to case-insensitive matching so
// lowercase environment keys bind to camelCase tags. Decoding accepts
// duration strings ("5s"), comma-separated slices ("a,b"), any
// encoding.TextUnmarshaler such as slog.Level, and weakly typed scalars.
//
// Beyond the stock validator rules, `cronspec` accepts a five-field cron
// expression or a descriptor such as "@daily" or "@every 1m".
type Binder struct {
	validator *validator.Validate
}

// BindError reports which stage of Bind failed: "decode" or "validate".
type BindError struct {
	Stage string
	Err   error
}

func (e *BindError) Error() string {
	if fields := e.Fields(); len(fields) > 0 {
		return fmt.Sprintf("config %s error: %s", e.Stage, strings.Join(fields, "; "))
	}
	return fmt.Sprintf("config %s error: %v", e.Stage, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Fields lists failed validation rules as "Section.Field: rule", sorted.
// It is empty for decode errors.
func (e *BindError) Fields() []string {
	var verrs validator.ValidationErrors
	if !errors.As(e.Err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, field+": "+fe.Tag())
	}
	sort.Strings(out)
	return out
}

func NewBinder() *Binder {
	v := validator.New()
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return &Binder{validator: v}
}

// Bind decodes source into target, a pointer to a struct, then validates it.
// The target may be partially populated when validation fails.
func (b *Binder) Bind(source map[string]any, target any) error {
	if err := b.decode(source, target); err != nil {
		return &BindError{Stage: "decode", Err: err}
	}
	if err := b.validator.Struct(target); err != nil {
		return &BindError{Stage: "validate", Err: err}
	}
	return nil
}

func (b *Binder) decode(source map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		TagName: "config",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(source)
}

package cooccur

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults for Options.
const (
	DefaultMinCooccurrence    = 3
	DefaultMinProbability     = 0.1
	DefaultMinAsymmetryRatio  = 1.5
	DefaultNearEqualTolerance = 1e-9
	DefaultWorkers            = 1
)

// Options are the tunable thresholds of a computation.
type Options struct {
	// MinCooccurrence is the inclusive minimum number of shared records for a
	// pair to be considered at all.
	MinCooccurrence int `json:"minCooccurrence" validate:"gte=1"`
	// MinProbability is the inclusive minimum of max(P(A|B), P(B|A)).
	MinProbability float64 `json:"minProbability" validate:"gte=0,lte=1"`
	// MinAsymmetryRatio separates directional verdicts from NO_DIRECTION.
	MinAsymmetryRatio float64 `json:"minAsymmetryRatio" validate:"gte=1"`
	// NearEqualTolerance: probabilities closer than this are treated as equal.
	NearEqualTolerance float64 `json:"nearEqualTolerance" validate:"gte=0,lt=1"`
	// Workers > 1 partitions the tally across goroutines.
	Workers int `json:"workers" validate:"gte=0,lte=256"`
	// AllowPartial returns the result accumulated before a read failure
	// instead of an error. The summary is marked partial.
	AllowPartial bool `json:"allowPartial"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MinCooccurrence:    DefaultMinCooccurrence,
		MinProbability:     DefaultMinProbability,
		MinAsymmetryRatio:  DefaultMinAsymmetryRatio,
		NearEqualTolerance: DefaultNearEqualTolerance,
		Workers:            DefaultWorkers,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ConfigError reports an option outside its valid range.
type ConfigError struct {
	Field string
	Rule  string
	Value interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s=%v: must satisfy %s", e.Field, e.Value, e.Rule)
}

// Validate checks every threshold. It returns the first violation as a
// *ConfigError.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return &ConfigError{Field: fe.Field(), Rule: rule, Value: fe.Value()}
	}
	return fmt.Errorf("validating options: %w", err)
}

func (o Options) workers() int {
	if o.Workers <= 1 {
		return 1
	}
	return o.Workers
}

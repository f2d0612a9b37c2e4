package tern

import "github.com/denismitr/tern-orientdb/internal/database"

type ActionConfigurator func(a *Action)

type Action struct {
	steps       int
	keys        []string
	pretend     bool
	stepBatches bool
}

func newAction(cfs ...ActionConfigurator) *Action {
	act := new(Action)
	for _, f := range cfs {
		f(act)
	}
	return act
}

func (a *Action) plan() database.Plan {
	return database.Plan{Steps: a.steps, Keys: a.keys}
}

// WithSteps limits how many migrations are run or rolled back
func WithSteps(steps int) ActionConfigurator {
	return func(a *Action) {
		a.steps = steps
	}
}

// WithKeys limits the action to the given migration keys or versions
func WithKeys(keys ...string) ActionConfigurator {
	return func(a *Action) {
		a.keys = keys
	}
}

// WithPretend prints the scripts instead of running them, the log is not touched
func WithPretend() ActionConfigurator {
	return func(a *Action) {
		a.pretend = true
	}
}

// WithStepBatches gives every migrated migration its own batch, so each
// of them can be rolled back on its own
func WithStepBatches() ActionConfigurator {
	return func(a *Action) {
		a.stepBatches = true
	}
}

func CreateConfigurators(steps int, keys []string, pretend bool) []ActionConfigurator {
	var configurators []ActionConfigurator
	if steps > 0 {
		configurators = append(configurators, WithSteps(steps))
	}

	if len(keys) > 0 {
		configurators = append(configurators, WithKeys(keys...))
	}

	if pretend {
		configurators = append(configurators, WithPretend())
	}

	return configurators
}

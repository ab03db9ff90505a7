// Package dispatch runs a node operation over a batch of input items,
// strictly in order, applying the host's continue-on-failure policy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/maauso/maiarouter-node/internal/node"
)

// Operation executes one node operation for a single item.
type Operation interface {
	Execute(ctx context.Context, in node.Input) (node.Item, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, in node.Input) (node.Item, error)

// Execute calls f.
func (f OperationFunc) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	return f(ctx, in)
}

// Batch is one node invocation as delivered by the host.
type Batch struct {
	Resource       string
	Operation      string
	Params         map[string]any
	Items          []node.Item
	ContinueOnFail bool
}

// ItemError reports the failure that aborted a batch.
type ItemError struct {
	Index int
	Err   error
}

// Error returns the underlying message unchanged.
func (e *ItemError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// Dispatcher maps resource/operation names to operations.
type Dispatcher struct {
	ops     map[string]Operation
	aliases map[string]string
	logger  *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates an empty dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ops:     make(map[string]Operation),
		aliases: make(map[string]string),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func key(resource, operation string) string {
	return resource + "/" + operation
}

// Register binds op to resource/operation. Aliases are alternative operation
// names under the same resource.
func (d *Dispatcher) Register(resource, operation string, op Operation, aliases ...string) {
	k := key(resource, operation)
	d.ops[k] = op
	for _, a := range aliases {
		d.aliases[key(resource, a)] = k
	}
}

// Lookup returns the operation registered under resource/operation.
func (d *Dispatcher) Lookup(resource, operation string) (Operation, error) {
	k := key(resource, operation)
	if target, ok := d.aliases[k]; ok {
		k = target
	}
	op, ok := d.ops[k]
	if !ok {
		return nil, node.Unsupportedf("The operation %q is not supported for resource %q", operation, resource)
	}
	return op, nil
}

// Operations lists the registered resource/operation keys, aliases included.
func (d *Dispatcher) Operations() []string {
	out := make([]string, 0, len(d.ops)+len(d.aliases))
	for k := range d.ops {
		out = append(out, k)
	}
	for alias, target := range d.aliases {
		out = append(out, fmt.Sprintf("%s -> %s", alias, target))
	}
	slices.SortFunc(out, strings.Compare)
	return out
}

// Run executes the batch and returns exactly one output item per input item.
// An empty item list runs once with an empty item. Without ContinueOnFail the
// first failure aborts the batch with an *ItemError.
func (d *Dispatcher) Run(ctx context.Context, b Batch) ([]node.Item, error) {
	op, err := d.Lookup(b.Resource, b.Operation)
	if err != nil {
		return nil, err
	}

	items := b.Items
	if len(items) == 0 {
		items = []node.Item{{JSON: map[string]any{}}}
	}

	out := make([]node.Item, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, &ItemError{Index: i, Err: err}
		}

		in := node.Input{
			Index:  i,
			Item:   item,
			Params: node.Params(node.Merge(b.Params, item.Params)),
		}
		result, err := op.Execute(ctx, in)
		if err != nil {
			if !b.ContinueOnFail || errors.Is(err, context.Canceled) {
				return nil, &ItemError{Index: i, Err: err}
			}
			d.logger.Warn("item failed, continuing",
				slog.String("resource", b.Resource),
				slog.String("operation", b.Operation),
				slog.Int("item", i),
				slog.String("error", err.Error()),
			)
			out = append(out, node.ErrorItem(i, err))
			continue
		}
		if result.PairedItem == nil {
			result.PairedItem = &i
		}
		out = append(out, result)
	}
	return out, nil
}

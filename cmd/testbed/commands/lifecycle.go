package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/testbed"
)

func parseQuantityArg(arg string) (int, error) {
	quantity, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", arg, err)
	}
	if quantity < 0 {
		return 0, testbed.ErrInvalidQuantity
	}
	return quantity, nil
}

// operationCmd builds a command running one lifecycle operation and printing its outcome
func operationCmd(opts *rootOptions, use, short string, args cobra.PositionalArgs,
	run func(ctx context.Context, b Backend, args []string) (models.Operation, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			return withBackend(cmd, opts, func(b Backend) error {
				op, err := run(cmd.Context(), b, cmdArgs)
				if err != nil {
					return explain(err)
				}
				cmd.Println(describe(op))
				return nil
			})
		},
	}
}

func newDeployCmd(opts *rootOptions) *cobra.Command {
	return operationCmd(opts, "deploy <quantity>", "Create <quantity> instances in every region and wait until they are reachable",
		cobra.ExactArgs(1),
		func(ctx context.Context, b Backend, args []string) (models.Operation, error) {
			quantity, err := parseQuantityArg(args[0])
			if err != nil {
				return models.Operation{}, err
			}
			return b.Deploy(ctx, quantity)
		})
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return operationCmd(opts, "start <quantity>", "Start <quantity> inactive instances in every region and wait until they are reachable",
		cobra.ExactArgs(1),
		func(ctx context.Context, b Backend, args []string) (models.Operation, error) {
			quantity, err := parseQuantityArg(args[0])
			if err != nil {
				return models.Operation{}, err
			}
			return b.Start(ctx, quantity)
		})
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return operationCmd(opts, "stop", "Stop every instance and wait until they are all inactive",
		cobra.NoArgs,
		func(ctx context.Context, b Backend, _ []string) (models.Operation, error) {
			return b.Stop(ctx)
		})
}

func newDestroyCmd(opts *rootOptions) *cobra.Command {
	return operationCmd(opts, "destroy", "Delete every instance of the testbed",
		cobra.NoArgs,
		func(ctx context.Context, b Backend, _ []string) (models.Operation, error) {
			return b.Destroy(ctx)
		})
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return operationCmd(opts, "refresh", "Resync the fleet from the provider",
		cobra.NoArgs,
		func(ctx context.Context, b Backend, _ []string) (models.Operation, error) {
			return b.Refresh(ctx)
		})
}

// explain adds operator hints to well-known errors
func explain(err error) error {
	var capacityErr *testbed.InsufficientCapacityError
	if errors.As(err, &capacityErr) {
		return fmt.Errorf("%w (deploy more instances or start fewer)", err)
	}
	return err
}

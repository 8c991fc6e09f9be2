package app

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/itembrowser/internal/items"
)

const (
	defaultSeedCount       = 25
	defaultSeedConcurrency = 4
)

var seedWords = []string{
	"Anvil", "Bellows", "Chisel", "Drill", "Easel", "File", "Gimlet", "Hammer",
	"Ink", "Jigsaw", "Kiln", "Lathe", "Mallet", "Needle", "Oven", "Pliers",
	"Quill", "Rasp", "Saw", "Tongs", "Vise", "Wrench",
}

func (c *cli) newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create sample items",
		Long: `Create sample items named <Word>-<number> in random groups. Requests run
concurrently; the first failure stops the remaining ones.`,
		Args: cobra.NoArgs,
		RunE: c.runSeed,
	}
	cmd.Flags().Int("count", defaultSeedCount, "Number of items to create")
	cmd.Flags().Int("concurrency", defaultSeedConcurrency, "Maximum concurrent requests")
	return cmd
}

func (c *cli) runSeed(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	sess, err := newSession(cmd.Context(), c.cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	inputs := seedInputs(count, c.cfg.Groups, rand.N[int])

	var created atomic.Int64
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(concurrency)
	for _, input := range inputs {
		g.Go(func() error {
			if _, err := sess.client.CreateRecord(ctx, input); err != nil {
				return fmt.Errorf("failed to create %s: %w", input.Name, err)
			}
			created.Add(1)
			return nil
		})
	}
	err = g.Wait()

	slog.Info("Seeded items", "created", created.Load(), "requested", count)
	if _, printErr := fmt.Fprintf(cmd.OutOrStdout(), "Created %d of %d items\n", created.Load(), count); printErr != nil {
		return printErr
	}
	return err
}

// seedInputs builds count inputs. intn(n) returns a value in [0, n).
func seedInputs(count int, groups []string, intn func(int) int) []items.Input {
	inputs := make([]items.Input, count)
	for i := range inputs {
		inputs[i] = items.Input{
			Name: fmt.Sprintf("%s-%d", seedWords[intn(len(seedWords))], intn(1000)),
		}
		if len(groups) > 0 {
			inputs[i].Group = groups[intn(len(groups))]
		}
	}
	return inputs
}

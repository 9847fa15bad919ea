package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
)

func newExpandCmd(state *app) *cobra.Command {
	var (
		length int
		node   uint64
		width  int
	)

	expandCmd := &cobra.Command{
		Use:   "expand",
		Short: "Splice a fan-out/fan-in subgraph into a chain graph",
		Long: `Build a chain n0 -> n1 -> ... and replace one of its nodes by a subgraph
in which an entry node fans out to --width branches that join in an exit node.
Edges into the replaced node are rewired onto the entry, edges out of it
leave from the exit. The resulting edges are printed.

Example:
  daedalus expand --chain 4 --node 1 --width 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if length < 1 {
				return fmt.Errorf("chain length must be at least 1, got %d", length)
			}
			if width < 1 {
				return fmt.Errorf("width must be at least 1, got %d", width)
			}

			g := chain(length)
			splicer := graph.NewSplicer(g, state.logger)

			if err := expand(cmd.Context(), state.dispatcher, splicer, graph.NodeKey(node), width); err != nil {
				return err
			}

			state.logger.Debug("Expand finished",
				zap.Int("nodes", g.NodeCount()),
				zap.Int("edges", g.EdgeCount()),
			)

			printEdges(cmd.OutOrStdout(), g)
			return nil
		},
	}

	expandCmd.Flags().IntVar(&length, "chain", 3, "number of nodes in the chain")
	expandCmd.Flags().Uint64Var(&node, "node", 1, "key of the node to replace")
	expandCmd.Flags().IntVar(&width, "width", 2, "number of parallel branches in the replacement")

	return expandCmd
}

// chain builds n0 -> n1 -> ... -> n(length-1); edge weights are the source position.
func chain(length int) *graph.Graph[string, int] {
	g := graph.New[string, int]()
	var prev graph.NodeKey
	for i := 0; i < length; i++ {
		key := g.AddNode(fmt.Sprintf("n%d", i))
		if i > 0 {
			_, _ = g.AddEdge(prev, key, i-1)
		}
		prev = key
	}
	return g
}

// fanOut returns the processor that replaces a node by entry -> branches -> exit.
func fanOut(width int) takeput.Processor[graph.Extracted[string, int], graph.Replacement[string, int]] {
	return func(ex graph.Extracted[string, int]) (graph.Replacement[string, int], error) {
		sub := graph.New[string, int]()
		entry := sub.AddNode(ex.Payload + ".in")
		exit := sub.AddNode(ex.Payload + ".out")
		for i := 0; i < width; i++ {
			branch := sub.AddNode(fmt.Sprintf("%s.%d", ex.Payload, i))
			_, _ = sub.AddEdge(entry, branch, i)
			_, _ = sub.AddEdge(branch, exit, i)
		}

		return graph.Replacement[string, int]{
			Graph:    sub,
			Entry:    entry,
			Exit:     exit,
			Incoming: ex.Incoming,
			Outgoing: ex.Outgoing,
		}, nil
	}
}

// expand splices node of the splicer's graph into a fan-out of the given width.
func expand(ctx context.Context, d *takeput.Dispatcher, s *graph.Splicer[string, int], node graph.NodeKey, width int) error {
	pairs := []takeput.IndexPair[graph.NodeKey, graph.SpliceTarget]{
		{In: node, Out: graph.SpliceTarget{Node: node}},
	}
	_, err := takeput.Dispatch(ctx, d, s, pairs, fanOut(width))
	return err
}

func printEdges(w io.Writer, g *graph.Graph[string, int]) {
	for _, key := range g.EdgeKeys() {
		src, dst, _ := g.Endpoints(key)
		from, _ := g.NodeWeight(src)
		to, _ := g.NodeWeight(dst)
		fmt.Fprintf(w, "%s -> %s\n", from, to)
	}
}

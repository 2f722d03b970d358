// Package main provides the vecstream CLI entry point.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/torinriley/vecstream/pkg/config"
	"github.com/torinriley/vecstream/pkg/embed"
	"github.com/torinriley/vecstream/pkg/filter"
	"github.com/torinriley/vecstream/pkg/manager"
)

var version = "0.1.0"

// usageError marks an error as a CLI usage mistake (missing flag, bad
// argument), exiting with status 2 instead of the generic status 1 used
// for runtime failures.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func main() {
	os.Exit(run())
}

func run() int {
	var dbPath string
	var collectionName string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "vecstream",
		Short:         "VecStream - an embeddable vector database with HNSW approximate search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "root directory for collections (default from VECSTREAM_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&collectionName, "collection", "default", "collection name")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("vecstream v%s\n", version)
			return nil
		},
	})

	rootCmd.AddCommand(newAddCmd(&dbPath, &collectionName))
	rootCmd.AddCommand(newSearchCmd(&dbPath, &collectionName, &jsonOutput))
	rootCmd.AddCommand(newGetCmd(&dbPath, &collectionName, &jsonOutput))
	rootCmd.AddCommand(newRemoveCmd(&dbPath, &collectionName))
	rootCmd.AddCommand(newInfoCmd(&dbPath, &collectionName, &jsonOutput))
	rootCmd.AddCommand(newClearCmd(&dbPath, &collectionName))
	rootCmd.AddCommand(newCollectionCmd(&dbPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func resolveDBPath(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return config.LoadFromEnv().DBPath
}

func openManager(dbPath string) (*manager.Manager, error) {
	cfg := config.LoadFromEnv()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	m, err := manager.New(cfg.DBPath, cfg.HNSW)
	if err != nil {
		return nil, err
	}
	m.SetRebuildThreshold(cfg.RebuildThreshold)
	return m, nil
}

func parseVector(raw string) ([]float32, error) {
	var vals []float64
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, usageError{fmt.Errorf("--vector must be a JSON array of numbers: %w", err)}
	}
	vec := make([]float32, len(vals))
	for i, v := range vals {
		vec[i] = float32(v)
	}
	return vec, nil
}

func parseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, usageError{fmt.Errorf("--metadata must be a JSON object: %w", err)}
	}
	return meta, nil
}

func parseFilter(raw string) (filter.Predicate, error) {
	if raw == "" {
		return nil, nil
	}
	var pred filter.Predicate
	if err := json.Unmarshal([]byte(raw), &pred); err != nil {
		return nil, usageError{fmt.Errorf("--filter must be a JSON object: %w", err)}
	}
	return pred, nil
}

// resolveVector builds the vector to store or search with, either from a
// raw --vector JSON array or by handing --text to the configured Embedder.
// embed.New returns embed.ErrNotConfigured until a real embedding provider
// is wired in, since producing vectors from text is explicitly out of
// scope for the core store.
func resolveVector(vectorFlag, textFlag, model string) ([]float32, error) {
	if vectorFlag != "" {
		return parseVector(vectorFlag)
	}
	if textFlag == "" {
		return nil, usageError{fmt.Errorf("one of --vector or --text is required")}
	}
	embedder, err := embed.New(model)
	if err != nil {
		return nil, err
	}
	return embedder.Embed(textFlag)
}

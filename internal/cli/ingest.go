package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gcbaptista/entity-search/api"
	"github.com/gcbaptista/entity-search/model"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Index documents from a JSON or YAML file into the document store",
		Long: `Index documents from a file. JSON files hold one document or an array of documents;
YAML files (.yaml, .yml) hold a list. Documents are written to storage.path, so a server
started on the same store sees them.

Examples:
  entity-search ingest corpus.json --storage ./data/documents.db
  entity-search ingest companies.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(args[0])
			if err != nil {
				return err
			}

			eng, err := a.openEngine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.sync()
			defer func() { _ = eng.Close() }()

			if a.cfg.Storage.Path == "" {
				a.logger.Warn("storage.path is not set; documents are indexed in memory only")
			}

			out := cmd.OutOrStdout()
			batchSize := max(a.cfg.Ingest.BatchSize, 1)
			indexed, failed := 0, 0
			for start := 0; start < len(docs); start += batchSize {
				end := min(start+batchSize, len(docs))
				result := eng.UpsertBatch(cmd.Context(), docs[start:end])
				indexed += result.Indexed
				failed += len(result.Failures)
				for _, f := range result.Failures {
					f.Position += start
					fmt.Fprintln(cmd.ErrOrStderr(), "failed:", f.String())
				}
				a.logger.Debug("ingest progress", zap.Int("done", end), zap.Int("total", len(docs)))
			}

			fmt.Fprintf(out, "indexed %d of %d documents (%d failed)\n", indexed, len(docs), failed)
			if indexed == 0 && failed > 0 {
				return fmt.Errorf("no document could be indexed")
			}
			return nil
		},
	}
	return cmd
}

// readDocuments loads a document file, choosing the decoder by extension.
func readDocuments(path string) ([]model.Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var docs []model.Document
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return docs, nil
	default:
		docs, _, err := api.DecodeDocuments(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return docs, nil
	}
}

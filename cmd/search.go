package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub031/internal/predicate"
	"github.com/jsbattig/code-indexer-sub031/internal/textstore"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index",
	Long: `Runs a full-text search by default; --semantic embeds the query and
searches the vector index instead. Language and path filters apply to
both modes.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Bool("semantic", false, "semantic vector search instead of full-text")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().StringSlice("language", nil, "only include these languages")
	searchCmd.Flags().StringSlice("exclude-language", nil, "exclude these languages")
	searchCmd.Flags().StringSlice("path", nil, "only include paths matching these globs")
	searchCmd.Flags().StringSlice("exclude-path", nil, "exclude paths matching these globs")
	searchCmd.Flags().Bool("case-sensitive", false, "case-sensitive matching (full-text only)")
	searchCmd.Flags().Bool("regex", false, "treat the query as a regular expression (full-text only)")
	searchCmd.Flags().Int("ef", 0, "vector search breadth (semantic only, 0 = automatic)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	semantic, _ := cmd.Flags().GetBool("semantic")
	limit, _ := cmd.Flags().GetInt("limit")
	languages, _ := cmd.Flags().GetStringSlice("language")
	excludeLanguages, _ := cmd.Flags().GetStringSlice("exclude-language")
	pathGlobs, _ := cmd.Flags().GetStringSlice("path")
	excludeGlobs, _ := cmd.Flags().GetStringSlice("exclude-path")

	p, cfg, err := newPipeline(false)
	if err != nil {
		return err
	}
	defer p.Close()

	if semantic {
		ef, _ := cmd.Flags().GetInt("ef")
		emb, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return err
		}
		vecs, _, err := emb.Embed(context.Background(), []string{args[0]})
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}

		filter := buildFilter(languages, excludeLanguages, pathGlobs, excludeGlobs)
		results, err := p.SearchVector(vecs[0], limit, ef, filter)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%2d. %s (%s, distance %.4f)\n", i+1, r.FilePath, r.Language, r.Distance)
		}
		return nil
	}

	caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
	regex, _ := cmd.Flags().GetBool("regex")
	results, err := p.SearchText(args[0], textstore.SearchOptions{
		Languages:        languages,
		ExcludeLanguages: excludeLanguages,
		PathGlobs:        pathGlobs,
		ExcludePathGlobs: excludeGlobs,
		CaseSensitive:    caseSensitive,
		Regex:            regex,
		Limit:            limit,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %s (%s)\n    %s\n", i+1, r.FilePath, r.Language, r.Snippet)
	}
	return nil
}

// buildFilter translates CLI filter flags into a predicate tree for
// vector search.
func buildFilter(languages, excludeLanguages, pathGlobs, excludeGlobs []string) predicate.Predicate {
	var clauses []predicate.Predicate

	if len(languages) > 0 {
		or := predicate.Or{}
		for _, l := range languages {
			or.Children = append(or.Children, predicate.Equals{Field: predicate.FieldLanguage, Value: l})
		}
		clauses = append(clauses, or)
	}
	for _, l := range excludeLanguages {
		clauses = append(clauses, predicate.Not{Child: predicate.Equals{Field: predicate.FieldLanguage, Value: l}})
	}
	if len(pathGlobs) > 0 {
		or := predicate.Or{}
		for _, g := range pathGlobs {
			or.Children = append(or.Children, predicate.GlobMatch{Field: predicate.FieldFilePath, Pattern: g})
		}
		clauses = append(clauses, or)
	}
	for _, g := range excludeGlobs {
		clauses = append(clauses, predicate.Not{Child: predicate.GlobMatch{Field: predicate.FieldFilePath, Pattern: g}})
	}

	if len(clauses) == 0 {
		return nil
	}
	return predicate.And{Children: clauses}
}

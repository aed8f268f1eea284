package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/squall-chua/mongora"
	"github.com/squall-chua/mongora/translator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		collection string
		queryFlag  string
		fileFlag   string
		bindMode   string
		lenient    bool
		cacheTTL   time.Duration
		dumpAST    bool
	)

	cmd := &cobra.Command{
		Use:   "moql-translate",
		Short: "Translate a MongoDB aggregation pipeline into Oracle SQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelineJSON, err := readPipelineInput(queryFlag, fileFlag)
			if err != nil {
				return err
			}

			if dumpAST {
				p, err := mongora.Parse(pipelineJSON)
				if err != nil {
					return err
				}
				fmt.Println(mongora.DumpJSON(p))
				return nil
			}

			opts := []translator.Option{}
			switch strings.ToLower(bindMode) {
			case "placeholders":
				opts = append(opts, translator.WithBindMode(translator.BindPlaceholders))
			case "inline", "":
			default:
				return fmt.Errorf("unknown --bind value %q (want inline or placeholders)", bindMode)
			}
			if lenient {
				opts = append(opts, translator.WithUnsupportedMode(translator.UnsupportedLenient))
			}

			if cacheTTL > 0 {
				ct := translator.NewCachedTranslator(cacheTTL, opts...)
				sql, err := ct.Translate(collection, pipelineJSON)
				if err != nil {
					return err
				}
				fmt.Println(sql)
				return nil
			}

			sql, err := translator.Translate(collection, pipelineJSON, opts...)
			if err != nil {
				return err
			}
			fmt.Println(sql)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&collection, "collection", "documents", "name of the Oracle table/collection being queried")
	flags.StringVar(&queryFlag, "query", "", "pipeline JSON array, given directly on the command line")
	flags.StringVar(&fileFlag, "file", "", "path to a file containing the pipeline JSON array")
	flags.StringVar(&bindMode, "bind", "inline", "literal rendering mode: inline or placeholders")
	flags.BoolVar(&lenient, "lenient", false, "emit a SQL comment sentinel for unsupported operators instead of failing")
	flags.DurationVar(&cacheTTL, "cache-ttl", 0, "memoize translations for this long (0 disables caching)")
	flags.BoolVar(&dumpAST, "dump-ast", false, "print the parsed pipeline's normalized AST as indented extended JSON instead of translating it")

	return cmd
}

func readPipelineInput(queryFlag, fileFlag string) (string, error) {
	if queryFlag != "" {
		return strings.TrimSpace(queryFlag), nil
	}
	if fileFlag != "" {
		bytes, err := os.ReadFile(fileFlag)
		if err != nil {
			return "", fmt.Errorf("reading pipeline file: %w", err)
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		bytes, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		s := strings.TrimSpace(string(bytes))
		if s != "" {
			return s, nil
		}
	}

	return "", fmt.Errorf("no pipeline provided: pass --query, --file, or pipe JSON on stdin")
}

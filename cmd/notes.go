package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/pkg/notes"
)

// Notes command flags
var (
	notesShowBody bool
)

// NotesCommandDeps holds the dependencies for notes commands.
type NotesCommandDeps struct {
	Config     *config.Config
	LoadConfig func() (*config.Config, error)
	ReadFile   func(string) ([]byte, error)
}

// DefaultNotesDeps returns the default dependencies for production use.
func DefaultNotesDeps() *NotesCommandDeps {
	return &NotesCommandDeps{
		LoadConfig: config.LoadConfig,
		ReadFile:   os.ReadFile,
	}
}

// NewNotesCommand creates the root notes command with all subcommands.
func NewNotesCommand(deps *NotesCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultNotesDeps()
	}

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Inspect clinical note blobs offline",
		Long: `Work with clinical note blobs without touching any database.

Use 'notes parse' to check how a blob copied from the legacy system will be
split and classified before running the notes stage.`,
	}

	cmd.AddCommand(newNotesParseCommand(deps))

	return cmd
}

// newNotesParseCommand creates the 'notes parse' subcommand.
func newNotesParseCommand(deps *NotesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Split and classify a note blob from a file",
		Long: `Tokenize a text file holding one clinical note blob and print every entry
with its timestamp, author and category.

Headers look like [DD/MM/YYYY HH:MM:SS - AUTHOR]:. Headers with an invalid
date are dropped and counted as malformed. Category tokens and the time zone
come from the notes section of the configuration. Use '-' to read stdin.`,
		Example: `  petmig notes parse blob.txt
  petmig notes parse blob.txt --body
  petmig notes parse blob.txt --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotesParse(cmd.OutOrStdout(), cmd.InOrStdin(), deps, args[0])
		},
	}

	cmd.Flags().BoolVar(&notesShowBody, "body", false, "Print the full body of every entry")

	return cmd
}

// parsedEntry is the JSON shape of one entry.
type parsedEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Category  string    `json:"category"`
	Body      string    `json:"body"`
}

// parseResult is the JSON shape of a parsed blob.
type parseResult struct {
	File             string        `json:"file"`
	Entries          []parsedEntry `json:"entries"`
	MalformedHeaders []string      `json:"malformed_headers"`
}

// runNotesParse executes the notes parse command.
func runNotesParse(out io.Writer, in io.Reader, deps *NotesCommandDeps, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = deps.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var malformed []string
	classifier := notes.NewClassifier(cfg.Notes.PrescriptionTokens, cfg.Notes.LabTokens)
	entries := classifier.Parse(string(data),
		notes.WithLocation(cfg.Notes.Location()),
		notes.OnDiscard(func(header string, _ error) {
			malformed = append(malformed, header)
		}),
	)

	res := parseResult{File: path, Entries: make([]parsedEntry, 0, len(entries)), MalformedHeaders: malformed}
	for _, e := range entries {
		res.Entries = append(res.Entries, parsedEntry{
			Timestamp: e.Timestamp,
			Author:    e.Author,
			Category:  string(e.Category),
			Body:      e.Body,
		})
	}
	if res.MalformedHeaders == nil {
		res.MalformedHeaders = []string{}
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		return writeJSON(out, res)
	}
	printParseResult(out, res)
	return nil
}

func printParseResult(out io.Writer, res parseResult) {
	fmt.Fprintf(out, "%d entries in %s\n\n", len(res.Entries), res.File)
	for i, e := range res.Entries {
		fmt.Fprintf(out, "%3d  %s  %-14s %s\n", i+1, e.Timestamp.Format("02/01/2006 15:04:05"), e.Category, e.Author)
		if notesShowBody {
			for _, line := range strings.Split(e.Body, "\n") {
				fmt.Fprintf(out, "       %s\n", line)
			}
			fmt.Fprintln(out)
		}
	}

	if len(res.MalformedHeaders) > 0 {
		fmt.Fprintf(out, "\n%d malformed headers dropped:\n", len(res.MalformedHeaders))
		for _, h := range res.MalformedHeaders {
			fmt.Fprintf(out, "  %s\n", h)
		}
	}
}

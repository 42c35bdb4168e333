package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicentefritzen/petsys-migracao/config"
)

const sampleBlob = `[10/03/2025 10:47:25 - DRA. JULIANA]: Paciente apresentou melhora.
Retorno em 7 dias.
[10/03/2025 10:54:05 - RECEITA]: Amoxicilina 250mg, 12/12h
[31/02/2025 10:00:00 - DR. X]: data invalida
[11/03/2025 08:00:00 - CITOVET]: Hemograma sem alteracoes`

func testConfigLoader(cfg *config.Config) func() (*config.Config, error) {
	return func() (*config.Config, error) { return cfg, nil }
}

func writeBlobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNotesCommand(t *testing.T) {
	cmd := NewNotesCommand(nil)

	assert.Equal(t, "notes", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	parse, _, err := cmd.Find([]string{"parse"})
	require.NoError(t, err)
	assert.Equal(t, "parse <file>", parse.Use)

	body := parse.Flags().Lookup("body")
	require.NotNil(t, body, "parse should have --body flag")
	assert.Equal(t, "bool", body.Value.Type())
}

func TestNotesParse_Text(t *testing.T) {
	path := writeBlobFile(t, sampleBlob)
	deps := &NotesCommandDeps{LoadConfig: testConfigLoader(config.DefaultConfig()), ReadFile: os.ReadFile}

	var out bytes.Buffer
	require.NoError(t, runNotesParse(&out, nil, deps, path))

	got := out.String()
	assert.Contains(t, got, "3 entries in "+path)
	assert.Contains(t, got, "CLINICAL_NOTE")
	assert.Contains(t, got, "PRESCRIPTION")
	assert.Contains(t, got, "LAB_RESULT")
	assert.Contains(t, got, "1 malformed headers dropped")
	assert.Contains(t, got, "[31/02/2025 10:00:00 - DR. X]:")
	assert.NotContains(t, got, "Retorno em 7 dias", "bodies are hidden without --body")
}

func TestNotesParse_Body(t *testing.T) {
	notesShowBody = true
	defer func() { notesShowBody = false }()

	path := writeBlobFile(t, sampleBlob)
	deps := &NotesCommandDeps{LoadConfig: testConfigLoader(config.DefaultConfig()), ReadFile: os.ReadFile}

	var out bytes.Buffer
	require.NoError(t, runNotesParse(&out, nil, deps, path))
	assert.Contains(t, out.String(), "Retorno em 7 dias")
}

func TestNotesParse_JSON(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = config.OutputFormatJSON
	deps := &NotesCommandDeps{LoadConfig: testConfigLoader(cfg), ReadFile: os.ReadFile}

	var out bytes.Buffer
	require.NoError(t, runNotesParse(&out, nil, deps, writeBlobFile(t, sampleBlob)))

	var res parseResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "DRA. JULIANA", res.Entries[0].Author)
	assert.Equal(t, "CLINICAL_NOTE", res.Entries[0].Category)
	assert.Equal(t, "PRESCRIPTION", res.Entries[1].Category)
	assert.Equal(t, "LAB_RESULT", res.Entries[2].Category)
	assert.Equal(t, []string{"[31/02/2025 10:00:00 - DR. X]:"}, res.MalformedHeaders)
}

func TestNotesParse_ConfiguredTokens(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = config.OutputFormatJSON
	cfg.Notes.LabTokens = []string{"HEMOLAB"}
	deps := &NotesCommandDeps{LoadConfig: testConfigLoader(cfg), ReadFile: os.ReadFile}

	var out bytes.Buffer
	require.NoError(t, runNotesParse(&out, nil, deps, writeBlobFile(t, sampleBlob)))

	var res parseResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "CLINICAL_NOTE", res.Entries[2].Category, "CITOVET is not a lab token here")
}

func TestNotesParse_Stdin(t *testing.T) {
	deps := &NotesCommandDeps{LoadConfig: testConfigLoader(config.DefaultConfig()), ReadFile: os.ReadFile}

	var out bytes.Buffer
	require.NoError(t, runNotesParse(&out, strings.NewReader(sampleBlob), deps, "-"))
	assert.Contains(t, out.String(), "3 entries in -")
}

func TestNotesParse_EmptyBlob(t *testing.T) {
	deps := &NotesCommandDeps{LoadConfig: testConfigLoader(config.DefaultConfig()), ReadFile: os.ReadFile}

	var out bytes.Buffer
	require.NoError(t, runNotesParse(&out, nil, deps, writeBlobFile(t, "   \n")))
	assert.Contains(t, out.String(), "0 entries")
	assert.NotContains(t, out.String(), "malformed")
}

func TestNotesParse_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		deps := &NotesCommandDeps{LoadConfig: testConfigLoader(config.DefaultConfig()), ReadFile: os.ReadFile}
		err := runNotesParse(&bytes.Buffer{}, nil, deps, filepath.Join(t.TempDir(), "nope.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope.txt")
	})

	t.Run("config error", func(t *testing.T) {
		deps := &NotesCommandDeps{
			LoadConfig: func() (*config.Config, error) { return nil, errors.New("bad yaml") },
			ReadFile:   os.ReadFile,
		}
		err := runNotesParse(&bytes.Buffer{}, nil, deps, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading configuration")
	})
}

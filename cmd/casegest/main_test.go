package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/dgallion1/casegest/internal/document"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "casegest dev\n", out)
}

func TestAnalyze_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "motion.txt",
		"The motion was filed on 01/15/2024 by John Smith, Esq. in the United States District Court.")

	out, err := run(t, "analyze", path)
	require.NoError(t, err)

	var res document.ProcessedDocument
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "motion.txt", res.ID)
	assert.Equal(t, document.StatusCompleted, res.Metadata.ProcessingStatus)
	require.Len(t, res.TimelineEvents, 1)
	assert.InDelta(t, 0.88, res.TimelineEvents[0].Confidence, 1e-9)
}

func TestAnalyze_YAMLWithRelated(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Complaint filed in 12-CV-3456.")
	b := writeFile(t, dir, "b.md", "# Reply\n\nReply brief in 12-CV-3456.\n")

	out, err := run(t, "analyze", "--format", "yaml", a, b)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "a.txt", res["id"])
	refs, ok := res["crossReferences"].([]any)
	require.True(t, ok, "crossReferences keeps its JSON name")
	require.NotEmpty(t, refs)
	ref := refs[0].(map[string]any)
	assert.Equal(t, "b.md", ref["targetDocId"])
	assert.Equal(t, "12-CV-3456", ref["sourceText"])
}

func TestAnalyze_Errors(t *testing.T) {
	_, err := run(t, "analyze")
	assert.Error(t, err)

	_, err = run(t, "analyze", "--format", "xml", "x.txt")
	assert.ErrorContains(t, err, "unsupported format")

	_, err = run(t, "analyze", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = run(t, "analyze", "payload.exe")
	assert.ErrorContains(t, err, "unsupported file extension")
}

func TestAnalyze_InvalidEncodingFails(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.txt", "filed \xff\xfe on 01/15/2024")

	out, err := run(t, "analyze", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis failed")

	var res document.ProcessedDocument
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, document.StatusError, res.Metadata.ProcessingStatus)
}

func TestCrossref(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Complaint filed in 12-CV-3456.")
	b := writeFile(t, dir, "b.txt", "Reply brief in 12-CV-3456.")

	out, err := run(t, "crossref", a, b)
	require.NoError(t, err)

	var refs []document.CrossReference
	require.NoError(t, json.Unmarshal([]byte(out), &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, "a.txt", refs[0].SourceDocID)
	assert.Equal(t, "b.txt", refs[0].TargetDocID)
	assert.Equal(t, "caseNumber", refs[0].Type)

	_, err = run(t, "crossref", a)
	assert.Error(t, err)
}

func TestWriteOutput_YAMLQuotesAmbiguousStrings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", map[string]any{"text": "true", "n": 2}))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "true", back["text"])
	assert.Equal(t, 2, back["n"])
	assert.NotContains(t, buf.String(), "{")
}

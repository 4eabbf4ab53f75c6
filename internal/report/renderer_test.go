package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gfold/internal/report"
	"github.com/temirov/gfold/internal/status"
)

const (
	testSubtestTemplateConstant = "%d_%s"
	testParentConstant          = "/work"
	testOtherParentConstant     = "/archive"
	testRemoteURLConstant       = "git@github.com:temirov/gfold.git"
)

func sampleRecords() []status.Record {
	return []status.Record{
		{
			Path:       testParentConstant + "/gfold",
			Name:       "gfold",
			Parent:     testParentConstant,
			Branch:     status.BranchInfo{Name: "main"},
			Upstream:   &status.UpstreamRef{RemoteName: "origin", BranchName: "main"},
			Divergence: &status.Divergence{Ahead: 2, Behind: 1},
			RemoteURL:  testRemoteURLConstant,
		},
		{
			Path:   testOtherParentConstant + "/legacy",
			Name:   "legacy",
			Parent: testOtherParentConstant,
			Branch: status.BranchInfo{Detached: true},
			Dirty:  status.DirtyUntracked | status.DirtyStaged,
		},
		{
			Path:        testParentConstant + "/api",
			Name:        "api",
			Parent:      testParentConstant,
			Branch:      status.BranchInfo{Name: "develop"},
			Upstream:    &status.UpstreamRef{RemoteName: "origin", BranchName: "develop"},
			RemoteError: &status.RemoteError{Kind: status.RemoteErrorUnreachable, Remote: "origin", Cause: errors.New("dial tcp: connection refused")},
		},
	}
}

func render(testInstance *testing.T, displayMode report.DisplayMode, colorMode report.ColorMode, records []status.Record) string {
	testInstance.Helper()
	var outputBuffer bytes.Buffer
	renderer, rendererError := report.NewRenderer(&outputBuffer, displayMode, colorMode)
	require.NoError(testInstance, rendererError)
	require.NoError(testInstance, renderer.Render(records))
	return outputBuffer.String()
}

func TestRenderStandardWithoutColor(testInstance *testing.T) {
	output := render(testInstance, report.DisplayModeStandard, report.ColorModeNever, sampleRecords())
	expectedOutput := strings.Join([]string{
		"legacy  HEAD  unclean (staged, untracked)",
		"  /archive/legacy",
		"api  develop  clean (remote unreachable)",
		"  /work/api",
		"gfold  main  unpushed (↑2 ↓1)",
		"  /work/gfold",
		"  " + testRemoteURLConstant,
		"",
	}, "\n")
	require.Equal(testInstance, expectedOutput, output)
}

func TestRenderClassicGroupsByParent(testInstance *testing.T) {
	output := render(testInstance, report.DisplayModeClassic, report.ColorModeNever, sampleRecords())
	expectedOutput := strings.Join([]string{
		"/archive",
		"legacy  unclean   HEAD   ",
		"",
		"/work",
		"api     clean     develop",
		"gfold   unpushed  main     " + testRemoteURLConstant,
		"",
	}, "\n")
	require.Equal(testInstance, expectedOutput, output)
}

func TestRenderJSON(testInstance *testing.T) {
	output := render(testInstance, report.DisplayModeJSON, report.ColorModeAlways, sampleRecords())

	var decodedViews []report.RepositoryView
	require.NoError(testInstance, json.Unmarshal([]byte(output), &decodedViews))
	require.Len(testInstance, decodedViews, 3)

	require.Equal(testInstance, "legacy", decodedViews[0].Name)
	require.True(testInstance, decodedViews[0].Detached)
	require.Equal(testInstance, []string{"staged", "untracked"}, decodedViews[0].Dirty)
	require.Nil(testInstance, decodedViews[0].Ahead)

	require.Equal(testInstance, "unreachable", decodedViews[1].RemoteError)

	require.Equal(testInstance, "unpushed", decodedViews[2].Status)
	require.Equal(testInstance, "origin/main", decodedViews[2].Upstream)
	require.NotNil(testInstance, decodedViews[2].Ahead)
	require.Equal(testInstance, uint(2), *decodedViews[2].Ahead)
	require.Equal(testInstance, uint(1), *decodedViews[2].Behind)
	require.NotContains(testInstance, output, "\x1b[")
}

func TestRenderYAML(testInstance *testing.T) {
	output := render(testInstance, report.DisplayModeYAML, report.ColorModeNever, sampleRecords()[:1])

	var decodedViews []map[string]any
	require.NoError(testInstance, yaml.Unmarshal([]byte(output), &decodedViews))
	require.Len(testInstance, decodedViews, 1)
	require.Equal(testInstance, "gfold", decodedViews[0]["name"])
	require.Equal(testInstance, "unpushed", decodedViews[0]["status"])
	require.Equal(testInstance, 2, decodedViews[0]["ahead"])
}

func TestRenderColorAlwaysEmitsEscapes(testInstance *testing.T) {
	for modeIndex, displayMode := range []report.DisplayMode{report.DisplayModeStandard, report.DisplayModeClassic} {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, modeIndex, displayMode), func(testInstance *testing.T) {
			coloredOutput := render(testInstance, displayMode, report.ColorModeAlways, sampleRecords())
			require.Contains(testInstance, coloredOutput, "\x1b[")
			require.Equal(testInstance, render(testInstance, displayMode, report.ColorModeNever, sampleRecords()), ansi.Strip(coloredOutput))
		})
	}
}

func TestRenderEmptyTextOutput(testInstance *testing.T) {
	require.Equal(testInstance, "no repositories found\n", render(testInstance, report.DisplayModeStandard, report.ColorModeNever, nil))
	require.Equal(testInstance, "[]\n", render(testInstance, report.DisplayModeJSON, report.ColorModeNever, nil))
}

func TestParseModes(testInstance *testing.T) {
	testCases := []struct {
		name        string
		parse       func() error
		expectError error
	}{
		{name: "display_mode_case_insensitive", parse: func() error { _, parseError := report.ParseDisplayMode(" JSON "); return parseError }},
		{name: "display_mode_unknown", parse: func() error { _, parseError := report.ParseDisplayMode("table"); return parseError }, expectError: report.ErrUnsupportedDisplayMode},
		{name: "color_mode_auto", parse: func() error { _, parseError := report.ParseColorMode("auto"); return parseError }},
		{name: "color_mode_unknown", parse: func() error { _, parseError := report.ParseColorMode("sometimes"); return parseError }, expectError: report.ErrUnsupportedColorMode},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			parseError := testCase.parse()
			if testCase.expectError == nil {
				require.NoError(testInstance, parseError)
				return
			}
			require.ErrorIs(testInstance, parseError, testCase.expectError)
		})
	}
}

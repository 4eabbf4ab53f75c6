package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gfold/internal/status"
)

// DisplayMode selects the output layout.
type DisplayMode string

// Supported display modes.
const (
	DisplayModeStandard DisplayMode = DisplayMode("standard")
	DisplayModeClassic  DisplayMode = DisplayMode("classic")
	DisplayModeJSON     DisplayMode = DisplayMode("json")
	DisplayModeYAML     DisplayMode = DisplayMode("yaml")
)

// ColorMode selects whether text output is colored.
type ColorMode string

// Supported color modes.
const (
	ColorModeAlways ColorMode = ColorMode("always")
	ColorModeAuto   ColorMode = ColorMode("auto")
	ColorModeNever  ColorMode = ColorMode("never")
)

const (
	unsupportedDisplayModeTemplateConstant = "unsupported display mode %q"
	unsupportedColorModeTemplateConstant   = "unsupported color mode %q"
	jsonIndentConstant                     = "  "
	yamlIndentConstant                     = 2
	standardIndentConstant                 = "  "
	columnGapConstant                      = "  "
	divergenceTemplateConstant             = "↑%d ↓%d"
	remoteErrorTemplateConstant            = "remote %s"
	newlineConstant                        = "\n"
	openParenthesisConstant                = " ("
	closeParenthesisConstant               = ")"
	dirtyNameSeparatorConstant             = ", "
	noRecordsMessageConstant               = "no repositories found"
)

var (
	// ErrUnsupportedDisplayMode indicates an unknown display mode.
	ErrUnsupportedDisplayMode = errors.New("report: unsupported display mode")
	// ErrUnsupportedColorMode indicates an unknown color mode.
	ErrUnsupportedColorMode = errors.New("report: unsupported color mode")
)

// ParseDisplayMode validates a display mode name.
func ParseDisplayMode(value string) (DisplayMode, error) {
	candidate := DisplayMode(strings.ToLower(strings.TrimSpace(value)))
	switch candidate {
	case DisplayModeStandard, DisplayModeClassic, DisplayModeJSON, DisplayModeYAML:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: "+unsupportedDisplayModeTemplateConstant, ErrUnsupportedDisplayMode, value)
	}
}

// ParseColorMode validates a color mode name.
func ParseColorMode(value string) (ColorMode, error) {
	candidate := ColorMode(strings.ToLower(strings.TrimSpace(value)))
	switch candidate {
	case ColorModeAlways, ColorModeAuto, ColorModeNever:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: "+unsupportedColorModeTemplateConstant, ErrUnsupportedColorMode, value)
	}
}

type palette struct {
	name      lipgloss.Style
	branch    lipgloss.Style
	dim       lipgloss.Style
	summaries map[status.Summary]lipgloss.Style
}

func newPalette(renderer *lipgloss.Renderer) palette {
	return palette{
		name:   renderer.NewStyle().Bold(true),
		branch: renderer.NewStyle().Foreground(lipgloss.Color("73")),
		dim:    renderer.NewStyle().Foreground(lipgloss.Color("242")),
		summaries: map[status.Summary]lipgloss.Style{
			status.SummaryClean:    renderer.NewStyle().Foreground(lipgloss.Color("71")),
			status.SummaryUnclean:  renderer.NewStyle().Foreground(lipgloss.Color("167")),
			status.SummaryUnpushed: renderer.NewStyle().Foreground(lipgloss.Color("179")),
			status.SummaryBehind:   renderer.NewStyle().Foreground(lipgloss.Color("69")),
			status.SummaryBare:     renderer.NewStyle().Foreground(lipgloss.Color("242")),
			status.SummaryUnknown:  renderer.NewStyle().Foreground(lipgloss.Color("196")),
		},
	}
}

func (colors palette) summary(summary status.Summary) string {
	if style, exists := colors.summaries[summary]; exists {
		return style.Render(string(summary))
	}
	return string(summary)
}

// Renderer writes records in the configured display mode.
type Renderer struct {
	writer      io.Writer
	displayMode DisplayMode
	colors      palette
}

// NewRenderer validates the modes and builds a Renderer writing to writer.
func NewRenderer(writer io.Writer, displayMode DisplayMode, colorMode ColorMode) (*Renderer, error) {
	if _, displayError := ParseDisplayMode(string(displayMode)); displayError != nil {
		return nil, displayError
	}
	if _, colorError := ParseColorMode(string(colorMode)); colorError != nil {
		return nil, colorError
	}

	styleRenderer := lipgloss.NewRenderer(writer)
	switch colorMode {
	case ColorModeAlways:
		styleRenderer.SetColorProfile(termenv.ANSI256)
	case ColorModeNever:
		styleRenderer.SetColorProfile(termenv.Ascii)
	}

	return &Renderer{writer: writer, displayMode: displayMode, colors: newPalette(styleRenderer)}, nil
}

// Render writes the records. Text modes order them by parent directory and name.
func (renderer *Renderer) Render(records []status.Record) error {
	orderedRecords := sortedRecords(records)
	switch renderer.displayMode {
	case DisplayModeJSON:
		return renderer.renderJSON(orderedRecords)
	case DisplayModeYAML:
		return renderer.renderYAML(orderedRecords)
	case DisplayModeClassic:
		return renderer.renderClassic(orderedRecords)
	default:
		return renderer.renderStandard(orderedRecords)
	}
}

func views(records []status.Record) []RepositoryView {
	repositoryViews := make([]RepositoryView, 0, len(records))
	for _, record := range records {
		repositoryViews = append(repositoryViews, NewRepositoryView(record))
	}
	return repositoryViews
}

func (renderer *Renderer) renderJSON(records []status.Record) error {
	encoder := json.NewEncoder(renderer.writer)
	encoder.SetIndent("", jsonIndentConstant)
	return encoder.Encode(views(records))
}

func (renderer *Renderer) renderYAML(records []status.Record) error {
	encoder := yaml.NewEncoder(renderer.writer)
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(views(records)); encodeError != nil {
		return encodeError
	}
	return encoder.Close()
}

func (renderer *Renderer) renderStandard(records []status.Record) error {
	if len(records) == 0 {
		_, writeError := io.WriteString(renderer.writer, noRecordsMessageConstant+newlineConstant)
		return writeError
	}

	var outputBuilder strings.Builder
	for _, record := range records {
		outputBuilder.WriteString(renderer.colors.name.Render(record.Name))
		outputBuilder.WriteString(columnGapConstant)
		outputBuilder.WriteString(renderer.colors.branch.Render(record.Branch.DisplayName()))
		outputBuilder.WriteString(columnGapConstant)
		outputBuilder.WriteString(renderer.colors.summary(record.Summary()))
		if detail := statusDetail(record); len(detail) > 0 {
			outputBuilder.WriteString(openParenthesisConstant + detail + closeParenthesisConstant)
		}
		outputBuilder.WriteString(newlineConstant)

		for _, detailLine := range []string{record.Path, record.RemoteURL, record.Email} {
			if len(detailLine) == 0 {
				continue
			}
			outputBuilder.WriteString(standardIndentConstant + renderer.colors.dim.Render(detailLine) + newlineConstant)
		}
		for _, submodule := range record.Submodules {
			outputBuilder.WriteString(standardIndentConstant + renderer.colors.dim.Render(submodule.Path+" "+submodule.Dirty.String()) + newlineConstant)
		}
	}
	_, writeError := io.WriteString(renderer.writer, outputBuilder.String())
	return writeError
}

// renderClassic groups records under their parent directory with aligned columns.
func (renderer *Renderer) renderClassic(records []status.Record) error {
	if len(records) == 0 {
		_, writeError := io.WriteString(renderer.writer, noRecordsMessageConstant+newlineConstant)
		return writeError
	}

	nameWidth, summaryWidth, branchWidth := 0, 0, 0
	for _, record := range records {
		nameWidth = max(nameWidth, lipgloss.Width(record.Name))
		summaryWidth = max(summaryWidth, lipgloss.Width(string(record.Summary())))
		branchWidth = max(branchWidth, lipgloss.Width(record.Branch.DisplayName()))
	}

	var outputBuilder strings.Builder
	currentParent := ""
	for recordIndex, record := range records {
		if recordIndex == 0 || record.Parent != currentParent {
			if recordIndex > 0 {
				outputBuilder.WriteString(newlineConstant)
			}
			currentParent = record.Parent
			outputBuilder.WriteString(renderer.colors.dim.Render(currentParent) + newlineConstant)
		}

		summary := record.Summary()
		outputBuilder.WriteString(pad(renderer.colors.name.Render(record.Name), record.Name, nameWidth))
		outputBuilder.WriteString(columnGapConstant)
		outputBuilder.WriteString(pad(renderer.colors.summary(summary), string(summary), summaryWidth))
		outputBuilder.WriteString(columnGapConstant)
		outputBuilder.WriteString(pad(renderer.colors.branch.Render(record.Branch.DisplayName()), record.Branch.DisplayName(), branchWidth))
		if len(record.RemoteURL) > 0 {
			outputBuilder.WriteString(columnGapConstant + record.RemoteURL)
		}
		outputBuilder.WriteString(newlineConstant)
	}
	_, writeError := io.WriteString(renderer.writer, outputBuilder.String())
	return writeError
}

func pad(rendered string, plain string, width int) string {
	if padding := width - lipgloss.Width(plain); padding > 0 {
		return rendered + strings.Repeat(" ", padding)
	}
	return rendered
}

// statusDetail lists dirty flags, divergence, and remote failures after the summary.
func statusDetail(record status.Record) string {
	details := make([]string, 0, 3)
	if record.Dirty.IsDirty() {
		details = append(details, strings.Join(record.Dirty.Names(), dirtyNameSeparatorConstant))
	}
	if record.Divergence != nil && !record.Divergence.InSync() {
		details = append(details, fmt.Sprintf(divergenceTemplateConstant, record.Divergence.Ahead, record.Divergence.Behind))
	}
	if record.RemoteError != nil {
		details = append(details, fmt.Sprintf(remoteErrorTemplateConstant, record.RemoteError.Kind))
	}
	if record.Error != nil {
		details = append(details, record.Error.Error())
	}
	return strings.Join(details, dirtyNameSeparatorConstant)
}

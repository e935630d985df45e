package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/heatx/internal/formatter"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/tasks"
	"github.com/desertthunder/heatx/internal/tracks"
)

// maxSegmentItems caps the segment list on the result view.
const maxSegmentItems = 100

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ActivityListView ViewState = iota
	DetailView
	ConfirmView
	BuildView
	ResultView
)

// ActivityLister reads cached activities. Implemented by the activity repository.
type ActivityLister interface {
	List(criteria map[string]any) ([]*models.PersistedActivity, error)
}

// HeatmapBuilder builds heatmaps with progress reporting. Implemented by [tasks.HeatmapEngine].
type HeatmapBuilder interface {
	Build(ctx context.Context, progress chan<- tasks.ProgressUpdate, opts tasks.BuildOpts) (*tasks.BuildResult, error)
	Codec() *polyline.Codec
}

// Options narrows what the TUI lists and builds.
type Options struct {
	Source     string // Limit to one source; empty shows every cached activity
	Density    bool   // Also bin points into H3 cells
	Resolution int    // H3 resolution for density mode
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	store        ActivityLister
	engine       HeatmapBuilder
	opts         Options
	width        int
	height       int
	activityList list.Model
	activities   []models.Activity
	selected     *models.Activity
	summary      *tracks.Summary
	summaryErr   error
	segmentList  list.Model
	progressChan chan tasks.ProgressUpdate
	done         chan Msg
	progress     tasks.ProgressUpdate
	spinner      spinner.Model
	result       *tasks.BuildResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, store ActivityLister, engine HeatmapBuilder, opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.warn

	return &Model{
		ctx:          ctx,
		view:         ActivityListView,
		store:        store,
		engine:       engine,
		opts:         opts,
		activityList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		segmentList:  list.New(nil, list.NewDefaultDelegate(), 0, 0),
		spinner:      s,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init initializes the TUI by loading cached activities.
func (m *Model) Init() tea.Cmd {
	return m.loadActivities()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.activityList.SetSize(msg.Width-4, msg.Height-8)
		m.segmentList.SetSize(msg.Width-4, msg.Height-14)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ActivityListView:
			return m.handleActivityListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case BuildView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != BuildView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgActivitiesLoaded:
		data := msg.data.(activitiesLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.activities = data.activities
		items := make([]list.Item, len(data.activities))
		for i, a := range data.activities {
			items[i] = activityItem{activity: a}
		}
		m.activityList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.activityList.Title = "Cached Activities"
		m.activityList.SetSize(m.width-4, m.height-8)
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, waitForProgress(m.progressChan, m.done)

	case MsgBuildComplete:
		data := msg.data.(buildComplete)
		m.result = data.result
		m.err = data.err
		m.view = ResultView
		m.progressChan = nil
		m.done = nil

		if data.result != nil && data.result.Heatmap != nil {
			segs := data.result.Heatmap.Segments
			items := make([]list.Item, 0, min(len(segs), maxSegmentItems))
			for _, s := range segs[:min(len(segs), maxSegmentItems)] {
				items = append(items, segmentItem{segment: s})
			}
			m.segmentList = list.New(items, list.NewDefaultDelegate(), 0, 0)
			m.segmentList.Title = "Busiest Segments"
			m.segmentList.SetShowStatusBar(false)
			m.segmentList.SetSize(m.width-4, m.height-14)
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case ActivityListView:
		return m.renderActivityList()
	case DetailView:
		return m.renderDetail()
	case ConfirmView:
		return m.renderConfirm()
	case BuildView:
		return m.renderBuild()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// ViewState returns the current view.
func (m *Model) ViewState() ViewState {
	return m.view
}

func (m *Model) handleActivityListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.activityList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.activityList, cmd = m.activityList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case m.err != nil:
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.activityList.SelectedItem().(activityItem); ok {
			m.selectActivity(item.activity)
			m.view = DetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.build):
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.activityList, cmd = m.activityList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ActivityListView
	case key.Matches(msg, m.keys.build):
		m.view = ConfirmView
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = ActivityListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = BuildView
		return m, m.startBuild()
	case key.Matches(msg, m.keys.density):
		m.opts.Density = !m.opts.Density
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = ActivityListView
		m.selected = nil
		m.summary = nil
		m.result = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
		return m, m.loadActivities()
	}

	var cmd tea.Cmd
	m.segmentList, cmd = m.segmentList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ActivityListView:
		m.activityList, cmd = m.activityList.Update(msg)
	case ResultView:
		m.segmentList, cmd = m.segmentList.Update(msg)
	}
	return m, cmd
}

// selectActivity decodes the activity's track and summarizes it.
func (m *Model) selectActivity(a models.Activity) {
	m.selected = &a
	m.summary = nil
	m.summaryErr = nil
	if !a.HasTrack() {
		return
	}

	codec := m.engine.Codec()
	track, err := tracks.ParseWith(codec, a.Polyline)
	if err != nil {
		m.summaryErr = err
		return
	}
	summary, err := tracks.Summarize(codec, track)
	if err != nil {
		m.summaryErr = err
		return
	}
	m.summary = &summary
}

func (m *Model) loadActivities() tea.Cmd {
	return func() tea.Msg {
		criteria := map[string]any{}
		if m.opts.Source != "" {
			criteria["source"] = m.opts.Source
		}
		persisted, err := m.store.List(criteria)
		if err != nil {
			return activitiesLoadedMsg(nil, err)
		}
		activities := make([]models.Activity, len(persisted))
		for i, p := range persisted {
			activities[i] = p.Activity()
		}
		return activitiesLoadedMsg(activities, nil)
	}
}

func (m *Model) startBuild() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.done = done

	opts := tasks.BuildOpts{Density: m.opts.Density, Resolution: m.opts.Resolution}
	if m.opts.Source != "" {
		opts.Sources = []string{m.opts.Source}
	}

	go func() {
		result, err := m.engine.Build(m.ctx, progress, opts)
		close(progress)
		done <- buildCompleteMsg(result, err)
	}()

	return tea.Batch(m.spinner.Tick, waitForProgress(progress, done))
}

// waitForProgress relays the next progress update, then the completion message once progress closes.
func waitForProgress(progress <-chan tasks.ProgressUpdate, done <-chan Msg) tea.Cmd {
	return func() tea.Msg {
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		return <-done
	}
}

func (m *Model) withTracks() int {
	n := 0
	for _, a := range m.activities {
		if a.HasTrack() {
			n++
		}
	}
	return n
}

func (m *Model) renderActivityList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.build, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.activityList.View(), helpView)
}

func field(label string, value any) string {
	return fmt.Sprintf("%s %v\n", styles.label.Render(label), value)
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return ""
	}
	a := m.selected

	var b strings.Builder
	b.WriteString(styles.title.Render(activityItem{activity: *a}.Title()))
	b.WriteString("\n")
	b.WriteString(field("Source", fmt.Sprintf("%s #%s", a.Source, a.SourceID)))
	if a.Type != "" {
		b.WriteString(field("Type", a.Type))
	}
	b.WriteString(field("Distance", formatter.FormatDistance(a.Distance)))
	if !a.StartDate.IsZero() {
		b.WriteString(field("Started", a.StartDate.Format("2006-01-02 15:04")))
	}

	switch {
	case m.summaryErr != nil:
		b.WriteString("\n" + styles.err.Render(fmt.Sprintf("Track could not be decoded: %v", m.summaryErr)) + "\n")
	case m.summary == nil:
		msg := "No track data cached"
		if a.TrackID != "" {
			msg += fmt.Sprintf(" (track %s not fetched yet)", a.TrackID)
		}
		b.WriteString("\n" + styles.warn.Render(msg) + "\n")
	default:
		s := m.summary
		b.WriteString("\n")
		b.WriteString(field("Points", s.Points))
		b.WriteString(field("Length", formatter.FormatDistance(s.Length)))
		b.WriteString(field("Bounds", fmt.Sprintf("%.5f,%.5f → %.5f,%.5f", s.Bounds.Min.Lat(), s.Bounds.Min.Lon(), s.Bounds.Max.Lat(), s.Bounds.Max.Lon())))
		b.WriteString(field("Encoded", fmt.Sprintf("%d bytes", s.EncodedSize)))
		if s.Elevation {
			b.WriteString(field("Elevation", "yes"))
		}
	}

	helpKeys := []key.Binding{m.keys.build, m.keys.back, m.keys.quit}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderConfirm() string {
	scope := "all sources"
	if m.opts.Source != "" {
		scope = m.opts.Source
	}
	title := styles.title.Render("Build heatmap?")
	info := fmt.Sprintf("\nActivities: %d (%d with tracks)\nScope: %s\n", len(m.activities), m.withTracks(), scope)
	if m.opts.Density {
		info += fmt.Sprintf("Density: H3 resolution %d\n", m.opts.Resolution)
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.density}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderBuild() string {
	title := styles.title.Render("Building Heatmap")

	var phase string
	switch m.progress.Phase {
	case tasks.LoadPolylines:
		phase = "Loading cached tracks..."
	case tasks.DecodePolylines:
		phase = fmt.Sprintf("Decoding tracks (%d)", m.progress.Total)
	case tasks.ReadGPX:
		phase = "Reading GPX files..."
	case tasks.BinDensity:
		phase = "Binning points into cells..."
	case tasks.Done:
		phase = "Finishing..."
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n\n%s %s\n%s", title, m.spinner.View(), phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Build failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil || m.result.Heatmap == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	res := m.result.Heatmap
	title := styles.ok.Render("✓ Heatmap Ready")
	info := "\n" +
		field("Tracks", res.Stats.Tracks) +
		field("Points", res.Stats.Points) +
		field("Segments", res.Stats.Segments) +
		field("Busiest", fmt.Sprintf("%dx", res.Stats.MaxCount))
	if len(m.result.Cells) > 0 {
		info += field("H3 cells", len(m.result.Cells))
	}

	var skipped string
	if res.Skipped > 0 {
		skipped = "\n" + styles.warn.Render(fmt.Sprintf("Skipped %d tracks that could not be decoded", res.Skipped)) + "\n"
	}

	return fmt.Sprintf("%s\n%s%s\n%s\n\n%s", title, info, skipped, m.segmentList.View(), helpView)
}

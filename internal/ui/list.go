package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/heatx/internal/formatter"
	"github.com/desertthunder/heatx/internal/heatmap"
	"github.com/desertthunder/heatx/internal/models"
)

var (
	_ list.Item = activityItem{}
	_ list.Item = segmentItem{}
)

// activityItem wraps [models.Activity] to implement [list.Item].
type activityItem struct {
	activity models.Activity
}

func (i activityItem) FilterValue() string { return i.activity.Name }
func (i activityItem) Title() string {
	if i.activity.Name == "" {
		return i.activity.SourceID
	}
	return i.activity.Name
}
func (i activityItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.activity.Source, formatter.FormatDistance(i.activity.Distance))
	if i.activity.Type != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.activity.Type)
	}
	if !i.activity.StartDate.IsZero() {
		desc = fmt.Sprintf("%s • %s", desc, i.activity.StartDate.Format("2006-01-02"))
	}
	if !i.activity.HasTrack() {
		desc += " • no track"
	}
	return desc
}

// segmentItem wraps [heatmap.Segment] to implement [list.Item].
type segmentItem struct {
	segment heatmap.Segment
}

func (i segmentItem) FilterValue() string { return i.Title() }
func (i segmentItem) Title() string {
	return fmt.Sprintf("%dx", i.segment.Count)
}
func (i segmentItem) Description() string {
	s := i.segment
	return fmt.Sprintf("%.5f,%.5f → %.5f,%.5f", s.Start[0], s.Start[1], s.End[0], s.End[1])
}

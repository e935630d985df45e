package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgActivitiesLoaded MsgKind = iota
	MsgProgressUpdate
	MsgBuildComplete
)

type activitiesLoaded struct {
	activities []models.Activity
	err        error
}

type buildComplete struct {
	result *tasks.BuildResult
	err    error
}

// activitiesLoadedMsg is the constructor for [MsgActivitiesLoaded]
func activitiesLoadedMsg(activities []models.Activity, err error) Msg {
	return Msg{kind: MsgActivitiesLoaded, data: activitiesLoaded{activities, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// buildCompleteMsg is the constructor for [MsgBuildComplete]
func buildCompleteMsg(result *tasks.BuildResult, err error) Msg {
	return Msg{kind: MsgBuildComplete, data: buildComplete{result, err}}
}

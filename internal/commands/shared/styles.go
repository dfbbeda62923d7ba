// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/hearth/internal/workload"
)

var (
	green  = lipgloss.Color("42")
	orange = lipgloss.Color("214")
	red    = lipgloss.Color("196")
	blue   = lipgloss.Color("39")
	gray   = lipgloss.Color("245")
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(green)
	warnStyle  = lipgloss.NewStyle().Foreground(orange)
	errorStyle = lipgloss.NewStyle().Foreground(red)

	// Muted is for secondary text: empty-list notices, timings, hints.
	Muted = lipgloss.NewStyle().Foreground(gray)

	// Header is for workload names and section titles.
	Header = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// Status symbols.
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

// stateStyles colors each workload state. Unknown states render muted.
var stateStyles = map[workload.State]lipgloss.Style{
	workload.StateRunning:  okStyle.Bold(true),
	workload.StateStarting: warnStyle,
	workload.StateStopped:  Muted,
}

// RenderOK prefixes msg with a green check.
func RenderOK(msg string) string {
	return okStyle.Render(SymbolOK) + " " + msg
}

// RenderWarn prefixes msg with an orange warning sign.
func RenderWarn(msg string) string {
	return warnStyle.Render(SymbolWarn) + " " + msg
}

// RenderError prefixes msg with a red cross.
func RenderError(msg string) string {
	return errorStyle.Render(SymbolError) + " " + msg
}

// RenderHealth renders "[label]" green when ok and red otherwise.
func RenderHealth(ok bool, label string) string {
	if ok {
		return okStyle.Render("[" + label + "]")
	}
	return errorStyle.Render("[" + label + "]")
}

// RenderActive renders text green when active and muted otherwise.
func RenderActive(active bool, text string) string {
	if active {
		return okStyle.Render(text)
	}
	return Muted.Render(text)
}

// RenderLabel renders the key of a key: value line.
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RenderState colors a workload state.
func RenderState(state workload.State) string {
	style, ok := stateStyles[state]
	if !ok {
		style = Muted
	}
	return style.Render(string(state))
}

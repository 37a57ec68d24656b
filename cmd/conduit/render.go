package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/conduit/pkg/dispatch"
	"github.com/entrhq/conduit/pkg/types"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

func renderResponse(resp dispatch.Response) string {
	var b strings.Builder

	if resp.OK {
		b.WriteString(okStyle.Render("ok"))
	} else {
		b.WriteString(failStyle.Render("failed"))
	}
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(string(resp.Status)))

	if resp.Message != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("message: "))
		b.WriteString(resp.Message)
	}
	if resp.Value != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("value:   "))
		b.WriteString(resp.Value)
	}
	if resp.Postcheck != nil && resp.Postcheck.ActualValue != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("actual:  "))
		b.WriteString(resp.Postcheck.ActualValue)
	}
	if resp.Precheck != nil && resp.Precheck.InterceptingSelector != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("blocked by: "))
		b.WriteString(resp.Precheck.InterceptingSelector)
	}

	return b.String()
}

func renderStatus(instance string, resp dispatch.Response) string {
	state := okStyle.Render("up")
	if !resp.OK || resp.Status != types.StatusOK {
		state = failStyle.Render(string(resp.Status))
	}
	line := fmt.Sprintf("%s %s", labelStyle.Render("instance "+instance+":"), state)
	if resp.Message != "" {
		line += "  " + resp.Message
	}
	return line
}

func renderDown(instance string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render("instance "+instance+":"), failStyle.Render("down"))
}

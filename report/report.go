// Package report turns classification results into the summary that gets
// mailed after every sweep: accounts grouped by action, plus a per-OU
// breakdown so an unusual cluster of disables stands out.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"f0oster/adsweep/lifecycle"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

type Report struct {
	Kind        lifecycle.Kind
	GeneratedAt time.Time
	DryRun      bool
	Examined    int
	Failed      int
	Notices     []string
	Groups      []Group
	OUs         []OUSummary
}

// Group holds every account assigned one action, sorted by name.
type Group struct {
	Action  lifecycle.Action
	Results []lifecycle.Result
}

type OUSummary struct {
	OU      string
	Total   int
	Disable int
	Remove  int
}

// Build assembles the report. Accounts classified as needing no action count
// toward the examined total but are not listed.
func Build(kind lifecycle.Kind, results []lifecycle.Result, dryRun bool, now time.Time) *Report {
	rep := &Report{
		Kind:        kind,
		GeneratedAt: now,
		DryRun:      dryRun,
		Examined:    len(results),
	}

	byAction := make(map[lifecycle.Action][]lifecycle.Result)
	byOU := make(map[string]*OUSummary)
	for _, res := range results {
		if res.Action == lifecycle.ActionNone {
			continue
		}
		byAction[res.Action] = append(byAction[res.Action], res)

		ou := parentDN(res.DN)
		summary := byOU[ou]
		if summary == nil {
			summary = &OUSummary{OU: ou}
			byOU[ou] = summary
		}
		summary.Total++
		switch res.Action {
		case lifecycle.ActionDisable:
			summary.Disable++
		case lifecycle.ActionRemove:
			summary.Remove++
		}
	}

	for action := lifecycle.ActionDisable; action <= lifecycle.ActionNew; action++ {
		group := byAction[action]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Name < group[j].Name
		})
		rep.Groups = append(rep.Groups, Group{Action: action, Results: group})
	}

	for _, summary := range byOU {
		rep.OUs = append(rep.OUs, *summary)
	}
	sort.Slice(rep.OUs, func(i, j int) bool {
		return rep.OUs[i].OU < rep.OUs[j].OU
	})

	return rep
}

// Actionable is the number of accounts listed in the report.
func (r *Report) Actionable() int {
	n := 0
	for _, group := range r.Groups {
		n += len(group.Results)
	}
	return n
}

func (r *Report) countFor(action lifecycle.Action) int {
	for _, group := range r.Groups {
		if group.Action == action {
			return len(group.Results)
		}
	}
	return 0
}

// Subject builds the mail subject line.
func (r *Report) Subject() string {
	subject := fmt.Sprintf("%s sweep: %d examined, %d to disable, %d to remove",
		kindTitle(r.Kind), r.Examined,
		r.countFor(lifecycle.ActionDisable), r.countFor(lifecycle.ActionRemove))
	if r.Failed > 0 {
		subject += fmt.Sprintf(", %d failed", r.Failed)
	}
	if r.DryRun {
		subject += " (dry run)"
	}
	return subject
}

// HTML renders the mail body.
func (r *Report) HTML() (string, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"logonDate": formatLogonDate,
		"shortDate": func(t time.Time) string { return t.Format("2006-01-02") },
		"kindTitle": kindTitle,
		"container": parentDN,
	}).ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return "", fmt.Errorf("parse report template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "report.html.tmpl", r); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return buf.String(), nil
}

func formatLogonDate(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}

func kindTitle(kind lifecycle.Kind) string {
	if kind == lifecycle.KindComputer {
		return "Computer"
	}
	return "User"
}

// parentDN strips the leading RDN, leaving the container the account lives
// in. Escaped commas inside the RDN value are skipped over.
func parentDN(dn string) string {
	escaped := false
	for i := 0; i < len(dn); i++ {
		switch {
		case escaped:
			escaped = false
		case dn[i] == '\\':
			escaped = true
		case dn[i] == ',':
			return strings.TrimSpace(dn[i+1:])
		}
	}
	return dn
}

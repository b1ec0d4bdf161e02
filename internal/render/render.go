// Package render turns a merged deployment record into the compact or
// extended reply shapes, each with a rich structured form and a plain-text
// fallback.
package render

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/onetwotrip/punk/internal/command"
	"github.com/onetwotrip/punk/internal/record"
)

const (
	// MessageColor is the marker color of every rich reply.
	MessageColor = "#FFCA06"
	// MessageFooter attributes the reply to the backing index.
	MessageFooter = "Based on information from the deployment index"

	projectHeader = "Project --------------------------------------------------"
)

// Field is one labeled value in a rich message.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Message is the rich reply form, shaped like a chat attachment.
type Message struct {
	Title   string  `json:"title,omitempty"`
	Pretext string  `json:"pretext,omitempty"`
	Text    string  `json:"text,omitempty"`
	Color   string  `json:"color"`
	Footer  string  `json:"footer"`
	Fields  []Field `json:"fields,omitempty"`
}

// Compact renders the branch-only summary: a single project field for a
// project query, or one line per project (and role) for a whole environment.
func Compact(req command.Request, merged record.Merged) Message {
	msg := Message{
		Color:   MessageColor,
		Pretext: fmt.Sprintf("*%s*", req.Environment),
		Footer:  MessageFooter,
	}

	if req.Project != "" {
		dep := merged[req.Project]
		switch dep.Topology {
		case record.TopologyRoles:
			for _, role := range dep.RoleNames() {
				msg.Fields = append(msg.Fields, Field{
					Title: fmt.Sprintf("%s (%s)", req.Project, role),
					Value: dep.Roles[role][record.AttrBranch],
				})
			}
		default:
			msg.Fields = append(msg.Fields, Field{
				Title: req.Project,
				Value: dep.Attrs[record.AttrBranch],
			})
		}
		return msg
	}

	var text strings.Builder
	text.WriteString("```")
	for _, proj := range merged.ProjectNames() {
		dep := merged[proj]
		switch dep.Topology {
		case record.TopologyRoles:
			for _, role := range dep.RoleNames() {
				fmt.Fprintf(&text, "%-25s - %s\n", proj+"/"+role, dep.Roles[role][record.AttrBranch])
			}
		default:
			fmt.Fprintf(&text, "%-25s - %s\n", proj, dep.Attrs[record.AttrBranch])
		}
	}
	text.WriteString("```")
	msg.Text = text.String()
	return msg
}

// Extended renders the field-by-field report: attribute fields sorted by
// key, labels capitalized, the release timestamp parsed before display.
// Role-partitioned projects get one block per role under a project header.
func Extended(req command.Request, merged record.Merged) Message {
	msg := Message{
		Color:  MessageColor,
		Footer: MessageFooter,
	}

	if req.Project != "" {
		msg.Title = fmt.Sprintf("%s - %s", req.Environment, req.Project)
		msg.Fields = deploymentFields(req.Project, merged[req.Project], false)
		return msg
	}

	msg.Title = req.Environment
	for _, proj := range merged.ProjectNames() {
		msg.Fields = append(msg.Fields, deploymentFields(proj, merged[proj], true)...)
	}
	return msg
}

func deploymentFields(proj string, dep record.Deployment, withHeader bool) []Field {
	var fields []Field
	if withHeader {
		fields = append(fields, Field{
			Title: projectHeader,
			Value: capitalize(proj),
		})
	}

	switch dep.Topology {
	case record.TopologyRoles:
		for _, role := range dep.RoleNames() {
			fields = append(fields, Field{Title: "Role", Value: role})
			fields = append(fields, attributeFields(proj, dep.Roles[role])...)
		}
	default:
		fields = append(fields, attributeFields(proj, dep.Attrs)...)
	}
	return fields
}

func attributeFields(proj string, attrs record.AttributeSet) []Field {
	fields := make([]Field, 0, len(attrs))
	for _, key := range attrs.SortedKeys() {
		value := attrs[key]
		if key == record.AttrReleaseTimestamp {
			value = displayTimestamp(proj, value)
		}
		fields = append(fields, Field{
			Title: capitalize(key),
			Value: value,
			Short: true,
		})
	}
	return fields
}

// displayTimestamp parses the stored ISO-8601 timestamp for display. A value
// that does not parse is shown as stored with a logged warning; the rest of
// the render proceeds.
func displayTimestamp(proj, value string) string {
	parsed, err := ParseTimestamp(value)
	if err != nil {
		log.Printf("render: bad release_timestamp for %s: %v", proj, err)
		return value
	}
	return parsed.UTC().Format("2006-01-02 15:04:05 -0700")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseTimestamp decodes a stored release timestamp into a time value.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

// Fallback builds the plain-text form from the full recognized attribute set
// with the timestamp as stored. It is always computable and never fails.
func Fallback(req command.Request, merged record.Merged) string {
	var text strings.Builder

	if req.Project != "" {
		dep := merged[req.Project]
		if dep.Topology == record.TopologyRoles {
			fmt.Fprintf(&text, "Environment: %s\n", req.Environment)
			writeFallbackDeployment(&text, req.Project, dep, true)
		} else {
			fmt.Fprintf(&text, "Environment: %s, ", req.Environment)
			writeFallbackAttrs(&text, dep.Attrs)
		}
		return strings.TrimRight(text.String(), "\n")
	}

	fmt.Fprintf(&text, "Environment: %s\n", req.Environment)
	for _, proj := range merged.ProjectNames() {
		writeFallbackDeployment(&text, proj, merged[proj], true)
	}
	return strings.TrimRight(text.String(), "\n")
}

func writeFallbackDeployment(text *strings.Builder, proj string, dep record.Deployment, named bool) {
	switch dep.Topology {
	case record.TopologyRoles:
		for _, role := range dep.RoleNames() {
			fmt.Fprintf(text, "Project: %s (%s)\n", proj, role)
			writeFallbackAttrs(text, dep.Roles[role])
		}
	default:
		if named {
			fmt.Fprintf(text, "Project: %s\n", proj)
		}
		writeFallbackAttrs(text, dep.Attrs)
	}
}

func writeFallbackAttrs(text *strings.Builder, attrs record.AttributeSet) {
	fmt.Fprintf(text, "Branch: %s, ", attrs[record.AttrBranch])
	fmt.Fprintf(text, "Commit: %s, ", attrs[record.AttrCurrentRevision])
	fmt.Fprintf(text, "Deployer: %s, ", attrs[record.AttrDeployUser])
	fmt.Fprintf(text, "Date: %s\n", attrs[record.AttrReleaseTimestamp])
}

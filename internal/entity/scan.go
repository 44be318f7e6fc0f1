package entity

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hupe1980/xmangle/internal/record"
	"github.com/hupe1980/xmangle/internal/xmlio"
)

// schemeLinks accumulates the indirect references between scheme records
// during a scan. They are expanded into retained-id sets once the whole
// document has been seen, since member rows can precede their schemes.
type schemeLinks struct {
	screenSchemeByIssueTypeScheme map[string]stringSet // IssueTypeScreenScheme id → FieldScreenScheme ids
	issueTypeByIssueTypeScheme    map[string]stringSet
	layoutByLayoutScheme          map[string]stringSet
	workflowByWorkflowScheme      map[string]stringSet
	screenByScreenScheme          map[string]stringSet
	screenByWorkflow              map[string]stringSet
	statusByWorkflow              map[string]stringSet
	tabByScreen                   map[string]stringSet
	configSchemeByProject         map[string]string // ConfigurationContext, key=issuetype
	configSchemeByCustomField     map[string]stringSet
	configByConfigScheme          map[string]stringSet
	issueTypeByConfig             map[string]stringSet
}

func newSchemeLinks() *schemeLinks {
	return &schemeLinks{
		screenSchemeByIssueTypeScheme: make(map[string]stringSet),
		issueTypeByIssueTypeScheme:    make(map[string]stringSet),
		layoutByLayoutScheme:          make(map[string]stringSet),
		workflowByWorkflowScheme:      make(map[string]stringSet),
		screenByScreenScheme:          make(map[string]stringSet),
		screenByWorkflow:              make(map[string]stringSet),
		statusByWorkflow:              make(map[string]stringSet),
		tabByScreen:                   make(map[string]stringSet),
		configSchemeByProject:         make(map[string]string),
		configSchemeByCustomField:     make(map[string]stringSet),
		configByConfigScheme:          make(map[string]stringSet),
		issueTypeByConfig:             make(map[string]stringSet),
	}
}

func addLink(links map[string]stringSet, from, to string) {
	s, ok := links[from]
	if !ok {
		s = make(stringSet)
		links[from] = s
	}

	s[to] = true
}

// Scan reads the entities document once and collects everything the filter
// pass needs: the user population, project-linked users, the internal
// directory, flagged property ids, and the scheme-id sets including their
// indirect references.
func (m *Mangler) Scan(ctx context.Context, r io.Reader) error {
	links := newSchemeLinks()

	stats, err := xmlio.Scan(ctx, r, func(rec *record.Record) error {
		m.scanRecord(rec, links)
		return nil
	}, xmlio.Options{
		ProgressInterval: 10000,
		Logger:           m.logger,
	})
	if err != nil {
		return err
	}

	m.elementCount = stats.Input

	m.expandSchemeLinks(links)
	m.resolveRetention()

	return nil
}

func (m *Mangler) scanRecord(rec *record.Record, links *schemeLinks) {
	switch rec.Kind {
	case "Directory":
		if rec.Get("type") == "INTERNAL" {
			m.internalDirectoryID = rec.Get("id")
			m.logger.Info("scan internal directory", slog.String("id", m.internalDirectoryID))
		}

	case "User":
		m.allUsers[rec.Get("userName")] = true

	case "Project":
		m.projectIDs[rec.Get("id")] = true

	case "ProjectRoleActor":
		if rec.Get("roletype") == "atlassian-user-role-actor" {
			u := rec.Get("roletypeparameter")
			m.projectUsers[u] = true
			m.logger.Info("scan project user", slog.String("user", u))
		}

	case "OSPropertyEntry":
		m.scanPropertyEntry(rec)

	case "NodeAssociation":
		if rec.Get("associationType") == "ProjectScheme" {
			entityKind := rec.Get("sinkNodeEntity")
			id := rec.Get("sinkNodeId")
			m.schemeSet(entityKind)[id] = true
			m.logger.Info("scan project scheme",
				slog.String("entity", entityKind),
				slog.String("id", id),
			)
		}

	case "IssueTypeScreenSchemeEntity":
		scheme := rec.Get("scheme")
		addLink(links.screenSchemeByIssueTypeScheme, scheme, rec.Get("fieldscreenscheme"))

		if it := rec.Get("issuetype"); it != "" {
			addLink(links.issueTypeByIssueTypeScheme, scheme, it)
		}

	case "FieldLayoutSchemeEntity":
		if fl := rec.Get("fieldlayout"); fl != "" {
			addLink(links.layoutByLayoutScheme, rec.Get("scheme"), fl)
		}

	case "WorkflowSchemeEntity":
		addLink(links.workflowByWorkflowScheme, rec.Get("scheme"), rec.Get("workflow"))

	case "FieldScreenSchemeItem":
		addLink(links.screenByScreenScheme, rec.Get("fieldscreenscheme"), rec.Get("fieldscreen"))

	case "Workflow":
		m.scanWorkflow(rec, links)

	case "FieldScreenTab":
		addLink(links.tabByScreen, rec.Get("fieldscreen"), rec.Get("id"))

	case "ConfigurationContext":
		if rec.Get("key") == "issuetype" {
			links.configSchemeByProject[rec.Get("project")] = rec.Get("fieldconfigscheme")
		}

	case "FieldConfigScheme":
		if strings.HasPrefix(rec.Get("fieldid"), "customfield_") {
			addLink(links.configSchemeByCustomField, rec.Get("fieldid"), rec.Get("id"))
		}

	case "FieldConfigSchemeIssueType":
		addLink(links.configByConfigScheme, rec.Get("fieldconfigscheme"), rec.Get("fieldconfiguration"))

	case "OptionConfiguration":
		if rec.Get("fieldid") == "issuetype" {
			addLink(links.issueTypeByConfig, rec.Get("fieldconfig"), rec.Get("optionid"))
		}
	}
}

func (m *Mangler) scanPropertyEntry(rec *record.Record) {
	id := rec.Get("id")
	key := rec.Get("entityName") + "/" + rec.Get("propertyKey")

	if _, ok := m.rewriteProperty[key]; ok {
		m.properties[id] = key
		m.logger.Info("scan property rewrite", slog.String("key", key), slog.String("id", id))
	}

	if m.dropProperty.Match(key) {
		m.dropPropertyIDs[id] = true
		m.logger.Info("scan property drop", slog.String("key", key), slog.String("id", id))
	}
}

// scanWorkflow extracts field screen and status references from the workflow
// descriptor, which is a complete XML document escaped into a child element.
func (m *Mangler) scanWorkflow(rec *record.Record, links *schemeLinks) {
	name := rec.Get("name")

	descriptor := rec.ChildText("descriptor")
	if strings.TrimSpace(descriptor) == "" {
		return
	}

	screens, statuses, err := parseWorkflowDescriptor(descriptor)
	if err != nil {
		// Unknown descriptor shape is an anomaly, not a fatal condition.
		m.logger.Warn("unparseable workflow descriptor",
			slog.String("workflow", name),
			slog.Any("error", err),
		)

		return
	}

	for _, s := range screens {
		addLink(links.screenByWorkflow, name, s)
	}

	for _, s := range statuses {
		addLink(links.statusByWorkflow, name, s)
	}
}

// expandSchemeLinks resolves indirect scheme references into the retained-id
// sets, starting from the schemes the retained projects point at.
func (m *Mangler) expandSchemeLinks(links *schemeLinks) {
	for id := range m.schemeSet("IssueTypeScreenScheme") {
		for s := range links.screenSchemeByIssueTypeScheme[id] {
			m.schemeSet("FieldScreenScheme")[s] = true
		}

		for it := range links.issueTypeByIssueTypeScheme[id] {
			m.schemeSet("IssueType")[it] = true
		}
	}

	for id := range m.schemeSet("FieldLayoutScheme") {
		for l := range links.layoutByLayoutScheme[id] {
			m.schemeSet("FieldLayout")[l] = true
		}
	}

	for id := range m.schemeSet("WorkflowScheme") {
		for wf := range links.workflowByWorkflowScheme[id] {
			m.workflows[wf] = true
		}
	}

	for id := range m.schemeSet("FieldScreenScheme") {
		for s := range links.screenByScreenScheme[id] {
			m.schemeSet("FieldScreen")[s] = true
		}
	}

	for wf := range m.workflows {
		for s := range links.screenByWorkflow[wf] {
			m.schemeSet("FieldScreen")[s] = true
		}

		for s := range links.statusByWorkflow[wf] {
			m.schemeSet("Status")[s] = true
		}
	}

	for screen := range m.schemeSet("FieldScreen") {
		for tab := range links.tabByScreen[screen] {
			m.schemeSet("FieldScreenTab")[tab] = true
		}
	}

	for project := range m.projectIDs {
		if cs := links.configSchemeByProject[project]; cs != "" {
			m.schemeSet("FieldConfigScheme")[cs] = true
		}
	}

	// Custom field configuration schemes are all retained; narrowing them to
	// the fields the kept projects actually use would need a per-issue scan.
	for _, schemes := range links.configSchemeByCustomField {
		for id := range schemes {
			m.schemeSet("FieldConfigScheme")[id] = true
		}
	}

	for id := range m.schemeSet("FieldConfigScheme") {
		for cfg := range links.configByConfigScheme[id] {
			m.schemeSet("FieldConfiguration")[cfg] = true
		}
	}

	for cfg := range m.schemeSet("FieldConfiguration") {
		for it := range links.issueTypeByConfig[cfg] {
			m.schemeSet("IssueType")[it] = true
		}
	}
}

// parseWorkflowDescriptor pulls the referenced field screen ids and status
// ids out of a workflow descriptor document. Screen ids live in
// <meta name="jira.fieldscreen.id"> under actions with view="fieldscreen";
// status ids in <meta name="jira.status.id"> under steps.
func parseWorkflowDescriptor(descriptor string) (screens, statuses []string, err error) {
	type frame struct {
		name string
		view string
	}

	var (
		stack    []frame
		metaName string
		metaText strings.Builder
		inMeta   bool
	)

	d := xml.NewDecoder(strings.NewReader(descriptor))
	// Workflow descriptors carry a DOCTYPE referencing an external DTD.
	d.Strict = false

	inScope := func(name, view string) bool {
		for _, f := range stack {
			if f.name != name {
				continue
			}

			if view == "" || f.view == view {
				return true
			}
		}

		return false
	}

	for {
		tok, tokErr := d.Token()
		if tokErr == io.EOF {
			return screens, statuses, nil
		}

		if tokErr != nil {
			return nil, nil, fmt.Errorf("parsing descriptor: %w", tokErr)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			var view string

			for _, a := range t.Attr {
				if a.Name.Local == "view" {
					view = a.Value
				}
			}

			stack = append(stack, frame{name: t.Name.Local, view: view})

			if t.Name.Local == "meta" {
				inMeta = true
				metaText.Reset()

				for _, a := range t.Attr {
					if a.Name.Local == "name" {
						metaName = a.Value
					}
				}
			}

		case xml.CharData:
			if inMeta {
				metaText.Write(t)
			}

		case xml.EndElement:
			if t.Name.Local == "meta" && inMeta {
				value := strings.TrimSpace(metaText.String())

				switch {
				case metaName == "jira.fieldscreen.id" && inScope("action", "fieldscreen"):
					screens = append(screens, value)
				case metaName == "jira.status.id" && inScope("step", ""):
					statuses = append(statuses, value)
				}

				inMeta = false
			}

			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

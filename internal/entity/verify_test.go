package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/xmangle/internal/rules"
	"github.com/hupe1980/xmangle/internal/state"
)

func verifyMangler(t *testing.T) *Mangler {
	t.Helper()

	return newMangler(t,
		rules.EntityRules{
			KeepUsers:    []string{"alice"},
			RewriteUsers: map[string]string{"carol": "caroline"},
		},
		&state.State{AllUsers: []string{"alice", "bob", "carol"}},
	)
}

func TestVerify_Clean(t *testing.T) {
	m := verifyMangler(t)

	doc := `<entity-engine-xml>
	<Issue id="1" assignee="alice" reporter="caroline"/>
</entity-engine-xml>`

	report, err := m.Verify(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Equal(t, 1, report.Records)
	assert.Zero(t, report.Flagged)
}

func TestVerify_FlagsDroppedAndRenamedUsers(t *testing.T) {
	m := verifyMangler(t)

	doc := `<entity-engine-xml>
	<Issue id="1" assignee="bob" reporter="alice"/>
	<SearchRequest id="2" author="carol"/>
	<Project id="3" lead="alice"/>
</entity-engine-xml>`

	report, err := m.Verify(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, 3, report.Records)
	assert.Equal(t, 2, report.Flagged)
	assert.Equal(t, 1, report.ByKind["Issue"])
	assert.Equal(t, 1, report.ByKind["SearchRequest"])

	require.Len(t, report.Findings, 2)
	assert.Equal(t, Finding{Kind: "Issue", Attribute: "assignee", Value: "bob"}, report.Findings[0])
	assert.Equal(t, Finding{Kind: "SearchRequest", Attribute: "author", Value: "carol"}, report.Findings[1])
}

func TestVerify_NoKeepConstraintFlagsOnlyRenameSources(t *testing.T) {
	m := newMangler(t,
		rules.EntityRules{RewriteUsers: map[string]string{"carol": "caroline"}},
		&state.State{AllUsers: []string{"alice", "bob", "carol"}},
	)

	doc := `<entity-engine-xml>
	<Issue id="1" assignee="bob"/>
	<Issue id="2" assignee="carol"/>
</entity-engine-xml>`

	report, err := m.Verify(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, "carol", report.Findings[0].Value)
}

// ---------------------------------------------------------------------------
// Report output
// ---------------------------------------------------------------------------

func TestReport_JSON(t *testing.T) {
	report := &Report{
		Findings: []Finding{{Kind: "Issue", Attribute: "assignee", Value: "bob"}},
		Records:  10,
		Flagged:  1,
		ByKind:   map[string]int{"Issue": 1},
	}

	data, err := report.JSON()
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.Findings, decoded.Findings)
	assert.Equal(t, 10, decoded.Records)
}

func TestReport_WriteText(t *testing.T) {
	report := &Report{
		Findings: []Finding{{Kind: "Issue", Attribute: "assignee", Value: "bob"}},
		Records:  10,
		Flagged:  1,
		ByKind:   map[string]int{"Issue": 1},
	}

	var buf bytes.Buffer
	report.WriteText(&buf)

	out := buf.String()
	assert.Contains(t, out, `Issue assignee="bob"`)
	assert.Contains(t, out, "1/10 records")
}

func TestReport_WriteTextClean(t *testing.T) {
	report := &Report{Records: 10, ByKind: map[string]int{}}

	var buf bytes.Buffer
	report.WriteText(&buf)

	assert.Contains(t, buf.String(), "No stale user references")
}

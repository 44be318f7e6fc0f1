package xmlio

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/xmangle/internal/record"
)

const entitiesDoc = `<?xml version="1.0" encoding="UTF-8"?>
<entity-engine-xml>
	<User id="10000" userName="alice"/>
	<User id="10001" userName="bob"/>
	<Project id="10100" key="TEST"/>
</entity-engine-xml>
`

// keepAll is a filter that passes every record through unchanged.
func keepAll(rec *record.Record) (*record.Record, error) {
	return rec, nil
}

// ---------------------------------------------------------------------------
// Process
// ---------------------------------------------------------------------------

func TestProcess_KeepAll(t *testing.T) {
	var out bytes.Buffer

	stats, err := Process(context.Background(), strings.NewReader(entitiesDoc), &out, keepAll, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Input)
	assert.Equal(t, 3, stats.Output)
	assert.Equal(t, 2, stats.InputByKind["User"])
	assert.Equal(t, 1, stats.OutputByKind["Project"])

	doc := out.String()
	assert.Contains(t, doc, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, doc, "<entity-engine-xml>")
	assert.Contains(t, doc, `<User id="10000" userName="alice"/>`)
	assert.Contains(t, doc, "</entity-engine-xml>")
}

func TestProcess_DropsRecords(t *testing.T) {
	var out bytes.Buffer

	dropUsers := func(rec *record.Record) (*record.Record, error) {
		if rec.Kind == "User" {
			return nil, nil
		}

		return rec, nil
	}

	stats, err := Process(context.Background(), strings.NewReader(entitiesDoc), &out, dropUsers, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Input)
	assert.Equal(t, 1, stats.Output)
	assert.NotContains(t, out.String(), "<User")
	assert.Contains(t, out.String(), `<Project id="10100" key="TEST"/>`)
}

func TestProcess_MutatesRecords(t *testing.T) {
	var out bytes.Buffer

	rename := func(rec *record.Record) (*record.Record, error) {
		if rec.Get("userName") == "bob" {
			rec.Set("userName", "robert")
		}

		return rec, nil
	}

	_, err := Process(context.Background(), strings.NewReader(entitiesDoc), &out, rename, Options{})
	require.NoError(t, err)

	assert.Contains(t, out.String(), `userName="robert"`)
	assert.NotContains(t, out.String(), `userName="bob"`)
}

func TestProcess_DefaultNamespace(t *testing.T) {
	in := `<backup xmlns="http://www.atlassian.com/ao">
	<data tableName="AO_TEST"/>
</backup>`

	var out bytes.Buffer

	_, err := Process(context.Background(), strings.NewReader(in), &out, keepAll, Options{
		DefaultNamespace: "http://www.atlassian.com/ao",
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), `<backup xmlns="http://www.atlassian.com/ao">`)
}

func TestProcess_MalformedInput(t *testing.T) {
	var out bytes.Buffer

	_, err := Process(context.Background(), strings.NewReader("<root><User id="), &out, keepAll, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestProcess_EmptyInput(t *testing.T) {
	var out bytes.Buffer

	_, err := Process(context.Background(), strings.NewReader(""), &out, keepAll, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no root element")
}

func TestProcess_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer

	_, err := Process(ctx, strings.NewReader(entitiesDoc), &out, keepAll, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Scan
// ---------------------------------------------------------------------------

func TestScan_CountsRecords(t *testing.T) {
	var kinds []string

	stats, err := Scan(context.Background(), strings.NewReader(entitiesDoc), func(rec *record.Record) error {
		kinds = append(kinds, rec.Kind)
		return nil
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Input)
	assert.Equal(t, []string{"User", "User", "Project"}, kinds)
}

func TestScan_EmptyInput(t *testing.T) {
	_, err := Scan(context.Background(), strings.NewReader(""), func(*record.Record) error { return nil }, Options{})
	require.Error(t, err)
}

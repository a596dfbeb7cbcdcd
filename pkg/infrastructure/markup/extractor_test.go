package markup

import (
	"errors"
	"testing"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectionPage = `<html><body>
<h1 id="parent-fieldname-title">
  PFC: Prefrontal cortex
</h1>
<div class="documentByLine"><span class="documentModified"><span>Last modified</span>
 2014-07-08 11:37 AM</span></div>
<a href="https://crcns.org/data-sets/pfc/pfc-1">pfc-1</a>
<a name="anchor-only">skip</a>
<a href=" https://crcns.org/data-sets/pfc/pfc-2 ">pfc-2</a>
</body></html>`

func TestDocument_Text(t *testing.T) {
	doc, err := NewParser().Parse(collectionPage)
	require.NoError(t, err)

	sel := DefaultSelectors()

	title, err := doc.Text(sel.CollectionTitle)
	require.NoError(t, err)
	assert.Equal(t, "PFC: Prefrontal cortex", title)

	modified, err := doc.Text(sel.CollectionModified)
	require.NoError(t, err)
	assert.Equal(t, "Last modified 2014-07-08 11:37 AM", modified)
}

func TestDocument_NoMatch(t *testing.T) {
	doc, err := NewParser().Parse(collectionPage)
	require.NoError(t, err)

	_, err = doc.Text(DefaultSelectors().DatasetDescription)
	assert.True(t, errors.Is(err, entity.ErrNoMatch))

	_, err = doc.HTML(DefaultSelectors().DatasetContent)
	assert.True(t, errors.Is(err, entity.ErrNoMatch))
}

func TestDocument_Links(t *testing.T) {
	doc, err := NewParser().Parse(collectionPage)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://crcns.org/data-sets/pfc/pfc-1",
		"https://crcns.org/data-sets/pfc/pfc-2",
	}, doc.Links())
}

func TestDocument_HTMLFirstMatch(t *testing.T) {
	doc, err := NewParser().Parse(`<div id="content"><p>one</p></div><div id="content">two</div>`)
	require.NoError(t, err)

	out, err := doc.HTML("div#content")
	require.NoError(t, err)
	assert.Equal(t, `<div id="content"><p>one</p></div>`, out)

	text, err := doc.Text("div#content")
	require.NoError(t, err)
	assert.Equal(t, "one", text)
}

package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/models"
)

const listingHTML = `
<table id="file-listing">
  <tr><th>Name</th><th>Size</th><th>Cycle</th><th>Uploaded</th></tr>
  <tr data-file-id="1001">
    <td class="file-name">zip4natl.tar</td>
    <td class="file-size">1.2 GB</td>
    <td class="file-cycle">N</td>
    <td class="file-uploaded">08/15/2026</td>
  </tr>
  <tr data-file-id="1002">
    <td class="file-name">dpv.tar</td>
    <td class="file-size">450 MB</td>
    <td class="file-cycle">O</td>
    <td class="file-uploaded">08/16/2026</td>
  </tr>
  <tr data-file-id="1003">
    <td class="file-name">readme.txt</td>
    <td class="file-size">2 KB</td>
    <td class="file-cycle"></td>
    <td class="file-uploaded">08/01/2026</td>
  </tr>
</table>`

func TestParseListing(t *testing.T) {
	listing, err := parseListing(listingHTML)
	require.NoError(t, err)
	require.Len(t, listing, 3)

	first := listing[0]
	assert.Equal(t, models.ProviderUSPS, first.Provider)
	assert.Equal(t, "zip4natl.tar", first.Name)
	assert.Equal(t, "1.2 GB", first.Size)
	assert.Equal(t, models.CycleN, first.Cycle)
	assert.Equal(t, "1001", first.RemoteID)
	assert.Equal(t, 2026, first.Year)
	assert.Equal(t, 8, first.Month)
	assert.Equal(t, 15, first.Day)

	assert.Equal(t, models.CycleO, listing[1].Cycle)
	assert.Equal(t, models.CycleNone, listing[2].Cycle)
}

func TestParseListing_SkipsDecorativeRows(t *testing.T) {
	html := `<table>
		<tr><td class="file-name">header-only</td></tr>
		<tr data-file-id="7"><td class="file-name"></td></tr>
	</table>`

	listing, err := parseListing(html)
	require.NoError(t, err)
	assert.Empty(t, listing)
}

func TestParseListing_BadDateFailsWholeListing(t *testing.T) {
	html := `<table>
		<tr data-file-id="1">
			<td class="file-name">zip4natl.tar</td>
			<td class="file-uploaded">not-a-date</td>
		</tr>
	</table>`

	_, err := parseListing(html)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad upload date")
}

func TestParseCycle(t *testing.T) {
	assert.Equal(t, models.CycleN, parseCycle(" n "))
	assert.Equal(t, models.CycleO, parseCycle("O"))
	assert.Equal(t, models.CycleNone, parseCycle("monthly"))
	assert.Equal(t, models.CycleNone, parseCycle(""))
}

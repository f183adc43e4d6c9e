package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const uploadedLayout = "01/02/2006"

// parseListing extracts file descriptors from the EPF listing table. Rows
// without a file id are decorative and skipped; a row with an id but an
// unparsable date fails the whole listing rather than silently dropping a
// file.
func parseListing(html string) ([]interfaces.RemoteFile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	var listing []interfaces.RemoteFile
	var parseErr error

	doc.Find("tr[data-file-id]").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		id, _ := row.Attr("data-file-id")
		if id == "" {
			return true
		}

		name := strings.TrimSpace(row.Find(".file-name").Text())
		if name == "" {
			return true
		}

		uploaded := strings.TrimSpace(row.Find(".file-uploaded").Text())
		at, err := time.Parse(uploadedLayout, uploaded)
		if err != nil {
			parseErr = fmt.Errorf("file %s: bad upload date %q", name, uploaded)
			return false
		}

		listing = append(listing, interfaces.RemoteFile{
			Provider:   models.ProviderUSPS,
			Name:       name,
			Size:       strings.TrimSpace(row.Find(".file-size").Text()),
			Month:      int(at.Month()),
			Year:       at.Year(),
			Day:        at.Day(),
			Cycle:      parseCycle(row.Find(".file-cycle").Text()),
			RemoteID:   id,
			UploadedAt: at,
		})
		return true
	})

	if parseErr != nil {
		return nil, parseErr
	}
	return listing, nil
}

func parseCycle(text string) models.Cycle {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "N":
		return models.CycleN
	case "O":
		return models.CycleO
	default:
		return models.CycleNone
	}
}
